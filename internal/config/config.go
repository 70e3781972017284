package config

import (
	"os"
	"strconv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port   string
	Host   string
	APIKey string
}

type DatabaseConfig struct {
	// Driver selects the store backend: "postgres" or "sqlite".
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

type SchedulerConfig struct {
	// ExecTimeoutSeconds is the hard wall-clock limit for one command.
	ExecTimeoutSeconds int
	// RetentionDays is the age past which finished runs are purged.
	RetentionDays int
	// SweepSchedule is the cron spec for the retention sweeper.
	SweepSchedule string
	// SkipIfRunning skips a trigger firing while a previous run of the
	// same job is still in flight. Off by default: overlapping runs of
	// one job are allowed.
	SkipIfRunning bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:   getEnv("PORT", "8080"),
			Host:   getEnv("HOST", "localhost"),
			APIKey: getEnv("API_KEY", ""),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "cronbox"),
			Password:   getEnv("DB_PASSWORD", "cronbox123"),
			DBName:     getEnv("DB_NAME", "cronbox_core"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "data/cronbox.db"),
		},
		Scheduler: SchedulerConfig{
			ExecTimeoutSeconds: getEnvAsInt("EXEC_TIMEOUT_SECONDS", 60),
			RetentionDays:      getEnvAsInt("RETENTION_DAYS", 30),
			SweepSchedule:      getEnv("SWEEP_SCHEDULE", "0 3 * * *"),
			SkipIfRunning:      getEnvAsBool("SCHEDULER_SKIP_IF_RUNNING", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (c *Config) DatabaseURL() string {
	// If DATABASE_URL is set, use it directly
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}

	// Otherwise, construct from individual components
	return "postgres://" + c.Database.User + ":" + c.Database.Password +
		"@" + c.Database.Host + ":" + c.Database.Port +
		"/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}
