package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/cronbox/core/internal/config"
	"github.com/cronbox/core/pkg/logger"
)

// Open initializes the configured store backend and applies its
// schema migrations.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch driver {
	case "", "postgres", "postgresql":
		return openPostgres(ctx, cfg.DatabaseURL(), log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg.Database.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
