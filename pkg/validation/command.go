// Package validation rejects dangerous or malformed job definitions
// before they reach the scheduler. The command gate is best-effort
// substring matching against known-destructive patterns, not a
// sandbox.
package validation

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// MaxCommandLength caps the accepted command string size.
const MaxCommandLength = 2000

// forbiddenPatterns are matched case-insensitively as substrings.
var forbiddenPatterns = []string{
	"sudo",          // privilege escalation
	"rm -rf",        // recursive force delete
	":(){ :|:& };:", // fork bomb
	":(){:|:&};:",   // fork bomb, no-space variant
	"dd if=",        // raw disk writes
	"mkfs.",         // filesystem creation
}

// IsForbidden reports whether the command matches the deny-list.
func IsForbidden(command string) bool {
	lowered := strings.ToLower(command)
	for _, pattern := range forbiddenPatterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}

// ValidateCommand checks a command string against all gate rules.
func ValidateCommand(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if len(command) > MaxCommandLength {
		return fmt.Errorf("command exceeds %d characters", MaxCommandLength)
	}
	if IsForbidden(command) {
		return fmt.Errorf("command contains a forbidden pattern")
	}
	return nil
}

// ValidateSchedule is a pure syntax check of a cron expression, using
// the same standard 5-field parser the scheduler triggers use.
func ValidateSchedule(schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		return fmt.Errorf("schedule cannot be empty")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return nil
}
