package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants after normalization.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.LedgerDir) == "" {
		problems = append(problems, "paths.ledger_dir must not be empty")
	}
	if c.Watcher.CompletionPollInterval <= 0 {
		problems = append(problems, "watcher.completion_poll_interval must be positive")
	}
	if c.Watcher.ZeroSizeTimeout <= 0 {
		problems = append(problems, "watcher.zero_size_timeout must be positive")
	}
	if c.Callbacks.CommandTimeout < 0 {
		problems = append(problems, "callbacks.command_timeout must not be negative")
	}
	if c.Notifications.RequestTimeout <= 0 {
		problems = append(problems, "notifications.request_timeout must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of console, json", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
