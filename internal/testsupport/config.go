// Package testsupport provides shared fixtures for fovwatch tests.
package testsupport

import (
	"testing"

	"fovwatch/internal/config"
)

// NewConfig returns a validated config rooted in per-test temp
// directories with timings short enough for unit tests.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.LedgerDir = t.TempDir()
	cfg.Watcher.CompletionPollInterval = 1
	cfg.Watcher.ZeroSizeTimeout = 1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}
