package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"fovwatch/internal/config"
	"fovwatch/internal/logging"
	"fovwatch/internal/watcher"
)

// Environment variable names exposed to callback commands.
const (
	EnvRunFolder = "FOVWATCH_RUN_FOLDER"
	EnvFOV       = "FOVWATCH_FOV"
)

// FromConfig builds watcher callbacks from the configured commands.
func FromConfig(cfg *config.Config, logger *slog.Logger) watcher.Callbacks {
	runner := &commandRunner{
		timeout: time.Duration(cfg.Callbacks.CommandTimeout) * time.Second,
		logger:  logging.NewComponentLogger(logger, "hooks"),
	}

	cbs := watcher.Callbacks{}
	if cmd := strings.TrimSpace(cfg.Callbacks.FOVCommand); cmd != "" {
		cbs.FOV = func(ctx context.Context, runFolder, fovID string) error {
			return runner.run(ctx, cmd, runFolder, fovID)
		}
	}
	if cmd := strings.TrimSpace(cfg.Callbacks.RunCommand); cmd != "" {
		cbs.Run = func(ctx context.Context, runFolder string) error {
			return runner.run(ctx, cmd, runFolder, "")
		}
	}
	if cmd := strings.TrimSpace(cfg.Callbacks.IntermediateCommand); cmd != "" {
		cbs.Intermediate = func(ctx context.Context, runFolder string) (func(), error) {
			// Command invocations hold no in-process state, so there is
			// nothing to release between calls.
			return nil, runner.run(ctx, cmd, runFolder, "")
		}
	}
	return cbs
}

type commandRunner struct {
	timeout time.Duration
	logger  *slog.Logger
}

func (r *commandRunner) run(ctx context.Context, command, runFolder, fovID string) error {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", command) //nolint:gosec
	cmd.Env = append(os.Environ(), EnvRunFolder+"="+runFolder)
	if fovID != "" {
		cmd.Env = append(cmd.Env, EnvFOV+"="+fovID)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(output))
		if len(trimmed) > 512 {
			trimmed = trimmed[:512]
		}
		r.logger.Error("callback command failed",
			logging.String("command", command),
			logging.String(logging.FieldFOV, fovID),
			logging.String("output", trimmed),
			logging.Error(err),
		)
		return fmt.Errorf("callback command %q: %w", command, err)
	}
	return nil
}
