package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"fovwatch/internal/config"
	"fovwatch/internal/manifest"
)

// Result is the outcome of one preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// CheckRunFolder verifies the run folder exists and contains a readable
// manifest.
func CheckRunFolder(runFolder string) Result {
	const name = "Run folder"
	info, err := os.Stat(runFolder)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", runFolder, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", runFolder)}
	}
	manifestPath := manifest.Path(runFolder)
	if _, err := os.Stat(manifestPath); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("manifest %s missing (%v)", manifestPath, err)}
	}
	return Result{Name: name, Passed: true, Detail: runFolder}
}

// CheckDirectoryAccess verifies that the directory exists (creating it if
// needed) and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCallbackCommand verifies the first word of a configured callback
// command resolves on PATH. Empty commands pass trivially.
func CheckCallbackCommand(name, command string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Name: name, Passed: true, Detail: "not configured"}
	}
	fields := strings.Fields(command)
	if _, err := exec.LookPath(fields[0]); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", fields[0], err)}
	}
	return Result{Name: name, Passed: true, Detail: fields[0]}
}

// Run evaluates every check for a watch session against cfg.
func Run(cfg *config.Config, runFolder string) []Result {
	return []Result{
		CheckRunFolder(runFolder),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Ledger directory", cfg.Paths.LedgerDir),
		CheckCallbackCommand("FOV callback", cfg.Callbacks.FOVCommand),
		CheckCallbackCommand("Run callback", cfg.Callbacks.RunCommand),
		CheckCallbackCommand("Intermediate callback", cfg.Callbacks.IntermediateCommand),
	}
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
