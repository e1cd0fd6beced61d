// Package hooks adapts configured shell commands into watcher callbacks.
//
// Each callback is a command line run through the shell with
// FOVWATCH_RUN_FOLDER (and FOVWATCH_FOV for per-FOV hooks) injected into
// the environment. Empty commands yield nil callbacks so the watcher can
// run in tracking-only mode.
package hooks
