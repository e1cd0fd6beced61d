// Package logging builds the slog loggers used across fovwatch and owns
// the per-run instrument log.
//
// Two surfaces live here. The structured logger (console or JSON) is what
// the daemon and CLI write operational events to. The RunLog is the
// append-only `<run>_log.txt` file the instrument operators read: fixed
// DD/MM/YYYY HH:MM:SS line prefixes, one line per FOV discovery, callback
// invocation, timeout, and run completion. The two are deliberately
// separate; the run log format is a contract with downstream tooling and
// must not be reformatted by handler changes.
package logging
