// Package ledger persists watcher progress to SQLite so other processes
// (notably `fovwatch status`) can inspect a live or finished run without
// touching the watcher's in-memory state.
//
// Each watch session begins a run row keyed by run folder; per-FOV rows
// record dispatch outcomes (processed, timed out, callback failed) with
// timestamps. The ledger is an audit surface, never an input to
// completion detection — the in-memory tracker stays authoritative.
package ledger
