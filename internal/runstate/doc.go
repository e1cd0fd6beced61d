// Package runstate tracks completion of every expected FOV in a run.
//
// The Tracker is a pure in-memory state machine: it derives the expected
// file set (one .bin and one .json per FOV) from the run manifest and
// flips per-kind flags as files are observed. Flags only ever move
// false→true; a FOV entry is deleted outright when its file stays at zero
// bytes past the timeout budget, which permanently excludes it from both
// per-FOV processing and completion accounting.
//
// CheckRunCondition contains the single blocking point in the whole
// watcher: a bounded wait for a freshly created file to become non-empty.
// Callers hold the orchestrator's event lock across that wait on purpose;
// completion detection is not designed for concurrent mutation.
package runstate
