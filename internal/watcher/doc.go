// Package watcher turns filesystem events inside a run folder into
// exactly-once per-FOV and per-run callback dispatch.
//
// The Handler serializes every event under one mutex and drives the
// runstate tracker: it detects FOVs whose creation events were missed
// (backfill), applies the zero-size timeout policy, eagerly finishes the
// run when the final FOV arrives, and latches whole-run completion so the
// per-run callback fires once. Watch wires the Handler to an fsnotify
// watch plus a completion polling loop and blocks until the run finishes
// or the context is cancelled.
//
// Head-of-line blocking is intentional: while one event waits on a
// zero-size file, all other events queue. Completion detection is not
// designed for concurrent tracker mutation.
package watcher
