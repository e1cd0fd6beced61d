// Package preflight validates the environment before a watch session
// starts: the run folder and its manifest must exist, the log and ledger
// directories must be writable, and configured callback commands should
// resolve. Failures surface as named results so the CLI can render them.
package preflight
