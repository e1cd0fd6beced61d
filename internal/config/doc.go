// Package config loads, normalizes, and validates fovwatch configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob
// the watcher and CLI need: log and ledger directories, completion-poll
// and zero-size-timeout intervals, callback commands, and notification
// settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
