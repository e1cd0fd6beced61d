package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"fovwatch/internal/ledger"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func colorizeState(state string, colorize bool) string {
	if !colorize {
		return state
	}
	switch state {
	case ledger.StateProcessed:
		return ansiGreen + state + ansiReset
	case ledger.StateTimedOut:
		return ansiYellow + state + ansiReset
	case ledger.StateFailed:
		return ansiRed + state + ansiReset
	default:
		return state
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
