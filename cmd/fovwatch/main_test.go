package main

import (
	"strings"
	"testing"
)

func TestRootCommandListsSubcommands(t *testing.T) {
	out, err := runCommand(t, "--help")
	if err != nil {
		t.Fatalf("--help: %v", err)
	}
	for _, sub := range []string{"watch", "status", "manifest", "config", "test-notify"} {
		if !strings.Contains(out, sub) {
			t.Fatalf("help output missing %q:\n%s", sub, out)
		}
	}
}

func TestUnknownCommandFails(t *testing.T) {
	if _, err := runCommand(t, "no-such-command"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestWatchRequiresRunFolderArgument(t *testing.T) {
	if _, err := runCommand(t, "watch"); err == nil {
		t.Fatal("expected error without run folder argument")
	}
}
