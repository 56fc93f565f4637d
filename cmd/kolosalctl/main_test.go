package main

import (
	"errors"
	"testing"
)

// TestMainWiring verifies that main sets version info and executes the root command.
func TestMainWiring(t *testing.T) {
	origSetVersion := setVersionInfo
	origExecute := executeCmd
	origExit := exit
	t.Cleanup(func() {
		setVersionInfo = origSetVersion
		executeCmd = origExecute
		exit = origExit
	})

	var gotVersion string
	executed := false
	exitCode := -1
	setVersionInfo = func(v, c, d string) { gotVersion = v + "/" + c + "/" + d }
	executeCmd = func() error { executed = true; return nil }
	exit = func(code int) { exitCode = code }

	main()

	if gotVersion != "dev/none/unknown" {
		t.Fatalf("unexpected version info %q", gotVersion)
	}
	if !executed {
		t.Fatalf("expected Execute to be called")
	}
	if exitCode != -1 {
		t.Fatalf("expected no exit on success, got %d", exitCode)
	}
}

// TestMainExitsOnError verifies that main exits non-zero when the command fails.
func TestMainExitsOnError(t *testing.T) {
	origExecute := executeCmd
	origExit := exit
	t.Cleanup(func() {
		executeCmd = origExecute
		exit = origExit
	})

	exitCode := -1
	executeCmd = func() error { return errors.New("boom") }
	exit = func(code int) { exitCode = code }

	main()

	if exitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", exitCode)
	}
}
