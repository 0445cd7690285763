// Copyright (c) 2017 Kena Shell contributors
// See LICENSE for licensing information

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	maybeio "github.com/google/renameio/v2/maybe"

	"github.com/kena-sh/kena/expand"
	"github.com/kena-sh/kena/interp"
)

// atomicWriteFile persists the history file atomically, so that a crash
// mid-save can never leave a truncated $HISTFILE behind.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return maybeio.WriteFile(path, data, perm)
}

// registerHistoryCmd exposes the saved command history as a native Go
// builtin, `history`, so scripts and interactive sessions can list it
// without shelling out. It reads the same file runInteractive saves to.
func registerHistoryCmd(r *interp.Runner) {
	r.DeclareGoCommand("history", historyCmd)
}

func historyCmd(_ context.Context, _ []string, env expand.Environ, _ string, _ io.Reader, stdout, stderr io.Writer) uint8 {
	path := historyPathFromEnv(env)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		fmt.Fprintf(stderr, "history: %v\n", err)
		return 1
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		fmt.Fprintf(stdout, "%5d  %s\n", n, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(stderr, "history: %v\n", err)
		return 1
	}
	return 0
}

func historyPathFromEnv(env expand.Environ) string {
	if hf := env.Get("HISTFILE"); hf.IsSet() && hf.Str != "" {
		return hf.Str
	}
	home := env.Get("HOME").Str
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".kena_history")
}
