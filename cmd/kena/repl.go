// Copyright (c) 2017 Kena Shell contributors
// See LICENSE for licensing information

package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/kena-sh/kena/interp"
	"github.com/kena-sh/kena/syntax"
)

// linerReader adapts a [liner.State] to the [io.Reader] that
// [syntax.Parser.InteractiveSeq] expects, choosing the primary or
// continuation prompt on every line based on the parser's own
// [syntax.Parser.Incomplete] state.
type linerReader struct {
	line   *liner.State
	parser *syntax.Parser
	ps1    string
	ps2    string
	buf    []byte
}

func (lr *linerReader) Read(p []byte) (int, error) {
	if len(lr.buf) == 0 {
		prompt := lr.ps1
		if lr.parser.Incomplete() {
			prompt = lr.ps2
		}
		line, err := lr.line.Prompt(prompt)
		switch {
		case err == liner.ErrPromptAborted:
			// Ctrl-C: abandon the current line, not the whole session.
			lr.buf = []byte("\n")
		case err == io.EOF:
			return 0, io.EOF
		case err != nil:
			return 0, err
		default:
			if strings.TrimSpace(line) != "" {
				lr.line.AppendHistory(line)
			}
			lr.buf = append([]byte(line), '\n')
		}
	}
	n := copy(p, lr.buf)
	lr.buf = lr.buf[n:]
	return n, nil
}

func runInteractive(ctx context.Context, parser *syntax.Parser, r *interp.Runner) error {
	// Reset explicitly, rather than letting the first Run do it implicitly,
	// so native Go builtins registered right after are still there when the
	// first line of input runs.
	r.Reset()
	registerHistoryCmd(r)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histPath := historyPath(r)
	if f, err := os.Open(histPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer saveHistory(line, histPath)

	lr := &linerReader{
		line:   line,
		parser: parser,
		ps1:    promptString(r, "PS1", "$ "),
		ps2:    promptString(r, "PS2", "> "),
	}
	for stmts, err := range parser.InteractiveSeq(lr) {
		if err != nil {
			printError(err)
			continue
		}
		for _, stmt := range stmts {
			err := r.Run(ctx, stmt)
			if r.Exited() {
				return err
			}
		}
	}
	return nil
}

// promptString looks up name (PS1 or PS2) in the runner's environment,
// falling back to def when unset. It does not perform "@P"-style prompt
// expansion; PS1/PS2 are used verbatim.
func promptString(r *interp.Runner, name, def string) string {
	if v := r.Env.Get(name); v.IsSet() {
		return v.Str
	}
	return def
}

func historyPath(r *interp.Runner) string {
	return historyPathFromEnv(r.Env)
}

func saveHistory(line *liner.State, path string) {
	var buf strings.Builder
	if _, err := line.WriteHistory(&buf); err != nil {
		return
	}
	_ = atomicWriteFile(path, []byte(buf.String()), 0o600)
}
