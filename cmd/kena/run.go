// Copyright (c) 2017 Kena Shell contributors
// See LICENSE for licensing information

package main

import (
	"context"
	"io"
	"os"

	"github.com/kena-sh/kena/interp"
	"github.com/kena-sh/kena/syntax"
)

// verboseReader wraps r so that, when enabled, every byte read is echoed to
// stderr as it is consumed -- this is the "-v" shell option, implemented the
// same way the reference shells do it: by tapping the raw input stream
// rather than re-printing the parsed AST.
func verboseReader(r io.Reader, enabled bool) io.Reader {
	if !enabled {
		return r
	}
	return io.TeeReader(r, os.Stderr)
}

func run(ctx context.Context, parser *syntax.Parser, r *interp.Runner, reader io.Reader, name string) error {
	prog, err := parser.Parse(reader, name)
	if err != nil {
		return err
	}
	// Reset wipes Runner.Funcs, so native Go builtins must be re-registered
	// after every reset rather than once at startup.
	r.Reset()
	registerHistoryCmd(r)
	return r.Run(ctx, prog)
}

func runPath(ctx context.Context, parser *syntax.Parser, r *interp.Runner, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return run(ctx, parser, r, f, path)
}
