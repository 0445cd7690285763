// Copyright (c) 2017 Kena Shell contributors
// See LICENSE for licensing information

package interp

import (
	"context"
	"io"
)

// Ctxt holds the state handed to a [ModuleExec]: a context, the
// environment, the working directory and the standard streams.
// The [Runner] does not build a Ctxt itself.
type Ctxt struct {
	Context context.Context
	Env     []string
	Dir     string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// ModuleExec is the type of a function that executes a program, given a
// [Ctxt], the program's name and its arguments.
//
// The [Runner] does not call a ModuleExec: commands that are neither
// declared functions nor builtins run through the [ExecHandlerFunc] set
// with [ExecHandler], whose error may be an [ExitStatus].
type ModuleExec func(ctx Ctxt, name string, args []string) error
