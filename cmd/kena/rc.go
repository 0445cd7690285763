// Copyright (c) 2017 Kena Shell contributors
// See LICENSE for licensing information

package main

import (
	"context"
	"os"

	"github.com/kena-sh/kena/fileutil"
	"github.com/kena-sh/kena/interp"
	"github.com/kena-sh/kena/syntax"
)

// sourceRCFile runs --rcfile, or failing that $ENV, before the first
// interactive prompt. A file that doesn't look like a shell script is
// skipped rather than sourced blindly.
func sourceRCFile(ctx context.Context, parser *syntax.Parser, r *interp.Runner) error {
	path := *optRCFile
	if path == "" {
		path = r.Env.Get("ENV").Str
	}
	if path == "" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fileutil.CouldBeScript(info) == fileutil.ConfNotScript {
		return nil
	}

	return runPath(ctx, parser, r, path)
}
