// Copyright (c) 2025 Kena Shell contributors
// See LICENSE for licensing information

//go:build !unix

package syntax

import "os/exec"

func killCommandOnTestExit(cmd *exec.Cmd) {
	// We don't develop outside of Linux at the moment.
}
