// Copyright (c) 2016 Kena Shell contributors
// See LICENSE for licensing information

// +build gofuzz

package syntax

import (
	"bytes"
	"io"
)

func Fuzz(data []byte) int {
	// The first byte contains parser options, as a set of bit masks below.
	// The rest of the input is the shell source to parse and print back.
	const (
		maskLangVariant  = 0b0000_0011 // two bits; 0-3 matching the iota
		maskKeepComments = 0b0000_0100
		maskSimplify     = 0b0000_1000
		maskSpaces       = 0b0111_0000 // three bits; 0-7 spaces of indent
	)

	if len(data) < 1 {
		return 0
	}
	opts := data[0]
	src := data[1:]

	parser := NewParser()
	lang := LangVariant(opts & maskLangVariant) // range 0-3
	Variant(lang)(parser)
	KeepComments(opts&maskKeepComments != 0)(parser)

	prog, err := parser.Parse(bytes.NewReader(src), "")
	if err != nil {
		return 0
	}

	if opts&maskSimplify != 0 {
		Simplify(prog)
	}

	cfg := PrintConfig{Spaces: int((opts & maskSpaces) >> 4)}
	cfg.Fprint(io.Discard, prog)

	return 1
}
