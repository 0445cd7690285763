// Copyright (c) 2017 Kena Shell contributors
// See LICENSE for licensing information

// Package pattern allows working with shell pattern matching notation, also
// known as wildcards or globbing.
//
// For reference, see
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html#tag_18_13.
package pattern

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Mode can be used to supply a number of options to the package's functions.
// Not all functions change their behavior with all of the options below.
type Mode uint

type SyntaxError struct {
	msg string
	err error
}

func (e SyntaxError) Error() string { return e.msg }

func (e SyntaxError) Unwrap() error { return e.err }

// TODO(v4): flip NoGlobStar to be opt-in via GlobStar, matching bash
// TODO(v4): flip EntireString to be opt-out via PartialMatch, as EntireString causes subtle bugs when forgotten
// TODO(v4): rename NoGlobCase to CaseInsensitive for readability

const (
	Shortest     Mode = 1 << iota // prefer the shortest match.
	Filenames                     // "*" and "?" don't match slashes; only "**" does
	EntireString                  // match the entire string using ^$ delimiters
	NoGlobCase                    // Do case-insensitive match (that is, use (?i) in the regexp)
	NoGlobStar                    // Do not support "**"
)

// Regexp turns a shell pattern into a regular expression that can be used with
// [regexp.Compile]. It will return an error if the input pattern was incorrect.
// Otherwise, the returned expression can be passed to [regexp.MustCompile].
//
// For example, Regexp(`foo*bar?`, 0) returns `(?s)foo.*bar.`.
//
// Note that this function (and [QuoteMeta]) should not be directly used with file
// paths if Windows is supported, as the path separator on that platform is the
// same character as the escaping character for shell patterns.
func Regexp(pat string, mode Mode) (string, error) {
	// If there are no special pattern matching or regular expression characters,
	// and we don't need to insert extras for the modes affecting non-special characters,
	// we can directly return the input string as a short-cut.
	if mode&(EntireString|NoGlobCase) == 0 {
		needsEscaping := false
	noopLoop:
		for _, r := range pat {
			switch r {
			// including those that need escaping since they are
			// regular expression metacharacters
			case '*', '?', '[', '\\', '.', '+', '(', ')', '|',
				']', '{', '}', '^', '$':
				needsEscaping = true
				break noopLoop
			}
		}
		if !needsEscaping {
			return pat, nil
		}
	}
	var out strings.Builder
	// Enable matching `\n` with the `.` metacharacter as globs match `\n`
	out.WriteString("(?s")
	if mode&NoGlobCase != 0 {
		out.WriteString("i")
	}
	if mode&Shortest != 0 {
		out.WriteString("U")
	}
	out.WriteString(")")
	if mode&EntireString != 0 {
		out.WriteString("^")
	}
	gs := globScanner{s: pat}
	for {
		if err := emitNextToken(&out, &gs, mode); err == io.EOF {
			break
		} else if err != nil {
			return "", err
		}
	}
	if mode&EntireString != 0 {
		out.WriteString("$")
	}
	return out.String(), nil
}

// globScanner helps us tokenize a pattern string.
// Note that we can use the null byte '\x00' to signal "no character" as shell strings cannot contain null bytes.
// TODO: should the tokenization be based on runes? e.g: [á-é]
type globScanner struct {
	s string
	i int
}

func (gs *globScanner) next() byte {
	if gs.i >= len(gs.s) {
		return '\x00'
	}
	c := gs.s[gs.i]
	gs.i++
	return c
}

func (gs *globScanner) last() byte {
	if gs.i < 2 {
		return '\x00'
	}
	return gs.s[gs.i-2]
}

func (gs *globScanner) peekNext() byte {
	if gs.i >= len(gs.s) {
		return '\x00'
	}
	return gs.s[gs.i]
}

func (gs *globScanner) peekRest() string {
	return gs.s[gs.i:]
}

func emitNextToken(out *strings.Builder, gs *globScanner, mode Mode) error {
	switch c := gs.next(); c {
	case '\x00':
		return io.EOF
	case '*':
		if mode&Filenames == 0 {
			// * - matches anything when not in filename mode
			out.WriteString(".*")
			break
		}
		// "**" only acts as globstar if it is alone as a path element.
		singleBefore := gs.i == 1 || gs.last() == '/'
		if gs.peekNext() == '*' {
			gs.i++
			singleAfter := gs.i == len(gs.s) || gs.peekNext() == '/'
			if mode&NoGlobStar == 0 && singleBefore && singleAfter {
				if gs.peekNext() == '/' {
					// **/ - like "**" but requiring a trailing slash when matching
					gs.i++
					out.WriteString("((/|[^/.][^/]*)*/)?")
				} else {
					// ** - match any number of slashes or "*" path elements
					out.WriteString("(/|[^/.][^/]*)*")
				}
				break
			}
			// foo**, **bar, or NoGlobStar - behaves like "*" below
		}
		// * - matches anything except slashes and leading dots
		if singleBefore {
			out.WriteString("([^/.][^/]*)?")
		} else {
			out.WriteString("[^/]*")
		}
	case '?':
		if mode&Filenames != 0 {
			out.WriteString("[^/]")
		} else {
			out.WriteByte('.')
		}
	case '\\':
		c = gs.next()
		if c == '\x00' {
			return &SyntaxError{msg: `\ at end of pattern`}
		}
		out.WriteString(regexp.QuoteMeta(string(c)))
	case '[':
		// TODO: surely char classes can be mixed with others, e.g. [[:foo:]xyz]
		if name, err := namedClass(gs.peekRest()); err != nil {
			return &SyntaxError{msg: "invalid named character class", err: err}
		} else if name != "" {
			out.WriteByte('[')
			out.WriteString(name)
			gs.i += len(name)
			break
		}
		if mode&Filenames != 0 {
			for _, c := range gs.peekRest() {
				if c == ']' {
					break
				} else if c == '/' {
					out.WriteString("\\[")
					return nil
				}
			}
		}
		out.WriteByte(c)
		if c = gs.next(); c == '\x00' {
			return &SyntaxError{msg: "[ was not matched with a closing ]"}
		}
		switch c {
		case '!', '^':
			out.WriteByte('^')
			if c = gs.next(); c == '\x00' {
				return &SyntaxError{msg: "[ was not matched with a closing ]"}
			}
		}
		if c == ']' {
			out.WriteByte(']')
			if c = gs.next(); c == '\x00' {
				return &SyntaxError{msg: "[ was not matched with a closing ]"}
			}
		}
		for {
			out.WriteByte(c)
			switch c {
			case '\x00':
				return &SyntaxError{msg: "[ was not matched with a closing ]"}
			case '\\':
				if c = gs.next(); c != '0' {
					out.WriteByte(c)
				}
			case '-':
				start := gs.last()
				end := gs.peekNext()
				// TODO: what about overlapping ranges, like: [a--z]
				if end != ']' && start > end {
					return &SyntaxError{msg: fmt.Sprintf("invalid range: %c-%c", start, end)}
				}
			case ']':
				return nil
			}
			c = gs.next()
		}
	default:
		if c > utf8.RuneSelf {
			out.WriteByte(c)
		} else {
			out.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return nil
}

func namedClass(s string) (string, error) {
	if strings.HasPrefix(s, "[.") || strings.HasPrefix(s, "[=") {
		return "", fmt.Errorf("collating features not available")
	}
	name, ok := strings.CutPrefix(s, "[:")
	if !ok {
		return "", nil
	}
	name, _, ok = strings.Cut(name, ":]]")
	if !ok {
		return "", fmt.Errorf("[[: was not matched with a closing :]]")
	}
	switch name {
	case "alnum", "alpha", "ascii", "blank", "cntrl", "digit", "graph",
		"lower", "print", "punct", "space", "upper", "word", "xdigit":
	default:
		return "", fmt.Errorf("invalid character class: %q", name)
	}
	return s[:len(name)+5], nil
}

// HasMeta returns whether a string contains any unescaped pattern
// metacharacters: '*', '?', or '['. When the function returns false, the given
// pattern can only match at most one string.
//
// For example, HasMeta(`foo\*bar`) returns false, but HasMeta(`foo*bar`)
// returns true.
//
// This can be useful to avoid extra work, like [Regexp]. Note that this
// function cannot be used to avoid [QuoteMeta], as backslashes are quoted by
// that function but ignored here.
//
// The [Mode] parameter is unused, and will be removed in v4.
func HasMeta(pat string, mode Mode) bool {
	for i := 0; i < len(pat); i++ {
		switch pat[i] {
		case '\\':
			i++
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// QuoteMeta returns a string that quotes all pattern metacharacters in the
// given text. The returned string is a pattern that matches the literal text.
//
// For example, QuoteMeta(`foo*bar?`) returns `foo\*bar\?`.
//
// The [Mode] parameter is unused, and will be removed in v4.
func QuoteMeta(pat string, mode Mode) string {
	needsEscaping := false
loop:
	for _, r := range pat {
		switch r {
		case '*', '?', '[', '\\':
			needsEscaping = true
			break loop
		}
	}
	if !needsEscaping { // short-cut without a string copy
		return pat
	}
	var out strings.Builder
	for _, r := range pat {
		switch r {
		case '*', '?', '[', '\\':
			out.WriteByte('\\')
		}
		out.WriteRune(r)
	}
	return out.String()
}
