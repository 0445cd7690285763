// Copyright (c) 2016 Kena Shell contributors
// See LICENSE for licensing information

package syntax

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// LangVariant describes a shell dialect understood by the parser.
type LangVariant int

const (
	LangBash LangVariant = iota
	LangPOSIX
	LangMirBSDKorn
	LangBats
)

// ParserOption is a function that configures a [Parser] built by [NewParser].
type ParserOption func(*Parser)

// Variant changes the shell dialect that the parser accepts. Only the POSIX
// and non-POSIX distinction changes parsing behavior at the moment; the
// other variants are accepted but parsed like bash.
func Variant(l LangVariant) ParserOption {
	return func(p *Parser) {
		if l == LangPOSIX {
			p.mode |= PosixConformant
		} else {
			p.mode &^= PosixConformant
		}
	}
}

// KeepComments makes the parser attach [Comment] nodes to the resulting
// [File] instead of discarding them.
func KeepComments(keep bool) ParserOption {
	return func(p *Parser) {
		if keep {
			p.mode |= ParseComments
		} else {
			p.mode &^= ParseComments
		}
	}
}

// Parser holds the state to parse shell source into an AST. Create one with
// [NewParser]; its methods are not safe for concurrent use, but a Parser can
// be reused to parse multiple inputs one after another.
type Parser struct {
	mode       ParseMode
	incomplete bool
}

// NewParser allocates a new [Parser] and applies any options to it.
func NewParser(options ...ParserOption) *Parser {
	p := &Parser{}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *Parser) newInternal() (*parser, func()) {
	ip := parserFree.Get().(*parser)
	ip.reset()
	alloc := &struct {
		f File
		l [16]int
	}{}
	ip.f = &alloc.f
	ip.f.Lines = alloc.l[:1]
	ip.mode = p.mode
	return ip, func() { parserFree.Put(ip) }
}

// Parse reads and parses a shell program from r. name is used in error
// messages and is recorded as the returned [File]'s Name.
func (p *Parser) Parse(r io.Reader, name string) (*File, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(src, name, p.mode)
}

// Words parses r as a sequence of words, for example the arguments of a
// command. fn is called once per word; parsing stops as soon as fn returns
// false or the input is exhausted.
func (p *Parser) Words(r io.Reader, fn func(*Word) bool) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	ip, done := p.newInternal()
	defer done()
	ip.src = src
	ip.next()
	for ip.tok != _EOF {
		w := ip.word()
		if !fn(&w) {
			break
		}
	}
	return ip.err
}

// WordsSeq is like [Parser.Words], but returns an iterator over the parsed
// words and any error encountered along the way, for use with range-over-func.
func (p *Parser) WordsSeq(r io.Reader) func(func(*Word, error) bool) {
	return func(yield func(*Word, error) bool) {
		err := p.Words(r, func(w *Word) bool {
			return yield(w, nil)
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

// Document parses r as a single word, the way a shell parses the body of a
// quoted heredoc: the entire input becomes one [Word], newlines included.
func (p *Parser) Document(r io.Reader) (*Word, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	ip, done := p.newInternal()
	defer done()
	ip.src = src
	ip.mode |= PosixConformant
	ip.next()
	w := ip.word()
	return &w, ip.err
}

// Incomplete reports whether the most recent statement list yielded by
// [Parser.InteractiveSeq] stopped because the input ended before a
// statement was finished, such as inside an open quote or heredoc. An
// interactive shell should use this to keep reading lines and show a
// continuation prompt instead of reporting an error.
func (p *Parser) Incomplete() bool {
	return p.incomplete
}

// InteractiveSeq parses r one line at a time, suitable for a shell reading
// from an interactive terminal. Each iteration yields the statements found
// since the last yield; an incomplete trailing statement sets
// [Parser.Incomplete] and is retried once more input arrives.
func (p *Parser) InteractiveSeq(r io.Reader) func(func([]*Stmt, error) bool) {
	return func(yield func([]*Stmt, error) bool) {
		br := bufio.NewReader(r)
		var buf bytes.Buffer
		for {
			line, rerr := br.ReadString('\n')
			buf.WriteString(line)
			if buf.Len() == 0 {
				return
			}
			file, perr := Parse(buf.Bytes(), "", p.mode)
			if perr != nil && rerr == nil && incompleteParse(perr) {
				p.incomplete = true
				continue
			}
			p.incomplete = false
			buf.Reset()
			if perr != nil {
				if !yield(nil, perr) || rerr != nil {
					return
				}
				continue
			}
			if !yield(file.Stmts, nil) || rerr != nil {
				return
			}
		}
	}
}

// incompleteParse reports whether err looks like it was caused by the
// parser reaching the end of input while still inside a quote, heredoc, or
// other unclosed construct, rather than a genuine syntax error.
func incompleteParse(err error) bool {
	pe, ok := err.(*ParseError)
	return ok && strings.Contains(pe.Text, "reached EOF without")
}
