// Copyright (c) 2017 Kena Shell contributors
// See LICENSE for licensing information

package expand

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os/user"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/kena-sh/kena/syntax"
)

// Config controls how words are expanded: where variables are read from,
// how command and process substitutions are run, and which pathname
// expansion rules apply. [Fields] and [Literal] also accept a nil Config or
// one with a nil Env, in which case every variable reads as unset.
type Config struct {
	// Env is consulted for every variable lookup. Implementations that also
	// satisfy [WriteEnviron] let parameter expansions like "${x:=y}" and
	// arithmetic assignments write back into the environment.
	Env Environ

	// CmdSubst is called to run the body of a "$(...)" or backquoted command
	// substitution, with its standard output directed at w.
	CmdSubst func(w io.Writer, cs *syntax.CmdSubst) error

	// ProcSubst is called to run the body of a "<(...)" or ">(...)" process
	// substitution. It returns the path that should replace the
	// substitution in the expanded word, such as a named pipe.
	ProcSubst func(ps *syntax.ProcSubst) (string, error)

	NoGlob     bool // disable pathname expansion entirely
	GlobStar   bool // let "**" match directories recursively
	NoCaseGlob bool // match glob patterns case-insensitively
	NullGlob   bool // expand a pattern with no matches to zero fields

	// NoUnset causes references to unset parameters to produce an
	// [UnsetParameterError], mirroring "set -u".
	NoUnset bool

	// ReadDir2 lists the entries of a directory for pathname expansion. A
	// nil value disables globbing regardless of NoGlob.
	ReadDir2 func(string) ([]fs.DirEntry, error)

	bufferAlloc bytes.Buffer
	fieldAlloc  [4]fieldPart
	fieldsAlloc [4][]fieldPart

	ifs string
	// curParam points at the parameter expansion currently being resolved,
	// if any. Needed to answer "${LINENO}", which has no backing variable.
	curParam *syntax.ParamExp
}

func (cfg *Config) prepareIFS() {
	vr := cfg.Env.Get("IFS")
	if !vr.IsSet() {
		cfg.ifs = " \t\n"
	} else {
		cfg.ifs = vr.String()
	}
}

func (cfg *Config) ifsRune(r rune) bool {
	return strings.ContainsRune(cfg.ifs, r)
}

func (cfg *Config) ifsJoin(strs []string) string {
	sep := ""
	if cfg.ifs != "" {
		sep = cfg.ifs[:1]
	}
	return strings.Join(strs, sep)
}

func (cfg *Config) strBuilder() *bytes.Buffer {
	b := &cfg.bufferAlloc
	b.Reset()
	return b
}

func (cfg *Config) envGet(name string) string {
	return cfg.Env.Get(name).String()
}

// envSet writes a plain string value back into the environment, used by
// "${x:=y}"-style defaults and by arithmetic assignment operators. It
// reports an error if the environment is read-only or the write is
// otherwise rejected, such as for a readonly variable.
func (cfg *Config) envSet(name, value string) error {
	we, ok := cfg.Env.(WriteEnviron)
	if !ok {
		return fmt.Errorf("variable assignment in read-only environment: %s", name)
	}
	return we.Set(name, Variable{Set: true, Kind: String, Str: value})
}

// Fields expands a list of words as if they made up a command's arguments:
// brace expansion, then the usual substitutions, then field splitting and
// pathname expansion.
func Fields(cfg *Config, words ...*syntax.Word) ([]string, error) {
	cfg = prepareConfig(cfg)
	cfg.prepareIFS()

	fields := make([]string, 0, len(words))
	dir := cfg.envGet("PWD")
	baseDir := quotePattern(dir)
	for _, word := range words {
		for _, expWord := range Braces(word) {
			wfields, err := cfg.wordFields(expWord.Parts)
			if err != nil {
				return nil, err
			}
			for _, field := range wfields {
				path, doGlob := cfg.escapedGlobField(field)
				var matches []string
				abs := filepath.IsAbs(path)
				if doGlob && !cfg.NoGlob && cfg.ReadDir2 != nil {
					if !abs {
						path = filepath.Join(baseDir, path)
					}
					matches = cfg.glob(path)
				}
				switch {
				case len(matches) > 0:
					for _, match := range matches {
						if !abs {
							endSeparator := strings.HasSuffix(match, string(filepath.Separator))
							match, _ = filepath.Rel(dir, match)
							if endSeparator {
								match += string(filepath.Separator)
							}
						}
						fields = append(fields, match)
					}
				case doGlob && cfg.NullGlob && !cfg.NoGlob && cfg.ReadDir2 != nil:
					// pattern had glob metacharacters but matched nothing
				default:
					fields = append(fields, cfg.fieldJoin(field))
				}
			}
		}
	}
	return fields, nil
}

// Literal expands a word the way a double-quoted string would: substitutions
// run, but no field splitting or pathname expansion follows.
func Literal(cfg *Config, word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}
	cfg = prepareConfig(cfg)
	field, err := cfg.wordField(word.Parts, quoteDouble)
	if err != nil {
		return "", err
	}
	return cfg.fieldJoin(field), nil
}

// prepareConfig returns cfg, or a new Config if cfg is nil, with a nil Env
// replaced by one in which no variable is set.
func prepareConfig(cfg *Config) *Config {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Env == nil {
		cfg.Env = FuncEnviron(func(string) string { return "" })
	}
	return cfg
}

// Document expands a here-document body, performing the same substitutions
// as [Literal], including tilde expansion of a leading literal part.
func Document(cfg *Config, word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}
	field, err := cfg.wordField(word.Parts, quoteDouble)
	if err != nil {
		return "", err
	}
	return cfg.fieldJoin(field), nil
}

// Pattern expands a word for use as a glob or case pattern: substitutions
// run, but bytes coming from an unquoted literal or substitution keep their
// glob metacharacters active while quoted bytes are escaped so they match
// themselves literally.
func Pattern(cfg *Config, word *syntax.Word) (string, error) {
	field, err := cfg.wordField(word.Parts, quoteSingle)
	if err != nil {
		return "", err
	}
	buf := cfg.strBuilder()
	for _, part := range field {
		if part.quote > quoteNone {
			buf.WriteString(syntax.QuotePattern(part.val))
		} else {
			buf.WriteString(part.val)
		}
	}
	return buf.String(), nil
}

func (cfg *Config) fieldJoin(parts []fieldPart) string {
	switch len(parts) {
	case 0:
		return ""
	case 1: // short-cut without a string copy
		return parts[0].val
	}
	buf := cfg.strBuilder()
	for _, part := range parts {
		buf.WriteString(part.val)
	}
	return buf.String()
}

func (cfg *Config) escapedGlobField(parts []fieldPart) (escaped string, glob bool) {
	buf := cfg.strBuilder()
	for _, part := range parts {
		if part.quote > quoteNone {
			buf.WriteString(quotePattern(part.val))
			continue
		}
		buf.WriteString(part.val)
		if hasGlob(part.val) {
			glob = true
		}
	}
	if glob { // only copy the string if it will be used
		escaped = buf.String()
	}
	return escaped, glob
}

// quotePattern escapes every pattern metacharacter in s so that it is later
// matched literally by [syntax.TranslatePattern].
func quotePattern(s string) string {
	if !strings.ContainsAny(s, "*?[\\") {
		return s
	}
	var buf strings.Builder
	for _, r := range s {
		if syntax.PatternRune(r) {
			buf.WriteByte('\\')
		}
		buf.WriteRune(r)
	}
	return buf.String()
}

type fieldPart struct {
	val   string
	quote quoteLevel
}

type quoteLevel uint

const (
	quoteNone quoteLevel = iota
	quoteDouble
	quoteSingle
)

// wordField expands a word the way a quoted context would: each part is
// appended as a single field, with the quote level tracked per byte so that
// later steps (globbing) know which bytes may act as metacharacters.
func (cfg *Config) wordField(wps []syntax.WordPart, ql quoteLevel) ([]fieldPart, error) {
	var field []fieldPart
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 {
				s = cfg.expandUser(s)
			}
			if ql != quoteNone && strings.Contains(s, "\\") {
				buf := cfg.strBuilder()
				for i := 0; i < len(s); i++ {
					b := s[i]
					if b == '\\' && i+1 < len(s) {
						switch s[i+1] {
						case '\n': // remove \<newline>
							i++
							continue
						case '"', '\\', '$', '`': // special chars keep meaning
							continue
						}
					}
					buf.WriteByte(b)
				}
				s = buf.String()
			}
			field = append(field, fieldPart{val: s})
		case *syntax.SglQuoted:
			fp := fieldPart{quote: quoteSingle, val: x.Value}
			if x.Dollar {
				fp.val, _, _ = Format(cfg, fp.val, nil)
			}
			field = append(field, fp)
		case *syntax.DblQuoted:
			inner, err := cfg.wordField(x.Parts, quoteDouble)
			if err != nil {
				return nil, err
			}
			for _, part := range inner {
				part.quote = quoteDouble
				field = append(field, part)
			}
		case *syntax.ParamExp:
			s, err := cfg.paramExp(x)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{val: s})
		case *syntax.CmdSubst:
			s, err := cfg.cmdSubst(x)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{val: s})
		case *syntax.ProcSubst:
			s, err := cfg.procSubst(x)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{val: s})
		case *syntax.ArithmExp:
			n, err := Arithm(cfg, x.X)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{val: strconv.Itoa(n)})
		default:
			return nil, fmt.Errorf("unhandled word part: %T", x)
		}
	}
	return field, nil
}

func (cfg *Config) cmdSubst(cs *syntax.CmdSubst) (string, error) {
	buf := cfg.strBuilder()
	if err := cfg.CmdSubst(buf, cs); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func (cfg *Config) procSubst(ps *syntax.ProcSubst) (string, error) {
	if cfg.ProcSubst == nil {
		return "", fmt.Errorf("process substitution is not supported")
	}
	return cfg.ProcSubst(ps)
}

// wordFields is like wordField, but splits unquoted bytes coming from
// substitutions on IFS, producing multiple output fields.
func (cfg *Config) wordFields(wps []syntax.WordPart) ([][]fieldPart, error) {
	fields := cfg.fieldsAlloc[:0]
	curField := cfg.fieldAlloc[:0]
	allowEmpty := false
	flush := func() {
		if len(curField) == 0 {
			return
		}
		fields = append(fields, curField)
		curField = nil
	}
	splitAdd := func(val string) {
		for i, field := range strings.FieldsFunc(val, cfg.ifsRune) {
			if i > 0 {
				flush()
			}
			curField = append(curField, fieldPart{val: field})
		}
	}
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 {
				s = cfg.expandUser(s)
			}
			if strings.Contains(s, "\\") {
				buf := cfg.strBuilder()
				for i := 0; i < len(s); i++ {
					b := s[i]
					if b == '\\' && i+1 < len(s) {
						i++
						b = s[i]
					}
					buf.WriteByte(b)
				}
				s = buf.String()
			}
			curField = append(curField, fieldPart{val: s})
		case *syntax.SglQuoted:
			allowEmpty = true
			fp := fieldPart{quote: quoteSingle, val: x.Value}
			if x.Dollar {
				fp.val, _, _ = Format(cfg, fp.val, nil)
			}
			curField = append(curField, fp)
		case *syntax.DblQuoted:
			allowEmpty = true
			if len(x.Parts) == 1 {
				pe, _ := x.Parts[0].(*syntax.ParamExp)
				elems, quoted, err := cfg.quotedElems(pe)
				if err != nil {
					return nil, err
				}
				if quoted {
					for i, elem := range elems {
						if i > 0 {
							flush()
						}
						curField = append(curField, fieldPart{quote: quoteDouble, val: elem})
					}
					continue
				}
			}
			inner, err := cfg.wordField(x.Parts, quoteDouble)
			if err != nil {
				return nil, err
			}
			for _, part := range inner {
				part.quote = quoteDouble
				curField = append(curField, part)
			}
		case *syntax.ParamExp:
			s, err := cfg.paramExp(x)
			if err != nil {
				return nil, err
			}
			splitAdd(s)
		case *syntax.CmdSubst:
			s, err := cfg.cmdSubst(x)
			if err != nil {
				return nil, err
			}
			splitAdd(s)
		case *syntax.ProcSubst:
			s, err := cfg.procSubst(x)
			if err != nil {
				return nil, err
			}
			curField = append(curField, fieldPart{val: s})
		case *syntax.ArithmExp:
			n, err := Arithm(cfg, x.X)
			if err != nil {
				return nil, err
			}
			curField = append(curField, fieldPart{val: strconv.Itoa(n)})
		default:
			return nil, fmt.Errorf("unhandled word part: %T", x)
		}
	}
	flush()
	if allowEmpty && len(fields) == 0 {
		fields = append(fields, curField)
	}
	return fields, nil
}

// quotedElems checks whether a parameter expansion is exactly "${@}" or
// "${arr[@]}", which split into multiple fields even inside double quotes.
// The bool return reports whether pe matched one of those shapes.
func (cfg *Config) quotedElems(pe *syntax.ParamExp) ([]string, bool, error) {
	if pe == nil || pe.Excl || pe.Length || pe.Width {
		return nil, false, nil
	}
	if pe.Param.Value == "@" {
		return cfg.Env.Get("@").List, true, nil
	}
	if anyOfLit(pe.Index, "@") == "" {
		return nil, false, nil
	}
	vr := cfg.Env.Get(pe.Param.Value)
	if vr.Kind != Indexed {
		return nil, false, nil
	}
	return vr.List, true, nil
}

func (cfg *Config) expandUser(field string) string {
	if len(field) == 0 || field[0] != '~' {
		return field
	}
	name := field[1:]
	rest := ""
	if i := strings.Index(name, "/"); i >= 0 {
		rest = name[i:]
		name = name[:i]
	}
	if name == "" {
		return cfg.envGet("HOME") + rest
	}
	if name == "+" {
		return cfg.envGet("PWD") + rest
	}
	if name == "-" {
		return cfg.envGet("OLDPWD") + rest
	}
	// os/user's cgo-backed lookups are sandboxed away on some platforms; a
	// failed lookup just leaves the word untouched, as bash does.
	u, err := user.Lookup(name)
	if err != nil {
		return field
	}
	return u.HomeDir + rest
}

// Format implements the "%"-directive handling shared by the "echo"
// and "printf" builtins.
func Format(cfg *Config, format string, args []string) (string, int, error) {
	buf := cfg.strBuilder()
	esc := false
	var fmts []rune
	initialArgs := len(args)

	for _, c := range format {
		switch {
		case esc:
			esc = false
			switch c {
			case 'n':
				buf.WriteRune('\n')
			case 'r':
				buf.WriteRune('\r')
			case 't':
				buf.WriteRune('\t')
			case '\\':
				buf.WriteRune('\\')
			default:
				buf.WriteRune('\\')
				buf.WriteRune(c)
			}

		case len(fmts) > 0:
			switch c {
			case '%':
				buf.WriteByte('%')
				fmts = nil
			case 'c':
				var b byte
				if len(args) > 0 {
					arg := ""
					arg, args = args[0], args[1:]
					if len(arg) > 0 {
						b = arg[0]
					}
				}
				buf.WriteByte(b)
				fmts = nil
			case '+', '-', ' ':
				if len(fmts) > 1 {
					return "", 0, fmt.Errorf("invalid format char: %c", c)
				}
				fmts = append(fmts, c)
			case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
				fmts = append(fmts, c)
			case 's', 'd', 'i', 'u', 'o', 'x':
				arg := ""
				if len(args) > 0 {
					arg, args = args[0], args[1:]
				}
				var farg any = arg
				if c != 's' {
					n, _ := strconv.ParseInt(arg, 0, 0)
					if c == 'i' || c == 'd' {
						farg = int(n)
					} else {
						farg = uint(n)
					}
					if c == 'i' || c == 'u' {
						c = 'd'
					}
				}
				fmts = append(fmts, c)
				fmt.Fprintf(buf, string(fmts), farg)
				fmts = nil
			default:
				return "", 0, fmt.Errorf("invalid format char: %c", c)
			}
		case c == '\\':
			esc = true
		case args != nil && c == '%':
			// if args == nil, we are not doing format arguments
			fmts = []rune{c}
		default:
			buf.WriteRune(c)
		}
	}
	if len(fmts) > 0 {
		return "", 0, fmt.Errorf("missing format char")
	}
	return buf.String(), initialArgs - len(args), nil
}

// ReadFields splits s on IFS the way the "read" builtin does, producing at
// most n fields (the last field absorbs any remainder). With raw set,
// backslash is not treated as an escape character.
func ReadFields(cfg *Config, s string, n int, raw bool) []string {
	cfg.prepareIFS()
	type pos struct{ start, end int }
	var fpos []pos

	runes := make([]rune, 0, len(s))
	infield := false
	esc := false
	for _, r := range s {
		if infield {
			if cfg.ifsRune(r) && (raw || !esc) {
				fpos[len(fpos)-1].end = len(runes)
				infield = false
			}
		} else {
			if !cfg.ifsRune(r) && (raw || !esc) {
				fpos = append(fpos, pos{start: len(runes), end: -1})
				infield = true
			}
		}
		if r == '\\' {
			if raw || esc {
				runes = append(runes, r)
			}
			esc = !esc
			continue
		}
		runes = append(runes, r)
		esc = false
	}
	if len(fpos) == 0 {
		return nil
	}
	if infield {
		fpos[len(fpos)-1].end = len(runes)
	}

	switch {
	case n == 1:
		// include heading/trailing IFSs
		fpos[0].start, fpos[0].end = 0, len(runes)
		fpos = fpos[:1]
	case n != -1 && n < len(fpos):
		// combine to max n fields
		fpos[n-1].end = fpos[len(fpos)-1].end
		fpos = fpos[:n]
	}

	fields := make([]string, len(fpos))
	for i, p := range fpos {
		fields[i] = string(runes[p.start:p.end])
	}
	return fields
}

var rxGlobStar = regexp.MustCompile(".*")

// glob resolves a pathname pattern via [Config.ReadDir2], honoring
// NoCaseGlob/GlobStar/NullGlob. Results are returned in sorted order per
// directory level, matching the shell's usual listing order.
func (cfg *Config) glob(pattern string) []string {
	parts := strings.Split(pattern, string(filepath.Separator))
	matches := []string{"."}
	if filepath.IsAbs(pattern) {
		if parts[0] == "" {
			matches[0] = string(filepath.Separator)
		} else {
			matches[0] = parts[0] + string(filepath.Separator)
		}
		parts = parts[1:]
	}
	for _, part := range parts {
		if part == "**" && cfg.GlobStar {
			for i := range matches {
				matches[i] += string(filepath.Separator)
			}
			latest := matches
			for {
				var newMatches []string
				for _, dir := range latest {
					newMatches = cfg.globDir(dir, rxGlobStar, newMatches)
				}
				if len(newMatches) == 0 {
					break
				}
				matches = append(matches, newMatches...)
				latest = newMatches
			}
			continue
		}
		expr, err := syntax.TranslatePattern(part, true)
		if err != nil {
			return nil
		}
		prefix := "^"
		if cfg.NoCaseGlob {
			prefix = "(?i)^"
		}
		rx := regexp.MustCompile(prefix + expr + "$")
		var newMatches []string
		for _, dir := range matches {
			newMatches = cfg.globDir(dir, rx, newMatches)
		}
		matches = newMatches
	}
	return matches
}

func (cfg *Config) globDir(dir string, rx *regexp.Regexp, matches []string) []string {
	entries, err := cfg.ReadDir2(dir)
	if err != nil {
		return matches
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	slices.Sort(names)

	for _, name := range names {
		if !strings.HasPrefix(rx.String(), `^\.`) && !strings.HasPrefix(rx.String(), `(?i)^\.`) && name[0] == '.' {
			continue
		}
		if rx.MatchString(name) {
			matches = append(matches, filepath.Join(dir, name))
		}
	}
	return matches
}

// hasGlob reports whether path contains unescaped glob metacharacters,
// which differ slightly by platform since Windows paths use "\" as a
// separator rather than an escape character.
func hasGlob(path string) bool {
	magicChars := `*?[`
	if runtime.GOOS != "windows" {
		magicChars = `*?[\`
	}
	return strings.ContainsAny(path, magicChars)
}
