// Copyright (c) 2017 Kena Shell contributors
// See LICENSE for licensing information

package expand

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kena-sh/kena/syntax"
)

func anyOfLit(v any, vals ...string) string {
	word, _ := v.(*syntax.Word)
	if word == nil || len(word.Parts) != 1 {
		return ""
	}
	lit, ok := word.Parts[0].(*syntax.Lit)
	if !ok {
		return ""
	}
	for _, val := range vals {
		if lit.Value == val {
			return val
		}
	}
	return ""
}

// UnsetParameterError is returned when a parameter expansion's "${var:?msg}"
// operator fires, or when [Config.NoUnset] rejects a reference to an unset
// variable.
type UnsetParameterError struct {
	Expr    *syntax.ParamExp
	Message string
}

func (u UnsetParameterError) Error() string {
	return u.Message
}

func (cfg *Config) paramExp(pe *syntax.ParamExp) (string, error) {
	oldParam := cfg.curParam
	cfg.curParam = pe
	defer func() { cfg.curParam = oldParam }()

	name := pe.Param.Value
	index := pe.Index
	switch name {
	case "@", "*":
		index = &syntax.Word{Parts: []syntax.WordPart{
			&syntax.Lit{Value: name},
		}}
	}
	vr := cfg.Env.Get(name)

	if !vr.IsSet() && cfg.NoUnset && pe.Exp == nil {
		return "", UnsetParameterError{
			Expr:    pe,
			Message: fmt.Sprintf("%s: unbound variable", name),
		}
	}

	set := vr.IsSet()
	str := cfg.varStr(vr, 0)
	if index != nil {
		var err error
		str, err = cfg.varInd(vr, index, 0)
		if err != nil {
			return "", err
		}
	}
	slicePos := func(expr syntax.ArithmExpr) (int, error) {
		p, err := Arithm(cfg, expr)
		if err != nil {
			return 0, err
		}
		if p < 0 {
			p = len(str) + p
			if p < 0 {
				p = len(str)
			}
		} else if p > len(str) {
			p = len(str)
		}
		return p, nil
	}
	var elems []string
	if anyOfLit(index, "@", "*") != "" {
		switch vr.Kind {
		case Indexed:
			elems = slices.Clone(vr.List)
		default:
			elems = nil
		}
	} else {
		elems = []string{str}
	}
	switch {
	case pe.Length:
		n := len(elems)
		if anyOfLit(index, "@", "*") == "" {
			n = utf8.RuneCountInString(str)
		}
		str = strconv.Itoa(n)
	case pe.Excl:
		var strs []string
		switch {
		case pe.Names != 0:
			strs = cfg.namesByPrefix(pe.Param.Value)
		case vr.Kind == NameRef:
			strs = append(strs, vr.Str)
		case vr.Kind == Indexed:
			for i, e := range vr.List {
				if e != "" {
					strs = append(strs, strconv.Itoa(i))
				}
			}
		case vr.Kind == Associative:
			for k := range vr.Map {
				strs = append(strs, k)
			}
		case str != "":
			vr = cfg.Env.Get(str)
			strs = append(strs, cfg.varStr(vr, 0))
		}
		slices.Sort(strs)
		str = strings.Join(strs, " ")
	case pe.Slice != nil:
		if pe.Slice.Offset != nil {
			offset, err := slicePos(pe.Slice.Offset)
			if err != nil {
				return "", err
			}
			str = str[offset:]
		}
		if pe.Slice.Length != nil {
			length, err := slicePos(pe.Slice.Length)
			if err != nil {
				return "", err
			}
			str = str[:length]
		}
	case pe.Repl != nil:
		orig, err := Pattern(cfg, pe.Repl.Orig)
		if err != nil {
			return "", err
		}
		with, err := Literal(cfg, pe.Repl.With)
		if err != nil {
			return "", err
		}
		n := 1
		if pe.Repl.All {
			n = -1
		}
		locs := findAllIndex(orig, str, n)
		buf := cfg.strBuilder()
		last := 0
		for _, loc := range locs {
			buf.WriteString(str[last:loc[0]])
			buf.WriteString(with)
			last = loc[1]
		}
		buf.WriteString(str[last:])
		str = buf.String()
	case pe.Exp != nil:
		arg, err := Literal(cfg, pe.Exp.Word)
		if err != nil {
			return "", err
		}
		switch op := pe.Exp.Op; op {
		case syntax.SubstColPlus:
			if str == "" {
				break
			}
			fallthrough
		case syntax.SubstPlus:
			if set {
				str = arg
			}
		case syntax.SubstMinus:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColMinus:
			if str == "" {
				str = arg
			}
		case syntax.SubstQuest:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColQuest:
			if str == "" {
				return "", UnsetParameterError{
					Expr:    pe,
					Message: arg,
				}
			}
		case syntax.SubstAssgn:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColAssgn:
			if str == "" {
				if err := cfg.envSet(name, arg); err != nil {
					return "", err
				}
				str = arg
			}
		case syntax.RemSmallPrefix, syntax.RemLargePrefix,
			syntax.RemSmallSuffix, syntax.RemLargeSuffix:
			suffix := op == syntax.RemSmallSuffix ||
				op == syntax.RemLargeSuffix
			large := op == syntax.RemLargePrefix ||
				op == syntax.RemLargeSuffix
			for i, elem := range elems {
				elems[i] = removePattern(elem, arg, suffix, large)
			}
			str = strings.Join(elems, " ")
		case syntax.UpperFirst, syntax.UpperAll,
			syntax.LowerFirst, syntax.LowerAll:

			caseFunc := unicode.ToLower
			if op == syntax.UpperFirst || op == syntax.UpperAll {
				caseFunc = unicode.ToUpper
			}
			all := op == syntax.UpperAll || op == syntax.LowerAll

			// empty string means '?'; nothing to do there
			expr, err := syntax.TranslatePattern(arg, false)
			if err != nil {
				return str, nil
			}
			rx := regexp.MustCompile(expr)

			for i, elem := range elems {
				rs := []rune(elem)
				for ri, r := range rs {
					if rx.MatchString(string(r)) {
						rs[ri] = caseFunc(r)
						if !all {
							break
						}
					}
				}
				elems[i] = string(rs)
			}
			str = strings.Join(elems, " ")
		case syntax.OtherParamOps:
			switch arg {
			case "Q":
				quoted := make([]string, len(elems))
				for i, elem := range elems {
					quoted[i] = strconv.Quote(elem)
				}
				str = strings.Join(quoted, " ")
			case "E":
				tail := str
				var rns []rune
				for tail != "" {
					var rn rune
					rn, _, tail, _ = strconv.UnquoteChar(tail, 0)
					rns = append(rns, rn)
				}
				str = string(rns)
			case "P":
				prompted, err := Literal(cfg, &syntax.Word{Parts: []syntax.WordPart{&syntax.Lit{Value: str}}})
				if err != nil {
					return "", err
				}
				str = prompted
			case "A":
				str = fmt.Sprintf("%s=%s", name, str)
			case "a":
				str = varAttrs(vr)
			default:
				return "", fmt.Errorf("unexpected @%s param expansion", arg)
			}
		}
	}
	return str, nil
}

// varAttrs renders the attribute letters bash reports for "${var@a}":
// "a" for indexed arrays, "A" for associative ones, "r" for read-only,
// "n" for namerefs, and "x" for exported variables.
func varAttrs(vr Variable) string {
	var b strings.Builder
	switch vr.Kind {
	case Indexed:
		b.WriteByte('a')
	case Associative:
		b.WriteByte('A')
	case NameRef:
		b.WriteByte('n')
	}
	if vr.ReadOnly {
		b.WriteByte('r')
	}
	if vr.Exported {
		b.WriteByte('x')
	}
	return b.String()
}

func removePattern(str, pattern string, fromEnd, greedy bool) string {
	expr, err := syntax.TranslatePattern(pattern, greedy)
	if err != nil {
		return str
	}
	switch {
	case fromEnd && !greedy:
		// use .* to get the right-most (shortest) match
		expr = ".*(" + expr + ")$"
	case fromEnd:
		// simple suffix
		expr = "(" + expr + ")$"
	default:
		// simple prefix
		expr = "^(" + expr + ")"
	}
	// no need to check error as TranslatePattern returns one
	rx := regexp.MustCompile(expr)
	if loc := rx.FindStringSubmatchIndex(str); loc != nil {
		// remove the original pattern (the submatch)
		str = str[:loc[2]] + str[loc[3]:]
	}
	return str
}

// findAllIndex finds up to n occurrences of orig, a shell pattern, within
// str. n < 0 means all occurrences.
func findAllIndex(orig, str string, n int) [][]int {
	expr, err := syntax.TranslatePattern(orig, true)
	if err != nil {
		return nil
	}
	rx := regexp.MustCompile(expr)
	return rx.FindAllStringIndex(str, n)
}

func (cfg *Config) varStr(vr Variable, depth int) string {
	if !vr.IsSet() || depth > maxNameRefDepth {
		return ""
	}
	if vr.Kind == NameRef {
		return cfg.varStr(cfg.Env.Get(vr.Str), depth+1)
	}
	return vr.String()
}

func (cfg *Config) varInd(vr Variable, idx syntax.ArithmExpr, depth int) (string, error) {
	if depth > maxNameRefDepth {
		return "", nil
	}
	switch vr.Kind {
	case NameRef:
		return cfg.varInd(cfg.Env.Get(vr.Str), idx, depth+1)
	case Indexed:
		switch anyOfLit(idx, "@", "*") {
		case "@":
			return strings.Join(vr.List, " "), nil
		case "*":
			return cfg.ifsJoin(vr.List), nil
		}
		i, err := Arithm(cfg, idx)
		if err != nil {
			return "", err
		}
		if i >= 0 && i < len(vr.List) {
			return vr.List[i], nil
		}
		return "", nil
	case Associative:
		if lit := anyOfLit(idx, "@", "*"); lit != "" {
			keys := make([]string, 0, len(vr.Map))
			for k := range vr.Map {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			strs := make([]string, len(keys))
			for i, k := range keys {
				strs[i] = vr.Map[k]
			}
			if lit == "*" {
				return cfg.ifsJoin(strs), nil
			}
			return strings.Join(strs, " "), nil
		}
		key, err := Literal(cfg, idx.(*syntax.Word))
		if err != nil {
			return "", err
		}
		return vr.Map[key], nil
	default:
		n, err := Arithm(cfg, idx)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return vr.Str, nil
		}
		return "", nil
	}
}

func (cfg *Config) namesByPrefix(prefix string) []string {
	var names []string
	cfg.Env.Each(func(name string, vr Variable) bool {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return true
	})
	return names
}
