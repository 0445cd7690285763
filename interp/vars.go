// Copyright (c) 2017 Kena Shell contributors
// See LICENSE for licensing information

package interp

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/kena-sh/kena/expand"
	"github.com/kena-sh/kena/syntax"
)

// overlayEnviron implements [expand.WriteEnviron] as a layer of local
// modifications on top of a parent [expand.Environ]. Runner and function
// scopes stack these so that assignments in a nested scope never mutate
// the environment below them.
type overlayEnviron struct {
	parent expand.Environ
	values map[string]expand.Variable

	// funcScope marks an overlay introduced by a function call; "local"
	// declarations are recorded against this layer.
	funcScope bool

	// background marks an overlay introduced for a background subshell.
	// Reads and writes already stay confined to this overlay's own map,
	// which is what gives subshells their variable isolation.
	background bool
}

// newOverlayEnviron returns an overlayEnviron layered on top of parent,
// suitable for a subshell: any variables it sets are never visible to
// parent once the subshell returns.
func newOverlayEnviron(parent expand.WriteEnviron, background bool) *overlayEnviron {
	return &overlayEnviron{parent: parent, background: background}
}

func (o *overlayEnviron) Get(name string) expand.Variable {
	if vr, ok := o.values[name]; ok {
		return vr
	}
	if o.parent != nil {
		return o.parent.Get(name)
	}
	return expand.Variable{}
}

func (o *overlayEnviron) Set(name string, vr expand.Variable) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if cur := o.Get(name); cur.ReadOnly && vr.Kind != expand.KeepValue {
		return fmt.Errorf("%s: readonly variable", name)
	}
	if vr.Kind == expand.KeepValue {
		cur := o.Get(name)
		cur.Local = vr.Local
		cur.Exported = vr.Exported
		cur.ReadOnly = vr.ReadOnly
		vr = cur
	}
	// A function scope only shadows a name once it has been declared
	// local here, or is being declared local by this very call. A plain
	// assignment to a name that isn't already local walks up to whichever
	// scope it was last declared in, or creates a global, matching Bash's
	// dynamic scoping of unqualified assignments inside functions.
	if _, localHere := o.values[name]; o.funcScope && !localHere && !vr.Local {
		if parent, ok := o.parent.(expand.WriteEnviron); ok {
			return parent.Set(name, vr)
		}
	}
	if o.values == nil {
		o.values = make(map[string]expand.Variable)
	}
	o.values[name] = vr
	return nil
}

func (o *overlayEnviron) Each(fn func(name string, vr expand.Variable) bool) {
	done := make(map[string]bool, len(o.values))
	stop := false
	for name, vr := range o.values {
		done[name] = true
		if !fn(name, vr) {
			stop = true
			break
		}
	}
	if stop || o.parent == nil {
		return
	}
	o.parent.Each(func(name string, vr expand.Variable) bool {
		if done[name] {
			return true
		}
		return fn(name, vr)
	})
}

// lookupVar resolves name to its current value, handling the shell's
// special parameters ($#, $@, $?, and so on) before falling back to the
// regular variable store.
func (r *Runner) lookupVar(name string) expand.Variable {
	if name == "" {
		panic("interp: variable name must not be empty")
	}
	switch name {
	case "#":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(len(r.Params))}
	case "@", "*":
		return expand.Variable{Set: true, Kind: expand.Indexed, List: r.Params}
	case "?":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(int(r.exit.code))}
	case "$":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(os.Getpid())}
	case "PPID":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(os.Getppid())}
	case "LINENO":
		line := 0
		if r.file != nil && r.curStmt != nil {
			line = r.file.Position(r.curStmt.Pos()).Line
		}
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(line)}
	case "DIRSTACK":
		return expand.Variable{Set: true, Kind: expand.Indexed, List: r.dirStack}
	case "0":
		fname := "kena"
		if r.filename != "" {
			fname = r.filename
		}
		return expand.Variable{Set: true, Kind: expand.String, Str: fname}
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		i := int(name[0] - '1')
		if i < len(r.Params) {
			return expand.Variable{Set: true, Kind: expand.String, Str: r.Params[i]}
		}
		return expand.Variable{Set: true, Kind: expand.String, Str: ""}
	}
	vr := r.writeEnv.Get(name)
	if runtime.GOOS == "windows" && !vr.IsSet() {
		if vr2 := r.writeEnv.Get(strings.ToUpper(name)); vr2.IsSet() {
			return vr2
		}
	}
	return vr
}

// envGet returns name's value resolved to a plain string, following any
// nameref chain.
func (r *Runner) envGet(name string) string {
	_, vr := r.lookupVar(name).Resolve(r.writeEnv)
	return vr.String()
}

// delVar unsets name, reporting an error if it is read-only.
func (r *Runner) delVar(name string) {
	vr := r.lookupVar(name)
	if vr.ReadOnly {
		r.errf("%s: readonly variable\n", name)
		r.exit.code = 1
		return
	}
	if err := r.writeEnv.Set(name, expand.Variable{}); err != nil {
		r.errf("%s\n", err)
		r.exit.code = 1
	}
}

// setVarString sets name to a plain string value.
func (r *Runner) setVarString(name, value string) {
	r.setVar(name, expand.Variable{Set: true, Kind: expand.String, Str: value})
}

// setVar stores vr under name, applying the shell's ambient attribute
// rules (such as allexport) before writing it through the environment.
func (r *Runner) setVar(name string, vr expand.Variable) {
	switch vr.Kind {
	case expand.String:
		if r.opts[optAllExport] {
			vr.Exported = true
		}
	case expand.Indexed, expand.Associative:
		// Bash cannot export arrays through the process environment.
		vr.Exported = false
	}
	if err := r.writeEnv.Set(name, vr); err != nil {
		r.errf("%s\n", err)
		r.exit.code = 1
	}
}

// setVarWithIndex assigns vr to name, or to a single index or key of it
// when index is non-nil, such as in "arr[2]=foo" or "map[key]=foo". prev
// is the variable's value before this assignment, as already resolved by
// the caller via lookupVar.
func (r *Runner) setVarWithIndex(prev expand.Variable, name string, index syntax.ArithmExpr, vr expand.Variable) {
	if prev.ReadOnly {
		r.errf("%s: readonly variable\n", name)
		r.exit.code = 1
		return
	}
	if vr.Kind == expand.String && index == nil {
		// Assigning a plain string to an existing array falls back to
		// index/key zero, same as Bash.
		switch prev.Kind {
		case expand.Indexed:
			index = &syntax.Word{Parts: []syntax.WordPart{&syntax.Lit{Value: "0"}}}
		case expand.Associative:
			index = &syntax.Word{Parts: []syntax.WordPart{&syntax.DblQuoted{}}}
		}
	}
	if index == nil {
		r.setVar(name, vr)
		return
	}

	// The parser only allows a plain string value alongside an index;
	// nested arrays are not valid syntax.
	valStr := vr.Str

	if prev.Kind == expand.Associative {
		amap := prev.Map
		if amap == nil {
			amap = make(map[string]string)
		}
		w, ok := index.(*syntax.Word)
		if !ok {
			return
		}
		amap[r.literal(w)] = valStr
		prev.Kind = expand.Associative
		prev.Map = amap
		r.setVar(name, prev)
		return
	}

	var list []string
	switch prev.Kind {
	case expand.String:
		list = []string{prev.Str}
	case expand.Indexed:
		list = prev.List
	}
	k := r.arithm(index)
	for len(list) <= k {
		list = append(list, "")
	}
	list[k] = valStr
	prev.Kind = expand.Indexed
	prev.List = list
	prev.Str = ""
	r.setVar(name, prev)
}

// stringIndex reports whether index is a literal quoted string, the
// syntax used to address an associative array by key rather than an
// indexed array by position.
func stringIndex(index syntax.ArithmExpr) bool {
	w, ok := index.(*syntax.Word)
	if !ok || len(w.Parts) != 1 {
		return false
	}
	switch w.Parts[0].(type) {
	case *syntax.DblQuoted, *syntax.SglQuoted:
		return true
	}
	return false
}

// assignVal computes the resulting value of an assignment, without
// storing it anywhere; the caller decides via setVar/setVarWithIndex
// where it ends up. valType forces the array kind when declaring with
// "-a" or "-A", or marks a nameref declared with "-n"; an empty valType
// infers the kind from as itself.
func (r *Runner) assignVal(prev expand.Variable, as *syntax.Assign, valType string) expand.Variable {
	if as.Naked {
		return prev
	}
	if as.Value != nil {
		s := r.literal(as.Value)
		if valType == "-n" {
			return expand.Variable{Set: true, Kind: expand.NameRef, Str: s}
		}
		if !as.Append || !prev.IsSet() {
			return expand.Variable{Set: true, Kind: expand.String, Str: s}
		}
		switch prev.Kind {
		case expand.Indexed:
			list := append([]string(nil), prev.List...)
			if len(list) == 0 {
				list = append(list, "")
			}
			list[0] += s
			prev.List = list
			return prev
		case expand.Associative:
			// Appending to an associative array as a whole is not
			// meaningful; Bash treats it as a no-op error, so we just
			// keep the previous value.
			return prev
		default:
			return expand.Variable{Set: true, Kind: expand.String, Str: prev.Str + s}
		}
	}
	if as.Array == nil {
		// A bare "foo=" with no value and no array still sets an empty
		// string, unlike an unset variable.
		return expand.Variable{Set: true, Kind: expand.String, Str: ""}
	}

	elems := as.Array.Elems
	if valType == "" {
		if len(elems) == 0 || !stringIndex(elems[0].Index) {
			valType = "-a"
		} else {
			valType = "-A"
		}
	}

	if valType == "-A" {
		amap := make(map[string]string, len(elems))
		for _, elem := range elems {
			w, ok := elem.Index.(*syntax.Word)
			if !ok {
				continue
			}
			amap[r.literal(w)] = r.literal(elem.Value)
		}
		return expand.Variable{Set: true, Kind: expand.Associative, Map: amap}
	}

	maxIndex := len(elems) - 1
	indexes := make([]int, len(elems))
	for i, elem := range elems {
		if elem.Index == nil {
			indexes[i] = i
			continue
		}
		k := r.arithm(elem.Index)
		indexes[i] = k
		if k > maxIndex {
			maxIndex = k
		}
	}
	strs := make([]string, maxIndex+1)
	for i, elem := range elems {
		strs[indexes[i]] = r.literal(elem.Value)
	}
	if !as.Append || !prev.IsSet() {
		return expand.Variable{Set: true, Kind: expand.Indexed, List: strs}
	}
	switch prev.Kind {
	case expand.Indexed:
		return expand.Variable{Set: true, Kind: expand.Indexed, List: append(append([]string(nil), prev.List...), strs...)}
	default:
		return expand.Variable{Set: true, Kind: expand.Indexed, List: append([]string{prev.Str}, strs...)}
	}
}

// namesByPrefix returns the names of all declared variables starting
// with prefix. Parameter expansion of "${!prefix*}" does not use it; the
// expand package collects those names itself.
func (r *Runner) namesByPrefix(prefix string) []string {
	var names []string
	r.writeEnv.Each(func(name string, vr expand.Variable) bool {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names
}
