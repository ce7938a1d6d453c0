// Package expansion implements the expansion engine (spec §4.2): resolving
// lexical references inside a script body against a runtime context.
package expansion

import (
	"strings"

	"github.com/mdl-run/mdl/internal/corpus"
)

// ArgValue is a resolved argument value: either a scalar or an array,
// matching the argument's declared type (spec §3).
type ArgValue struct {
	Type   corpus.ArgType
	Scalar string
	Array  []string
	IsFlag bool // flags render through the same reference grammar as "1"/"0"
}

// Render converts the value to its script-text interpolation form: a single
// token for scalars/flags, whitespace-separated tokens for arrays (spec
// §4.2 "Arrays render as a whitespace-separated token list").
func (v ArgValue) Render() string {
	if v.Array != nil {
		return strings.Join(v.Array, " ")
	}
	return v.Scalar
}

// Return is a single named, typed action output value.
type Return struct {
	Type  corpus.ArgType
	Value string
}

// Context bundles the six maps plus the retained predicate an expansion
// resolves against (spec §4.2). Strong/Weak are keyed by the action name as
// it appears in the script's reference text; the caller (compiler/execution
// engine) is responsible for having already resolved that name to the
// correct dependency's ActionKey and its published returns before building
// this Context, since each reference is only meaningful relative to the
// referencing node's own dependency edges.
type Context struct {
	Sys      map[string]string
	Env      map[string]string
	Args     map[string]ArgValue
	Flags    map[string]bool
	Strong   map[string]map[string]Return // action name -> return name -> value, for strong deps
	Weak     map[string]map[string]Return // action name -> return name -> value, for weak deps (present only if resolved)
	Retained map[string]bool              // action name (of a soft dependency) -> retained verdict
}

// NewContext returns a Context with all maps initialized to empty.
func NewContext() *Context {
	return &Context{
		Sys:      map[string]string{},
		Env:      map[string]string{},
		Args:     map[string]ArgValue{},
		Flags:    map[string]bool{},
		Strong:   map[string]map[string]Return{},
		Weak:     map[string]map[string]Return{},
		Retained: map[string]bool{},
	}
}
