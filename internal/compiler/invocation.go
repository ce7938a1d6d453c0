// Package compiler implements the compiler (spec §4.4): turning the
// definition corpus plus a CLI invocation sequence into a single unified
// ActionGraph.
package compiler

import "github.com/mdl-run/mdl/internal/expansion"

// Invocation is one fully axis-resolved CLI goal (patterns already expanded
// by the wildcard package): a concrete axis assignment plus the args/flags
// scoped to this goal.
type Invocation struct {
	Action string
	Axes   map[string]string
	Args   map[string]expansion.ArgValue
	Flags  map[string]bool
}

// Input is everything the compiler needs beyond the corpus itself.
type Input struct {
	GlobalAxes  map[string]string
	GlobalArgs  map[string]expansion.ArgValue
	GlobalFlags map[string]bool
	Invocations []Invocation
	Platform    string
	Sys         map[string]string
	Env         map[string]string
}
