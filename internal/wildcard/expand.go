// Package wildcard implements the wildcard expander (spec §4.3): fanning a
// CLI invocation's pattern-valued axes out into the Cartesian product of
// matching concrete axis values.
package wildcard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/mdlerrors"
)

// Invocation is one CLI goal with its axis specs still possibly holding
// patterns ("*" or "prefix*"). Arguments and flags are carried through
// unchanged (spec §4.3).
type Invocation struct {
	Action string
	Axes   map[string]string // axis name -> literal value or pattern
	Args   map[string]interface{}
	Flags  map[string]bool
}

// IsPattern reports whether value is a wildcard pattern rather than a
// literal axis value.
func IsPattern(value string) bool {
	return value == "*" || strings.HasSuffix(value, "*")
}

func matchPattern(pattern string, candidates []string) []string {
	if pattern == "*" {
		out := append([]string(nil), candidates...)
		sort.Strings(out)
		return out
	}
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Expand fans globalAxes + each invocation's own axes out into the Cartesian
// product of concrete Invocations. A pattern matching zero values in
// any axis is a fatal no-match error (spec §4.3). Global axis patterns are
// merged into every invocation before expansion; a per-invocation axis entry
// overrides the global one of the same name.
func Expand(defs map[string]corpus.Axis, globalAxes map[string]string, invocations []Invocation) ([]Invocation, error) {
	var out []Invocation
	for _, inv := range invocations {
		merged := map[string]string{}
		for k, v := range globalAxes {
			merged[k] = v
		}
		for k, v := range inv.Axes {
			merged[k] = v
		}

		expanded, err := expandOne(defs, inv.Action, merged)
		if err != nil {
			return nil, err
		}
		for _, axes := range expanded {
			out = append(out, Invocation{Action: inv.Action, Axes: axes, Args: inv.Args, Flags: inv.Flags})
		}
	}
	return out, nil
}

func expandOne(defs map[string]corpus.Axis, action string, axes map[string]string) ([]map[string]string, error) {
	// Partition into literal bindings (kept as-is) and patterned axes (expanded).
	literal := map[string]string{}
	type patternAxis struct {
		name   string
		values []string
	}
	var patterned []patternAxis

	names := make([]string, 0, len(axes))
	for name := range axes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := axes[name]
		if !IsPattern(value) {
			literal[name] = value
			continue
		}
		def, ok := defs[name]
		if !ok {
			return nil, mdlerrors.New(mdlerrors.CodeUnknownAxis, fmt.Sprintf("unknown axis %q referenced for action %q", name, action), "")
		}
		matches := matchPattern(value, def.Values)
		if len(matches) == 0 {
			return nil, mdlerrors.New(mdlerrors.CodeNoMatch, fmt.Sprintf("axis %q pattern %q matched no values", name, value), "")
		}
		patterned = append(patterned, patternAxis{name: name, values: matches})
	}

	combos := []map[string]string{cloneMap(literal)}
	for _, pa := range patterned {
		var next []map[string]string
		for _, combo := range combos {
			for _, v := range pa.values {
				c := cloneMap(combo)
				c[pa.name] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos, nil
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
