package compiler

import (
	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/expansion"
)

// invocationContext is the fully merged, default-filled context a single
// goal invocation's whole reachable subgraph is built under (spec §4.4
// steps 1-3). Args and flags are resolved once per invocation and shared by
// every action node reached while building it: the CLI only scopes
// arguments to a goal, not to the individual dependency actions it pulls in.
type invocationContext struct {
	Axes     map[string]string
	Args     map[string]expansion.ArgValue
	Flags    map[string]bool
	Sys      map[string]string
	Env      map[string]string
	Platform string
}

func fillAxisDefaults(c *corpus.Corpus, axes map[string]string) map[string]string {
	out := make(map[string]string, len(axes)+len(c.Axes))
	for k, v := range axes {
		out[k] = v
	}
	for name, def := range c.Axes {
		if _, ok := out[name]; !ok && def.Default != "" {
			out[name] = def.Default
		}
	}
	return out
}

// mergeArgs resolves every declared argument to its CLI-supplied value
// (per-invocation wins over global) or its declared default. Arguments with
// neither are left unset; a script that references one surfaces a resolution
// error at expansion time. The validator only checks that a referenced
// argument is declared, not that it has a value, so this case is not caught
// ahead of execution.
func mergeArgs(c *corpus.Corpus, global, local map[string]expansion.ArgValue) map[string]expansion.ArgValue {
	out := make(map[string]expansion.ArgValue, len(c.Arguments))
	for name, def := range c.Arguments {
		if v, ok := local[name]; ok {
			out[name] = v
			continue
		}
		if v, ok := global[name]; ok {
			out[name] = v
			continue
		}
		if def.Array {
			if def.Defaults != nil {
				out[name] = expansion.ArgValue{Type: def.Type, Array: def.Defaults}
			}
			continue
		}
		if def.Default != nil {
			out[name] = expansion.ArgValue{Type: def.Type, Scalar: *def.Default}
		}
	}
	return out
}

func mergeFlags(c *corpus.Corpus, global, local map[string]bool) map[string]bool {
	out := make(map[string]bool, len(c.Flags))
	for name := range c.Flags {
		if v, ok := local[name]; ok {
			out[name] = v
			continue
		}
		out[name] = global[name]
	}
	return out
}
