package compiler

import (
	"fmt"
	"sort"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/graph"
	"github.com/mdl-run/mdl/internal/mdlerrors"
)

// unifyAll merges a single invocation's local subgraph into the shared
// graph (spec §4.4, "Unification"). A key absent from g is adopted wholesale;
// a key already present is merged if the two nodes selected a compatible
// version (edges union), and rejected as a conflicting-definitions error
// otherwise. Incompatibility is defined purely by differing selected-version
// condition sets, never by differing args/flags or edge sets.
func unifyAll(g *graph.Graph, local map[string]*graph.Node) error {
	keys := make([]string, 0, len(local))
	for k := range local {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		ln := local[k]
		existing, ok := g.Get(ln.Key)
		if !ok {
			node := g.Upsert(ln.Key)
			node.Version = ln.Version
			node.VersionAmbiguous = ln.VersionAmbiguous
			node.Args = ln.Args
			node.Flags = ln.Flags
			for _, e := range ln.Edges {
				node.AddEdge(e)
			}
			continue
		}

		if existing.VersionAmbiguous != ln.VersionAmbiguous || !sameVersion(existing.Version, ln.Version) {
			return mdlerrors.New(
				mdlerrors.CodeConflictingDefinitions,
				fmt.Sprintf("action %q resolves to incompatible versions across invocations sharing context %s", ln.Key.Action, ln.Key.Context.String()),
				ln.Key.String(),
			)
		}

		for _, e := range ln.Edges {
			existing.AddEdge(e)
		}
	}
	return nil
}

func sameVersion(a, b *corpus.Version) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return sameConditions(a.Conditions, b.Conditions)
}

func sameConditions(a, b []corpus.Condition) bool {
	if len(a) != len(b) {
		return false
	}
	ac := append([]corpus.Condition(nil), a...)
	bc := append([]corpus.Condition(nil), b...)
	sort.Slice(ac, func(i, j int) bool { return condLess(ac[i], ac[j]) })
	sort.Slice(bc, func(i, j int) bool { return condLess(bc[i], bc[j]) })
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}

func condLess(x, y corpus.Condition) bool {
	if x.Axis != y.Axis {
		return x.Axis < y.Axis
	}
	return x.Value < y.Value
}
