package graph

import (
	"sort"

	"github.com/mdl-run/mdl/internal/ctxkey"
)

// PendingSoft is a soft dependency edge awaiting its retainer's verdict.
type PendingSoft struct {
	Source   ctxkey.ActionKey
	Edge     Edge
}

// PendingState is the output of Phase1: the strong-reachable retained set
// plus the soft edges still awaiting a retainer verdict.
type PendingState struct {
	retained map[string]bool
	Pending  []PendingSoft
}

// strongClosure performs a BFS over strong-only edges from seeds.
func strongClosure(g *Graph, seeds []ctxkey.ActionKey) map[string]bool {
	visited := map[string]bool{}
	queue := append([]ctxkey.ActionKey(nil), seeds...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		s := cur.String()
		if visited[s] {
			continue
		}
		visited[s] = true
		node, ok := g.Nodes[s]
		if !ok {
			continue
		}
		for _, e := range node.Edges {
			if e.Kind == EdgeStrong && !visited[e.Target.String()] {
				queue = append(queue, e.Target)
			}
		}
	}
	return visited
}

// Phase1 computes retained = closure(goals, strong-edges only) and
// enumerates the soft dependencies, from nodes in that closure, whose
// target is not yet retained (spec §4.5 Phase 1 & 2).
func Phase1(g *Graph) *PendingState {
	retained := strongClosure(g, g.Goals)

	var pending []PendingSoft
	keys := make([]string, 0, len(retained))
	for k := range retained {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		node := g.Nodes[k]
		if node == nil {
			continue
		}
		for _, e := range node.SortedEdges() {
			if e.Kind == EdgeSoft && !retained[e.Target.String()] {
				pending = append(pending, PendingSoft{Source: node.Key, Edge: e})
			}
		}
	}

	return &PendingState{retained: retained, Pending: pending}
}

// UniqueRetainers returns the distinct retainer ActionKeys referenced by the
// pending soft edges, in deterministic order (spec §4.7 step 0: "For each
// unique retainer ActionKey referenced by a pending soft edge").
func (s *PendingState) UniqueRetainers() []ctxkey.ActionKey {
	seen := map[string]bool{}
	var out []ctxkey.ActionKey
	for _, p := range s.Pending {
		k := p.Edge.Retainer.String()
		if !seen[k] {
			seen[k] = true
			out = append(out, p.Edge.Retainer)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Finalize runs Phase 3: targets whose retainer verdict is "retain" are
// added to the retained-soft-targets set, retained is recomputed as the
// union of the strong closures of goals and of that set, and the final
// graph is built by dropping every node and edge that did not survive
// (spec §4.5 Phase 3, "Weak edges are kept only when both endpoints
// survive").
func (g *Graph) Finalize(s *PendingState, retainerVerdicts map[string]bool) *Graph {
	var retainedSoftTargets []ctxkey.ActionKey
	for _, p := range s.Pending {
		if retainerVerdicts[p.Edge.Retainer.String()] {
			retainedSoftTargets = append(retainedSoftTargets, p.Edge.Target)
		}
	}

	retained := strongClosure(g, g.Goals)
	for k, v := range strongClosure(g, retainedSoftTargets) {
		if v {
			retained[k] = true
		}
	}

	out := New()
	out.Goals = g.Goals
	for key := range retained {
		node, ok := g.Nodes[key]
		if !ok {
			continue
		}
		clone := &Node{
			Key:              node.Key,
			Version:          node.Version,
			VersionAmbiguous: node.VersionAmbiguous,
			Args:             node.Args,
			Flags:            node.Flags,
		}
		for _, e := range node.SortedEdges() {
			switch e.Kind {
			case EdgeStrong:
				clone.Edges = append(clone.Edges, e)
			case EdgeWeak:
				if retained[e.Target.String()] {
					clone.Edges = append(clone.Edges, e)
				}
			case EdgeSoft:
				if retainerVerdicts[e.Retainer.String()] && retained[e.Target.String()] {
					clone.Edges = append(clone.Edges, e)
				}
			}
		}
		out.Nodes[key] = clone
	}
	out.BuildReverse()
	return out
}
