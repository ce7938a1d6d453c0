package graph

import (
	"sort"

	"github.com/mdl-run/mdl/internal/ctxkey"
	"github.com/mdl-run/mdl/internal/mdlerrors"
)

// Level is a set of ActionKeys that may run in parallel (no edge between
// any two of them).
type Level []ctxkey.ActionKey

// byActionThenKey sorts ActionKeys for deterministic tie-breaking: first by
// action name, then by full key string (spec §4.5: "Ties are broken by
// action-name to make the order deterministic").
func byActionThenKey(keys []ctxkey.ActionKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Action != keys[j].Action {
			return keys[i].Action < keys[j].Action
		}
		return keys[i].String() < keys[j].String()
	})
}

// TopoSort computes the level-by-level topological order of g using Kahn's
// algorithm over every surviving edge (strong + weak; spec §4.5). A node's
// indegree is its own unresolved-prerequisite count (the edges it owns,
// since Edge.Target names a dependency); finishing a node frees its
// dependents, so propagation walks the reverse adjacency, not the node's
// own edge list. A non-empty remainder indicates a cycle, reported via
// DetectCycle for a concrete path.
func (g *Graph) TopoSort() ([]Level, error) {
	indegree := make(map[string]int, len(g.Nodes))
	keyByString := make(map[string]ctxkey.ActionKey, len(g.Nodes))
	dependents := make(map[string][]string, len(g.Nodes))
	for s, n := range g.Nodes {
		keyByString[s] = n.Key
		count := 0
		for _, e := range n.Edges {
			if _, ok := g.Nodes[e.Target.String()]; ok {
				count++
				dependents[e.Target.String()] = append(dependents[e.Target.String()], s)
			}
		}
		indegree[s] = count
	}

	var queue []ctxkey.ActionKey
	for s, d := range indegree {
		if d == 0 {
			queue = append(queue, keyByString[s])
		}
	}
	byActionThenKey(queue)

	processed := 0
	var levels []Level

	for len(queue) > 0 {
		current := queue
		byActionThenKey(current)
		levels = append(levels, Level(append([]ctxkey.ActionKey(nil), current...)))

		var next []ctxkey.ActionKey
		for _, key := range current {
			processed++
			for _, depStr := range dependents[key.String()] {
				indegree[depStr]--
				if indegree[depStr] == 0 {
					next = append(next, keyByString[depStr])
				}
			}
		}
		byActionThenKey(next)
		queue = next
	}

	if processed != len(g.Nodes) {
		cycle := g.DetectCycle()
		return nil, mdlerrors.New(mdlerrors.CodeCycle, "circular dependency detected", "").
			WithContext(map[string]interface{}{"cycle": formatCycle(cycle)})
	}

	return levels, nil
}

func formatCycle(cycle []ctxkey.ActionKey) []string {
	out := make([]string, len(cycle))
	for i, k := range cycle {
		out[i] = k.String()
	}
	return out
}
