package graph

import "github.com/mdl-run/mdl/internal/ctxkey"

// DetectCycle performs a depth-first search over every surviving edge and
// returns a concrete cycle path for error reporting (spec §4.5, diagnostic
// cycle detection). Returns nil if the graph is acyclic.
func (g *Graph) DetectCycle() []ctxkey.ActionKey {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))
	parent := make(map[string]string)

	keys := g.SortedKeys()

	var cyclePath []ctxkey.ActionKey

	var visit func(s string) bool
	visit = func(s string) bool {
		color[s] = gray
		node := g.Nodes[s]
		for _, e := range node.SortedEdges() {
			t := e.Target.String()
			if _, ok := g.Nodes[t]; !ok {
				continue
			}
			switch color[t] {
			case white:
				parent[t] = s
				if visit(t) {
					return true
				}
			case gray:
				// Found the back edge s -> t; reconstruct the cycle t -> ... -> s -> t.
				cyclePath = []ctxkey.ActionKey{g.Nodes[t].Key}
				cur := s
				for cur != t {
					cyclePath = append([]ctxkey.ActionKey{g.Nodes[cur].Key}, cyclePath...)
					cur = parent[cur]
				}
				return true
			}
		}
		color[s] = black
		return false
	}

	for _, k := range keys {
		if color[k] == white {
			if visit(k) {
				return cyclePath
			}
		}
	}
	return nil
}
