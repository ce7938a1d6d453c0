// Package graph implements the graph algebra (spec §4.5) over the
// ActionNode/ActionGraph data model (spec §3): edge classification,
// pruning, topological sort, and cycle detection.
package graph

import (
	"fmt"
	"sort"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/ctxkey"
	"github.com/mdl-run/mdl/internal/expansion"
)

// EdgeKind is the dependency classification tagged variant (spec §9):
// pruning and scheduling pattern-match on this, never on ad-hoc booleans.
type EdgeKind int

const (
	EdgeStrong EdgeKind = iota
	EdgeWeak
	EdgeSoft
)

// Edge is a single dependency edge: (target, classification, optional
// retainer). Retainer is only meaningful when Kind == EdgeSoft.
type Edge struct {
	Target   ctxkey.ActionKey
	Kind     EdgeKind
	Retainer ctxkey.ActionKey
}

func (e Edge) dedupeKey() string {
	base := fmt.Sprintf("%d|%s", e.Kind, e.Target.String())
	if e.Kind == EdgeSoft {
		base += "|" + e.Retainer.String()
	}
	return base
}

// Node is a vertex in the ActionGraph: an ActionKey, its selected version
// (nil if none or multiple versions match), resolved args/flags, and its
// dependency edges. Dependents are derived, not stored on Node, so
// unification never has to keep two copies in sync (spec §4.4 step 8 is
// implemented by Graph.BuildReverse instead).
type Node struct {
	Key              ctxkey.ActionKey
	Version          *corpus.Version
	VersionAmbiguous bool // true when more than one version's conditions matched
	Args             map[string]expansion.ArgValue
	Flags            map[string]bool
	Edges            []Edge
}

// addEdge merges e into n.Edges as a set union (spec §4.4 unification:
// "merge edge sets as set unions").
func (n *Node) addEdge(e Edge) {
	key := e.dedupeKey()
	for _, existing := range n.Edges {
		if existing.dedupeKey() == key {
			return
		}
	}
	n.Edges = append(n.Edges, e)
}

// AddEdge is the exported form of addEdge, used by the compiler package to
// build per-invocation graphs and by unification to merge edge sets across
// invocations.
func (n *Node) AddEdge(e Edge) {
	n.addEdge(e)
}

// SortedEdges returns a copy of n.Edges in a deterministic order, useful for
// tests and diagnostics.
func (n *Node) SortedEdges() []Edge {
	out := append([]Edge(nil), n.Edges...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Target.String() < out[j].Target.String()
	})
	return out
}

// Graph is the ActionKey -> ActionNode mapping plus the set of goal keys
// (spec §3).
type Graph struct {
	Nodes map[string]*Node // keyed by ActionKey.String()
	Goals []ctxkey.ActionKey

	dependents map[string][]string // derived; key.String() -> dependent key.String()s
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{Nodes: map[string]*Node{}}
}

// Get returns the node for key, if present.
func (g *Graph) Get(key ctxkey.ActionKey) (*Node, bool) {
	n, ok := g.Nodes[key.String()]
	return n, ok
}

// Upsert returns the existing node for key, creating an empty one if absent.
func (g *Graph) Upsert(key ctxkey.ActionKey) *Node {
	s := key.String()
	if n, ok := g.Nodes[s]; ok {
		return n
	}
	n := &Node{Key: key, Args: map[string]expansion.ArgValue{}, Flags: map[string]bool{}}
	g.Nodes[s] = n
	return n
}

// BuildReverse (re)computes the dependents index from the current edge set
// (spec §4.4 step 8: "Populate reverse edges (dependents) symmetrically").
func (g *Graph) BuildReverse() {
	g.dependents = map[string][]string{}
	for key, n := range g.Nodes {
		for _, e := range n.Edges {
			t := e.Target.String()
			g.dependents[t] = append(g.dependents[t], key)
		}
	}
	for k := range g.dependents {
		sort.Strings(g.dependents[k])
	}
}

// Dependents returns the keys of nodes that depend on key, via any edge
// classification. BuildReverse must have been called first.
func (g *Graph) Dependents(key ctxkey.ActionKey) []string {
	return g.dependents[key.String()]
}

// SortedKeys returns every node key in the graph, alphabetically sorted.
func (g *Graph) SortedKeys() []string {
	keys := make([]string, 0, len(g.Nodes))
	for k := range g.Nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
