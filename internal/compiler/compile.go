package compiler

import (
	"fmt"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/ctxkey"
	"github.com/mdl-run/mdl/internal/expansion"
	"github.com/mdl-run/mdl/internal/graph"
	"github.com/mdl-run/mdl/internal/mdlerrors"
)

// Compile turns a definition corpus plus a resolved invocation batch (post
// wildcard.Expand, so every Invocation.Axes value is already literal) into a
// single unified ActionGraph (spec §4.4). Each invocation is first built as
// its own local subgraph rooted at its goal action, then merged into the
// shared graph by unification.
func Compile(c *corpus.Corpus, in Input) (*graph.Graph, error) {
	g := graph.New()
	var goals []ctxkey.ActionKey
	seenGoal := map[string]bool{}

	for _, inv := range in.Invocations {
		if _, ok := c.Actions[inv.Action]; !ok {
			return nil, mdlerrors.New(mdlerrors.CodeUnknownGoal, fmt.Sprintf("unknown goal action %q", inv.Action), inv.Action)
		}

		ic := invocationContext{
			Axes:     fillAxisDefaults(c, inv.Axes),
			Args:     mergeArgs(c, in.GlobalArgs, inv.Args),
			Flags:    mergeFlags(c, in.GlobalFlags, inv.Flags),
			Sys:      in.Sys,
			Env:      in.Env,
			Platform: in.Platform,
		}

		local := map[string]*graph.Node{}
		goalKey, err := buildAction(c, inv.Action, ic, local, map[string]bool{})
		if err != nil {
			return nil, err
		}

		if err := unifyAll(g, local); err != nil {
			return nil, err
		}

		ks := goalKey.String()
		if !seenGoal[ks] {
			seenGoal[ks] = true
			goals = append(goals, goalKey)
		}
	}

	g.Goals = goals
	g.BuildReverse()
	return g, nil
}

// buildAction computes name's ActionKey under ic and, if it hasn't already
// been visited within this invocation's traversal, selects its version and
// recurses into every dependency it declares or references (spec §4.4 steps
// 4-7). name is assumed to exist in c.Actions; callers check existence
// before recursing so that a reference to an unknown action never recurses
// into nothing.
func buildAction(c *corpus.Corpus, name string, ic invocationContext, local map[string]*graph.Node, visiting map[string]bool) (ctxkey.ActionKey, error) {
	action := c.Actions[name]

	requiredAxes := corpus.RequiredAxes(action.Versions)
	reduced := ctxkey.New(ic.Axes).ReduceToAxes(requiredAxes)
	key := ctxkey.NewActionKey(name, reduced)
	ks := key.String()

	if visiting[ks] {
		return key, nil
	}
	visiting[ks] = true

	node := &graph.Node{Key: key, Args: ic.Args, Flags: ic.Flags}
	local[ks] = node

	var matches []corpus.Version
	for _, v := range action.Versions {
		if v.Matches(ic.Axes, ic.Platform) {
			matches = append(matches, v)
		}
	}
	switch len(matches) {
	case 1:
		v := matches[0]
		node.Version = &v
	case 0:
		// No version selected; validator (spec §4.6) flags this for retained
		// nodes. No dependencies can be discovered without a script body.
		return key, nil
	default:
		node.VersionAmbiguous = true
		return key, nil
	}

	for _, dep := range node.Version.Dependencies {
		if _, ok := c.Actions[dep.Target]; !ok {
			// Unknown dependency target: no node to build an edge to. The
			// validator reports this as a corpus-level defect independent of
			// any particular invocation.
			continue
		}
		targetKey, err := buildAction(c, dep.Target, ic, local, visiting)
		if err != nil {
			return ctxkey.ActionKey{}, err
		}

		edge := graph.Edge{Target: targetKey, Kind: edgeKindOf(dep.Kind)}
		if dep.Kind == corpus.DependencySoft && dep.Retainer != "" {
			if _, ok := c.Actions[dep.Retainer]; ok {
				retainerKey, err := buildAction(c, dep.Retainer, ic, local, visiting)
				if err != nil {
					return ctxkey.ActionKey{}, err
				}
				edge.Retainer = retainerKey
			}
		}
		node.AddEdge(edge)
	}

	refs, err := collectReferences(node.Version)
	if err != nil {
		return ctxkey.ActionKey{}, err
	}
	for _, ref := range refs {
		var kind graph.EdgeKind
		switch ref.Kind {
		case expansion.KindStrong:
			kind = graph.EdgeStrong
		case expansion.KindWeak:
			kind = graph.EdgeWeak
		default:
			continue // KindRetained references an existing soft dependency; it creates no edge of its own.
		}
		if len(ref.Path) < 1 {
			continue
		}
		depName := ref.Path[0]
		if _, ok := c.Actions[depName]; !ok {
			// A strong reference to an unknown action is a validator-level
			// defect; a weak one is simply never satisfied, so pruning drops
			// it once no node exists for it to keep (spec §7 testable
			// property: "weak edge to a missing action is silently dropped").
			continue
		}
		depKey, err := buildAction(c, depName, ic, local, visiting)
		if err != nil {
			return ctxkey.ActionKey{}, err
		}
		node.AddEdge(graph.Edge{Target: depKey, Kind: kind})
	}

	return key, nil
}

func edgeKindOf(k corpus.DependencyKind) graph.EdgeKind {
	switch k {
	case corpus.DependencyWeak:
		return graph.EdgeWeak
	case corpus.DependencySoft:
		return graph.EdgeSoft
	default:
		return graph.EdgeStrong
	}
}

func collectReferences(v *corpus.Version) ([]expansion.Reference, error) {
	refs, err := expansion.Parse(v.Script)
	if err != nil {
		return nil, err
	}
	for _, ret := range v.Returns {
		more, err := expansion.Parse(ret.Value)
		if err != nil {
			return nil, err
		}
		refs = append(refs, more...)
	}
	return refs, nil
}
