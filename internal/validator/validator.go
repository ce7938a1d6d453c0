// Package validator implements the validator (spec §4.6): static checks run
// after compilation and before execution, over the unified ActionGraph plus
// the source corpus it was compiled from.
package validator

import (
	"fmt"
	"os"
	"sort"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/expansion"
	"github.com/mdl-run/mdl/internal/graph"
	"github.com/mdl-run/mdl/internal/mdlerrors"
)

// Validate runs every check in spec §4.6 over g (already pruned to the
// retained set) against the corpus it was compiled from. It returns every
// failure found rather than stopping at the first, each tagged with the
// offending ActionKey and source location.
func Validate(c *corpus.Corpus, g *graph.Graph) []*mdlerrors.Error {
	var errs []*mdlerrors.Error

	for _, s := range g.SortedKeys() {
		node := g.Nodes[s]
		action, ok := c.Actions[node.Key.Action]
		if !ok {
			errs = append(errs, mdlerrors.New(mdlerrors.CodeUnknownGoal,
				fmt.Sprintf("retained action %q has no definition", node.Key.Action), s))
			continue
		}

		if node.Version == nil {
			code := mdlerrors.CodeNoVersionSelected
			msg := "no version's conditions matched the resolved context"
			if node.VersionAmbiguous {
				msg = "more than one version's conditions matched the resolved context"
			}
			errs = append(errs, mdlerrors.New(code, msg, s).WithLocation(action.Source.String()))
			continue
		}

		errs = append(errs, validateVersionAxes(c, node, action)...)
		errs = append(errs, validateReferences(c, node)...)
	}

	errs = append(errs, validateDependencyTargetsKnown(c)...)

	return errs
}

// validateVersionAxes checks that every axis the selected version's
// conditions mention is declared, and that its value is either supplied or
// defaulted in the node's full context (spec §4.6: "Every axis name
// mentioned in any retained version's conditions is a declared axis with a
// value either supplied or defaulted").
func validateVersionAxes(c *corpus.Corpus, node *graph.Node, action corpus.Action) []*mdlerrors.Error {
	var errs []*mdlerrors.Error
	for _, cond := range node.Version.Conditions {
		if cond.IsPlatform() {
			continue
		}
		if _, ok := c.Axes[cond.Axis]; !ok {
			errs = append(errs, mdlerrors.New(mdlerrors.CodeUnknownAxis,
				fmt.Sprintf("version of %q conditions on undeclared axis %q", action.Name, cond.Axis), node.Key.String()).
				WithLocation(node.Version.Source.String()))
			continue
		}
		if _, ok := node.Key.Context.Value(cond.Axis); !ok {
			errs = append(errs, mdlerrors.New(mdlerrors.CodeUnknownAxis,
				fmt.Sprintf("axis %q has neither a supplied nor a defaulted value", cond.Axis), node.Key.String()).
				WithLocation(node.Version.Source.String()))
		}
	}
	return errs
}

// validateReferences checks every expansion reference in the selected
// version's script and return declarations: known action + declared return
// for strong references, declared argument/flag for those kinds, that
// array-typed arguments are never consumed where the declared return type is
// scalar (spec §4.6's type-compatibility check), and that every env
// reference names either a declared passthrough variable or a variable set
// in the current environment.
func validateReferences(c *corpus.Corpus, node *graph.Node) []*mdlerrors.Error {
	var errs []*mdlerrors.Error
	key := node.Key.String()

	check := func(text string) {
		refs, err := expansion.Parse(text)
		if err != nil {
			errs = append(errs, mdlerrors.Wrap(mdlerrors.CodeMalformedCLI, "failed to parse expansion references", key, err))
			return
		}
		for _, ref := range refs {
			switch ref.Kind {
			case expansion.KindStrong:
				if len(ref.Path) != 2 {
					continue
				}
				depAction, depReturn := ref.Path[0], ref.Path[1]
				target, ok := c.Actions[depAction]
				if !ok {
					errs = append(errs, mdlerrors.New(mdlerrors.CodeUnresolvedDependency,
						fmt.Sprintf("strong reference to unknown action %q", depAction), key))
					continue
				}
				if !anyVersionDeclaresReturn(target, depReturn) {
					errs = append(errs, mdlerrors.New(mdlerrors.CodeUnknownReturn,
						fmt.Sprintf("action %q has no version declaring return %q", depAction, depReturn), key))
				}
			case expansion.KindArgument:
				if len(ref.Path) != 1 {
					continue
				}
				def, ok := c.Arguments[ref.Path[0]]
				if !ok {
					errs = append(errs, mdlerrors.New(mdlerrors.CodeUnknownArgument,
						fmt.Sprintf("reference to undeclared argument %q", ref.Path[0]), key))
					continue
				}
				if def.Array {
					errs = append(errs, mdlerrors.New(mdlerrors.CodeUnknownArgument,
						fmt.Sprintf("array argument %q interpolated where a scalar is required; pass it through the sidecar context file instead", ref.Path[0]), key))
				}
			case expansion.KindFlag:
				if len(ref.Path) != 1 {
					continue
				}
				if _, ok := c.Flags[ref.Path[0]]; !ok {
					errs = append(errs, mdlerrors.New(mdlerrors.CodeUnknownFlag,
						fmt.Sprintf("reference to undeclared flag %q", ref.Path[0]), key))
				}
			case expansion.KindEnv:
				if len(ref.Path) != 1 {
					continue
				}
				name := ref.Path[0]
				if isPassthroughEnv(c, name) {
					continue
				}
				if _, ok := os.LookupEnv(name); ok {
					continue
				}
				errs = append(errs, mdlerrors.New(mdlerrors.CodeUnknownEnv,
					fmt.Sprintf("reference to env variable %q that is neither a declared passthrough variable nor set in the current environment", name), key))
			}
		}
	}

	check(node.Version.Script)
	for _, ret := range node.Version.Returns {
		check(ret.Value)
	}
	loc := node.Version.Source.String()
	for i, e := range errs {
		errs[i] = e.WithLocation(loc)
	}
	return errs
}

func isPassthroughEnv(c *corpus.Corpus, name string) bool {
	for _, n := range c.PassthroughEnv {
		if n == name {
			return true
		}
	}
	return false
}

func anyVersionDeclaresReturn(a corpus.Action, name string) bool {
	for _, v := range a.Versions {
		if _, ok := v.Returns[name]; ok {
			return true
		}
	}
	return false
}

// validateDependencyTargetsKnown scans the whole corpus (not just the
// retained graph) for explicit strong dependency declarations naming an
// unknown action. This runs independent of any particular invocation because
// an undeclared strong target is a corpus defect regardless of which goals
// happen to reach it.
func validateDependencyTargetsKnown(c *corpus.Corpus) []*mdlerrors.Error {
	var errs []*mdlerrors.Error
	names := make([]string, 0, len(c.Actions))
	for name := range c.Actions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		action := c.Actions[name]
		for _, v := range action.Versions {
			for _, dep := range v.Dependencies {
				if dep.Kind != corpus.DependencyStrong {
					continue
				}
				if _, ok := c.Actions[dep.Target]; !ok {
					errs = append(errs, mdlerrors.New(mdlerrors.CodeUnresolvedDependency,
						fmt.Sprintf("action %q declares a strong dependency on unknown action %q", name, dep.Target), name).
						WithLocation(v.Source.String()))
				}
			}
		}
	}
	return errs
}
