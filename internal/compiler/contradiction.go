package compiler

import (
	"fmt"

	"github.com/mdl-run/mdl/internal/mdlerrors"
	"github.com/mdl-run/mdl/internal/wildcard"
)

// CheckAxisContradictions rejects a CLI invocation batch where a global axis
// and a per-invocation axis both bind the same axis to different literal
// (non-pattern) values (spec §4.4 step 1: "a contradiction between global
// and per-invocation on the same axis is fatal"). It must run before
// wildcard.Expand, since that stage's per-invocation-wins merge would
// otherwise silently resolve the very conflict this function exists to
// catch.
func CheckAxisContradictions(globalAxes map[string]string, invocations []wildcard.Invocation) error {
	for _, inv := range invocations {
		for axis, v := range inv.Axes {
			if wildcard.IsPattern(v) {
				continue
			}
			gv, ok := globalAxes[axis]
			if !ok || wildcard.IsPattern(gv) {
				continue
			}
			if gv != v {
				return mdlerrors.New(
					mdlerrors.CodeConflictingDefinitions,
					fmt.Sprintf("axis %q is %q globally but %q for action %q", axis, gv, v, inv.Action),
					inv.Action,
				)
			}
		}
	}
	return nil
}
