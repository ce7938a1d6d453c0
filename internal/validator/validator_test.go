package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/ctxkey"
	"github.com/mdl-run/mdl/internal/graph"
	"github.com/mdl-run/mdl/internal/mdlerrors"
)

func key(action string) ctxkey.ActionKey {
	return ctxkey.NewActionKey(action, ctxkey.Empty)
}

func TestValidateFlagsNoVersionSelected(t *testing.T) {
	c := &corpus.Corpus{Actions: map[string]corpus.Action{
		"build": {Name: "build"},
	}}
	g := graph.New()
	g.Upsert(key("build"))

	errs := Validate(c, g)
	require.Len(t, errs, 1)
	assert.Equal(t, mdlerrors.CodeNoVersionSelected, errs[0].Code)
}

func TestValidateCatchesUnknownStrongReturnReference(t *testing.T) {
	compile := corpus.Version{Script: "cc", Returns: map[string]corpus.ReturnDecl{
		"binary": {Type: corpus.ArgFile, Value: "out"},
	}}
	build := corpus.Version{Script: "link ${action.compile.missing}"}

	c := &corpus.Corpus{Actions: map[string]corpus.Action{
		"compile": {Name: "compile", Versions: []corpus.Version{compile}},
		"build":   {Name: "build", Versions: []corpus.Version{build}},
	}}

	g := graph.New()
	bn := g.Upsert(key("build"))
	bn.Version = &build
	g.Upsert(key("compile")).Version = &compile

	errs := Validate(c, g)
	require.Len(t, errs, 1)
	assert.Equal(t, mdlerrors.CodeUnknownReturn, errs[0].Code)
}

func TestValidatePassesCleanGraph(t *testing.T) {
	compile := corpus.Version{Script: "cc", Returns: map[string]corpus.ReturnDecl{
		"binary": {Type: corpus.ArgFile, Value: "out"},
	}}
	build := corpus.Version{Script: "link ${action.compile.binary}"}

	c := &corpus.Corpus{Actions: map[string]corpus.Action{
		"compile": {Name: "compile", Versions: []corpus.Version{compile}},
		"build":   {Name: "build", Versions: []corpus.Version{build}},
	}}

	g := graph.New()
	g.Upsert(key("build")).Version = &build
	g.Upsert(key("compile")).Version = &compile

	errs := Validate(c, g)
	assert.Empty(t, errs)
}

func TestValidateRejectsArrayArgumentInterpolation(t *testing.T) {
	v := corpus.Version{Script: "build ${arg.files}"}
	c := &corpus.Corpus{
		Arguments: map[string]corpus.Argument{
			"files": {Type: corpus.ArgFile, Array: true},
		},
		Actions: map[string]corpus.Action{
			"build": {Name: "build", Versions: []corpus.Version{v}},
		},
	}
	g := graph.New()
	g.Upsert(key("build")).Version = &v

	errs := Validate(c, g)
	require.Len(t, errs, 1)
	assert.Equal(t, mdlerrors.CodeUnknownArgument, errs[0].Code)
}

func TestValidateCatchesUnknownAxisOnCondition(t *testing.T) {
	v := corpus.Version{Conditions: []corpus.Condition{{Axis: "ghost", Value: "x"}}, Script: "run"}
	c := &corpus.Corpus{
		Axes: map[string]corpus.Axis{},
		Actions: map[string]corpus.Action{
			"build": {Name: "build", Versions: []corpus.Version{v}},
		},
	}
	g := graph.New()
	g.Upsert(key("build")).Version = &v

	errs := Validate(c, g)
	require.Len(t, errs, 1)
	assert.Equal(t, mdlerrors.CodeUnknownAxis, errs[0].Code)
}

func TestValidateCatchesUnknownEnvReference(t *testing.T) {
	v := corpus.Version{Script: "deploy ${env.DEPLOY_TOKEN}"}
	c := &corpus.Corpus{
		Actions: map[string]corpus.Action{
			"build": {Name: "build", Versions: []corpus.Version{v}},
		},
	}
	g := graph.New()
	g.Upsert(key("build")).Version = &v

	errs := Validate(c, g)
	require.Len(t, errs, 1)
	assert.Equal(t, mdlerrors.CodeUnknownEnv, errs[0].Code)
}

func TestValidateAllowsDeclaredPassthroughEnvReference(t *testing.T) {
	v := corpus.Version{Script: "deploy ${env.DEPLOY_TOKEN}"}
	c := &corpus.Corpus{
		PassthroughEnv: []string{"DEPLOY_TOKEN"},
		Actions: map[string]corpus.Action{
			"build": {Name: "build", Versions: []corpus.Version{v}},
		},
	}
	g := graph.New()
	g.Upsert(key("build")).Version = &v

	errs := Validate(c, g)
	assert.Empty(t, errs)
}

func TestValidateAllowsEnvReferenceSatisfiedByCurrentEnvironment(t *testing.T) {
	t.Setenv("MDL_TEST_PASSTHROUGH_VAR", "1")
	v := corpus.Version{Script: "deploy ${env.MDL_TEST_PASSTHROUGH_VAR}"}
	c := &corpus.Corpus{
		Actions: map[string]corpus.Action{
			"build": {Name: "build", Versions: []corpus.Version{v}},
		},
	}
	g := graph.New()
	g.Upsert(key("build")).Version = &v

	errs := Validate(c, g)
	assert.Empty(t, errs)
}

func TestValidateDependencyTargetsKnownCorpusWide(t *testing.T) {
	v := corpus.Version{Script: "run", Dependencies: []corpus.Dependency{{Target: "ghost", Kind: corpus.DependencyStrong}}}
	c := &corpus.Corpus{
		Actions: map[string]corpus.Action{
			"build": {Name: "build", Versions: []corpus.Version{v}},
		},
	}
	g := graph.New() // nothing retained; this check is corpus-wide regardless

	errs := Validate(c, g)
	require.Len(t, errs, 1)
	assert.Equal(t, mdlerrors.CodeUnresolvedDependency, errs[0].Code)
}
