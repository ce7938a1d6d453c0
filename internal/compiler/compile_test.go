package compiler

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/ctxkey"
	"github.com/mdl-run/mdl/internal/graph"
	"github.com/mdl-run/mdl/internal/mdlerrors"
)

func testCorpus() *corpus.Corpus {
	return &corpus.Corpus{
		Axes: map[string]corpus.Axis{
			"mode": {Name: "mode", Values: []string{"dev", "prod"}, Default: "dev"},
		},
		Arguments: map[string]corpus.Argument{},
		Flags:     map[string]corpus.Flag{},
		Actions: map[string]corpus.Action{
			"compile": {
				Name: "compile",
				Versions: []corpus.Version{
					{Script: "cc -o out main.c"},
				},
			},
			"build": {
				Name: "build",
				Versions: []corpus.Version{
					{
						Conditions:   []corpus.Condition{{Axis: "mode", Value: "dev"}},
						Script:       "link --debug ${action.compile.binary}",
						Dependencies: []corpus.Dependency{{Target: "compile", Kind: corpus.DependencyStrong}},
					},
					{
						Conditions:   []corpus.Condition{{Axis: "mode", Value: "prod"}},
						Script:       "link --strip ${action.compile.binary}",
						Dependencies: []corpus.Dependency{{Target: "compile", Kind: corpus.DependencyStrong}},
					},
				},
			},
			"lint": {
				Name: "lint",
				Versions: []corpus.Version{
					{Script: "golangci-lint run"},
				},
			},
			"test": {
				Name: "test",
				Versions: []corpus.Version{
					{
						Script:       "go test ./...",
						Dependencies: []corpus.Dependency{{Target: "lint", Kind: corpus.DependencyWeak}},
					},
				},
			},
			"deploy": {
				Name: "deploy",
				Versions: []corpus.Version{
					{
						Script:       "scp out remote:",
						Dependencies: []corpus.Dependency{{Target: "changelog", Kind: corpus.DependencySoft, Retainer: "has-release-notes"}},
					},
				},
			},
			"changelog": {
				Name: "changelog",
				Versions: []corpus.Version{
					{Script: "git log > CHANGELOG"},
				},
			},
			"has-release-notes": {
				Name: "has-release-notes",
				Versions: []corpus.Version{
					{Script: "test -f RELEASE_NOTES.md"},
				},
			},
		},
	}
}

func baseInput(invocations ...Invocation) Input {
	return Input{
		Invocations: invocations,
		Sys:         map[string]string{},
		Env:         map[string]string{},
		Platform:    "linux",
	}
}

func TestCompileStrongChainWithImplicitEdge(t *testing.T) {
	c := testCorpus()
	g, err := Compile(c, baseInput(Invocation{Action: "build", Axes: map[string]string{"mode": "dev"}}))
	require.NoError(t, err)

	buildKey := ctxkey.NewActionKey("build", ctxkey.New(map[string]string{"mode": "dev"}))
	node, ok := g.Get(buildKey)
	require.True(t, ok)
	require.NotNil(t, node.Version)
	assert.Equal(t, "link --debug ${action.compile.binary}", node.Version.Script)

	compileKey := ctxkey.NewActionKey("compile", ctxkey.Empty)
	_, ok = g.Get(compileKey)
	require.True(t, ok)

	var kinds []graph.EdgeKind
	for _, e := range node.SortedEdges() {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, graph.EdgeStrong)
}

func TestCompileContextReductionSharesCompileNode(t *testing.T) {
	c := testCorpus()
	g, err := Compile(c, baseInput(
		Invocation{Action: "build", Axes: map[string]string{"mode": "dev"}},
		Invocation{Action: "build", Axes: map[string]string{"mode": "prod"}},
	))
	require.NoError(t, err)

	compileCount := 0
	for k := range g.Nodes {
		if parsed, ok := ctxkey.Parse(k); ok && parsed.Action == "compile" {
			compileCount++
		}
	}
	assert.Equal(t, 1, compileCount, "both builds should share the single context-free compile node")

	var goalLabels []string
	for _, goal := range g.Goals {
		goalLabels = append(goalLabels, goal.String())
	}
	sort.Strings(goalLabels)

	want := []string{"mode:dev#build", "mode:prod#build"}
	if diff := cmp.Diff(want, goalLabels); diff != "" {
		t.Errorf("goal labels mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileWeakDependencyEdge(t *testing.T) {
	c := testCorpus()
	g, err := Compile(c, baseInput(Invocation{Action: "test", Axes: map[string]string{}}))
	require.NoError(t, err)

	testKey := ctxkey.NewActionKey("test", ctxkey.Empty)
	node, ok := g.Get(testKey)
	require.True(t, ok)
	require.Len(t, node.Edges, 1)
	assert.Equal(t, graph.EdgeWeak, node.Edges[0].Kind)
}

func TestCompileSoftDependencyCarriesRetainer(t *testing.T) {
	c := testCorpus()
	g, err := Compile(c, baseInput(Invocation{Action: "deploy", Axes: map[string]string{}}))
	require.NoError(t, err)

	deployKey := ctxkey.NewActionKey("deploy", ctxkey.Empty)
	node, ok := g.Get(deployKey)
	require.True(t, ok)
	require.Len(t, node.Edges, 1)
	edge := node.Edges[0]
	assert.Equal(t, graph.EdgeSoft, edge.Kind)
	assert.Equal(t, "has-release-notes", edge.Retainer.Action)

	_, hasRetainer := g.Get(edge.Retainer)
	assert.True(t, hasRetainer, "retainer action must itself be compiled into the graph")
}

func TestCompileUnknownGoalErrors(t *testing.T) {
	c := testCorpus()
	_, err := Compile(c, baseInput(Invocation{Action: "nonexistent"}))
	require.Error(t, err)
	assert.True(t, mdlerrors.HasCode(err, mdlerrors.CodeUnknownGoal))
}

func TestCompileFillsAxisDefault(t *testing.T) {
	c := testCorpus()
	g, err := Compile(c, baseInput(Invocation{Action: "build", Axes: map[string]string{}}))
	require.NoError(t, err)

	devKey := ctxkey.NewActionKey("build", ctxkey.New(map[string]string{"mode": "dev"}))
	_, ok := g.Get(devKey)
	assert.True(t, ok, "mode axis default should have been filled in")
}

func TestCompileDropsUnknownWeakTargetSilently(t *testing.T) {
	c := testCorpus()
	action := c.Actions["test"]
	action.Versions[0].Dependencies = append(action.Versions[0].Dependencies, corpus.Dependency{Target: "ghost", Kind: corpus.DependencyWeak})
	c.Actions["test"] = action

	g, err := Compile(c, baseInput(Invocation{Action: "test"}))
	require.NoError(t, err)

	testKey := ctxkey.NewActionKey("test", ctxkey.Empty)
	node, ok := g.Get(testKey)
	require.True(t, ok)
	for _, e := range node.Edges {
		assert.NotEqual(t, "ghost", e.Target.Action)
	}
}

