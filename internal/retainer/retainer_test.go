package retainer

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/ctxkey"
	"github.com/mdl-run/mdl/internal/graph"
	"github.com/mdl-run/mdl/internal/langruntime"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

// buildPending wires a minimal graph with one goal soft-depending on a
// target, with the soft edge guarded by a named retainer, then runs Phase1
// to get the PendingState Run() consumes.
func buildPending(t *testing.T, retainerScript string) (*corpus.Corpus, *graph.Graph, *graph.PendingState) {
	t.Helper()

	goalVersion := corpus.Version{Script: "true", Dependencies: []corpus.Dependency{
		{Target: "changelog", Kind: corpus.DependencySoft, Retainer: "has-notes"},
	}}
	changelogVersion := corpus.Version{Script: "true"}
	retainerVersion := corpus.Version{Script: retainerScript}

	c := &corpus.Corpus{Actions: map[string]corpus.Action{
		"deploy":    {Name: "deploy", Versions: []corpus.Version{goalVersion}},
		"changelog": {Name: "changelog", Versions: []corpus.Version{changelogVersion}},
		"has-notes": {Name: "has-notes", Versions: []corpus.Version{retainerVersion}},
	}}

	g := graph.New()
	goalKey := ctxkey.NewActionKey("deploy", ctxkey.Empty)
	changelogKey := ctxkey.NewActionKey("changelog", ctxkey.Empty)
	retainerKey := ctxkey.NewActionKey("has-notes", ctxkey.Empty)

	g.Goals = []ctxkey.ActionKey{goalKey}
	goalNode := g.Upsert(goalKey)
	goalNode.Version = &goalVersion
	goalNode.AddEdge(graph.Edge{Target: changelogKey, Kind: graph.EdgeSoft, Retainer: retainerKey})

	changelogNode := g.Upsert(changelogKey)
	changelogNode.Version = &changelogVersion

	retainerNode := g.Upsert(retainerKey)
	retainerNode.Version = &retainerVersion

	s := graph.Phase1(g)
	require.Len(t, s.Pending, 1)
	require.Len(t, s.UniqueRetainers(), 1)

	return c, g, s
}

func TestRunRetainerVerdictTrueWhenRetainCalled(t *testing.T) {
	requireBash(t)
	c, g, s := buildPending(t, "retain\n")

	verdicts, err := Run(context.Background(), c, g, s, Options{Registry: langruntime.NewRegistry()})
	require.NoError(t, err)

	assert.True(t, verdicts[ctxkey.NewActionKey("has-notes", ctxkey.Empty).String()])
}

func TestRunRetainerVerdictFalseWhenRetainNotCalled(t *testing.T) {
	requireBash(t)
	c, g, s := buildPending(t, "true\n")

	verdicts, err := Run(context.Background(), c, g, s, Options{Registry: langruntime.NewRegistry()})
	require.NoError(t, err)

	assert.False(t, verdicts[ctxkey.NewActionKey("has-notes", ctxkey.Empty).String()])
}

func TestRunRetainerVerdictFalseOnNonzeroExit(t *testing.T) {
	requireBash(t)
	c, g, s := buildPending(t, "retain\nexit 1\n")

	verdicts, err := Run(context.Background(), c, g, s, Options{Registry: langruntime.NewRegistry()})
	require.NoError(t, err)

	assert.False(t, verdicts[ctxkey.NewActionKey("has-notes", ctxkey.Empty).String()])
}

func TestRunNoPendingReturnsEmptyVerdicts(t *testing.T) {
	c := &corpus.Corpus{Actions: map[string]corpus.Action{}}
	g := graph.New()
	s := graph.Phase1(g)

	verdicts, err := Run(context.Background(), c, g, s, Options{Registry: langruntime.NewRegistry()})
	require.NoError(t, err)
	assert.Empty(t, verdicts)
}

func TestRunRetainerMissingNodeFails(t *testing.T) {
	c := &corpus.Corpus{Actions: map[string]corpus.Action{}}
	g := graph.New()
	goalKey := ctxkey.NewActionKey("deploy", ctxkey.Empty)
	g.Goals = []ctxkey.ActionKey{goalKey}
	ghostTarget := ctxkey.NewActionKey("changelog", ctxkey.Empty)
	ghostRetainer := ctxkey.NewActionKey("has-notes", ctxkey.Empty)
	node := g.Upsert(goalKey)
	node.Version = &corpus.Version{Script: "true"}
	node.AddEdge(graph.Edge{Target: ghostTarget, Kind: graph.EdgeSoft, Retainer: ghostRetainer})

	s := graph.Phase1(g)
	require.Len(t, s.Pending, 1)

	_, err := Run(context.Background(), c, g, s, Options{Registry: langruntime.NewRegistry()})
	assert.Error(t, err)
}
