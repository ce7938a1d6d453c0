package exec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/ctxkey"
	"github.com/mdl-run/mdl/internal/graph"
	"github.com/mdl-run/mdl/internal/langruntime"
	"github.com/mdl-run/mdl/internal/rundir"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func newRoot(t *testing.T) rundir.Root {
	t.Helper()
	r := rundir.Root{Path: filepath.Join(t.TempDir(), "run")}
	return r
}

func baseOptions(t *testing.T, r rundir.Root) Options {
	t.Helper()
	return Options{
		Run:      r,
		Sys:      map[string]string{"project-root": t.TempDir()},
		Registry: langruntime.NewRegistry(),
		Clock:    SystemClock,
	}
}

func singleNodeGraph(name, script string) (*corpus.Corpus, *graph.Graph) {
	version := corpus.Version{Script: script}
	c := &corpus.Corpus{Actions: map[string]corpus.Action{
		name: {Name: name, Versions: []corpus.Version{version}},
	}}
	g := graph.New()
	key := ctxkey.NewActionKey(name, ctxkey.Empty)
	g.Goals = []ctxkey.ActionKey{key}
	node := g.Upsert(key)
	node.Version = &version
	return c, g
}

func TestRunSingleActionSuccess(t *testing.T) {
	requireBash(t)
	c, g := singleNodeGraph("build", "ret \"artifact:string=hello\"\n")

	r := newRoot(t)
	res, err := Run(context.Background(), c, g, baseOptions(t, r))
	require.NoError(t, err)

	require.True(t, res.Success)
	require.Empty(t, res.Failed)

	key := ctxkey.NewActionKey("build", ctxkey.Empty).String()
	require.Contains(t, res.Outputs, key)
	assert.Equal(t, "hello", res.Outputs[key]["artifact"].Value)

	meta, err := rundir.ReadMeta(r.NodeDir(ctxkey.ActionKey{}, key))
	require.NoError(t, err)
	assert.True(t, meta.Success)
	assert.Equal(t, 0, meta.ExitCode)
}

func TestRunSingleActionTypedReturnsEncodeAsJSONNumberAndBool(t *testing.T) {
	requireBash(t)
	c, g := singleNodeGraph("build", "ret \"count:int=3\"\nret \"ok:bool=true\"\n")

	r := newRoot(t)
	res, err := Run(context.Background(), c, g, baseOptions(t, r))
	require.NoError(t, err)
	require.True(t, res.Success)

	key := ctxkey.NewActionKey("build", ctxkey.Empty).String()
	require.Contains(t, res.Outputs, key)
	assert.Equal(t, float64(3), res.Outputs[key]["count"].Value)
	assert.Equal(t, true, res.Outputs[key]["ok"].Value)
}

func TestRunStrongChainPropagatesOutputs(t *testing.T) {
	requireBash(t)

	compileVersion := corpus.Version{Script: "ret \"bin:string=/tmp/out\"\n"}
	deployVersion := corpus.Version{
		Script: "echo \"${action.compile.bin}\" > seen.txt\n",
		Dependencies: []corpus.Dependency{
			{Target: "compile", Kind: corpus.DependencyStrong},
		},
	}
	c := &corpus.Corpus{Actions: map[string]corpus.Action{
		"compile": {Name: "compile", Versions: []corpus.Version{compileVersion}},
		"deploy":  {Name: "deploy", Versions: []corpus.Version{deployVersion}},
	}}

	g := graph.New()
	compileKey := ctxkey.NewActionKey("compile", ctxkey.Empty)
	deployKey := ctxkey.NewActionKey("deploy", ctxkey.Empty)
	g.Goals = []ctxkey.ActionKey{deployKey}

	compileNode := g.Upsert(compileKey)
	compileNode.Version = &compileVersion
	deployNode := g.Upsert(deployKey)
	deployNode.Version = &deployVersion
	deployNode.AddEdge(graph.Edge{Target: compileKey, Kind: graph.EdgeStrong})

	r := newRoot(t)
	res, err := Run(context.Background(), c, g, baseOptions(t, r))
	require.NoError(t, err)
	require.True(t, res.Success)

	deployDir := r.NodeDir(deployKey, deployKey.String())
	data, err := os.ReadFile(filepath.Join(deployDir, "seen.txt"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out\n", string(data))
}

func TestRunScriptNonzeroExitFails(t *testing.T) {
	requireBash(t)
	c, g := singleNodeGraph("broken", "exit 7\n")

	r := newRoot(t)
	res, err := Run(context.Background(), c, g, baseOptions(t, r))
	require.NoError(t, err)

	assert.False(t, res.Success)
	key := ctxkey.NewActionKey("broken", ctxkey.Empty).String()
	assert.Contains(t, res.Failed, key)

	meta, err := rundir.ReadMeta(r.NodeDir(ctxkey.ActionKey{}, key))
	require.NoError(t, err)
	assert.False(t, meta.Success)
	assert.Equal(t, 7, meta.ExitCode)
}

func TestRunBadArtifactFails(t *testing.T) {
	requireBash(t)
	version := corpus.Version{
		Script:  "ret \"out:file=missing/path\"\n",
		Returns: map[string]corpus.ReturnDecl{"out": {Name: "out", Type: corpus.ArgFile, Value: "missing/path"}},
	}
	c := &corpus.Corpus{Actions: map[string]corpus.Action{
		"build": {Name: "build", Versions: []corpus.Version{version}},
	}}
	g := graph.New()
	key := ctxkey.NewActionKey("build", ctxkey.Empty)
	g.Goals = []ctxkey.ActionKey{key}
	node := g.Upsert(key)
	node.Version = &version

	r := newRoot(t)
	res, err := Run(context.Background(), c, g, baseOptions(t, r))
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Failed, key.String())
}

func TestRunDryRunSkipsSubprocess(t *testing.T) {
	c, g := singleNodeGraph("build", "exit 99\n")

	r := newRoot(t)
	opts := baseOptions(t, r)
	opts.DryRun = true

	res, err := Run(context.Background(), c, g, opts)
	require.NoError(t, err)
	require.True(t, res.Success)

	key := ctxkey.NewActionKey("build", ctxkey.Empty).String()
	nodeDir := r.NodeDir(ctxkey.ActionKey{}, key)
	_, statErr := os.Stat(filepath.Join(nodeDir, "script.sh"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunContinueRestoresPriorSuccess(t *testing.T) {
	requireBash(t)
	c, g := singleNodeGraph("build", "ret \"artifact:string=hello\"\n")

	firstRoot := newRoot(t)
	first, err := Run(context.Background(), c, g, baseOptions(t, firstRoot))
	require.NoError(t, err)
	require.True(t, first.Success)

	// Rewrite the script so a second, non-continuing run would fail, proving
	// restoration short-circuited execution rather than coincidentally
	// succeeding again.
	brokenVersion := corpus.Version{Script: "exit 1\n"}
	c2, g2 := singleNodeGraph("build", brokenVersion.Script)

	secondRoot := newRoot(t)
	opts := baseOptions(t, secondRoot)
	opts.PreviousRun = firstRoot.Path

	res, err := Run(context.Background(), c2, g2, opts)
	require.NoError(t, err)
	require.True(t, res.Success)

	key := ctxkey.NewActionKey("build", ctxkey.Empty).String()
	meta, err := rundir.ReadMeta(secondRoot.NodeDir(ctxkey.ActionKey{}, key))
	require.NoError(t, err)
	assert.True(t, meta.Restored)
	assert.Equal(t, "hello", res.Outputs[key]["artifact"].Value)
}

func TestRunSequentialCapsParallelismToOne(t *testing.T) {
	requireBash(t)
	c, g := singleNodeGraph("build", "ret \"artifact:string=hello\"\n")

	r := newRoot(t)
	opts := baseOptions(t, r)
	opts.Sequential = true
	opts.Parallelism = 8

	res, err := Run(context.Background(), c, g, opts)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestRunLevelFailureHaltsLaterLevelsButFinishesSiblings(t *testing.T) {
	requireBash(t)

	failVersion := corpus.Version{Script: "exit 1\n"}
	slowVersion := corpus.Version{Script: "sleep 0.2\nret \"ok:string=done\"\n"}
	downstreamVersion := corpus.Version{
		Script: "ret \"ok:string=should-not-run\"\n",
		Dependencies: []corpus.Dependency{
			{Target: "slow", Kind: corpus.DependencyStrong},
		},
	}

	c := &corpus.Corpus{Actions: map[string]corpus.Action{
		"fail":       {Name: "fail", Versions: []corpus.Version{failVersion}},
		"slow":       {Name: "slow", Versions: []corpus.Version{slowVersion}},
		"downstream": {Name: "downstream", Versions: []corpus.Version{downstreamVersion}},
	}}

	g := graph.New()
	failKey := ctxkey.NewActionKey("fail", ctxkey.Empty)
	slowKey := ctxkey.NewActionKey("slow", ctxkey.Empty)
	downstreamKey := ctxkey.NewActionKey("downstream", ctxkey.Empty)
	g.Goals = []ctxkey.ActionKey{failKey, downstreamKey}

	failNode := g.Upsert(failKey)
	failNode.Version = &failVersion
	slowNode := g.Upsert(slowKey)
	slowNode.Version = &slowVersion
	downstreamNode := g.Upsert(downstreamKey)
	downstreamNode.Version = &downstreamVersion
	downstreamNode.AddEdge(graph.Edge{Target: slowKey, Kind: graph.EdgeStrong})

	r := newRoot(t)
	res, err := Run(context.Background(), c, g, baseOptions(t, r))
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Failed, failKey.String())

	// "slow" shares fail's level (both have indegree 0) and must still
	// finish; "downstream" is a later level and must never be dispatched.
	slowDir := r.NodeDir(slowKey, slowKey.String())
	_, err = rundir.ReadMeta(slowDir)
	require.NoError(t, err)

	downstreamDir := r.NodeDir(downstreamKey, downstreamKey.String())
	_, err = os.Stat(downstreamDir)
	assert.True(t, os.IsNotExist(err))
}

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestRunMetaDurationUsesInjectedClock(t *testing.T) {
	requireBash(t)
	c, g := singleNodeGraph("build", "ret \"artifact:string=hello\"\n")

	r := newRoot(t)
	opts := baseOptions(t, r)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	opts.Clock = fixedClock{t: start}

	res, err := Run(context.Background(), c, g, opts)
	require.NoError(t, err)
	require.True(t, res.Success)

	key := ctxkey.NewActionKey("build", ctxkey.Empty).String()
	meta, err := rundir.ReadMeta(r.NodeDir(ctxkey.ActionKey{}, key))
	require.NoError(t, err)
	assert.Equal(t, float64(0), meta.DurationSeconds)
	assert.Equal(t, start.UTC().Format(time.RFC3339), meta.StartedAt)
}
