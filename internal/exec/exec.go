// Package exec implements the execution engine (spec §4.8): dispatching the
// finalized action graph wavefront by wavefront behind a bounded worker
// pool, running each node's prepared script as a subprocess, persisting its
// run directory, and restoring previously-successful nodes in --continue
// mode.
package exec

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/ctxkey"
	"github.com/mdl-run/mdl/internal/expansion"
	"github.com/mdl-run/mdl/internal/graph"
	"github.com/mdl-run/mdl/internal/langruntime"
	"github.com/mdl-run/mdl/internal/mdlerrors"
	"github.com/mdl-run/mdl/internal/ports"
	"github.com/mdl-run/mdl/internal/rundir"
)

// Clock supplies the wall-clock values the engine stamps into meta.json,
// kept as a collaborator rather than calling time.Now() directly so tests
// can run against a fixed clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

// Options configures one execution run.
type Options struct {
	Run            rundir.Root
	PreviousRun    string // prior run directory for --continue restoration; "" disables it
	Sys            map[string]string
	Registry       *langruntime.Registry
	Parallelism    int // <=0 means GOMAXPROCS-equivalent parallelism; see Run
	Sequential     bool
	DryRun         bool
	SuppressOnFail bool // replace a failed node's event-stream message with a short pointer to its meta.json (reporting policy only; dispatch halt behavior is unconditional)
	Publisher      ports.Publisher
	Clock          Clock
}

// Result is the outcome of a full execution run.
type Result struct {
	Success bool
	Outputs map[string]map[string]rundir.Output // ActionKey string -> return name -> output
	Failed  []string                             // ActionKey strings that failed
}

type nodeOutcome struct {
	outputs map[string]rundir.Output
	success bool
	err     error
}

// outputTable is the concurrent ActionKey -> returns map spec §5 describes:
// written exactly once per key by the worker that completes that node, read
// thereafter by dependents reached via a dependency edge.
type outputTable struct {
	mu   sync.RWMutex
	data map[string]map[string]rundir.Output
}

func newOutputTable() *outputTable {
	return &outputTable{data: map[string]map[string]rundir.Output{}}
}

func (t *outputTable) record(key string, outputs map[string]rundir.Output) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data[key] = outputs
}

func (t *outputTable) get(key string) (map[string]rundir.Output, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	outputs, ok := t.data[key]
	return outputs, ok
}

// Run dispatches g wavefront by wavefront (spec §5: "a dependent is
// scheduled strictly after all of its dependencies' meta.json and
// output.json are durably written" — a per-level barrier is a valid,
// simpler realization of that ordering guarantee since TopoSort's level N
// depends only on levels < N).
func Run(ctx context.Context, c *corpus.Corpus, g *graph.Graph, opts Options) (*Result, error) {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}

	levels, err := g.TopoSort()
	if err != nil {
		return nil, err
	}

	if err := opts.Run.Create(); err != nil {
		return nil, fmt.Errorf("exec: failed to create run directory: %w", err)
	}

	poolSize := opts.Parallelism
	if opts.Sequential {
		poolSize = 1
	}
	if poolSize <= 0 {
		poolSize = runtime.GOMAXPROCS(0)
	}

	sem := semaphore.NewWeighted(int64(poolSize))
	outputs := map[string]map[string]rundir.Output{}
	table := newOutputTable()
	var failed []string
	var stopped bool
	var stopMu sync.Mutex

	publish := opts.Publisher
	if publish == nil {
		publish = ports.NoopPublisher
	}

	for _, level := range levels {
		stopMu.Lock()
		halt := stopped
		stopMu.Unlock()
		if halt {
			break
		}

		var wg sync.WaitGroup
		levelOutcomes := make(map[string]nodeOutcome, len(level))
		var levelMu sync.Mutex

		for _, key := range level {
			key := key
			node, ok := g.Get(key)
			if !ok {
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := sem.Acquire(ctx, 1); err != nil {
					levelMu.Lock()
					levelOutcomes[key.String()] = nodeOutcome{err: err}
					levelMu.Unlock()
					return
				}
				defer sem.Release(1)

				stopMu.Lock()
				halt := stopped
				stopMu.Unlock()
				if halt {
					return
				}

				outcome := runNode(ctx, c, node, opts, clock, publish, table)

				levelMu.Lock()
				levelOutcomes[key.String()] = outcome
				levelMu.Unlock()
			}()
		}
		wg.Wait()

		for ks, outcome := range levelOutcomes {
			if outcome.err != nil || !outcome.success {
				stopMu.Lock()
				stopped = true
				stopMu.Unlock()
				failed = append(failed, ks)
				continue
			}
			outputs[ks] = outcome.outputs
			table.record(ks, outcome.outputs)
		}
	}

	return &Result{Success: len(failed) == 0, Outputs: outputs, Failed: failed}, nil
}

func runNode(ctx context.Context, c *corpus.Corpus, node *graph.Node, opts Options, clock Clock, publish ports.Publisher, table *outputTable) nodeOutcome {
	label := node.Key.String()
	nodeDir := opts.Run.NodeDir(node.Key, label)

	publish.Publish(ports.Event{Type: ports.EventActionRunning, Payload: ports.ActionRunningPayload{ActionKey: label}})

	if opts.PreviousRun != "" {
		if outcome, restored := tryRestore(node, opts, label, nodeDir, publish); restored {
			return outcome
		}
	}

	if err := os.MkdirAll(nodeDir, 0o755); err != nil {
		return nodeOutcome{err: fmt.Errorf("exec: failed to create node directory for %s: %w", label, err)}
	}

	if node.Version == nil {
		err := mdlerrors.New(mdlerrors.CodeNoVersionSelected, "no version selected", label)
		publish.Publish(ports.Event{Type: ports.EventActionFailed, Payload: ports.ActionFailedPayload{ActionKey: label, Message: failureMessage(err, opts.SuppressOnFail)}})
		return nodeOutcome{err: err}
	}

	if opts.DryRun {
		publish.Publish(ports.Event{Type: ports.EventActionDone, Payload: ports.ActionDonePayload{ActionKey: label, Success: true}})
		return nodeOutcome{success: true, outputs: map[string]rundir.Output{}}
	}

	start := clock.Now()

	execCtx, err := buildContext(c, opts.Sys, node, table)
	if err != nil {
		return fail(label, nodeDir, start, clock, publish, err, opts.SuppressOnFail)
	}

	rt, err := opts.Registry.Get(node.Version.Language)
	if err != nil {
		return fail(label, nodeDir, start, clock, publish, mdlerrors.Wrap(mdlerrors.CodeScriptNonzeroExit, "no runtime for language", label, err), opts.SuppressOnFail)
	}

	outputJSONPath := filepath.Join(nodeDir, "output.json")
	prepared, err := rt.Prepare(node.Version, execCtx, label, outputJSONPath, nodeDir)
	if err != nil {
		return fail(label, nodeDir, start, clock, publish, err, opts.SuppressOnFail)
	}

	scriptPath := filepath.Join(nodeDir, "script"+prepared.Extension)
	if err := os.WriteFile(scriptPath, []byte(prepared.Content), 0o755); err != nil {
		return fail(label, nodeDir, start, clock, publish, fmt.Errorf("exec: failed to write script for %s: %w", label, err), opts.SuppressOnFail)
	}
	for name, content := range prepared.Sidecars {
		if err := os.WriteFile(filepath.Join(nodeDir, name), []byte(content), 0o644); err != nil {
			return fail(label, nodeDir, start, clock, publish, fmt.Errorf("exec: failed to write sidecar %s for %s: %w", name, label, err), opts.SuppressOnFail)
		}
	}
	if err := writeSupportFiles(nodeDir, rt); err != nil {
		return fail(label, nodeDir, start, clock, publish, err, opts.SuppressOnFail)
	}

	exitCode, runErr := spawn(ctx, nodeDir, rt, scriptPath, prepared.Env, label, publish)

	end := clock.Now()
	duration := end.Sub(start).Seconds()

	if runErr != nil && exitCode == 0 {
		return fail(label, nodeDir, start, clock, publish, runErr, opts.SuppressOnFail)
	}
	if exitCode != 0 {
		err := mdlerrors.New(mdlerrors.CodeScriptNonzeroExit, fmt.Sprintf("script exited %d", exitCode), label)
		writeFailureMeta(nodeDir, label, start, end, duration, exitCode, err.Error())
		publish.Publish(ports.Event{Type: ports.EventActionFailed, Payload: ports.ActionFailedPayload{ActionKey: label, Message: failureMessage(err, opts.SuppressOnFail)}})
		return nodeOutcome{err: err}
	}

	outputs, err := verifyOutputs(nodeDir, label)
	if err != nil {
		writeFailureMeta(nodeDir, label, start, end, duration, exitCode, err.Error())
		publish.Publish(ports.Event{Type: ports.EventActionFailed, Payload: ports.ActionFailedPayload{ActionKey: label, Message: failureMessage(err, opts.SuppressOnFail)}})
		return nodeOutcome{err: err}
	}

	meta := rundir.Meta{
		ActionLabel:     label,
		Success:         true,
		StartedAt:       start.UTC().Format(time.RFC3339),
		EndedAt:         end.UTC().Format(time.RFC3339),
		DurationSeconds: duration,
		ExitCode:        exitCode,
	}
	if err := rundir.WriteMeta(nodeDir, meta); err != nil {
		return nodeOutcome{err: fmt.Errorf("exec: failed to write meta.json for %s: %w", label, err)}
	}

	publish.Publish(ports.Event{Type: ports.EventActionDone, Payload: ports.ActionDonePayload{ActionKey: label, Success: true, Duration: duration}})
	return nodeOutcome{success: true, outputs: outputs}
}

func tryRestore(node *graph.Node, opts Options, label, nodeDir string, publish ports.Publisher) (nodeOutcome, bool) {
	prevNodeDir := filepath.Join(opts.PreviousRun, rundir.DirName(label))
	meta, err := rundir.ReadMeta(prevNodeDir)
	if err != nil || !meta.Success {
		return nodeOutcome{}, false
	}

	if err := copyDir(prevNodeDir, nodeDir); err != nil {
		return nodeOutcome{err: fmt.Errorf("exec: failed to restore %s: %w", label, err)}, true
	}

	outputs, err := rundir.ReadOutputs(nodeDir)
	if err != nil {
		return nodeOutcome{err: fmt.Errorf("exec: failed to parse restored outputs for %s: %w", label, err)}, true
	}

	restoredMeta := *meta
	restoredMeta.Restored = true
	_ = rundir.WriteMeta(nodeDir, restoredMeta)

	publish.Publish(ports.Event{Type: ports.EventActionDone, Payload: ports.ActionDonePayload{ActionKey: label, Success: true, Restored: true}})
	return nodeOutcome{success: true, outputs: outputs}, true
}

func fail(label, nodeDir string, start time.Time, clock Clock, publish ports.Publisher, err error, suppress bool) nodeOutcome {
	end := clock.Now()
	writeFailureMeta(nodeDir, label, start, end, end.Sub(start).Seconds(), -1, err.Error())
	publish.Publish(ports.Event{Type: ports.EventActionFailed, Payload: ports.ActionFailedPayload{ActionKey: label, Message: failureMessage(err, suppress)}})
	return nodeOutcome{err: err}
}

// failureMessage is the event-stream text for a failed node. --suppress-on-fail
// keeps the live event stream terse; the full error is always in meta.json
// on disk regardless (spec §7: the run directory is preserved on error).
func failureMessage(err error, suppress bool) string {
	if suppress {
		return "action failed; see meta.json for detail"
	}
	return err.Error()
}

func writeFailureMeta(nodeDir, label string, start, end time.Time, duration float64, exitCode int, message string) {
	_ = rundir.WriteMeta(nodeDir, rundir.Meta{
		ActionLabel:     label,
		Success:         false,
		StartedAt:       start.UTC().Format(time.RFC3339),
		EndedAt:         end.UTC().Format(time.RFC3339),
		DurationSeconds: duration,
		ExitCode:        exitCode,
		Error:           message,
	})
}

// buildContext assembles the expansion.Context a node's script renders
// against: sys + passthrough-env + this invocation's resolved args/flags +
// every dependency's already-published outputs, keyed by the action name as
// it appears in reference text (spec §4.2).
func buildContext(c *corpus.Corpus, sys map[string]string, node *graph.Node, table *outputTable) (*expansion.Context, error) {
	ectx := expansion.NewContext()
	for k, v := range sys {
		ectx.Sys[k] = v
	}
	for _, name := range c.PassthroughEnv {
		if v, ok := os.LookupEnv(name); ok {
			ectx.Env[name] = v
		}
	}
	for name, v := range node.Args {
		ectx.Args[name] = v
	}
	for name, v := range node.Flags {
		ectx.Flags[name] = v
	}

	for _, e := range node.SortedEdges() {
		switch e.Kind {
		case graph.EdgeStrong:
			outputs, err := readPublished(table, e.Target)
			if err != nil {
				return nil, mdlerrors.Wrap(mdlerrors.CodeUnresolvedDependency, fmt.Sprintf("strong dependency %q has no recorded outputs", e.Target.Action), node.Key.String(), err)
			}
			ectx.Strong[e.Target.Action] = outputs
		case graph.EdgeWeak:
			if outputs, err := readPublished(table, e.Target); err == nil {
				ectx.Weak[e.Target.Action] = outputs
			}
		case graph.EdgeSoft:
			ectx.Retained[e.Target.Action] = true
		}
	}
	return ectx, nil
}

// readPublished looks up a dependency's recorded outputs in table. A
// dependent is only ever dispatched once every dependency's level has
// completed and recorded its outputs, so a miss here means the dependency
// itself failed or never ran.
func readPublished(table *outputTable, key ctxkey.ActionKey) (map[string]expansion.Return, error) {
	outputs, ok := table.get(key.String())
	if !ok {
		return nil, fmt.Errorf("no published outputs for %s", key.String())
	}
	out := make(map[string]expansion.Return, len(outputs))
	for name, o := range outputs {
		out[name] = expansion.Return{Type: corpus.ArgType(o.Type), Value: fmt.Sprint(o.Value)}
	}
	return out, nil
}

func writeSupportFiles(nodeDir string, rt langruntime.Runtime) error {
	mdlDir := filepath.Join(nodeDir, ".mdl")
	if err := os.MkdirAll(mdlDir, 0o755); err != nil {
		return err
	}
	for name, content := range rt.RuntimeFiles() {
		if err := os.WriteFile(filepath.Join(mdlDir, name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func spawn(ctx context.Context, nodeDir string, rt langruntime.Runtime, scriptPath string, env map[string]string, label string, publish ports.Publisher) (int, error) {
	argv := rt.Command(scriptPath)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = nodeDir
	cmd.Env = os.Environ()
	for name, value := range env {
		cmd.Env = append(cmd.Env, name+"="+value)
	}

	stdoutFile, err := os.Create(filepath.Join(nodeDir, "stdout.log"))
	if err != nil {
		return -1, fmt.Errorf("exec: failed to open stdout.log for %s: %w", label, err)
	}
	defer stdoutFile.Close()
	stderrFile, err := os.Create(filepath.Join(nodeDir, "stderr.log"))
	if err != nil {
		return -1, fmt.Errorf("exec: failed to open stderr.log for %s: %w", label, err)
	}
	defer stderrFile.Close()

	stdoutCounter := &countingWriter{w: stdoutFile}
	stderrCounter := &countingWriter{w: stderrFile}
	cmd.Stdout = stdoutCounter
	cmd.Stderr = stderrCounter

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("exec: failed to start %s: %w", label, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			publish.Publish(ports.Event{Type: ports.EventActionOutputSize, Payload: ports.ActionOutputSizePayload{
				ActionKey: label, StdoutSize: stdoutCounter.n, StderrSize: stderrCounter.n,
			}})
			if err != nil {
				return exitCodeOf(err), err
			}
			return 0, nil
		case <-ticker.C:
			publish.Publish(ports.Event{Type: ports.EventActionOutputSize, Payload: ports.ActionOutputSizePayload{
				ActionKey: label, StdoutSize: stdoutCounter.n, StderrSize: stderrCounter.n,
			}})
		}
	}
}

func exitCodeOf(err error) int {
	type exitCoder interface{ ExitCode() int }
	if ee, ok := err.(exitCoder); ok {
		return ee.ExitCode()
	}
	return -1
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func verifyOutputs(nodeDir, label string) (map[string]rundir.Output, error) {
	path := filepath.Join(nodeDir, "output.json")
	if _, err := os.Stat(path); err != nil {
		return nil, mdlerrors.New(mdlerrors.CodeMissingOutput, "output sidecar was not written", label)
	}

	outputs, err := rundir.ReadOutputs(nodeDir)
	if err != nil {
		return nil, mdlerrors.Wrap(mdlerrors.CodeMissingOutput, "output sidecar is not valid JSON", label, err)
	}

	for name, o := range outputs {
		if o.Type != string(corpus.ArgFile) && o.Type != string(corpus.ArgDirectory) {
			continue
		}
		p := fmt.Sprint(o.Value)
		if !filepath.IsAbs(p) {
			p = filepath.Join(nodeDir, p)
		}
		info, statErr := os.Stat(p)
		if statErr != nil {
			return nil, mdlerrors.New(mdlerrors.CodeBadArtifact, fmt.Sprintf("return %q: %s does not exist", name, p), label)
		}
		if o.Type == string(corpus.ArgDirectory) && !info.IsDir() {
			return nil, mdlerrors.New(mdlerrors.CodeBadArtifact, fmt.Sprintf("return %q: %s is not a directory", name, p), label)
		}
		if o.Type == string(corpus.ArgFile) && info.IsDir() {
			return nil, mdlerrors.New(mdlerrors.CodeBadArtifact, fmt.Sprintf("return %q: %s is not a file", name, p), label)
		}
	}
	return outputs, nil
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
