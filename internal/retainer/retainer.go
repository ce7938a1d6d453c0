// Package retainer implements retainer execution (spec §4.7): running the
// small scripts that decide, for a pending soft dependency, whether its
// target should be pulled into the final retained graph.
package retainer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/ctxkey"
	"github.com/mdl-run/mdl/internal/expansion"
	"github.com/mdl-run/mdl/internal/graph"
	"github.com/mdl-run/mdl/internal/langruntime"
	"github.com/mdl-run/mdl/internal/mdlerrors"
	"github.com/mdl-run/mdl/internal/ports"
)

// Timeout bounds a single retainer's subprocess (spec §4.7 step 3: "60
// second timeout").
const Timeout = 60 * time.Second

// Options bundles the ambient values retainer execution needs beyond the
// graph and corpus: the resolved system variables shared with the rest of
// the compile (spec §4.1's "sys" map, e.g. "project-root"), the language
// runtime registry, and where to root each retainer's throwaway working
// directory.
type Options struct {
	Sys       map[string]string
	Registry  *langruntime.Registry
	TempRoot  string // base directory new isolated working dirs are created under; "" uses os.TempDir
	Publisher ports.Publisher
}

// Run executes every unique retainer referenced by s.Pending (spec §4.7 step
// 0), in parallel with respect to each other, and returns each retainer
// ActionKey's retain/do-not-retain verdict (spec §4.7 step 4: "exit code 0
// AND the retain-signal file exists").
func Run(ctx context.Context, c *corpus.Corpus, g *graph.Graph, s *graph.PendingState, opts Options) (map[string]bool, error) {
	retainers := s.UniqueRetainers()
	verdicts := make(map[string]bool, len(retainers))
	if len(retainers) == 0 {
		return verdicts, nil
	}

	type result struct {
		key    string
		verdict bool
	}
	results := make([]result, len(retainers))

	group, gctx := errgroup.WithContext(ctx)
	for i, key := range retainers {
		i, key := i, key
		group.Go(func() error {
			verdict, err := runOne(gctx, c, g, key, opts)
			if err != nil {
				return err
			}
			results[i] = result{key: key.String(), verdict: verdict}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		verdicts[r.key] = r.verdict
		if opts.Publisher != nil {
			opts.Publisher.Publish(ports.Event{
				Type:    ports.EventRetainerVerdict,
				Payload: ports.RetainerVerdictPayload{RetainerKey: r.key, Retain: r.verdict},
			})
		}
	}
	return verdicts, nil
}

func runOne(ctx context.Context, c *corpus.Corpus, g *graph.Graph, key ctxkey.ActionKey, opts Options) (bool, error) {
	node, ok := g.Get(key)
	if !ok {
		return false, mdlerrors.New(mdlerrors.CodeRetainerFailed,
			fmt.Sprintf("retainer %q was never compiled into the graph", key.Action), key.String())
	}
	if node.Version == nil {
		return false, mdlerrors.New(mdlerrors.CodeRetainerFailed,
			fmt.Sprintf("retainer %q has no version selected for its context", key.Action), key.String())
	}

	workDir, err := os.MkdirTemp(opts.TempRoot, "mdl-retainer-")
	if err != nil {
		return false, mdlerrors.Wrap(mdlerrors.CodeRetainerFailed, "failed to create retainer working directory", key.String(), err)
	}
	defer os.RemoveAll(workDir)

	signalFile := filepath.Join(workDir, "retained")
	outputJSONPath := filepath.Join(workDir, "output.json")

	rt, err := opts.Registry.Get(node.Version.Language)
	if err != nil {
		return false, mdlerrors.Wrap(mdlerrors.CodeRetainerFailed, "no runtime for retainer language", key.String(), err)
	}

	execCtx := buildExecutionContext(c, opts.Sys, node)

	prepared, err := rt.Prepare(node.Version, execCtx, key.String(), outputJSONPath, workDir)
	if err != nil {
		return false, mdlerrors.Wrap(mdlerrors.CodeRetainerFailed, "failed to prepare retainer script", key.String(), err)
	}

	scriptPath := filepath.Join(workDir, "script"+prepared.Extension)
	if err := os.WriteFile(scriptPath, []byte(prepared.Content), 0o755); err != nil {
		return false, mdlerrors.Wrap(mdlerrors.CodeRetainerFailed, "failed to write retainer script", key.String(), err)
	}
	for name, content := range prepared.Sidecars {
		if err := os.WriteFile(filepath.Join(workDir, name), []byte(content), 0o644); err != nil {
			return false, mdlerrors.Wrap(mdlerrors.CodeRetainerFailed, "failed to write retainer sidecar file", key.String(), err)
		}
	}
	if err := writeRuntimeFiles(workDir, rt); err != nil {
		return false, mdlerrors.Wrap(mdlerrors.CodeRetainerFailed, "failed to write runtime support files", key.String(), err)
	}

	runCtx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	argv := rt.Command(scriptPath)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "MDL_RETAIN_SIGNAL_FILE="+signalFile)
	for name, value := range prepared.Env {
		cmd.Env = append(cmd.Env, name+"="+value)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	_, statErr := os.Stat(signalFile)
	signalExists := statErr == nil
	exitedZero := runErr == nil

	return exitedZero && signalExists, nil
}

// buildExecutionContext builds the minimal execution context spec §4.7 step
// 2 describes: sys + passthrough-env, args/flags/axis values from the
// retainer's own reduced context (carried on node, resolved the same way as
// any other action reached during compilation), and empty action-outputs
// since retainers must have no dependencies.
func buildExecutionContext(c *corpus.Corpus, sys map[string]string, node *graph.Node) *expansion.Context {
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
	return ectx
}

func writeRuntimeFiles(workDir string, rt langruntime.Runtime) error {
	mdlDir := filepath.Join(workDir, ".mdl")
	if err := os.MkdirAll(mdlDir, 0o755); err != nil {
		return err
	}
	names := make([]string, 0, len(rt.RuntimeFiles()))
	files := rt.RuntimeFiles()
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(mdlDir, name), []byte(files[name]), 0o644); err != nil {
			return err
		}
	}
	return nil
}
