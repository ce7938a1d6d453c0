package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mdl-run/mdl/internal/compiler"
	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/exec"
	"github.com/mdl-run/mdl/internal/expansion"
	"github.com/mdl-run/mdl/internal/graph"
	"github.com/mdl-run/mdl/internal/mdlerrors"
	"github.com/mdl-run/mdl/internal/ports"
	"github.com/mdl-run/mdl/internal/retainer"
	"github.com/mdl-run/mdl/internal/rundir"
	"github.com/mdl-run/mdl/internal/validator"
	"github.com/mdl-run/mdl/internal/watch"
	"github.com/mdl-run/mdl/internal/wildcard"
)

func newRunCmd(root *rootFlags, app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:                "run [goal-tokens...]",
		Short:              "Compile and execute one or more goal actions",
		DisableFlagParsing: true, // goal/axis/argument tokens use mdl's own grammar (spec §6), not cobra flags
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, root, app, args)
		},
	}
	return cmd
}

func runPipeline(cmd *cobra.Command, root *rootFlags, app *AppContext, tokens []string) error {
	ctx, log := app.CommandContext(cmd, "run")

	parsed, err := parseTokens(tokens)
	if err != nil {
		return reportError(log, ctx, err)
	}

	projectRoot, err := filepath.Abs(root.corpusDir)
	if err != nil {
		return err
	}

	c, err := corpus.Load(projectRoot)
	if err != nil {
		return reportError(log, ctx, err)
	}

	if parsed.Watch {
		return watch.Run(ctx, projectRoot, func() error {
			fresh, err := corpus.Load(projectRoot)
			if err != nil {
				return reportError(log, ctx, err)
			}
			return execute(ctx, log, app, projectRoot, fresh, parsed)
		})
	}

	return execute(ctx, log, app, projectRoot, c, parsed)
}

// execute runs the full compile -> retain -> validate -> exec pipeline once
// (spec §2's "Flow"). Factored out of runPipeline so --watch can invoke it
// repeatedly against a freshly reloaded corpus.
func execute(ctx context.Context, log ports.Logger, app *AppContext, projectRoot string, c *corpus.Corpus, parsed *parsedCLI) error {
	globalArgs, err := resolveArgs(c, parsed.GlobalArgs)
	if err != nil {
		return reportError(log, ctx, err)
	}
	globalFlags, err := resolveFlags(c, parsed.GlobalFlags)
	if err != nil {
		return reportError(log, ctx, err)
	}

	wildcardInvocations := make([]wildcard.Invocation, 0, len(parsed.Goals))
	for _, goal := range parsed.Goals {
		wildcardInvocations = append(wildcardInvocations, wildcard.Invocation{
			Action: goal.Action,
			Axes:   goal.Axes,
			Args:   toInterfaceMap(goal.Args),
			Flags:  goal.Flags,
		})
	}

	if err := compiler.CheckAxisContradictions(parsed.GlobalAxes, wildcardInvocations); err != nil {
		return reportError(log, ctx, err)
	}

	expanded, err := wildcard.Expand(c.Axes, parsed.GlobalAxes, wildcardInvocations)
	if err != nil {
		return reportError(log, ctx, err)
	}

	invocations := make([]compiler.Invocation, 0, len(expanded))
	for _, inv := range expanded {
		args, err := resolveArgs(c, toStringMap(inv.Args))
		if err != nil {
			return reportError(log, ctx, err)
		}
		flags, err := resolveFlags(c, inv.Flags)
		if err != nil {
			return reportError(log, ctx, err)
		}
		invocations = append(invocations, compiler.Invocation{
			Action: inv.Action,
			Axes:   inv.Axes,
			Args:   args,
			Flags:  flags,
		})
	}

	env := map[string]string{}
	for _, name := range c.PassthroughEnv {
		if v, ok := os.LookupEnv(name); ok {
			env[name] = v
		}
	}

	input := compiler.Input{
		GlobalAxes:  parsed.GlobalAxes,
		GlobalArgs:  globalArgs,
		GlobalFlags: globalFlags,
		Invocations: invocations,
		Platform:    currentPlatform(),
		Sys:         map[string]string{"project-root": projectRoot},
		Env:         env,
	}

	compiled, err := compiler.Compile(c, input)
	if err != nil {
		return reportError(log, ctx, err)
	}

	pending := graph.Phase1(compiled)

	registry := app.Registry
	verdicts, err := retainer.Run(ctx, c, compiled, pending, retainer.Options{
		Sys:       input.Sys,
		Registry:  registry,
		Publisher: app.Events,
	})
	if err != nil {
		return reportError(log, ctx, err)
	}

	final := compiled.Finalize(pending, verdicts)

	if errs := validator.Validate(c, final); len(errs) > 0 {
		for _, e := range errs {
			log.Error(ctx, "validation failed", "error", e.Error())
		}
		return fmt.Errorf("%d validation error(s); see above", len(errs))
	}

	now := time.Now()
	runRoot := rundir.NewRoot(projectRoot, now.Unix(), now.Nanosecond())

	previousRun := parsed.ContinueFrom
	if parsed.Continue && previousRun == "" {
		previousRun, err = rundir.LatestPrevious(projectRoot, runRoot)
		if err != nil {
			return err
		}
	}

	opts := exec.Options{
		Run:            runRoot,
		PreviousRun:    previousRun,
		Sys:            input.Sys,
		Registry:       registry,
		Sequential:     parsed.Sequential,
		DryRun:         parsed.DryRun,
		SuppressOnFail: parsed.SuppressOnFail,
		Publisher:      app.Events,
		Clock:          exec.SystemClock,
	}

	goalLabels := make([]string, 0, len(final.Goals))
	for _, g := range final.Goals {
		goalLabels = append(goalLabels, g.String())
	}
	_ = runRoot.WriteManifest(rundir.Manifest{
		Goals:      goalLabels,
		Sequential: parsed.Sequential,
		Continue:   previousRun,
		StartedAt:  now.UTC().Format(time.RFC3339),
	})

	res, runErr := exec.Run(ctx, c, final, opts)
	if runErr != nil {
		return runErr
	}

	printOutputs(final, res, parsed.OutputFile)

	if parsed.DryRun && !parsed.KeepRunDir {
		_ = os.RemoveAll(runRoot.Path)
	}

	if !res.Success {
		log.Error(ctx, "run failed", "run_dir", runRoot.Path, "failed", strings.Join(res.Failed, ", "))
		return fmt.Errorf("run failed: %d action(s) did not succeed (run directory: %s)", len(res.Failed), runRoot.Path)
	}

	return nil
}

// printOutputs assembles and writes the "outputs to the invoker" JSON
// document (spec §6): keyed by goal action label, each value the
// corresponding output.json contents, as stdout and optionally a file.
func printOutputs(g *graph.Graph, res *exec.Result, outputFile string) {
	doc := map[string]map[string]rundir.Output{}
	for _, goalKey := range g.Goals {
		label := goalKey.String()
		if outputs, ok := res.Outputs[label]; ok {
			doc[label] = outputs
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "mdl: failed to render outputs:", err)
		return
	}

	fmt.Println(string(data))
	if outputFile != "" {
		_ = os.WriteFile(outputFile, data, 0o644)
	}
}

func reportError(log ports.Logger, ctx context.Context, err error) error {
	if log != nil {
		log.Error(ctx, "pipeline error", "error", err.Error())
	}
	return err
}

func toInterfaceMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toStringMap(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// resolveArgs converts raw CLI argument strings into typed expansion values
// per the corpus's declared Argument definitions, rejecting names the
// corpus never declared (spec §7: unknown-argument).
func resolveArgs(c *corpus.Corpus, raw map[string]string) (map[string]expansion.ArgValue, error) {
	out := make(map[string]expansion.ArgValue, len(raw))
	for name, value := range raw {
		def, ok := c.Arguments[name]
		if !ok {
			return nil, mdlerrors.New(mdlerrors.CodeUnknownArgument, fmt.Sprintf("unknown argument %q", name), "")
		}
		if def.Array {
			out[name] = expansion.ArgValue{Type: def.Type, Array: strings.Split(value, ",")}
			continue
		}
		out[name] = expansion.ArgValue{Type: def.Type, Scalar: value}
	}
	return out, nil
}

// resolveFlags validates raw CLI flag names against the corpus's declared
// Flag definitions (spec §7: unknown-flag).
func resolveFlags(c *corpus.Corpus, raw map[string]bool) (map[string]bool, error) {
	out := make(map[string]bool, len(raw))
	for name, v := range raw {
		if _, ok := c.Flags[name]; !ok {
			return nil, mdlerrors.New(mdlerrors.CodeUnknownFlag, fmt.Sprintf("unknown flag %q", name), "")
		}
		out[name] = v
	}
	return out, nil
}

func currentPlatform() string {
	return runtime.GOOS
}
