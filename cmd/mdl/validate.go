package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mdl-run/mdl/internal/compiler"
	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/graph"
	"github.com/mdl-run/mdl/internal/retainer"
	"github.com/mdl-run/mdl/internal/validator"
	"github.com/mdl-run/mdl/internal/wildcard"
)

func newValidateCmd(root *rootFlags, app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:                "validate [goal-tokens...]",
		Short:              "Compile and statically validate goals without executing them",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, root, app, args)
		},
	}
	return cmd
}

func runValidate(cmd *cobra.Command, root *rootFlags, app *AppContext, tokens []string) error {
	ctx, log := app.CommandContext(cmd, "validate")

	parsed, err := parseTokens(tokens)
	if err != nil {
		return err
	}

	projectRoot, err := filepath.Abs(root.corpusDir)
	if err != nil {
		return err
	}

	c, err := corpus.Load(projectRoot)
	if err != nil {
		return err
	}

	globalArgs, err := resolveArgs(c, parsed.GlobalArgs)
	if err != nil {
		return err
	}
	globalFlags, err := resolveFlags(c, parsed.GlobalFlags)
	if err != nil {
		return err
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
		return err
	}

	expanded, err := wildcard.Expand(c.Axes, parsed.GlobalAxes, wildcardInvocations)
	if err != nil {
		return err
	}

	invocations := make([]compiler.Invocation, 0, len(expanded))
	for _, inv := range expanded {
		args, err := resolveArgs(c, toStringMap(inv.Args))
		if err != nil {
			return err
		}
		flags, err := resolveFlags(c, inv.Flags)
		if err != nil {
			return err
		}
		invocations = append(invocations, compiler.Invocation{Action: inv.Action, Axes: inv.Axes, Args: args, Flags: flags})
	}

	input := compiler.Input{
		GlobalAxes:  parsed.GlobalAxes,
		GlobalArgs:  globalArgs,
		GlobalFlags: globalFlags,
		Invocations: invocations,
		Platform:    currentPlatform(),
		Sys:         map[string]string{"project-root": projectRoot},
	}

	compiled, err := compiler.Compile(c, input)
	if err != nil {
		return err
	}

	pending := graph.Phase1(compiled)
	verdicts, err := retainer.Run(ctx, c, compiled, pending, retainer.Options{
		Sys:      input.Sys,
		Registry: app.Registry,
	})
	if err != nil {
		return err
	}

	final := compiled.Finalize(pending, verdicts)

	errs := validator.Validate(c, final)
	if len(errs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "ok: no validation errors")
		return nil
	}

	for _, e := range errs {
		fmt.Fprintln(cmd.OutOrStdout(), e.Error())
	}
	log.Error(ctx, "validation failed", "count", len(errs))
	return fmt.Errorf("%d validation error(s)", len(errs))
}
