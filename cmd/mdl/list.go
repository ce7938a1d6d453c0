package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mdl-run/mdl/internal/corpus"
)

type listOptions struct {
	jsonOutput bool
}

func newListCmd(root *rootFlags, app *AppContext) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every declared action with its dependencies, args, flags, env vars, returns, and axes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func runList(cmd *cobra.Command, root *rootFlags, opts *listOptions) error {
	projectRoot, err := filepath.Abs(root.corpusDir)
	if err != nil {
		return err
	}

	c, err := corpus.Load(projectRoot)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(c.Actions))
	for name := range c.Actions {
		names = append(names, name)
	}
	sort.Strings(names)

	if opts.jsonOutput {
		return renderListJSON(cmd, c, names)
	}
	return renderListTable(cmd, c, names)
}

type listedVersion struct {
	Language     string   `json:"language,omitempty"`
	Conditions   []string `json:"conditions,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Returns      []string `json:"returns,omitempty"`
}

type listedAction struct {
	Name     string          `json:"name"`
	Versions []listedVersion `json:"versions"`
}

type listJSONPayload struct {
	Axes           []string       `json:"axes"`
	Arguments      []string       `json:"arguments"`
	Flags          []string       `json:"flags"`
	PassthroughEnv []string       `json:"passthrough_env"`
	Actions        []listedAction `json:"actions"`
}

func renderListJSON(cmd *cobra.Command, c *corpus.Corpus, names []string) error {
	payload := listJSONPayload{
		Axes:           sortedKeysOf(c.Axes),
		Arguments:      sortedKeysOf(c.Arguments),
		Flags:          sortedKeysOf(c.Flags),
		PassthroughEnv: c.PassthroughEnv,
	}
	for _, name := range names {
		payload.Actions = append(payload.Actions, describeAction(c, name))
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func renderListTable(cmd *cobra.Command, c *corpus.Corpus, names []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACTION\tVERSIONS\tDEPENDENCIES\tRETURNS")
	for _, name := range names {
		action := c.Actions[name]
		var deps, rets []string
		for _, v := range action.Versions {
			for _, d := range v.Dependencies {
				deps = append(deps, fmt.Sprintf("%s:%s", d.Target, d.Kind))
			}
			for r := range v.Returns {
				rets = append(rets, r)
			}
		}
		sort.Strings(deps)
		sort.Strings(rets)
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", name, len(action.Versions), joinOrDash(deps), joinOrDash(rets))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "axes: %s\n", joinOrDash(sortedKeysOf(c.Axes)))
	fmt.Fprintf(cmd.OutOrStdout(), "arguments: %s\n", joinOrDash(sortedKeysOf(c.Arguments)))
	fmt.Fprintf(cmd.OutOrStdout(), "flags: %s\n", joinOrDash(sortedKeysOf(c.Flags)))
	fmt.Fprintf(cmd.OutOrStdout(), "passthrough env: %s\n", joinOrDash(c.PassthroughEnv))
	return nil
}

func describeAction(c *corpus.Corpus, name string) listedAction {
	action := c.Actions[name]
	out := listedAction{Name: name}
	for _, v := range action.Versions {
		lv := listedVersion{Language: v.Language}
		for _, cond := range v.Conditions {
			lv.Conditions = append(lv.Conditions, fmt.Sprintf("%s=%s", cond.Axis, cond.Value))
		}
		for _, d := range v.Dependencies {
			lv.Dependencies = append(lv.Dependencies, fmt.Sprintf("%s:%s", d.Target, d.Kind))
		}
		for r := range v.Returns {
			lv.Returns = append(lv.Returns, r)
		}
		sort.Strings(lv.Returns)
		out.Versions = append(out.Versions, lv)
	}
	return out
}

func sortedKeysOf[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	out := items[0]
	for _, s := range items[1:] {
		out += ", " + s
	}
	return out
}
