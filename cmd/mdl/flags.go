package main

import (
	"fmt"
	"strings"

	"github.com/mdl-run/mdl/internal/mdlerrors"
)

// invocationSpec is one goal token's CLI-bound scope: a literal-or-pattern
// axis assignment plus the raw argument/flag tokens positioned after it
// (spec §6: "tokens after a goal and before the next goal bind to that
// goal").
type invocationSpec struct {
	Action string
	Axes   map[string]string
	Args   map[string]string
	Flags  map[string]bool
}

// parsedCLI is the tokenized form of mdl run's positional argument list.
type parsedCLI struct {
	GlobalAxes  map[string]string
	GlobalArgs  map[string]string
	GlobalFlags map[string]bool
	Goals       []invocationSpec

	DryRun         bool
	Continue       bool
	ContinueFrom   string
	Sequential     bool
	KeepRunDir     bool
	SuppressOnFail bool
	Watch          bool
	OutputFile     string
}

// knownToggles are the global execution-toggle tokens (spec §6): recognized
// regardless of goal scope, never routed into a goal's own argument/flag
// maps.
var knownToggles = map[string]func(*parsedCLI){
	"--dry-run":          func(p *parsedCLI) { p.DryRun = true },
	"--continue":         func(p *parsedCLI) { p.Continue = true },
	"--sequential":       func(p *parsedCLI) { p.Sequential = true },
	"--keep-run-dir":     func(p *parsedCLI) { p.KeepRunDir = true },
	"--suppress-on-fail": func(p *parsedCLI) { p.SuppressOnFail = true },
	"--watch":            func(p *parsedCLI) { p.Watch = true },
}

// parseTokens tokenizes args into the goal / axis / argument / flag grammar
// spec §6 describes. mdl treats this as the concrete arrival format for
// "already-tokenized" CLI input (the shell's own word-splitting is the
// external tokenization collaborator spec §1 excludes) — the same posture
// SPEC_FULL.md takes for the YAML definition corpus.
func parseTokens(args []string) (*parsedCLI, error) {
	p := &parsedCLI{
		GlobalAxes:  map[string]string{},
		GlobalArgs:  map[string]string{},
		GlobalFlags: map[string]bool{},
	}

	currentIdx := -1
	axesOf := func() map[string]string {
		if currentIdx < 0 {
			return p.GlobalAxes
		}
		return p.Goals[currentIdx].Axes
	}
	argsOf := func() map[string]string {
		if currentIdx < 0 {
			return p.GlobalArgs
		}
		return p.Goals[currentIdx].Args
	}
	flagsOf := func() map[string]bool {
		if currentIdx < 0 {
			return p.GlobalFlags
		}
		return p.Goals[currentIdx].Flags
	}

	for _, tok := range args {
		switch {
		case strings.HasPrefix(tok, ":"):
			name := strings.TrimPrefix(tok, ":")
			if name == "" {
				return nil, mdlerrors.New(mdlerrors.CodeMalformedCLI, "empty goal token \":\"", "")
			}
			p.Goals = append(p.Goals, invocationSpec{
				Action: name,
				Axes:   map[string]string{},
				Args:   map[string]string{},
				Flags:  map[string]bool{},
			})
			currentIdx = len(p.Goals) - 1

		case strings.HasPrefix(tok, "--continue="):
			p.Continue = true
			p.ContinueFrom = strings.TrimPrefix(tok, "--continue=")

		case strings.HasPrefix(tok, "--output="):
			p.OutputFile = strings.TrimPrefix(tok, "--output=")

		case knownToggles[tok] != nil:
			knownToggles[tok](p)

		case strings.HasPrefix(tok, "--"):
			body := strings.TrimPrefix(tok, "--")
			if body == "" {
				return nil, mdlerrors.New(mdlerrors.CodeMalformedCLI, "empty argument/flag token \"--\"", "")
			}
			if eq := strings.IndexByte(body, '='); eq >= 0 {
				argsOf()[body[:eq]] = body[eq+1:]
			} else {
				flagsOf()[body] = true
			}

		case strings.Contains(tok, "="):
			eq := strings.IndexByte(tok, '=')
			name, value := tok[:eq], tok[eq+1:]
			if name == "" {
				return nil, mdlerrors.New(mdlerrors.CodeMalformedCLI, fmt.Sprintf("malformed axis token %q", tok), "")
			}
			axesOf()[name] = value

		default:
			return nil, mdlerrors.New(mdlerrors.CodeMalformedCLI, fmt.Sprintf("unrecognized token %q", tok), "")
		}
	}

	if len(p.Goals) == 0 {
		return nil, mdlerrors.New(mdlerrors.CodeMalformedCLI, "no goal tokens supplied; at least one :action-name is required", "")
	}

	return p, nil
}
