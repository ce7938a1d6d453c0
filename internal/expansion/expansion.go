package expansion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mdl-run/mdl/internal/mdlerrors"
)

// referencePattern matches "${kind.path}" lexical references. path may
// itself contain dots (e.g. action.compile.output).
var referencePattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_.\-]*)\}`)

// Kind identifies one of the seven expansion reference kinds (spec §4.2).
type Kind string

const (
	KindSystem    Kind = "sys"
	KindEnv       Kind = "env"
	KindArgument  Kind = "arg"
	KindFlag      Kind = "flag"
	KindStrong    Kind = "action"
	KindWeak      Kind = "weak"
	KindRetained  Kind = "retained"
)

// Reference is one parsed "${kind.path}" occurrence.
type Reference struct {
	Kind Kind
	Path []string // segments after the kind, e.g. ["compile", "output"]
	Raw  string    // the full "${...}" text, for error messages
}

// Parse splits text into a flat list of references it contains, in order of
// appearance. Unknown kinds are reported eagerly so the validator (spec
// §4.6) can catch them before execution.
func Parse(text string) ([]Reference, error) {
	matches := referencePattern.FindAllStringSubmatch(text, -1)
	refs := make([]Reference, 0, len(matches))
	for _, m := range matches {
		segs := strings.Split(m[1], ".")
		kind := Kind(segs[0])
		switch kind {
		case KindSystem, KindEnv, KindArgument, KindFlag, KindStrong, KindWeak, KindRetained:
		default:
			return nil, mdlerrors.New(mdlerrors.CodeMalformedCLI, fmt.Sprintf("unknown expansion kind %q in %q", segs[0], m[0]), "")
		}
		refs = append(refs, Reference{Kind: kind, Path: segs[1:], Raw: m[0]})
	}
	return refs, nil
}

// Expand resolves every reference in text against ctx and returns the
// substituted string. actionKey identifies the node being expanded, for
// error attribution.
func Expand(text string, ctx *Context, actionKey string) (string, error) {
	var resolveErr error
	result := referencePattern.ReplaceAllStringFunc(text, func(raw string) string {
		if resolveErr != nil {
			return raw
		}
		segs := strings.Split(raw[2:len(raw)-1], ".")
		kind := Kind(segs[0])
		path := segs[1:]

		value, err := resolveOne(kind, path, raw, ctx, actionKey)
		if err != nil {
			resolveErr = err
			return raw
		}
		return value
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}

func resolveOne(kind Kind, path []string, raw string, ctx *Context, actionKey string) (string, error) {
	switch kind {
	case KindSystem:
		if len(path) != 1 {
			return "", malformed(raw, actionKey)
		}
		v, ok := ctx.Sys[path[0]]
		if !ok {
			return "", mdlerrors.New(mdlerrors.CodeUnresolvedDependency, fmt.Sprintf("unknown system variable %q", path[0]), actionKey)
		}
		return v, nil

	case KindEnv:
		if len(path) != 1 {
			return "", malformed(raw, actionKey)
		}
		// Absent env vars resolve to empty string; the validator (spec §4.6)
		// is responsible for rejecting references to undeclared/unsatisfied
		// passthrough variables ahead of execution.
		return ctx.Env[path[0]], nil

	case KindArgument:
		if len(path) != 1 {
			return "", malformed(raw, actionKey)
		}
		v, ok := ctx.Args[path[0]]
		if !ok {
			return "", mdlerrors.New(mdlerrors.CodeUnknownArgument, fmt.Sprintf("unknown argument %q", path[0]), actionKey)
		}
		return v.Render(), nil

	case KindFlag:
		if len(path) != 1 {
			return "", malformed(raw, actionKey)
		}
		v, ok := ctx.Flags[path[0]]
		if !ok {
			return "", mdlerrors.New(mdlerrors.CodeUnknownFlag, fmt.Sprintf("unknown flag %q", path[0]), actionKey)
		}
		return boolToken(v), nil

	case KindStrong:
		if len(path) != 2 {
			return "", malformed(raw, actionKey)
		}
		action, ret := path[0], path[1]
		outputs, ok := ctx.Strong[action]
		if !ok {
			return "", mdlerrors.New(mdlerrors.CodeUnresolvedDependency, fmt.Sprintf("strong dependency %q has no recorded outputs", action), actionKey)
		}
		value, ok := outputs[ret]
		if !ok {
			return "", mdlerrors.New(mdlerrors.CodeUnknownReturn, fmt.Sprintf("action %q has no return %q", action, ret), actionKey)
		}
		return value.Value, nil

	case KindWeak:
		if len(path) != 2 {
			return "", malformed(raw, actionKey)
		}
		action, ret := path[0], path[1]
		outputs, ok := ctx.Weak[action]
		if !ok {
			return "", nil
		}
		value, ok := outputs[ret]
		if !ok {
			return "", nil
		}
		return value.Value, nil

	case KindRetained:
		if len(path) != 1 {
			return "", malformed(raw, actionKey)
		}
		return boolToken(ctx.Retained[path[0]]), nil
	}
	return "", malformed(raw, actionKey)
}

func boolToken(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func malformed(raw, actionKey string) error {
	return mdlerrors.New(mdlerrors.CodeMalformedCLI, fmt.Sprintf("malformed expansion reference %q", raw), actionKey)
}
