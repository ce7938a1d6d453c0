// Package mdlerrors defines the typed error taxonomy shared across mdl's
// compilation, graph, and execution layers.
package mdlerrors

import (
	"errors"
	"fmt"
)

// Code identifies a well-known error category surfaced to the CLI.
type Code string

const (
	CodeMalformedCLI           Code = "MALFORMED_CLI"
	CodeNoMatch                Code = "NO_MATCH"
	CodeUnknownGoal            Code = "UNKNOWN_GOAL"
	CodeUnknownAxis            Code = "UNKNOWN_AXIS"
	CodeUnknownArgument        Code = "UNKNOWN_ARGUMENT"
	CodeUnknownFlag            Code = "UNKNOWN_FLAG"
	CodeUnknownEnv             Code = "UNKNOWN_ENV"
	CodeUnknownReturn          Code = "UNKNOWN_RETURN"
	CodeConflictingDefinitions Code = "CONFLICTING_DEFINITIONS"
	CodeCycle                  Code = "CYCLE"
	CodeUnresolvedDependency   Code = "UNRESOLVED_DEPENDENCY"
	CodeNoVersionSelected      Code = "NO_VERSION_SELECTED"
	CodeRetainerFailed         Code = "RETAINER_FAILED"
	CodeScriptNonzeroExit      Code = "SCRIPT_NONZERO_EXIT"
	CodeMissingOutput          Code = "MISSING_OUTPUT"
	CodeBadArtifact            Code = "BAD_ARTIFACT"
	CodeCancelled              Code = "CANCELLED"
)

// Error is a typed error enriched with the offending ActionKey string (when
// applicable) and arbitrary contextual fields, surfaced verbatim to the CLI.
type Error struct {
	Code      Code
	Message   string
	ActionKey string
	Location  string
	Cause     error
	Context   map[string]interface{}
}

// New constructs an Error. actionKey may be empty; a location is attached
// separately with WithLocation.
func New(code Code, message string, actionKey string) *Error {
	return &Error{Code: code, Message: message, ActionKey: actionKey}
}

// Wrap constructs an Error around an existing cause.
func Wrap(code Code, message string, actionKey string, cause error) *Error {
	return &Error{Code: code, Message: message, ActionKey: actionKey, Cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b string
	switch {
	case e.ActionKey != "" && e.Location != "":
		b = fmt.Sprintf("%s: %s [%s @ %s]", e.Code, e.Message, e.ActionKey, e.Location)
	case e.ActionKey != "":
		b = fmt.Sprintf("%s: %s [%s]", e.Code, e.Message, e.ActionKey)
	default:
		b = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", b, e.Cause)
	}
	return b
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares by code, allowing errors.Is(err, mdlerrors.New(CodeCycle, "", "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// WithLocation returns a copy annotated with a source location.
func (e *Error) WithLocation(location string) *Error {
	clone := *e
	clone.Location = location
	return &clone
}

// WithContext returns a copy with additional contextual fields merged in.
func (e *Error) WithContext(ctx map[string]interface{}) *Error {
	clone := *e
	merged := make(map[string]interface{}, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}
	clone.Context = merged
	return &clone
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
