// Package corpus models the parsed definition corpus consumed from the
// (external) markup front-end: axes, arguments, flags, passthrough
// environment variables, and action definitions with their conditional
// versions (spec §3, §6).
package corpus

import "strconv"

// ArgType enumerates the scalar element types an argument may carry.
type ArgType string

const (
	ArgInt       ArgType = "int"
	ArgString    ArgType = "string"
	ArgBool      ArgType = "bool"
	ArgFile      ArgType = "file"
	ArgDirectory ArgType = "directory"
)

// Axis is a named finite domain of string values with at most one default
// (spec invariant 6).
type Axis struct {
	Name    string   `yaml:"-"`
	Values  []string `yaml:"values" validate:"required,min=1,dive,required"`
	Default string   `yaml:"default,omitempty"`

	Source Location `yaml:"-"`
}

// Argument is a typed CLI input; mandatory iff it has no default.
type Argument struct {
	Name     string   `yaml:"-"`
	Type     ArgType  `yaml:"type" validate:"required,oneof=int string bool file directory"`
	Array    bool     `yaml:"array,omitempty"`
	Default  *string  `yaml:"default,omitempty"`
	Defaults []string `yaml:"defaults,omitempty"`

	Source Location `yaml:"-"`
}

// Required reports whether the argument must be supplied on the CLI.
func (a Argument) Required() bool {
	if a.Array {
		return a.Defaults == nil
	}
	return a.Default == nil
}

// Flag is a boolean CLI input; absence means false.
type Flag struct {
	Name   string   `yaml:"-"`
	Source Location `yaml:"-"`
}

// Condition is a single axis=value or platform=value guard on a Version.
type Condition struct {
	Axis  string `yaml:"axis"`
	Value string `yaml:"value"`
}

// IsPlatform reports whether this condition guards on the host platform
// rather than a declared Axis.
func (c Condition) IsPlatform() bool {
	return c.Axis == "platform"
}

// DependencyKind classifies a declared dependency edge (spec §3, §9).
type DependencyKind string

const (
	DependencyStrong DependencyKind = "strong"
	DependencyWeak   DependencyKind = "weak"
	DependencySoft   DependencyKind = "soft"
)

// Dependency is a single declared dependency of a Version.
type Dependency struct {
	Target   string         `yaml:"action" validate:"required"`
	Kind     DependencyKind `yaml:"kind" validate:"required,oneof=strong weak soft"`
	Retainer string         `yaml:"retainer,omitempty"`
}

// ReturnDecl declares a single named, typed return value a Version produces.
type ReturnDecl struct {
	Name  string  `yaml:"-"`
	Type  ArgType `yaml:"type" validate:"required,oneof=int string bool file directory"`
	Value string  `yaml:"value" validate:"required"`
}

// Version is a script body guarded by a conjunction of conditions.
type Version struct {
	Conditions   []Condition           `yaml:"when,omitempty"`
	Language     string                `yaml:"language,omitempty"`
	Script       string                `yaml:"script" validate:"required"`
	Returns      map[string]ReturnDecl `yaml:"returns,omitempty"`
	Dependencies []Dependency          `yaml:"depends_on,omitempty" validate:"omitempty,dive"`

	Source Location `yaml:"-"`
}

// Matches reports whether every condition in the conjunction is satisfied by
// the full axis assignment and the current platform.
func (v Version) Matches(axisValues map[string]string, platform string) bool {
	for _, c := range v.Conditions {
		if c.IsPlatform() {
			if c.Value != platform {
				return false
			}
			continue
		}
		if axisValues[c.Axis] != c.Value {
			return false
		}
	}
	return true
}

// RequiredAxes returns the set of axis names any of this action's versions'
// conditions mention (spec §4.4 step 5).
func RequiredAxes(versions []Version) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, v := range versions {
		for _, c := range v.Conditions {
			if c.IsPlatform() {
				continue
			}
			if _, ok := seen[c.Axis]; !ok {
				seen[c.Axis] = struct{}{}
				out = append(out, c.Axis)
			}
		}
	}
	return out
}

// Action is a named unit of work with one or more conditional versions.
type Action struct {
	Name     string    `yaml:"-"`
	Versions []Version `yaml:"versions" validate:"required,min=1,dive"`

	Source Location `yaml:"-"`
}

// Location pinpoints a definition's origin for error reporting.
type Location struct {
	File string
	Line int
}

// String renders "file:line", or just file when line is unknown.
func (l Location) String() string {
	if l.File == "" {
		return ""
	}
	if l.Line > 0 {
		return l.File + ":" + strconv.Itoa(l.Line)
	}
	return l.File
}

// Corpus is the fully parsed definition bundle: the "already-parsed data"
// boundary described in spec §6.
type Corpus struct {
	Axes           map[string]Axis
	Arguments      map[string]Argument
	Flags          map[string]Flag
	PassthroughEnv []string
	Actions        map[string]Action

	// SequentialByDefault mirrors the corpus-level "sequential-by-default"
	// property flag from spec §6.
	SequentialByDefault bool
}
