// Package langruntime implements the pluggable per-language script
// preparation step: turning a corpus.Version's script body plus a resolved
// expansion.Context into an executable file (and, for structured-language
// runtimes, a sidecar context file carrying native arrays/objects the script
// text itself cannot interpolate; spec §4.2's "Arrays" contract).
package langruntime

import (
	"fmt"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/expansion"
)

// Prepared is a script ready to write to disk and execute.
type Prepared struct {
	Content   string            // the script's full text, including any runtime header
	Extension string            // e.g. ".sh", ".py" — used for the run directory's script.<ext>
	Sidecars  map[string]string // extra files (relative name -> content) to write alongside the script
	Env       map[string]string // extra environment variables the runtime wants set
}

// Runtime prepares one language's scripts and names the command that runs
// them.
type Runtime interface {
	Name() string
	Prepare(version *corpus.Version, ctx *expansion.Context, actionKey string, outputJSONPath, workingDir string) (*Prepared, error)
	Command(scriptPath string) []string
	// RuntimeFiles returns support files this runtime needs available in the
	// .mdl directory under a script's working directory (e.g. a sourced
	// runtime.sh); callers write them there before each script runs.
	RuntimeFiles() map[string]string
}

// Registry resolves a corpus.Version's declared language to its Runtime,
// defaulting to bash when unspecified (spec §6: "ext reflects the
// language").
type Registry struct {
	runtimes map[string]Runtime
	fallback string
}

// NewRegistry returns a Registry pre-populated with the bash and python
// runtimes (spec's own two language runtimes in original_source).
func NewRegistry() *Registry {
	r := &Registry{runtimes: map[string]Runtime{}, fallback: "bash"}
	r.Register(NewBash())
	r.Register(NewPython())
	return r
}

// Register adds or replaces a runtime under its own Name().
func (r *Registry) Register(rt Runtime) {
	r.runtimes[rt.Name()] = rt
}

// Get resolves a language name (empty string means the registry's fallback,
// bash) to its Runtime.
func (r *Registry) Get(language string) (Runtime, error) {
	if language == "" {
		language = r.fallback
	}
	rt, ok := r.runtimes[language]
	if !ok {
		return nil, fmt.Errorf("langruntime: no runtime registered for language %q", language)
	}
	return rt, nil
}
