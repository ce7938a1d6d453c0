// Package rundir implements the run directory layout (spec §6): one
// timestamped directory per invocation of mdl, holding one subdirectory per
// retained action plus a manifest describing the run as a whole.
package rundir

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mdl-run/mdl/internal/ctxkey"
)

const timestampLayout = "20060102-150405"

// Root is one run's root directory: <project-root>/.mdl/runs/<stamp>/.
type Root struct {
	Path string
}

// NewRoot derives a fresh run directory path under projectRoot/.mdl/runs,
// named <YYYYMMDD-HHMMSS-NNNNNNNNN> (spec §6). now and nanos are supplied by
// the caller rather than read from time.Now()/a clock, keeping this package
// pure and trivially testable.
func NewRoot(projectRoot string, now int64, nanos int) Root {
	return Root{Path: filepath.Join(runsDir(projectRoot), stamp(now, nanos))}
}

func runsDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".mdl", "runs")
}

func stamp(unixSeconds int64, nanos int) string {
	t := time.Unix(unixSeconds, 0).UTC().Format(timestampLayout)
	return fmt.Sprintf("%s-%09d", t, nanos)
}

// Create makes the run root directory (and its .mdl/runs ancestors).
func (r Root) Create() error {
	return os.MkdirAll(r.Path, 0o755)
}

// LatestPrevious returns the lexicographically greatest existing run
// directory under projectRoot/.mdl/runs other than the current one, or ""
// if none exists (spec §6: "Continue-mode reads from the lexicographically
// greatest pre-existing run directory by default").
func LatestPrevious(projectRoot string, current Root) (string, error) {
	dir := runsDir(projectRoot)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var names []string
	currentBase := filepath.Base(current.Path)
	for _, e := range entries {
		if !e.IsDir() || e.Name() == currentBase {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// DirName computes a retained ActionKey's per-node subdirectory name from
// its human-readable label (spec §4.8 step 1): verbatim if ≤ 64 characters,
// else truncated to exactly 64 characters ending in a 7-hex-character hash
// of the original label, with the "#action-suffix" (if the label carried
// one) preserved after the hash so the action name stays visible.
func DirName(label string) string {
	if len(label) <= 64 {
		return label
	}

	suffix := ""
	prefix := label
	if i := strings.LastIndex(label, "#"); i >= 0 {
		suffix = label[i:]
		prefix = label[:i]
	}

	sum := sha1.Sum([]byte(label))
	hash := hex.EncodeToString(sum[:])[:7]

	// Total length must be exactly 64: "<prefix>...<hash><suffix>". If the
	// suffix alone leaves no room for a usable prefix, drop it and truncate
	// the whole label instead, so the 64-character ceiling always holds.
	fixed := "..." + hash + suffix
	keep := 64 - len(fixed)
	if keep <= 0 {
		fixed = "..." + hash
		keep = 64 - len(fixed)
		if keep > len(label) {
			keep = len(label)
		}
		return label[:keep] + fixed
	}
	if keep > len(prefix) {
		keep = len(prefix)
	}
	return prefix[:keep] + fixed
}

// NodeDir returns the filesystem path for key's subdirectory under r,
// computed from label via DirName.
func (r Root) NodeDir(key ctxkey.ActionKey, label string) string {
	return filepath.Join(r.Path, DirName(label))
}

// Meta is the per-node meta.json document (spec §4.8 step 5).
type Meta struct {
	ActionLabel     string `json:"action_label"`
	Success         bool   `json:"success"`
	StartedAt       string `json:"started_at"` // ISO-8601
	EndedAt         string `json:"ended_at"`   // ISO-8601
	DurationSeconds float64 `json:"duration_seconds"`
	ExitCode        int    `json:"exit_code"`
	Error           string `json:"error,omitempty"`
	Restored        bool   `json:"restored,omitempty"`
}

// WriteMeta writes m as meta.json inside nodeDir. It writes to a temp file
// and renames into place so a concurrent continue-mode reader never
// observes a partial file (spec §5: "meta.json writes are atomic from the
// reader's perspective").
func WriteMeta(nodeDir string, m Meta) error {
	return writeAtomicJSON(filepath.Join(nodeDir, "meta.json"), m)
}

// ReadMeta reads and parses nodeDir/meta.json.
func ReadMeta(nodeDir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(nodeDir, "meta.json"))
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Output is a single named, typed return value as persisted in output.json.
type Output struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// WriteOutputs writes the output.json document.
func WriteOutputs(nodeDir string, outputs map[string]Output) error {
	return writeAtomicJSON(filepath.Join(nodeDir, "output.json"), outputs)
}

// ReadOutputs reads and parses nodeDir/output.json.
func ReadOutputs(nodeDir string) (map[string]Output, error) {
	data, err := os.ReadFile(filepath.Join(nodeDir, "output.json"))
	if err != nil {
		return nil, err
	}
	var out map[string]Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Manifest is the supplemental run.json written at the run root: additive
// bookkeeping (goal list, CLI flags, start time) that never changes
// restoration semantics, which depend only on per-node meta.json/output.json.
type Manifest struct {
	Goals      []string `json:"goals"`
	Sequential bool     `json:"sequential"`
	Continue   string   `json:"continue_from,omitempty"`
	StartedAt  string   `json:"started_at"`
}

// WriteManifest writes run.json at the run root.
func (r Root) WriteManifest(m Manifest) error {
	return writeAtomicJSON(filepath.Join(r.Path, "run.json"), m)
}

func writeAtomicJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
