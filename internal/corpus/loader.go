package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mdl-run/mdl/internal/mdlerrors"
)

// rawDocument mirrors the on-disk shape of one definition file. A corpus is
// the union of every document found under a directory (spec §6: "a parsed
// document is a bundle of axis map, argument map, flag map, passthrough-env
// list, action map..."); mdl treats one YAML document as one bundle and
// merges bundles the way a single already-parsed corpus would have arrived.
type rawDocument struct {
	Axes           map[string]Axis      `yaml:"axes,omitempty" validate:"omitempty,dive"`
	Arguments      map[string]Argument  `yaml:"arguments,omitempty" validate:"omitempty,dive"`
	Flags          map[string]Flag      `yaml:"flags,omitempty"`
	PassthroughEnv []string             `yaml:"passthrough_env,omitempty"`
	Sequential     bool                 `yaml:"sequential,omitempty"`
	Actions        map[string]rawAction `yaml:"actions,omitempty" validate:"omitempty,dive"`
}

type rawAction struct {
	Versions []Version `yaml:"versions" validate:"required,min=1,dive"`
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Load reads every *.yaml/*.yml file directly under dir and merges them into
// a single Corpus. Duplicate axis, argument, flag, or action names across
// files are rejected (spec §9(c): "fail fast and require uniqueness").
func Load(dir string) (*Corpus, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, mdlerrors.Wrap(mdlerrors.CodeMalformedCLI, "read corpus directory", "", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	return LoadFiles(files)
}

// LoadFiles merges the named definition files into a single Corpus.
func LoadFiles(paths []string) (*Corpus, error) {
	c := &Corpus{
		Axes:      map[string]Axis{},
		Arguments: map[string]Argument{},
		Flags:     map[string]Flag{},
		Actions:   map[string]Action{},
	}

	actionOrigin := map[string]string{}
	axisOrigin := map[string]string{}
	argOrigin := map[string]string{}
	flagOrigin := map[string]string{}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, mdlerrors.Wrap(mdlerrors.CodeMalformedCLI, "read definition file", "", err).WithLocation(path)
		}

		var doc rawDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, mdlerrors.Wrap(mdlerrors.CodeMalformedCLI, "parse definition file", "", err).WithLocation(path)
		}
		if err := structValidator.Struct(doc); err != nil {
			return nil, mdlerrors.Wrap(mdlerrors.CodeMalformedCLI, "validate definition file", "", err).WithLocation(path)
		}

		for name, axis := range doc.Axes {
			if prev, exists := axisOrigin[name]; exists {
				return nil, duplicateErr("axis", name, prev, path)
			}
			if err := validateAxisDefault(axis); err != nil {
				return nil, mdlerrors.Wrap(mdlerrors.CodeMalformedCLI, err.Error(), "", err).WithLocation(path)
			}
			axis.Name = name
			axis.Source = Location{File: path}
			c.Axes[name] = axis
			axisOrigin[name] = path
		}

		for name, arg := range doc.Arguments {
			if prev, exists := argOrigin[name]; exists {
				return nil, duplicateErr("argument", name, prev, path)
			}
			arg.Name = name
			arg.Source = Location{File: path}
			c.Arguments[name] = arg
			argOrigin[name] = path
		}

		for name, fl := range doc.Flags {
			if prev, exists := flagOrigin[name]; exists {
				return nil, duplicateErr("flag", name, prev, path)
			}
			fl.Name = name
			fl.Source = Location{File: path}
			c.Flags[name] = fl
			flagOrigin[name] = path
		}

		c.PassthroughEnv = append(c.PassthroughEnv, doc.PassthroughEnv...)
		if doc.Sequential {
			c.SequentialByDefault = true
		}

		for name, raw := range doc.Actions {
			if prev, exists := actionOrigin[name]; exists {
				return nil, duplicateErr("action", name, prev, path)
			}
			for i := range raw.Versions {
				raw.Versions[i].Source = Location{File: path}
			}
			c.Actions[name] = Action{Name: name, Versions: raw.Versions, Source: Location{File: path}}
			actionOrigin[name] = path
		}
	}

	return c, nil
}

func validateAxisDefault(axis Axis) error {
	if axis.Default == "" {
		return nil
	}
	for _, v := range axis.Values {
		if v == axis.Default {
			return nil
		}
	}
	return fmt.Errorf("axis default %q is not among its declared values", axis.Default)
}

func duplicateErr(kind, name, first, second string) error {
	return mdlerrors.New(mdlerrors.CodeConflictingDefinitions, fmt.Sprintf("duplicate %s definition %q", kind, name), "").
		WithLocation(fmt.Sprintf("%s, %s", first, second))
}
