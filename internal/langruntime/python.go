package langruntime

import (
	"encoding/json"
	"fmt"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/expansion"
)

// Python is the sidecar-context runtime: values are never interpolated into
// the script text; instead they are written to a companion context.json and
// exposed through the "mdl" object the runtime header imports, so arrays and
// objects pass through as native Python values (spec §4.2: "for
// structured-language runtimes, passed through as native arrays via a
// sidecar context file").
type Python struct{}

// NewPython returns the python runtime.
func NewPython() *Python { return &Python{} }

func (p *Python) Name() string { return "python" }

type pythonContext struct {
	Sys     map[string]string                      `json:"sys"`
	Env     map[string]string                      `json:"env"`
	Args    map[string]interface{}                 `json:"args"`
	Flags   map[string]bool                         `json:"flags"`
	Actions map[string]map[string]expansion.Return `json:"actions"`
}

func (p *Python) Prepare(version *corpus.Version, ctx *expansion.Context, actionKey string, outputJSONPath, workingDir string) (*Prepared, error) {
	args := make(map[string]interface{}, len(ctx.Args))
	for name, v := range ctx.Args {
		if v.Array != nil {
			args[name] = v.Array
		} else {
			args[name] = v.Scalar
		}
	}

	actions := make(map[string]map[string]expansion.Return, len(ctx.Strong)+len(ctx.Weak))
	for name, outputs := range ctx.Strong {
		actions[name] = outputs
	}
	for name, outputs := range ctx.Weak {
		if _, ok := actions[name]; !ok {
			actions[name] = outputs
		}
	}

	data, err := json.MarshalIndent(pythonContext{
		Sys:     ctx.Sys,
		Env:     ctx.Env,
		Args:    args,
		Flags:   ctx.Flags,
		Actions: actions,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("langruntime: marshal python context for %s: %w", actionKey, err)
	}

	init := fmt.Sprintf(`#!/usr/bin/env python3
import sys
sys.path.insert(0, %q)

import runtime as _mdl_runtime
_mdl_runtime._initialize_runtime(%q, %q)
from runtime import mdl

`, workingDir+"/.mdl", workingDir+"/context.json", outputJSONPath)

	return &Prepared{
		Content:   init + version.Script,
		Extension: ".py",
		Sidecars:  map[string]string{"context.json": string(data)},
	}, nil
}

func (p *Python) Command(scriptPath string) []string {
	return []string{"python3", scriptPath}
}

func (p *Python) RuntimeFiles() map[string]string {
	return map[string]string{"runtime.py": pythonRuntimePy}
}

// pythonRuntimePy mirrors the Python runtime's own dep()/weak()/soft()
// no-ops (dependencies are extracted at compile time, not runtime),
// ret()/retain() side effects, and the mdl context object every generated
// script imports.
const pythonRuntimePy = `"""mdl Python runtime: provides the mdl context object."""
import atexit
import json
import os
from pathlib import Path


class MdlContext:
    def __init__(self, data, collector):
        self._data = data
        self._collector = collector

    @property
    def sys(self):
        return self._data.get("sys", {})

    @property
    def env(self):
        return self._data.get("env", {})

    @property
    def args(self):
        return self._data.get("args", {})

    @property
    def flags(self):
        return self._data.get("flags", {})

    @property
    def actions(self):
        return self._data.get("actions", {})

    def dep(self, dependency):
        pass

    def weak(self, dependency):
        pass

    def soft(self, dependency, retainer):
        pass

    def retain(self):
        signal = os.environ.get("MDL_RETAIN_SIGNAL_FILE")
        if signal:
            Path(signal).touch()

    def ret(self, name, value, type_str):
        valid = {"int", "string", "bool", "file", "directory"}
        if type_str not in valid:
            raise ValueError(f"invalid return type: {type_str}")
        if type_str == "int":
            value = int(value)
        elif type_str == "string":
            value = str(value)
        elif type_str == "bool":
            value = bool(value)
        elif type_str in ("file", "directory"):
            value = str(value)
        self._collector.add(name, type_str, value)


class _OutputCollector:
    def __init__(self):
        self.outputs = {}
        self.output_path = None

    def add(self, name, type_str, value):
        self.outputs[name] = {"type": type_str, "value": value}

    def flush(self):
        if self.output_path:
            with open(self.output_path, "w") as f:
                json.dump(self.outputs, f, indent=2)


_collector = _OutputCollector()
mdl = None


def _initialize_runtime(context_json_path, output_json_path):
    global mdl
    with open(context_json_path) as f:
        data = json.load(f)
    _collector.output_path = output_json_path
    atexit.register(_collector.flush)
    mdl = MdlContext(data, _collector)
`
