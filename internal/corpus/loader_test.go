package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdl-run/mdl/internal/mdlerrors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "actions.yaml", `
axes:
  mode:
    values: [dev, prod]
    default: dev
arguments:
  name:
    type: string
    default: world
flags:
  verbose: {}
actions:
  hello:
    versions:
      - script: "echo hello ${arg.name}"
        returns:
          out:
            type: string
            value: "hello"
`)

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Contains(t, c.Axes, "mode")
	assert.Equal(t, "dev", c.Axes["mode"].Default)
	assert.Contains(t, c.Actions, "hello")
	assert.Len(t, c.Actions["hello"].Versions, 1)
	assert.False(t, c.Arguments["name"].Required())
}

func TestLoadMergesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `
actions:
  build:
    versions:
      - script: "echo build"
`)
	writeFile(t, dir, "b.yaml", `
actions:
  test:
    versions:
      - script: "echo test"
`)

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Contains(t, c.Actions, "build")
	assert.Contains(t, c.Actions, "test")
}

func TestLoadRejectsDuplicateActionAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `
actions:
  build:
    versions:
      - script: "echo 1"
`)
	writeFile(t, dir, "b.yaml", `
actions:
  build:
    versions:
      - script: "echo 2"
`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, mdlerrors.HasCode(err, mdlerrors.CodeConflictingDefinitions))
}

func TestLoadRejectsInvalidAxisDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `
axes:
  mode:
    values: [dev, prod]
    default: staging
actions:
  build:
    versions:
      - script: "echo 1"
`)

	_, err := Load(dir)
	require.Error(t, err)
}

func TestRequiredAxesFromVersionConditions(t *testing.T) {
	versions := []Version{
		{Conditions: []Condition{{Axis: "mode", Value: "dev"}, {Axis: "platform", Value: "linux"}}},
		{Conditions: []Condition{{Axis: "arch", Value: "amd64"}}},
	}
	axes := RequiredAxes(versions)
	assert.ElementsMatch(t, []string{"mode", "arch"}, axes)
}

func TestVersionMatches(t *testing.T) {
	v := Version{Conditions: []Condition{{Axis: "mode", Value: "dev"}}}
	assert.True(t, v.Matches(map[string]string{"mode": "dev"}, "linux"))
	assert.False(t, v.Matches(map[string]string{"mode": "prod"}, "linux"))

	vp := Version{Conditions: []Condition{{Axis: "platform", Value: "darwin"}}}
	assert.True(t, vp.Matches(nil, "darwin"))
	assert.False(t, vp.Matches(nil, "linux"))
}
