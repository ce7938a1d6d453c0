package wildcard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdl-run/mdl/internal/corpus"
	"github.com/mdl-run/mdl/internal/mdlerrors"
)

func axisDefs() map[string]corpus.Axis {
	return map[string]corpus.Axis{
		"mode": {Name: "mode", Values: []string{"devA", "devB", "prod"}, Default: "devA"},
		"arch": {Name: "arch", Values: []string{"amd64", "arm64"}},
	}
}

func TestExpandIsIdentityWithoutPatterns(t *testing.T) {
	invs := []Invocation{{Action: "build", Axes: map[string]string{"mode": "prod"}}}
	out, err := Expand(axisDefs(), nil, invs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "prod", out[0].Axes["mode"])
}

func TestExpandStarMatchesAllValues(t *testing.T) {
	invs := []Invocation{{Action: "build", Axes: map[string]string{"arch": "*"}}}
	out, err := Expand(axisDefs(), nil, invs)
	require.NoError(t, err)
	require.Len(t, out, 2)
	var got []string
	for _, o := range out {
		got = append(got, o.Axes["arch"])
	}
	assert.ElementsMatch(t, []string{"amd64", "arm64"}, got)
}

func TestExpandPrefixPattern(t *testing.T) {
	invs := []Invocation{{Action: "build", Axes: map[string]string{"mode": "dev*"}}}
	out, err := Expand(axisDefs(), nil, invs)
	require.NoError(t, err)
	require.Len(t, out, 2)
	var got []string
	for _, o := range out {
		got = append(got, o.Axes["mode"])
	}
	assert.ElementsMatch(t, []string{"devA", "devB"}, got)
}

func TestExpandCartesianProductAcrossAxes(t *testing.T) {
	invs := []Invocation{{Action: "build", Axes: map[string]string{"mode": "dev*", "arch": "*"}}}
	out, err := Expand(axisDefs(), nil, invs)
	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestExpandEmptyMatchIsFatal(t *testing.T) {
	invs := []Invocation{{Action: "build", Axes: map[string]string{"mode": "staging*"}}}
	_, err := Expand(axisDefs(), nil, invs)
	require.Error(t, err)
	assert.True(t, mdlerrors.HasCode(err, mdlerrors.CodeNoMatch))
}

func TestExpandGlobalAxisDistributesAcrossInvocations(t *testing.T) {
	invs := []Invocation{{Action: "build"}, {Action: "test"}}
	out, err := Expand(axisDefs(), map[string]string{"arch": "*"}, invs)
	require.NoError(t, err)
	assert.Len(t, out, 4) // 2 invocations * 2 arch values
}

func TestExpandPerInvocationOverridesGlobal(t *testing.T) {
	invs := []Invocation{{Action: "build", Axes: map[string]string{"mode": "prod"}}}
	out, err := Expand(axisDefs(), map[string]string{"mode": "dev*"}, invs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "prod", out[0].Axes["mode"])
}

func TestExpandUnknownAxis(t *testing.T) {
	invs := []Invocation{{Action: "build", Axes: map[string]string{"region": "*"}}}
	_, err := Expand(axisDefs(), nil, invs)
	require.Error(t, err)
	assert.True(t, mdlerrors.HasCode(err, mdlerrors.CodeUnknownAxis))
}
