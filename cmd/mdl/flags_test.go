package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokensSingleGoalWithAxisArgFlag(t *testing.T) {
	parsed, err := parseTokens([]string{":build", "mode=dev", "--version=1.2.3", "--verbose"})
	require.NoError(t, err)

	require.Len(t, parsed.Goals, 1)
	assert.Equal(t, "build", parsed.Goals[0].Action)
	assert.Equal(t, "dev", parsed.Goals[0].Axes["mode"])
	assert.Equal(t, "1.2.3", parsed.Goals[0].Args["version"])
	assert.True(t, parsed.Goals[0].Flags["verbose"])
}

func TestParseTokensMultipleGoalsScopeIndependently(t *testing.T) {
	parsed, err := parseTokens([]string{":build", "mode=dev", ":test", "mode=prod"})
	require.NoError(t, err)

	require.Len(t, parsed.Goals, 2)
	assert.Equal(t, "dev", parsed.Goals[0].Axes["mode"])
	assert.Equal(t, "prod", parsed.Goals[1].Axes["mode"])
}

func TestParseTokensGlobalAxisBeforeAnyGoalApplies(t *testing.T) {
	parsed, err := parseTokens([]string{"mode=prod", ":build"})
	require.NoError(t, err)

	assert.Equal(t, "prod", parsed.GlobalAxes["mode"])
	assert.Empty(t, parsed.Goals[0].Axes)
}

func TestParseTokensExecutionToggles(t *testing.T) {
	parsed, err := parseTokens([]string{":build", "--dry-run", "--sequential", "--keep-run-dir", "--suppress-on-fail", "--watch"})
	require.NoError(t, err)

	assert.True(t, parsed.DryRun)
	assert.True(t, parsed.Sequential)
	assert.True(t, parsed.KeepRunDir)
	assert.True(t, parsed.SuppressOnFail)
	assert.True(t, parsed.Watch)
}

func TestParseTokensContinueWithExplicitRunDir(t *testing.T) {
	parsed, err := parseTokens([]string{":build", "--continue=20260101-000000-000000000"})
	require.NoError(t, err)

	assert.True(t, parsed.Continue)
	assert.Equal(t, "20260101-000000-000000000", parsed.ContinueFrom)
}

func TestParseTokensOutputFile(t *testing.T) {
	parsed, err := parseTokens([]string{":build", "--output=/tmp/out.json"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out.json", parsed.OutputFile)
}

func TestParseTokensRejectsEmptyGoal(t *testing.T) {
	_, err := parseTokens([]string{":"})
	assert.Error(t, err)
}

func TestParseTokensRejectsNoGoals(t *testing.T) {
	_, err := parseTokens([]string{"mode=dev"})
	assert.Error(t, err)
}

func TestParseTokensRejectsMalformedAxis(t *testing.T) {
	_, err := parseTokens([]string{":build", "=dev"})
	assert.Error(t, err)
}

func TestParseTokensRejectsUnrecognizedToken(t *testing.T) {
	_, err := parseTokens([]string{":build", "???"})
	assert.Error(t, err)
}
