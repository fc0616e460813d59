package main

import (
	"bytes"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraindex/internal/chaos"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("LIBRAINDEX_LOG_LEVEL", "error")

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestGameDayReport(t *testing.T) {
	out, _, err := execute(t, "--only", "empty-key-rejection,independent-tag-lists", "--name", "Smoke")
	require.NoError(t, err)

	assert.Contains(t, out, "Starting Game Day: Smoke")
	assert.Contains(t, out, "Experiment 1/2: empty-key-rejection")
	assert.Contains(t, out, "Experiment 2/2: independent-tag-lists")
	assert.Contains(t, out, "2/2 hypotheses held")
}

func TestGameDayJSONResults(t *testing.T) {
	out, report, err := execute(t, "--only", "loan-after-removal", "--json")
	require.NoError(t, err)

	var results []chaos.Result
	require.NoError(t, jsoniter.ConfigFastest.UnmarshalFromString(out, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "loan-after-removal", results[0].ExperimentName)
	assert.True(t, results[0].HypothesisHeld)
	assert.Contains(t, report, "Experiment 1/1: loan-after-removal")
}

func TestUnknownExperiment(t *testing.T) {
	_, _, err := execute(t, "--only", "no-such-experiment")
	assert.ErrorContains(t, err, `unknown experiment "no-such-experiment"`)
}
