package report

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/scryshot/internal/scenario"
)

func TestWriteAndRead(t *testing.T) {
	results := []scenario.RunResult{
		{Scenario: "stats", Status: scenario.StatusPassed, Artifacts: []string{"stats.png"}},
		{Scenario: "profile", Status: scenario.StatusFailed, Artifacts: []string{}, Failure: &scenario.Failure{
			StepIndex: 3,
			Step:      "assert_visible(text=Profiliniz güncellendi.)",
			Kind:      scenario.KindAssertion,
			Reason:    "expected text=Profiliniz güncellendi. to be visible within 5s",
		}},
	}
	dir := t.TempDir()

	path, err := Write(dir, New("run-1", "http://localhost:3000", "chromedp", results, nil))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, Version, got.Version)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, scenario.Summary{Total: 2, Passed: 1, Failed: 1}, got.Summary)
	require.Len(t, got.Results, 2)
	assert.Equal(t, scenario.KindAssertion, got.Results[1].Failure.Kind)
	assert.Empty(t, got.Error)
}

func TestNew_RunError(t *testing.T) {
	r := New("", "http://localhost:3000", "mock", nil, errors.New("launch mock browser: boom"))
	assert.NotNil(t, r.Results)
	assert.Equal(t, 0, r.Summary.Total)
	assert.Equal(t, "launch mock browser: boom", r.Error)

	data, err := r.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"results": []`)
	assert.NotContains(t, string(data), "run_id")
}
