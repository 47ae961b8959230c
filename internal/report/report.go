// Package report renders run results as the JSON document written next to
// the artifacts and posted to run callbacks.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/copyleftdev/scryshot/internal/scenario"
)

const (
	Version  = "1"
	FileName = "report.json"
)

type Report struct {
	Version     string               `json:"version"`
	RunID       string               `json:"run_id,omitempty"`
	BaseURL     string               `json:"base_url"`
	Backend     string               `json:"backend,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
	Summary     scenario.Summary     `json:"summary"`
	Results     []scenario.RunResult `json:"results"`
	Error       string               `json:"error,omitempty"`
}

// New builds a report. runErr is the error Run returned, if any; results
// may be empty when the run never started.
func New(runID, baseURL, backend string, results []scenario.RunResult, runErr error) Report {
	if results == nil {
		results = []scenario.RunResult{}
	}
	r := Report{
		Version:     Version,
		RunID:       runID,
		BaseURL:     baseURL,
		Backend:     backend,
		GeneratedAt: time.Now().UTC(),
		Summary:     scenario.Summarize(results),
		Results:     results,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

func (r Report) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Write stores the report as dir/report.json and returns the path.
func Write(dir string, r Report) (string, error) {
	data, err := r.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
