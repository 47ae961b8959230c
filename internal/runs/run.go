package runs

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/copyleftdev/scryshot/internal/scenario"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed" // every scenario produced a result
	StatusFailed    Status = "failed"    // the run itself could not finish
)

// Request is a run submitted over the API.
type Request struct {
	BaseURL     string              `json:"base_url" yaml:"base_url"`
	Scenarios   []scenario.Scenario `json:"scenarios" yaml:"scenarios"`
	Options     *RequestOptions     `json:"options,omitempty" yaml:"options,omitempty"`
	CallbackURL string              `json:"callback_url,omitempty" yaml:"callback_url,omitempty"`
}

// RequestOptions override the server's run defaults for one run.
type RequestOptions struct {
	Headless         *bool  `json:"headless,omitempty"`
	DefaultTimeoutMS int    `json:"default_timeout_ms,omitempty"`
	DeviceProfile    string `json:"device_profile,omitempty"`
	SharedContext    *bool  `json:"shared_context,omitempty"`
}

type Run struct {
	ID          uuid.UUID            `json:"id"`
	Status      Status               `json:"status"`
	BaseURL     string               `json:"base_url"`
	Scenarios   []string             `json:"scenarios"`
	Results     []scenario.RunResult `json:"results"`
	Summary     scenario.Summary     `json:"summary"`
	Error       string               `json:"error,omitempty"`
	CallbackURL string               `json:"callback_url,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	ArtifactDir string               `json:"-"`
}

func newRun(req Request, artifactRoot string) *Run {
	id := uuid.New()
	names := make([]string, 0, len(req.Scenarios))
	for _, sc := range req.Scenarios {
		names = append(names, sc.Name)
	}
	now := time.Now().UTC()
	return &Run{
		ID:          id,
		Status:      StatusPending,
		BaseURL:     req.BaseURL,
		Scenarios:   names,
		Results:     []scenario.RunResult{},
		CallbackURL: req.CallbackURL,
		CreatedAt:   now,
		UpdatedAt:   now,
		ArtifactDir: filepath.Join(artifactRoot, id.String()),
	}
}

// clone returns a copy that shares nothing mutable with r.
func (r *Run) clone() *Run {
	c := *r
	c.Scenarios = append([]string(nil), r.Scenarios...)
	c.Results = append(make([]scenario.RunResult, 0, len(r.Results)), r.Results...)
	return &c
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}
