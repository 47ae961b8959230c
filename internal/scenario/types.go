package scenario

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Step kind constants
type StepKind string

const (
	StepNavigate      StepKind = "navigate"
	StepWaitFor       StepKind = "wait_for"
	StepClick         StepKind = "click"
	StepAssertVisible StepKind = "assert_visible"
	StepScreenshot    StepKind = "screenshot"
	StepType          StepKind = "type"
	StepSettle        StepKind = "settle"
)

// Navigation wait policies understood by navigate steps.
const (
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitNetworkIdle      = "networkidle"
)

// Step is a single browser interaction inside a scenario.
type Step struct {
	Kind       StepKind `json:"kind" yaml:"kind"`
	URL        string   `json:"url,omitempty" yaml:"url,omitempty"`
	Selector   string   `json:"selector,omitempty" yaml:"selector,omitempty"`
	Text       string   `json:"text,omitempty" yaml:"text,omitempty"`
	Value      string   `json:"value,omitempty" yaml:"value,omitempty"`
	Path       string   `json:"path,omitempty" yaml:"path,omitempty"`
	WaitUntil  string   `json:"wait_until,omitempty" yaml:"wait_until,omitempty"`
	DurationMS int      `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
	TimeoutMS  int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

func Navigate(url string) Step { return Step{Kind: StepNavigate, URL: url} }

// NavigateUntil navigates and waits for the given policy (load, domcontentloaded, networkidle).
func NavigateUntil(url, waitUntil string) Step {
	return Step{Kind: StepNavigate, URL: url, WaitUntil: waitUntil}
}

func WaitFor(selector string) Step { return Step{Kind: StepWaitFor, Selector: selector} }
func WaitForText(text string) Step { return Step{Kind: StepWaitFor, Text: text} }
func Click(selector string) Step { return Step{Kind: StepClick, Selector: selector} }
func AssertVisible(selector string) Step { return Step{Kind: StepAssertVisible, Selector: selector} }
func AssertText(text string) Step { return Step{Kind: StepAssertVisible, Text: text} }
func Screenshot(path string) Step { return Step{Kind: StepScreenshot, Path: path} }
func Type(selector, value string) Step { return Step{Kind: StepType, Selector: selector, Value: value} }

// Settle pauses for a fixed duration. Reserved for letting animations finish;
// use WaitFor for anything that can be observed in the DOM.
func Settle(d time.Duration) Step {
	return Step{Kind: StepSettle, DurationMS: int(d / time.Millisecond)}
}

// WithTimeout returns a copy of the step with its own timeout.
func (s Step) WithTimeout(d time.Duration) Step {
	s.TimeoutMS = int(d / time.Millisecond)
	return s
}

// Target returns the locator the step acts on. A step that names visible
// text instead of a selector is matched as "text=<text>".
func (s Step) Target() string {
	if s.Selector != "" {
		return s.Selector
	}
	if s.Text != "" {
		return "text=" + s.Text
	}
	return ""
}

// Timeout returns the step's own timeout, falling back to def.
func (s Step) Timeout(def time.Duration) time.Duration {
	if s.TimeoutMS > 0 {
		return time.Duration(s.TimeoutMS) * time.Millisecond
	}
	return def
}

func (s Step) Validate() error {
	switch s.Kind {
	case StepNavigate:
		if s.URL == "" {
			return errors.New("navigate step requires a url")
		}
		switch s.WaitUntil {
		case "", WaitLoad, WaitDOMContentLoaded, WaitNetworkIdle:
		default:
			return fmt.Errorf("navigate step has unknown wait_until %q", s.WaitUntil)
		}
	case StepWaitFor, StepAssertVisible:
		if s.Target() == "" {
			return fmt.Errorf("%s step requires a selector or text", s.Kind)
		}
	case StepClick:
		if s.Target() == "" {
			return errors.New("click step requires a selector")
		}
	case StepType:
		if s.Target() == "" {
			return errors.New("type step requires a selector")
		}
	case StepScreenshot:
		if s.Path != "" {
			if filepath.IsAbs(s.Path) || strings.HasPrefix(filepath.Clean(s.Path), "..") {
				return fmt.Errorf("screenshot path %q must stay inside the artifact directory", s.Path)
			}
		}
	case StepSettle:
		if s.DurationMS <= 0 {
			return errors.New("settle step requires a positive duration_ms")
		}
	case "":
		return errors.New("step kind is required")
	default:
		return fmt.Errorf("unknown step kind: %s", s.Kind)
	}
	if s.TimeoutMS < 0 {
		return errors.New("timeout_ms cannot be negative")
	}
	return nil
}

// String renders the step the way it appears in failure reasons.
func (s Step) String() string {
	switch s.Kind {
	case StepNavigate:
		return fmt.Sprintf("navigate(%s)", s.URL)
	case StepScreenshot:
		return fmt.Sprintf("screenshot(%s)", s.Path)
	case StepType:
		return fmt.Sprintf("type(%s)", s.Target())
	case StepSettle:
		return fmt.Sprintf("settle(%dms)", s.DurationMS)
	default:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Target())
	}
}

// Scenario is a named, ordered sequence of steps.
type Scenario struct {
	Name   string `json:"name" yaml:"name"`
	Device string `json:"device,omitempty" yaml:"device,omitempty"`
	Skip   bool   `json:"skip,omitempty" yaml:"skip,omitempty"`
	Steps  []Step `json:"steps" yaml:"steps"`
}

func New(name string, steps ...Step) Scenario {
	return Scenario{Name: name, Steps: steps}
}

// Slug is the scenario's directory name under the artifact directory.
func (s Scenario) Slug() string {
	return Slugify(s.Name)
}

// Validate checks every step and that no two artifacts of the scenario,
// screenshots or failure snapshots, would be written to the same file.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("scenario name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", s.Name)
	}
	owners := make(map[string]string, len(s.Steps))
	for i := range s.Steps {
		owners[SnapshotName(i)] = fmt.Sprintf("the failure snapshot of step %d", i)
	}
	for i, step := range s.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("scenario %q step %d: %w", s.Name, i, err)
		}
		if step.Kind != StepScreenshot {
			continue
		}
		name := step.ArtifactName(i)
		if owner, ok := owners[name]; ok {
			return fmt.Errorf("scenario %q step %d: screenshot %q collides with %s", s.Name, i, name, owner)
		}
		owners[name] = fmt.Sprintf("the screenshot of step %d", i)
	}
	return nil
}

// DefaultScreenshotName names the screenshot of a step that gave no path.
func DefaultScreenshotName(index int) string {
	return fmt.Sprintf("step-%02d.png", index)
}

// SnapshotName names the DOM snapshot written when the step at index fails.
func SnapshotName(index int) string {
	return fmt.Sprintf("step-%02d-failure.html", index)
}

// ArtifactName is the file a screenshot step at index writes, relative to
// the scenario's artifact directory.
func (s Step) ArtifactName(index int) string {
	if s.Path == "" {
		return DefaultScreenshotName(index)
	}
	return filepath.ToSlash(filepath.Clean(s.Path))
}

// ValidateAll checks a scenario sequence before a run: it must be non-empty
// and scenario names must map to distinct artifact directories.
func ValidateAll(scenarios []Scenario) error {
	if len(scenarios) == 0 {
		return errors.New("at least one scenario is required")
	}
	seen := make(map[string]string, len(scenarios))
	for _, sc := range scenarios {
		if err := sc.Validate(); err != nil {
			return err
		}
		slug := sc.Slug()
		if prev, ok := seen[slug]; ok {
			return fmt.Errorf("scenarios %q and %q share artifact directory %q", prev, sc.Name, slug)
		}
		seen[slug] = sc.Name
	}
	return nil
}

// Result status constants
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ErrorKind classifies why a scenario failed.
type ErrorKind string

const (
	KindStepTimeout ErrorKind = "step_timeout"
	KindAssertion   ErrorKind = "assertion"
	KindNavigation  ErrorKind = "navigation"
	KindIO          ErrorKind = "io"
	KindStep        ErrorKind = "step"
	KindContext     ErrorKind = "context"
	KindCanceled    ErrorKind = "canceled"
)

// Failure records the first failing step of a scenario.
type Failure struct {
	StepIndex int       `json:"step_index"`
	Step      string    `json:"step"`
	Kind      ErrorKind `json:"kind"`
	Reason    string    `json:"reason"`
	Snapshot  string    `json:"snapshot,omitempty"` // simplified DOM written next to the artifacts
}

func (f *Failure) Error() string {
	return fmt.Sprintf("step %d %s: %s", f.StepIndex, f.Step, f.Reason)
}

// RunResult is the outcome of one scenario.
type RunResult struct {
	Scenario    string    `json:"scenario"`
	Status      Status    `json:"status"`
	Artifacts   []string  `json:"artifacts"`
	ArtifactDir string    `json:"artifact_dir"`
	Failure     *Failure  `json:"failure,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// ArtifactPaths returns the on-disk location of every artifact.
func (r RunResult) ArtifactPaths() []string {
	paths := make([]string, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		paths = append(paths, filepath.Join(r.ArtifactDir, a))
	}
	return paths
}

func (r RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary counts results by status.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func Summarize(results []RunResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// AnyFailed reports whether a run should be treated as failed by a caller
// such as a CI wrapper.
func AnyFailed(results []RunResult) bool {
	return Summarize(results).Failed > 0
}
