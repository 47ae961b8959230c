package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/scryshot/internal/auth"
	"github.com/copyleftdev/scryshot/internal/backend"
	"github.com/copyleftdev/scryshot/internal/dom"
	"github.com/copyleftdev/scryshot/internal/metrics"
	"github.com/copyleftdev/scryshot/internal/scenario"
)

func artifactDir(root string, sc scenario.Scenario) string {
	return filepath.Join(root, sc.Slug())
}

// execution is the state of one scenario on its page.
type execution struct {
	r      *Runner
	page   backend.Page
	plan   *plan
	dir    string
	logger *zap.Logger
	result *scenario.RunResult
}

func (r *Runner) runScenario(ctx context.Context, contexts *contextPool, p *plan, sc scenario.Scenario, runLogger *zap.Logger) scenario.RunResult {
	if sc.Skip {
		return r.skipped(sc, p.opts, "marked skip")
	}

	logger := runLogger.With(zap.String("scenario", sc.Name))
	res := scenario.RunResult{
		Scenario:    sc.Name,
		Status:      scenario.StatusPassed,
		Artifacts:   []string{},
		ArtifactDir: artifactDir(p.opts.ArtifactDir, sc),
		StartedAt:   r.now(),
	}
	logger.Info("scenario started", zap.Int("steps", len(sc.Steps)))

	device := p.devices[sc.Name]
	if device == nil {
		device = p.device
	}
	bc, release, err := contexts.acquire(ctx, sc, device)
	if err != nil {
		r.fail(&res, logger, failureFrom(-1, "acquire context", &ContextError{Err: err}))
		res.FinishedAt = r.now()
		return res
	}
	defer release()

	page, err := bc.NewPage(ctx)
	if err != nil {
		r.fail(&res, logger, failureFrom(-1, "open page", &ContextError{Err: err}))
		res.FinishedAt = r.now()
		return res
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debug("closing page", zap.Error(err))
		}
	}()

	ex := &execution{r: r, page: page, plan: p, dir: res.ArtifactDir, logger: logger, result: &res}
	for i, step := range sc.Steps {
		if err := ex.step(ctx, i, step); err != nil {
			if ctx.Err() != nil && !errors.As(err, new(*CanceledError)) {
				err = &CanceledError{Err: ctx.Err()}
			}
			f := failureFrom(i, step.String(), err)
			f.Snapshot = ex.snapshot(ctx, i)
			r.fail(&res, logger, f)
			break
		}
	}

	res.FinishedAt = r.now()
	if res.Status == scenario.StatusPassed {
		logger.Info("scenario passed", zap.Strings("artifacts", res.Artifacts), zap.Duration("duration", res.Duration()))
	}
	return res
}

func (r *Runner) fail(res *scenario.RunResult, logger *zap.Logger, f *scenario.Failure) {
	res.Status = scenario.StatusFailed
	res.Failure = f
	metrics.RecordStepFailure(stepKindOf(f.Step), string(f.Kind))
	logger.Warn("scenario failed",
		zap.Int("step", f.StepIndex),
		zap.String("step_desc", f.Step),
		zap.String("kind", string(f.Kind)),
		zap.String("reason", f.Reason),
	)
}

// stepKindOf recovers the step kind from its rendered form for metric labels.
func stepKindOf(desc string) string {
	for i, c := range desc {
		if c == '(' {
			return desc[:i]
		}
	}
	return desc
}

// step runs one step under its own deadline.
func (ex *execution) step(ctx context.Context, index int, step scenario.Step) error {
	timeout := step.Timeout(ex.plan.opts.DefaultTimeout)

	if step.Kind == scenario.StepSettle {
		return settle(ctx, time.Duration(step.DurationMS)*time.Millisecond)
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch step.Kind {
	case scenario.StepNavigate:
		target, err := resolveURL(ex.plan.base, step.URL)
		if err != nil {
			return &NavigationError{URL: step.URL, Err: err}
		}
		if err := ex.page.Goto(stepCtx, target, backend.ParseWaitPolicy(step.WaitUntil)); err != nil {
			if backend.IsTimeout(err) {
				return &StepTimeoutError{Target: "navigation to " + target, Timeout: timeout, Err: err}
			}
			return &NavigationError{URL: target, Err: err}
		}
		return nil

	case scenario.StepWaitFor:
		loc, err := backend.ParseLocator(step.Target())
		if err != nil {
			return &StepError{Step: step.String(), Err: err}
		}
		if err := ex.page.WaitVisible(stepCtx, loc); err != nil {
			if backend.IsTimeout(err) {
				return &StepTimeoutError{Target: loc.Raw, Timeout: timeout, Err: err}
			}
			return &StepError{Step: step.String(), Err: err}
		}
		return nil

	case scenario.StepAssertVisible:
		loc, err := backend.ParseLocator(step.Target())
		if err != nil {
			return &StepError{Step: step.String(), Err: err}
		}
		if err := ex.page.WaitVisible(stepCtx, loc); err != nil {
			if backend.IsTimeout(err) || errors.Is(err, backend.ErrNotFound) {
				return &AssertionFailure{Target: loc.Raw, Timeout: timeout, Err: err}
			}
			return &StepError{Step: step.String(), Err: err}
		}
		return nil

	case scenario.StepClick:
		loc, err := backend.ParseLocator(step.Target())
		if err != nil {
			return &StepError{Step: step.String(), Err: err}
		}
		if err := ex.page.Click(stepCtx, loc); err != nil {
			if backend.IsTimeout(err) {
				return &StepTimeoutError{Target: loc.Raw, Timeout: timeout, Err: err}
			}
			return &StepError{Step: step.String(), Err: err}
		}
		return nil

	case scenario.StepType:
		loc, err := backend.ParseLocator(step.Target())
		if err != nil {
			return &StepError{Step: step.String(), Err: err}
		}
		value, err := auth.ResolveValue(step.Value, ex.plan.opts.TOTPSecret, ex.r.now())
		if err != nil {
			return &StepError{Step: step.String(), Err: err}
		}
		if err := ex.page.Fill(stepCtx, loc, value); err != nil {
			if backend.IsTimeout(err) {
				return &StepTimeoutError{Target: loc.Raw, Timeout: timeout, Err: err}
			}
			return &StepError{Step: step.String(), Err: err}
		}
		return nil

	case scenario.StepScreenshot:
		return ex.screenshot(stepCtx, index, step)

	default:
		return &StepError{Step: step.String(), Err: fmt.Errorf("unsupported step kind %q", step.Kind)}
	}
}

func (ex *execution) screenshot(ctx context.Context, index int, step scenario.Step) error {
	name := step.ArtifactName(index)
	buf, err := ex.page.Screenshot(ctx)
	if err != nil {
		return &IOError{Path: name, Err: fmt.Errorf("capture: %w", err)}
	}
	if len(buf) == 0 {
		return &IOError{Path: name, Err: errors.New("capture returned no data")}
	}

	path := filepath.Join(ex.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IOError{Path: name, Err: err}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return &IOError{Path: name, Err: err}
	}

	metrics.RecordScreenshot(len(buf))
	ex.result.Artifacts = append(ex.result.Artifacts, name)
	ex.logger.Info("screenshot saved", zap.String("artifact", path), zap.Int("bytes", len(buf)))
	return nil
}

// snapshot writes the simplified DOM of the failing page next to the
// screenshots and returns its name, or "" when it could not be captured.
func (ex *execution) snapshot(ctx context.Context, index int) string {
	if ctx.Err() != nil {
		return ""
	}
	snapCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	html, err := ex.page.Content(snapCtx)
	if err != nil {
		ex.logger.Debug("failure snapshot unavailable", zap.Error(err))
		return ""
	}
	simplified, err := dom.GetSimplifiedDOM(html)
	if err != nil {
		ex.logger.Debug("failure snapshot unavailable", zap.Error(err))
		return ""
	}
	name := scenario.SnapshotName(index)
	if err := os.MkdirAll(ex.dir, 0o755); err != nil {
		ex.logger.Debug("failure snapshot not written", zap.Error(err))
		return ""
	}
	if err := os.WriteFile(filepath.Join(ex.dir, name), []byte(simplified), 0o644); err != nil {
		ex.logger.Debug("failure snapshot not written", zap.Error(err))
		return ""
	}
	return name
}

// settle waits for d unless ctx ends first.
func settle(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return &CanceledError{Err: ctx.Err()}
	}
}
