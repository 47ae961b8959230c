// Package runner executes verification scenarios against a running web
// application and collects their screenshots.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/scryshot/internal/backend"
	"github.com/copyleftdev/scryshot/internal/metrics"
	"github.com/copyleftdev/scryshot/internal/scenario"
)

const (
	DefaultStepTimeout   = 5 * time.Second
	DefaultLaunchTimeout = 30 * time.Second
	DefaultArtifactDir   = "artifacts"

	// snapshotTimeout bounds the best-effort DOM capture after a failure.
	snapshotTimeout = 2 * time.Second
)

// Options configure a single run. The zero value is usable: zero fields take
// the package defaults and the browser runs headless.
type Options struct {
	// Headful shows the browser window.
	Headful        bool
	DefaultTimeout time.Duration
	ArtifactDir    string
	// DeviceProfile names the emulation preset applied to every scenario
	// that does not choose its own. Empty means desktop.
	DeviceProfile string
	// SharedContext runs all scenarios in one browsing context, so cookies
	// and storage carry over between them.
	SharedContext  bool
	ExecutablePath string
	NoSandbox      bool
	LaunchTimeout  time.Duration
	// TOTPSecret resolves {{totp}} in type steps.
	TOTPSecret string
	// OnResult, when set, is called after each scenario finishes.
	OnResult func(scenario.RunResult)
}

func DefaultOptions() Options {
	return Options{
		DefaultTimeout: DefaultStepTimeout,
		ArtifactDir:    DefaultArtifactDir,
		LaunchTimeout:  DefaultLaunchTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = DefaultStepTimeout
	}
	if o.ArtifactDir == "" {
		o.ArtifactDir = DefaultArtifactDir
	}
	if o.LaunchTimeout <= 0 {
		o.LaunchTimeout = DefaultLaunchTimeout
	}
	return o
}

// Runner drives scenarios through an automation backend. A Runner holds no
// per-run state and may be shared; each Run launches its own browser.
type Runner struct {
	backend backend.Backend
	logger  *zap.Logger
	now     func() time.Time
}

func New(b backend.Backend, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{backend: b, logger: logger, now: time.Now}
}

// plan is a validated run.
type plan struct {
	scenarios []scenario.Scenario
	base      *url.URL
	opts      Options
	device    *backend.Device
	devices   map[string]*backend.Device // per scenario name
}

func (r *Runner) validate(scenarios []scenario.Scenario, baseURL string, opts Options) (*plan, error) {
	if err := scenario.ValidateAll(scenarios); err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be an absolute http(s) URL", baseURL)
	}
	p := &plan{
		scenarios: scenarios,
		base:      base,
		opts:      opts,
		devices:   make(map[string]*backend.Device),
	}
	if p.device, err = backend.LookupDevice(opts.DeviceProfile); err != nil {
		return nil, err
	}
	for _, sc := range scenarios {
		d, err := backend.LookupDevice(sc.Device)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
		if d != nil {
			p.devices[sc.Name] = d
		}
	}
	return p, nil
}

// Run executes scenarios in order and returns one result per scenario, in
// input order. Step failures are recorded in the results and never stop the
// run. A browser that fails to launch returns a *LaunchError and no results;
// invalid input returns a *ValidationError before anything is launched.
//
// When ctx ends mid-run the current scenario fails, the remaining ones are
// reported as skipped, and ctx's error is returned alongside the results.
func (r *Runner) Run(ctx context.Context, scenarios []scenario.Scenario, baseURL string, opts Options) ([]scenario.RunResult, error) {
	opts = opts.withDefaults()
	p, err := r.validate(scenarios, baseURL, opts)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}

	logger := r.logger.With(zap.String("base_url", p.base.String()), zap.String("backend", r.backend.Name()))

	launchCtx, cancelLaunch := context.WithTimeout(ctx, opts.LaunchTimeout)
	session, err := r.backend.Launch(launchCtx, backend.LaunchOptions{
		Headless:       !opts.Headful,
		Device:         p.device,
		ExecutablePath: opts.ExecutablePath,
		NoSandbox:      opts.NoSandbox,
		Timeout:        opts.LaunchTimeout,
	})
	cancelLaunch()
	if err != nil {
		metrics.RecordLaunchFailure(r.backend.Name())
		logger.Error("browser launch failed", zap.Error(err))
		return nil, &LaunchError{Backend: r.backend.Name(), Err: err}
	}
	metrics.RecordRunStart()
	defer metrics.RecordRunEnd()
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("closing browser session", zap.Error(err))
		}
	}()

	logger.Info("run started", zap.Int("scenarios", len(p.scenarios)), zap.Bool("shared_context", opts.SharedContext))

	contexts := newContextPool(session, opts.SharedContext, p.device, logger)
	defer contexts.close()

	results := make([]scenario.RunResult, 0, len(p.scenarios))
	for _, sc := range p.scenarios {
		var res scenario.RunResult
		if ctx.Err() != nil {
			res = r.skipped(sc, opts, "run canceled")
		} else {
			res = r.runScenario(ctx, contexts, p, sc, logger)
		}
		metrics.RecordScenario(string(res.Status), res.Duration())
		results = append(results, res)
		if opts.OnResult != nil {
			opts.OnResult(res)
		}
	}

	summary := scenario.Summarize(results)
	logger.Info("run finished",
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return results, ctx.Err()
}

func (r *Runner) skipped(sc scenario.Scenario, opts Options, reason string) scenario.RunResult {
	now := r.now()
	r.logger.Info("scenario skipped", zap.String("scenario", sc.Name), zap.String("reason", reason))
	return scenario.RunResult{
		Scenario:    sc.Name,
		Status:      scenario.StatusSkipped,
		Artifacts:   []string{},
		ArtifactDir: artifactDir(opts.ArtifactDir, sc),
		StartedAt:   now,
		FinishedAt:  now,
	}
}

// contextPool hands out browsing contexts: a fresh one per scenario, or a
// single long-lived one when contexts are shared.
type contextPool struct {
	session backend.Session
	shared  bool
	device  *backend.Device
	logger  *zap.Logger
	current backend.Context
}

func newContextPool(s backend.Session, shared bool, device *backend.Device, logger *zap.Logger) *contextPool {
	return &contextPool{session: s, shared: shared, device: device, logger: logger}
}

// acquire returns a context and the function that releases it. The release
// function is safe to call on every exit path.
func (cp *contextPool) acquire(ctx context.Context, sc scenario.Scenario, device *backend.Device) (backend.Context, func(), error) {
	if !cp.shared {
		bc, err := cp.session.NewContext(ctx, backend.ContextOptions{Device: device})
		if err != nil {
			return nil, nil, err
		}
		return bc, func() {
			if err := bc.Close(); err != nil {
				cp.logger.Warn("closing browsing context", zap.String("scenario", sc.Name), zap.Error(err))
			}
		}, nil
	}

	if device != nil && (cp.device == nil || device.Name != cp.device.Name) {
		cp.logger.Warn("scenario device ignored with a shared context",
			zap.String("scenario", sc.Name), zap.String("device", device.Name))
	}
	if cp.current == nil {
		bc, err := cp.session.NewContext(ctx, backend.ContextOptions{Device: cp.device})
		if err != nil {
			return nil, nil, err
		}
		cp.current = bc
	}
	return cp.current, func() {}, nil
}

func (cp *contextPool) close() {
	if cp.current != nil {
		if err := cp.current.Close(); err != nil {
			cp.logger.Warn("closing shared browsing context", zap.Error(err))
		}
		cp.current = nil
	}
}

// resolveURL makes a step URL absolute against the base URL.
func resolveURL(base *url.URL, raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// failureFrom converts a step error into the scenario's failure record.
func failureFrom(index int, step string, err error) *scenario.Failure {
	f := &scenario.Failure{
		StepIndex: index,
		Step:      step,
		Kind:      scenario.KindStep,
		Reason:    err.Error(),
	}
	var kinded interface{ Kind() scenario.ErrorKind }
	if errors.As(err, &kinded) {
		f.Kind = kinded.Kind()
	}
	return f
}
