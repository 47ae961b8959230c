// Package runs executes verification runs asynchronously for the HTTP
// service, bounding how many browsers are live at once.
package runs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/copyleftdev/scryshot/internal/backend"
	"github.com/copyleftdev/scryshot/internal/report"
	"github.com/copyleftdev/scryshot/internal/runner"
	"github.com/copyleftdev/scryshot/internal/scenario"
)

var (
	ErrNotFound       = errors.New("run not found")
	ErrInvalidRequest = errors.New("invalid run request")
	ErrShuttingDown   = errors.New("run manager is shutting down")
)

// Executor runs scenarios; *runner.Runner satisfies it.
type Executor interface {
	Run(ctx context.Context, scenarios []scenario.Scenario, baseURL string, opts runner.Options) ([]scenario.RunResult, error)
}

type Manager struct {
	exec        Executor
	backendName string
	defaults    runner.Options
	runTimeout  time.Duration
	logger      *zap.Logger
	sem         *semaphore.Weighted
	client      *http.Client

	mu     sync.RWMutex
	runs   map[uuid.UUID]*Run
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ManagerOptions struct {
	Defaults    runner.Options
	BackendName string
	MaxRuns     int64         // concurrent runs; <= 0 means 1
	RunTimeout  time.Duration // 0 means unbounded
}

// NewManager creates a run manager executing runs through exec.
func NewManager(exec Executor, opts ManagerOptions, logger *zap.Logger) *Manager {
	if opts.MaxRuns <= 0 {
		opts.MaxRuns = 1
	}
	if opts.Defaults.ArtifactDir == "" {
		opts.Defaults.ArtifactDir = runner.DefaultArtifactDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		exec:        exec,
		backendName: opts.BackendName,
		defaults:    opts.Defaults,
		runTimeout:  opts.RunTimeout,
		logger:      logger,
		sem:         semaphore.NewWeighted(opts.MaxRuns),
		client:      &http.Client{Timeout: 10 * time.Second},
		runs:        make(map[uuid.UUID]*Run),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func validateRequest(req Request) error {
	if err := scenario.ValidateAll(req.Scenarios); err != nil {
		return err
	}
	u, err := url.Parse(req.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute http(s) URL", req.BaseURL)
	}
	if req.CallbackURL != "" {
		if u, err := url.Parse(req.CallbackURL); err != nil || u.Host == "" {
			return fmt.Errorf("callback_url %q is not a valid URL", req.CallbackURL)
		}
	}
	if req.Options != nil {
		if req.Options.DefaultTimeoutMS < 0 {
			return errors.New("default_timeout_ms cannot be negative")
		}
		if _, err := backend.LookupDevice(req.Options.DeviceProfile); err != nil {
			return err
		}
	}
	for _, sc := range req.Scenarios {
		if _, err := backend.LookupDevice(sc.Device); err != nil {
			return fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
	}
	return nil
}

// Submit validates req and starts it in the background.
func (m *Manager) Submit(req Request) (*Run, error) {
	if err := validateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShuttingDown
	}

	run := newRun(req, m.defaults.ArtifactDir)
	m.runs[run.ID] = run
	m.wg.Add(1)
	go m.execute(run, req)

	m.logger.Info("run submitted", zap.String("run_id", run.ID.String()), zap.Int("scenarios", len(req.Scenarios)))
	return run.clone(), nil
}

// Get returns a snapshot of a run.
func (m *Manager) Get(id uuid.UUID) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run.clone(), nil
}

// ArtifactPath resolves an artifact name inside a run's directory. Names
// that would escape the directory are rejected.
func (m *Manager) ArtifactPath(id uuid.UUID, name string) (string, error) {
	run, err := m.Get(id)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + name)
	if clean == "/" || strings.Contains(name, "\x00") {
		return "", fmt.Errorf("%w: invalid artifact name", ErrNotFound)
	}
	path := filepath.Join(run.ArtifactDir, clean)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return path, nil
}

func (m *Manager) options(req Request, artifactDir string) runner.Options {
	opts := m.defaults
	opts.ArtifactDir = artifactDir
	if o := req.Options; o != nil {
		if o.Headless != nil {
			opts.Headful = !*o.Headless
		}
		if o.DefaultTimeoutMS > 0 {
			opts.DefaultTimeout = time.Duration(o.DefaultTimeoutMS) * time.Millisecond
		}
		if o.DeviceProfile != "" {
			opts.DeviceProfile = o.DeviceProfile
		}
		if o.SharedContext != nil {
			opts.SharedContext = *o.SharedContext
		}
	}
	return opts
}

func (m *Manager) execute(run *Run, req Request) {
	defer m.wg.Done()
	logger := m.logger.With(zap.String("run_id", run.ID.String()))

	if err := m.sem.Acquire(m.ctx, 1); err != nil {
		m.finish(run, nil, ErrShuttingDown, logger)
		return
	}
	defer m.sem.Release(1)

	m.update(run, func(r *Run) { r.Status = StatusRunning })

	ctx := m.ctx
	if m.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.runTimeout)
		defer cancel()
	}

	opts := m.options(req, run.ArtifactDir)
	opts.OnResult = func(res scenario.RunResult) {
		m.update(run, func(r *Run) {
			r.Results = append(r.Results, res)
			r.Summary = scenario.Summarize(r.Results)
		})
	}

	results, err := m.exec.Run(ctx, req.Scenarios, req.BaseURL, opts)
	m.finish(run, results, err, logger)
}

func (m *Manager) finish(run *Run, results []scenario.RunResult, runErr error, logger *zap.Logger) {
	m.update(run, func(r *Run) {
		if results != nil {
			r.Results = results
		}
		r.Summary = scenario.Summarize(r.Results)
		if runErr != nil {
			r.Status = StatusFailed
			r.Error = runErr.Error()
		} else {
			r.Status = StatusCompleted
		}
	})

	snapshot, _ := m.Get(run.ID)
	rep := report.New(snapshot.ID.String(), snapshot.BaseURL, m.backendName, snapshot.Results, runErr)
	if _, err := report.Write(snapshot.ArtifactDir, rep); err != nil {
		logger.Warn("writing run report", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("run failed", zap.Error(runErr))
	} else {
		logger.Info("run completed",
			zap.Int("passed", snapshot.Summary.Passed),
			zap.Int("failed", snapshot.Summary.Failed),
			zap.Int("skipped", snapshot.Summary.Skipped),
		)
	}

	if snapshot.CallbackURL != "" {
		m.notifyCallback(snapshot.CallbackURL, rep, logger)
	}
}

func (m *Manager) update(run *Run, fn func(*Run)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(run)
	run.UpdatedAt = time.Now().UTC()
}

// notifyCallback posts the run report to the callback URL.
func (m *Manager) notifyCallback(callbackURL string, rep report.Report, logger *zap.Logger) {
	body, err := rep.Marshal()
	if err != nil {
		logger.Error("marshaling callback payload", zap.Error(err))
		return
	}

	// The run context may already be canceled during shutdown; the callback
	// still goes out, bounded by the client timeout.
	req, err := http.NewRequestWithContext(context.WithoutCancel(m.ctx), http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		logger.Error("creating callback request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		logger.Warn("sending callback", zap.String("callback_url", callbackURL), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		logger.Info("callback delivered", zap.String("callback_url", callbackURL), zap.Int("status", resp.StatusCode))
	} else {
		logger.Warn("callback rejected", zap.String("callback_url", callbackURL), zap.Int("status", resp.StatusCode))
	}
}

// Shutdown stops accepting runs, cancels running ones and waits for them to
// wind down or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("run manager shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
