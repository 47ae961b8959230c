package mocks

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/copyleftdev/scryshot/internal/backend"
)

// Compile-time check to ensure MockBackend implements the interface
var _ backend.Backend = (*MockBackend)(nil)

// Route describes how a fake page at a URL path behaves.
type Route struct {
	// Visible lists locators (by their raw selector string) shown after load.
	Visible []string
	// Clicks maps a locator to the locators that become visible after clicking it.
	Clicks map[string][]string
	// SetCookies is applied to the context's cookie jar when the page loads.
	SetCookies map[string]string
	// RequireCookie hides Visible unless the cookie is present; Fallback is
	// shown instead.
	RequireCookie string
	Fallback      []string
	// NavigateErr makes navigation to this route fail.
	NavigateErr error
}

// MockBackend is an in-memory backend serving a fake application.
type MockBackend struct {
	mu            sync.Mutex
	routes        map[string]*Route
	launchErr     error
	screenshotErr error
	contextErr    error

	launches       int
	lastLaunch     backend.LaunchOptions
	sessionsClosed int
	contextsOpened int
	contextsClosed int
	contextDevices []*backend.Device
	calls          []string
}

func NewMockBackend() *MockBackend {
	return &MockBackend{routes: make(map[string]*Route)}
}

func (m *MockBackend) Name() string { return "mock" }

// Handle registers a route for a URL path.
func (m *MockBackend) Handle(path string, r *Route) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[path] = r
	return m
}

func (m *MockBackend) SetLaunchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launchErr = err
}

func (m *MockBackend) SetScreenshotError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenshotErr = err
}

func (m *MockBackend) SetContextError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contextErr = err
}

// Launch implements the backend.Backend interface.
func (m *MockBackend) Launch(ctx context.Context, opts backend.LaunchOptions) (backend.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launches++
	m.lastLaunch = opts
	if m.launchErr != nil {
		return nil, m.launchErr
	}
	return &mockSession{b: m, opts: opts}, nil
}

// Launches returns how many times Launch was called.
func (m *MockBackend) Launches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launches
}

func (m *MockBackend) LastLaunch() backend.LaunchOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLaunch
}

func (m *MockBackend) SessionsClosed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionsClosed
}

// OpenContexts returns contexts created but not yet closed.
func (m *MockBackend) OpenContexts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contextsOpened - m.contextsClosed
}

func (m *MockBackend) ContextsOpened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contextsOpened
}

// ContextDevices returns the device applied to each context, in creation order.
func (m *MockBackend) ContextDevices() []*backend.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*backend.Device(nil), m.contextDevices...)
}

// Calls returns the page operations performed, e.g. "click(button[data-selected])".
func (m *MockBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockBackend) record(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

type mockSession struct {
	b      *MockBackend
	opts   backend.LaunchOptions
	closed bool
}

func (s *mockSession) NewContext(ctx context.Context, opts backend.ContextOptions) (backend.Context, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	if s.b.contextErr != nil {
		return nil, s.b.contextErr
	}
	device := opts.Device
	if device == nil {
		device = s.opts.Device
	}
	s.b.contextsOpened++
	s.b.contextDevices = append(s.b.contextDevices, device)
	return &mockContext{b: s.b, cookies: make(map[string]string)}, nil
}

func (s *mockSession) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.b.sessionsClosed++
	}
	return nil
}

type mockContext struct {
	b       *MockBackend
	mu      sync.Mutex
	cookies map[string]string
	closed  bool
}

func (c *mockContext) NewPage(ctx context.Context) (backend.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("context closed")
	}
	return &mockPage{b: c.b, c: c, visible: make(map[string]bool)}, nil
}

func (c *mockContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.b.mu.Lock()
	c.b.contextsClosed++
	c.b.mu.Unlock()
	return nil
}

type mockPage struct {
	b       *MockBackend
	c       *mockContext
	url     string
	route   *Route
	visible map[string]bool
}

func (p *mockPage) Goto(ctx context.Context, rawURL string, wait backend.WaitPolicy) error {
	p.b.record("goto(%s)", rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	p.b.mu.Lock()
	route := p.b.routes[u.Path]
	p.b.mu.Unlock()

	p.url = rawURL
	p.route = route
	p.visible = make(map[string]bool)
	if route == nil {
		return nil
	}
	if route.NavigateErr != nil {
		return route.NavigateErr
	}

	p.c.mu.Lock()
	for k, v := range route.SetCookies {
		p.c.cookies[k] = v
	}
	_, authorised := p.c.cookies[route.RequireCookie]
	p.c.mu.Unlock()

	shown := route.Visible
	if route.RequireCookie != "" && !authorised {
		shown = route.Fallback
	}
	for _, sel := range shown {
		p.visible[sel] = true
	}
	return nil
}

// WaitVisible returns immediately when the locator is shown, otherwise it
// blocks until ctx expires, like a real backend polling the DOM.
func (p *mockPage) WaitVisible(ctx context.Context, loc backend.Locator) error {
	p.b.record("wait(%s)", loc)
	return p.await(ctx, loc)
}

func (p *mockPage) Click(ctx context.Context, loc backend.Locator) error {
	p.b.record("click(%s)", loc)
	if err := p.await(ctx, loc); err != nil {
		return err
	}
	if p.route != nil {
		for _, sel := range p.route.Clicks[loc.Raw] {
			p.visible[sel] = true
		}
	}
	return nil
}

func (p *mockPage) Fill(ctx context.Context, loc backend.Locator, value string) error {
	p.b.record("fill(%s,%s)", loc, value)
	return p.await(ctx, loc)
}

func (p *mockPage) Screenshot(ctx context.Context) ([]byte, error) {
	p.b.record("screenshot(%s)", p.url)
	p.b.mu.Lock()
	err := p.b.screenshotErr
	p.b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []byte("\x89PNG mock capture of " + p.url), nil
}

func (p *mockPage) Content(ctx context.Context) (string, error) {
	shown := make([]string, 0, len(p.visible))
	for sel := range p.visible {
		shown = append(shown, sel)
	}
	sort.Strings(shown)
	var b strings.Builder
	b.WriteString("<html><head><script>var x = 1;</script></head><body>")
	for _, sel := range shown {
		fmt.Fprintf(&b, "<div>%s</div>", sel)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

func (p *mockPage) Close() error { return nil }

func (p *mockPage) await(ctx context.Context, loc backend.Locator) error {
	if p.visible[loc.Raw] {
		return nil
	}
	<-ctx.Done()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w waiting for %s", backend.ErrTimeout, loc)
	}
	return ctx.Err()
}
