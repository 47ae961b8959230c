// Package backend defines the browser-automation capability the runner
// consumes. Any engine that can launch a browser, open isolated contexts and
// drive pages through these interfaces is substitutable.
package backend

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is wrapped by backends when a wait, click or navigation does
	// not complete before the deadline.
	ErrTimeout = errors.New("timed out")
	// ErrNotFound is wrapped when a locator matches nothing that can be acted on.
	ErrNotFound = errors.New("element not found")
	// ErrUnknownBackend is returned by factories for unrecognised backend names.
	ErrUnknownBackend = errors.New("unknown backend")
)

// IsTimeout reports whether err is a deadline failure, whether the backend
// wrapped ErrTimeout or surfaced the raw context error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// WaitPolicy selects when a navigation counts as finished.
type WaitPolicy string

const (
	WaitLoad             WaitPolicy = "load"
	WaitDOMContentLoaded WaitPolicy = "domcontentloaded"
	WaitNetworkIdle      WaitPolicy = "networkidle"
)

// ParseWaitPolicy maps a scenario's wait_until value to a policy; empty means load.
func ParseWaitPolicy(s string) WaitPolicy {
	switch WaitPolicy(s) {
	case WaitDOMContentLoaded, WaitNetworkIdle:
		return WaitPolicy(s)
	default:
		return WaitLoad
	}
}

// LaunchOptions configure the single browser instance of a run.
type LaunchOptions struct {
	Headless       bool
	Device         *Device // default emulation for every context; nil means desktop
	ExecutablePath string
	NoSandbox      bool
	Timeout        time.Duration // bound on browser start-up
}

// ContextOptions configure one isolated browsing context.
type ContextOptions struct {
	Device *Device // overrides LaunchOptions.Device when set
}

// Backend launches browser sessions.
type Backend interface {
	Name() string
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session is a launched browser. It is shared by all scenarios of a run and
// only ever used to create contexts.
type Session interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browsing context with its own cookies and storage.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page drives a single tab. Every call blocks until the backend completes
// it or ctx expires.
type Page interface {
	Goto(ctx context.Context, url string, wait WaitPolicy) error
	WaitVisible(ctx context.Context, loc Locator) error
	Click(ctx context.Context, loc Locator) error
	Fill(ctx context.Context, loc Locator, value string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Content(ctx context.Context) (string, error)
	Close() error
}
