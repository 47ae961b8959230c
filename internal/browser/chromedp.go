package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/copyleftdev/scryshot/internal/backend"
	"github.com/copyleftdev/scryshot/internal/dom"
)

// Compile-time check to ensure Chromedp implements the interface
var _ backend.Backend = (*Chromedp)(nil)

// Chromedp drives Chrome over the DevTools protocol. One Chrome process is
// started per session; every context is a separate incognito browser context
// inside it.
type Chromedp struct {
	logger *zap.Logger
}

func NewChromedp(logger *zap.Logger) *Chromedp {
	return &Chromedp{logger: logger}
}

func (c *Chromedp) Name() string { return "chromedp" }

// Launch implements the backend.Backend interface.
func (c *Chromedp) Launch(ctx context.Context, opts backend.LaunchOptions) (backend.Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		chromedp.IgnoreCertErrors,
	)
	if opts.NoSandbox {
		allocOpts = append(allocOpts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	if opts.ExecutablePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecutablePath))
	}
	if opts.Timeout > 0 {
		allocOpts = append(allocOpts, chromedp.WSURLReadTimeout(opts.Timeout))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(c.logger.Sugar().Debugf),
		chromedp.WithErrorf(c.logger.Sugar().Errorf),
	)

	// The first Run starts Chrome; a failure here is a launch failure.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	c.logger.Debug("chrome started", zap.Bool("headless", opts.Headless))
	return &chromedpSession{
		logger:        c.logger,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		device:        opts.Device,
	}, nil
}

type chromedpSession struct {
	logger        *zap.Logger
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	device        *backend.Device
	closeOnce     sync.Once
}

func (s *chromedpSession) NewContext(ctx context.Context, opts backend.ContextOptions) (backend.Context, error) {
	device := opts.Device
	if device == nil {
		device = s.device
	}
	tabCtx, cancel := chromedp.NewContext(s.browserCtx, chromedp.WithNewBrowserContext())

	// Create the browser context and its first tab now so that failures are
	// reported here rather than on the first step.
	if err := chromedp.Run(tabCtx, emulate(device)); err != nil {
		cancel()
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	return &chromedpContext{tabCtx: tabCtx, cancel: cancel, device: device}, nil
}

func (s *chromedpSession) Close() error {
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
		s.logger.Debug("chrome stopped")
	})
	return nil
}

type chromedpContext struct {
	tabCtx    context.Context
	cancel    context.CancelFunc
	device    *backend.Device
	firstUsed atomic.Bool
	closeOnce sync.Once
}

// NewPage hands out the context's initial tab first and opens further tabs
// in the same browser context afterwards.
func (c *chromedpContext) NewPage(ctx context.Context) (backend.Page, error) {
	if c.firstUsed.CompareAndSwap(false, true) {
		return &chromedpPage{ctx: c.tabCtx, cancel: func() {}}, nil
	}
	pageCtx, cancel := chromedp.NewContext(c.tabCtx)
	if err := chromedp.Run(pageCtx, emulate(c.device)); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &chromedpPage{ctx: pageCtx, cancel: cancel}, nil
}

// Close disposes of the browser context together with its cookies and storage.
func (c *chromedpContext) Close() error {
	c.closeOnce.Do(c.cancel)
	return nil
}

type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
	marks  atomic.Int64
}

func (p *chromedpPage) nextMark() string {
	return "m" + strconv.FormatInt(p.marks.Add(1), 10)
}

// run executes actions on the page's tab, bounded by the caller's ctx.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := boundedContext(p.ctx, ctx)
	defer cancel()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", backend.ErrTimeout, err)
	}
	return err
}

func (p *chromedpPage) Goto(ctx context.Context, url string, wait backend.WaitPolicy) error {
	return p.run(ctx, dom.NavigateAction(url), dom.WaitReadyAction(wait))
}

func (p *chromedpPage) WaitVisible(ctx context.Context, loc backend.Locator) error {
	return p.run(ctx, dom.LocateAction(loc, ""))
}

func (p *chromedpPage) Click(ctx context.Context, loc backend.Locator) error {
	return p.run(ctx, dom.ClickAction(loc, p.nextMark()))
}

func (p *chromedpPage) Fill(ctx context.Context, loc backend.Locator, value string) error {
	return p.run(ctx, dom.TypeAction(loc, p.nextMark(), value))
}

func (p *chromedpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, dom.ScreenshotAction(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromedpPage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, dom.GetFullHTMLAction(&html)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}

// emulate applies a device preset to the current tab; nil clears nothing and
// leaves the desktop defaults in place.
func emulate(d *backend.Device) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}
		if d == nil {
			return nil
		}
		if err := emulation.SetDeviceMetricsOverride(int64(d.Width), int64(d.Height), d.Scale, d.Mobile).Do(ctx); err != nil {
			return fmt.Errorf("emulate %s: %w", d.Name, err)
		}
		if err := emulation.SetUserAgentOverride(d.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("emulate %s: %w", d.Name, err)
		}
		if d.Touch {
			if err := emulation.SetTouchEmulationEnabled(true).Do(ctx); err != nil {
				return fmt.Errorf("emulate %s: %w", d.Name, err)
			}
		}
		return nil
	})
}

// boundedContext derives a context from a chromedp context that carries the
// tab, inheriting the caller's deadline and cancellation. Only use it once
// the tab exists: chromedp ties the browser and target lifetime to the
// context of the first Run.
func boundedContext(chromedpCtx, caller context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(chromedpCtx)
	cancelDeadline := context.CancelFunc(func() {})
	if deadline, ok := caller.Deadline(); ok {
		ctx, cancelDeadline = context.WithDeadline(ctx, deadline)
	}
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancelDeadline()
		cancel()
	}
}
