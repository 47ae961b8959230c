package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/copyleftdev/scryshot/internal/backend"
	"github.com/copyleftdev/scryshot/internal/dom"
)

var _ backend.Backend = (*Rod)(nil)

// Rod drives Chrome with go-rod. Each context is an incognito browser
// context; locators are resolved with the same scripts as the chromedp
// backend.
type Rod struct {
	logger *zap.Logger
}

func NewRod(logger *zap.Logger) *Rod {
	return &Rod{logger: logger}
}

func (r *Rod) Name() string { return "rod" }

// InstallRod downloads the Chromium revision go-rod is pinned to and returns
// its path.
func InstallRod() (string, error) {
	return launcher.NewBrowser().Get()
}

func (r *Rod) Launch(ctx context.Context, opts backend.LaunchOptions) (backend.Session, error) {
	l := launcher.New().Headless(opts.Headless).NoSandbox(opts.NoSandbox)
	if opts.ExecutablePath != "" {
		l = l.Bin(opts.ExecutablePath)
	}
	// The launcher's context owns the Chrome process, so it must not carry
	// the caller's deadline; the wait for it is bounded instead.
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	controlURL, err := launchWithin(ctx, l.Launch, l.Kill)
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	r.logger.Debug("chrome started via rod", zap.String("control_url", controlURL))
	return &rodSession{logger: r.logger, launcher: l, browser: browser, device: opts.Device}, nil
}

// launchWithin runs launch until it returns or ctx ends, in which case the
// half-started browser is killed.
func launchWithin(ctx context.Context, launch func() (string, error), kill func()) (string, error) {
	type launched struct {
		url string
		err error
	}
	done := make(chan launched, 1)
	go func() {
		u, err := launch()
		done <- launched{u, err}
	}()
	select {
	case res := <-done:
		return res.url, res.err
	case <-ctx.Done():
		kill()
		return "", ctx.Err()
	}
}

type rodSession struct {
	logger    *zap.Logger
	launcher  *launcher.Launcher
	browser   *rod.Browser
	device    *backend.Device
	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) NewContext(ctx context.Context, opts backend.ContextOptions) (backend.Context, error) {
	device := opts.Device
	if device == nil {
		device = s.device
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	incognito, err := s.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	return &rodContext{browser: incognito, device: device}, nil
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.browser.Close()
		s.launcher.Kill()
		s.logger.Debug("chrome stopped")
	})
	return s.closeErr
}

type rodContext struct {
	browser *rod.Browser
	device  *backend.Device
}

func (c *rodContext) NewPage(ctx context.Context) (backend.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if d := c.device; d != nil {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             d.Width,
			Height:            d.Height,
			DeviceScaleFactor: d.Scale,
			Mobile:            d.Mobile,
		}).Call(page); err != nil {
			return nil, fmt.Errorf("emulate %s: %w", d.Name, err)
		}
		if err := (proto.NetworkSetUserAgentOverride{UserAgent: d.UserAgent}).Call(page); err != nil {
			return nil, fmt.Errorf("emulate %s: %w", d.Name, err)
		}
		if d.Touch {
			if err := (proto.EmulationSetTouchEmulationEnabled{Enabled: true}).Call(page); err != nil {
				return nil, fmt.Errorf("emulate %s: %w", d.Name, err)
			}
		}
	}
	return &rodPage{page: page}, nil
}

// Close disposes of the incognito context.
func (c *rodContext) Close() error {
	return c.browser.Close()
}

type rodPage struct {
	page  *rod.Page
	marks atomic.Int64
}

func wrapRod(ctx context.Context, err error) error {
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", backend.ErrTimeout, err)
	}
	return err
}

func (p *rodPage) wait(ctx context.Context, expr string) error {
	return p.page.Context(ctx).Wait(&rod.EvalOptions{JS: "() => " + expr})
}

func (p *rodPage) locate(ctx context.Context, loc backend.Locator) (*rod.Element, error) {
	mark := "m" + strconv.FormatInt(p.marks.Add(1), 10)
	if err := p.wait(ctx, dom.LocateScript(loc, mark)); err != nil {
		return nil, err
	}
	return p.page.Context(ctx).Element(dom.MarkSelector(mark))
}

func (p *rodPage) Goto(ctx context.Context, url string, wait backend.WaitPolicy) error {
	if err := p.page.Context(ctx).Navigate(url); err != nil {
		return wrapRod(ctx, err)
	}
	expr := dom.ReadyStateScript(wait)
	if wait == backend.WaitNetworkIdle {
		expr = dom.NetworkQuietScript(dom.NetworkQuietPeriod)
	}
	return wrapRod(ctx, p.wait(ctx, expr))
}

func (p *rodPage) WaitVisible(ctx context.Context, loc backend.Locator) error {
	return wrapRod(ctx, p.wait(ctx, dom.LocateScript(loc, "")))
}

func (p *rodPage) Click(ctx context.Context, loc backend.Locator) error {
	el, err := p.locate(ctx, loc)
	if err != nil {
		return wrapRod(ctx, err)
	}
	return wrapRod(ctx, el.Click(proto.InputMouseButtonLeft, 1))
}

func (p *rodPage) Fill(ctx context.Context, loc backend.Locator, value string) error {
	el, err := p.locate(ctx, loc)
	if err != nil {
		return wrapRod(ctx, err)
	}
	if err := el.SelectAllText(); err != nil {
		return wrapRod(ctx, err)
	}
	return wrapRod(ctx, el.Input(value))
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := p.page.Context(ctx).Screenshot(true, nil)
	return buf, wrapRod(ctx, err)
}

func (p *rodPage) Content(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
