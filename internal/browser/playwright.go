package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/copyleftdev/scryshot/internal/backend"
)

var _ backend.Backend = (*Playwright)(nil)

// Playwright drives Chromium through the Playwright driver. Playwright
// understands the locator grammar natively, so selectors are passed through
// in its own syntax.
type Playwright struct {
	logger *zap.Logger
}

func NewPlaywright(logger *zap.Logger) *Playwright {
	return &Playwright{logger: logger}
}

func (p *Playwright) Name() string { return "playwright" }

// InstallPlaywright downloads the Playwright driver and Chromium.
func InstallPlaywright() error {
	return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
}

func (p *Playwright) Launch(ctx context.Context, opts backend.LaunchOptions) (backend.Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright driver: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	if opts.NoSandbox {
		launchOpts.ChromiumSandbox = playwright.Bool(false)
	}
	if opts.Timeout > 0 {
		launchOpts.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	p.logger.Debug("chromium launched via playwright", zap.String("version", browser.Version()))
	return &playwrightSession{logger: p.logger, pw: pw, browser: browser, device: opts.Device}, nil
}

type playwrightSession struct {
	logger    *zap.Logger
	pw        *playwright.Playwright
	browser   playwright.Browser
	device    *backend.Device
	closeOnce sync.Once
	closeErr  error
}

func (s *playwrightSession) NewContext(ctx context.Context, opts backend.ContextOptions) (backend.Context, error) {
	device := opts.Device
	if device == nil {
		device = s.device
	}
	var ctxOpts playwright.BrowserNewContextOptions
	if device != nil {
		ctxOpts.Viewport = &playwright.Size{Width: device.Width, Height: device.Height}
		ctxOpts.UserAgent = playwright.String(device.UserAgent)
		ctxOpts.DeviceScaleFactor = playwright.Float(device.Scale)
		ctxOpts.IsMobile = playwright.Bool(device.Mobile)
		ctxOpts.HasTouch = playwright.Bool(device.Touch)
	}
	bc, err := s.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	return &playwrightContext{bc: bc}, nil
}

func (s *playwrightSession) Close() error {
	s.closeOnce.Do(func() {
		if err := s.browser.Close(); err != nil {
			s.closeErr = err
		}
		if err := s.pw.Stop(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		s.logger.Debug("playwright stopped")
	})
	return s.closeErr
}

type playwrightContext struct {
	bc playwright.BrowserContext
}

func (c *playwrightContext) NewPage(ctx context.Context) (backend.Page, error) {
	page, err := c.bc.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (c *playwrightContext) Close() error {
	return c.bc.Close()
}

type playwrightPage struct {
	page playwright.Page
}

// timeoutMS converts the caller's deadline into Playwright's millisecond
// timeout. Playwright calls are not context aware and treat zero as no
// limit, so a deadline is never rounded down to zero.
func timeoutMS(ctx context.Context) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return playwright.Float(0), nil
	}
	return deadlineMS(time.Until(deadline))
}

func deadlineMS(remaining time.Duration) (*float64, error) {
	if remaining <= 0 {
		return nil, context.DeadlineExceeded
	}
	return playwright.Float(float64(max(remaining.Milliseconds(), 1))), nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", backend.ErrTimeout, err)
	}
	return err
}

func (p *playwrightPage) Goto(ctx context.Context, url string, wait backend.WaitPolicy) error {
	timeout, err := timeoutMS(ctx)
	if err != nil {
		return err
	}
	state := playwright.WaitUntilStateLoad
	switch wait {
	case backend.WaitDOMContentLoaded:
		state = playwright.WaitUntilStateDomcontentloaded
	case backend.WaitNetworkIdle:
		state = playwright.WaitUntilStateNetworkidle
	}
	_, err = p.page.Goto(url, playwright.PageGotoOptions{WaitUntil: state, Timeout: timeout})
	return classify(err)
}

func (p *playwrightPage) locator(loc backend.Locator) playwright.Locator {
	return p.page.Locator(loc.Selector()).First()
}

func (p *playwrightPage) WaitVisible(ctx context.Context, loc backend.Locator) error {
	timeout, err := timeoutMS(ctx)
	if err != nil {
		return err
	}
	return classify(p.locator(loc).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout,
	}))
}

func (p *playwrightPage) Click(ctx context.Context, loc backend.Locator) error {
	timeout, err := timeoutMS(ctx)
	if err != nil {
		return err
	}
	return classify(p.locator(loc).Click(playwright.LocatorClickOptions{Timeout: timeout}))
}

func (p *playwrightPage) Fill(ctx context.Context, loc backend.Locator, value string) error {
	timeout, err := timeoutMS(ctx)
	if err != nil {
		return err
	}
	return classify(p.locator(loc).Fill(value, playwright.LocatorFillOptions{Timeout: timeout}))
}

func (p *playwrightPage) Screenshot(ctx context.Context) ([]byte, error) {
	timeout, err := timeoutMS(ctx)
	if err != nil {
		return nil, err
	}
	buf, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Timeout:  timeout,
	})
	return buf, classify(err)
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}
