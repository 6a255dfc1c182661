// Package browser launches persistent Chromium contexts with playwright-go
// and exposes them through the ports.Page abstraction.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
)

// DefaultActionTimeout applies to page actions when the context carries no deadline
const DefaultActionTimeout = 30 * time.Second

// Launcher implements ports.BrowserLauncher
type Launcher struct {
	installDrivers bool
	logger         *slog.Logger
}

// NewLauncher creates a launcher. When installDrivers is set the playwright
// driver and Chromium are downloaded on first launch.
func NewLauncher(installDrivers bool, logger *slog.Logger) *Launcher {
	return &Launcher{
		installDrivers: installDrivers,
		logger:         logger.With("component", "browser"),
	}
}

// LaunchPersistent opens a Chromium context whose storage lives in profilePath
func (l *Launcher) LaunchPersistent(ctx context.Context, profilePath string, opts ports.LaunchOptions) (ports.BrowserContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if l.installDrivers {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("failed to install playwright driver: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	options := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		options.Viewport = &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}
	}

	bc, err := pw.Chromium.LaunchPersistentContext(profilePath, options)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch persistent context: %w", err)
	}

	l.logger.Debug("Persistent context launched", "profile_path", profilePath, "headless", opts.Headless)
	return &browserContext{pw: pw, bc: bc}, nil
}

type browserContext struct {
	pw *playwright.Playwright
	bc playwright.BrowserContext
}

func (c *browserContext) Pages() []ports.Page {
	pages := c.bc.Pages()
	out := make([]ports.Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, &page{p: p})
	}
	return out
}

func (c *browserContext) NewPage() (ports.Page, error) {
	p, err := c.bc.NewPage()
	if err != nil {
		return nil, err
	}
	return &page{p: p}, nil
}

func (c *browserContext) Close() error {
	return errors.Join(c.bc.Close(), c.pw.Stop())
}

type page struct {
	p playwright.Page
}

func (pg *page) Goto(ctx context.Context, url string) error {
	_, err := pg.p.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMillis(ctx, DefaultActionTimeout),
	})
	return translate(err)
}

func (pg *page) URL() string {
	return pg.p.URL()
}

func (pg *page) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if arg == nil {
		return pg.p.Evaluate(script)
	}
	return pg.p.Evaluate(script, arg)
}

func (pg *page) Click(ctx context.Context, selector string) error {
	err := pg.p.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: timeoutMillis(ctx, DefaultActionTimeout),
	})
	return translate(err)
}

func (pg *page) WaitForText(ctx context.Context, texts []string, timeout time.Duration) error {
	if len(texts) == 0 {
		return errors.New("no texts to wait for")
	}

	locator := pg.p.GetByText(texts[0])
	for _, t := range texts[1:] {
		locator = locator.Or(pg.p.GetByText(t))
	}

	limit := timeoutMillis(ctx, timeout)
	if timeout > 0 && *limit > float64(timeout.Milliseconds()) {
		limit = playwright.Float(float64(timeout.Milliseconds()))
	}

	err := locator.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: limit,
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("%w: %s", ports.ErrWaitTimeout, strings.Join(texts, " | "))
		}
		return err
	}
	return nil
}

func (pg *page) Close() error {
	return pg.p.Close()
}

// timeoutMillis converts the remaining ctx budget into a playwright timeout
func timeoutMillis(ctx context.Context, fallback time.Duration) *float64 {
	d := fallback
	if deadline, ok := ctx.Deadline(); ok {
		d = time.Until(deadline)
		if d <= 0 {
			d = time.Millisecond
		}
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func translate(err error) error {
	if err != nil && errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %w", ports.ErrWaitTimeout, err)
	}
	return err
}
