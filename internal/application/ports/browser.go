package ports

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned by Page.WaitForText when none of the texts appeared in time
var ErrWaitTimeout = errors.New("wait timeout")

// LaunchOptions configures a persistent browser context
type LaunchOptions struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	Args           []string
}

// BrowserLauncher opens persistent browser contexts rooted at a profile directory
type BrowserLauncher interface {
	LaunchPersistent(ctx context.Context, profilePath string, opts LaunchOptions) (BrowserContext, error)
}

// BrowserContext is an open persistent browser session
type BrowserContext interface {
	// Pages returns the tabs already open in the context
	Pages() []Page

	// NewPage opens a new tab
	NewPage() (Page, error)

	// Close closes the context and its browser
	Close() error
}

// Page is the subset of page automation the adapters rely on
type Page interface {
	Goto(ctx context.Context, url string) error
	URL() string
	Evaluate(ctx context.Context, script string, arg any) (any, error)
	Click(ctx context.Context, selector string) error
	// WaitForText blocks until any of texts is visible in the page body or timeout elapses
	WaitForText(ctx context.Context, texts []string, timeout time.Duration) error
	Close() error
}
