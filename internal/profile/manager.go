// Package profile brokers exclusive ownership of persistent browser profiles
// across processes and owns the lifecycle of the browser session built on them.
//
// Two automation processes driving the same profile directory corrupt its
// cookies and auth state, so a session is only launched while this process
// holds the profile's lock file. The lock is fail-fast: a fresh lock owned by
// someone else is reported as models.ErrProfileBusy and never waited on. A
// lock whose heartbeat stopped for longer than the staleness window may be
// taken over.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
	"github.com/ecucondorSA/autorenta-sub030/internal/concurrency"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
	"github.com/ecucondorSA/autorenta-sub030/internal/metrics"
)

// AutomationFlags hide the most common automation fingerprints
var AutomationFlags = []string{
	"--disable-blink-features=AutomationControlled",
	"--no-first-run",
	"--no-default-browser-check",
}

// Options tunes lock timing and browser launch
type Options struct {
	StaleAfter        time.Duration
	HeartbeatInterval time.Duration
	Launch            ports.LaunchOptions
}

// DefaultOptions returns the production lock timings and a 1280x800 headed browser
func DefaultOptions() Options {
	return Options{
		StaleAfter:        DefaultStaleAfter,
		HeartbeatInterval: DefaultHeartbeatInterval,
		Launch: ports.LaunchOptions{
			ViewportWidth:  1280,
			ViewportHeight: 800,
			Args:           AutomationFlags,
		},
	}
}

// Manager guards one browser profile
type Manager struct {
	profile  models.BrowserProfileConfig
	launcher ports.BrowserLauncher
	lock     *FileLock
	opts     Options
	logger   *slog.Logger

	mu        sync.Mutex
	heartbeat *concurrency.Heartbeat
	session   *Session
}

// NewManager creates a manager for profile. An empty lock path defaults to
// a sibling of the profile directory.
func NewManager(profile models.BrowserProfileConfig, launcher ports.BrowserLauncher, opts Options, logger *slog.Logger) *Manager {
	if profile.LockFilePath == "" {
		profile.LockFilePath = DefaultLockPath(profile.ProfilePath)
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}

	return &Manager{
		profile:  profile,
		launcher: launcher,
		lock:     NewFileLock(profile.LockFilePath, opts.StaleAfter, nil),
		opts:     opts,
		logger:   logger.With("component", "profile", "profile", profile.ProfileName),
	}
}

// DefaultLockPath returns the lock file used when none is configured
func DefaultLockPath(profilePath string) string {
	return profilePath + ".lock"
}

// Profile returns the managed profile configuration
func (m *Manager) Profile() models.BrowserProfileConfig {
	return m.profile
}

// AcquireLock tries once to take the profile lock
func (m *Manager) AcquireLock() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.acquire()
}

func (m *Manager) acquire() (bool, error) {
	ok, err := m.lock.TryAcquire()
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.LockContention.WithLabelValues(m.profile.ProfileName).Inc()
		m.logger.Warn("Profile is busy", "lock_file", m.lock.Path())
		return false, nil
	}

	m.logger.Info("Profile lock acquired", "lock_file", m.lock.Path())
	return true, nil
}

// IsLocked reports whether this manager holds the lock
func (m *Manager) IsLocked() bool {
	return m.lock.Held()
}

// Launch opens the persistent browser context for the profile, taking the
// lock first when it is not already held. It returns the open session when
// called twice.
func (m *Manager) Launch(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return m.session, nil
	}

	if !m.lock.Held() {
		ok, err := m.acquire()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire profile lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s (%s)", models.ErrProfileBusy, m.profile.ProfileName, m.lock.Path())
		}
	}

	browser, err := m.launcher.LaunchPersistent(ctx, m.profile.ProfilePath, m.opts.Launch)
	if err != nil {
		m.releaseLock()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	var page ports.Page
	if pages := browser.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = browser.NewPage()
		if err != nil {
			_ = browser.Close()
			m.releaseLock()
			return nil, fmt.Errorf("failed to open page: %w", err)
		}
	}

	session := &Session{
		manager: m,
		browser: browser,
		page:    page,
		lost:    make(chan struct{}),
	}
	m.heartbeat = concurrency.NewHeartbeat(m.opts.HeartbeatInterval, func() error {
		return m.beat(session)
	}, m.logger)
	m.heartbeat.Start()
	m.session = session

	m.logger.Info("Browser session launched", "profile_path", m.profile.ProfilePath)
	return m.session, nil
}

// Close stops the heartbeat, closes the browser and releases the lock, in that order
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}

	var errs []error
	if m.session != nil {
		if err := m.session.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		m.session = nil
	}

	if err := m.lock.Release(); err != nil {
		errs = append(errs, err)
	} else {
		m.logger.Info("Profile lock released")
	}

	return errors.Join(errs...)
}

func (m *Manager) beat(session *Session) error {
	if err := m.lock.Touch(); err != nil {
		if errors.Is(err, ErrLockLost) {
			m.logger.Error("Profile lock lost to another process, session must stop driving the profile",
				"lock_file", m.lock.Path(), "error", err, "locked", m.lock.Held())
			session.markLost()
			return nil
		}
		return err
	}
	metrics.Heartbeats.WithLabelValues(m.profile.ProfileName).Inc()
	return nil
}

func (m *Manager) releaseLock() {
	if err := m.lock.Release(); err != nil {
		m.logger.Error("Failed to release profile lock", "error", err)
	}
}

// Session is an open browser context on a locked profile. It is owned by
// the caller that launched it.
type Session struct {
	manager *Manager
	browser ports.BrowserContext
	page    ports.Page

	lost     chan struct{}
	lostOnce sync.Once
}

// Profile returns the profile the session runs on
func (s *Session) Profile() models.BrowserProfileConfig {
	return s.manager.profile
}

// Page returns the primary tab
func (s *Session) Page() ports.Page {
	return s.page
}

// NewPage opens another tab in the same context, sharing its authenticated state
func (s *Session) NewPage() (ports.Page, error) {
	return s.browser.NewPage()
}

// Lost is closed when the heartbeat finds the lock owned by another process.
// The holder must stop using the profile.
func (s *Session) Lost() <-chan struct{} {
	return s.lost
}

func (s *Session) markLost() {
	s.lostOnce.Do(func() { close(s.lost) })
}

// Close ends the session and releases the profile lock
func (s *Session) Close() error {
	return s.manager.Close()
}
