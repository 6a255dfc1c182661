package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

type fakePage struct {
	url string
}

func (p *fakePage) Goto(_ context.Context, url string) error { p.url = url; return nil }
func (p *fakePage) URL() string                               { return p.url }
func (p *fakePage) Evaluate(context.Context, string, any) (any, error) {
	return nil, nil
}
func (p *fakePage) Click(context.Context, string) error { return nil }
func (p *fakePage) WaitForText(context.Context, []string, time.Duration) error {
	return nil
}
func (p *fakePage) Close() error { return nil }

type fakeBrowser struct {
	mu     sync.Mutex
	pages  []ports.Page
	closed bool
}

func (b *fakeBrowser) Pages() []ports.Page { return b.pages }

func (b *fakeBrowser) NewPage() (ports.Page, error) {
	p := &fakePage{}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type fakeLauncher struct {
	browser  *fakeBrowser
	err      error
	launches int
	opts     ports.LaunchOptions
}

func (l *fakeLauncher) LaunchPersistent(_ context.Context, _ string, opts ports.LaunchOptions) (ports.BrowserContext, error) {
	l.launches++
	l.opts = opts
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProfile(t *testing.T) models.BrowserProfileConfig {
	dir := t.TempDir()
	return models.BrowserProfileConfig{
		ProfileName: "exchange",
		ProfilePath: filepath.Join(dir, "exchange"),
	}
}

func TestLaunchAcquiresLockAndReusesOpenTab(t *testing.T) {
	existing := &fakePage{url: "https://p2p.example/orders"}
	launcher := &fakeLauncher{browser: &fakeBrowser{pages: []ports.Page{existing}}}
	m := NewManager(testProfile(t), launcher, DefaultOptions(), testLogger())

	session, err := m.Launch(context.Background())
	require.NoError(t, err)
	defer session.Close()

	assert.True(t, m.IsLocked())
	assert.Same(t, existing, session.Page())
	assert.Equal(t, 1280, launcher.opts.ViewportWidth)
	assert.Contains(t, launcher.opts.Args, "--disable-blink-features=AutomationControlled")

	again, err := m.Launch(context.Background())
	require.NoError(t, err)
	assert.Same(t, session, again)
	assert.Equal(t, 1, launcher.launches)
}

func TestLaunchOpensPageWhenNoneExists(t *testing.T) {
	browser := &fakeBrowser{}
	m := NewManager(testProfile(t), &fakeLauncher{browser: browser}, DefaultOptions(), testLogger())

	session, err := m.Launch(context.Background())
	require.NoError(t, err)
	defer session.Close()

	assert.NotNil(t, session.Page())
	assert.Len(t, browser.pages, 1)
}

func TestLaunchFailsFastWhenProfileBusy(t *testing.T) {
	profile := testProfile(t)
	lockPath := DefaultLockPath(profile.ProfilePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0o755))
	writeForeignLock(t, lockPath, time.Minute)

	launcher := &fakeLauncher{browser: &fakeBrowser{}}
	m := NewManager(profile, launcher, DefaultOptions(), testLogger())

	_, err := m.Launch(context.Background())

	assert.ErrorIs(t, err, models.ErrProfileBusy)
	assert.Zero(t, launcher.launches)
	assert.False(t, m.IsLocked())
}

func TestLaunchErrorReleasesLock(t *testing.T) {
	profile := testProfile(t)
	m := NewManager(profile, &fakeLauncher{err: errors.New("no chromium")}, DefaultOptions(), testLogger())

	_, err := m.Launch(context.Background())

	require.Error(t, err)
	assert.False(t, m.IsLocked())
	assert.NoFileExists(t, DefaultLockPath(profile.ProfilePath))
}

func TestHeartbeatRefreshesLockUntilClose(t *testing.T) {
	profile := testProfile(t)
	browser := &fakeBrowser{}
	opts := DefaultOptions()
	opts.HeartbeatInterval = 10 * time.Millisecond
	m := NewManager(profile, &fakeLauncher{browser: browser}, opts, testLogger())

	session, err := m.Launch(context.Background())
	require.NoError(t, err)

	lockPath := DefaultLockPath(profile.ProfilePath)
	old := time.Now().Add(-3 * time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	require.Eventually(t, func() bool {
		st, err := os.Stat(lockPath)
		return err == nil && time.Since(st.ModTime()) < time.Minute
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, session.Close())

	assert.True(t, browser.closed)
	assert.False(t, m.IsLocked())
	assert.NoFileExists(t, lockPath)

	time.Sleep(50 * time.Millisecond)
	assert.NoFileExists(t, lockPath, "heartbeat must not recreate the lock after close")
}

func TestAcquireLockSecondManagerIsRejected(t *testing.T) {
	profile := testProfile(t)
	first := NewManager(profile, &fakeLauncher{browser: &fakeBrowser{}}, DefaultOptions(), testLogger())
	second := NewManager(profile, &fakeLauncher{browser: &fakeBrowser{}}, DefaultOptions(), testLogger())

	ok, err := first.AcquireLock()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.AcquireLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Close())
	ok, err = second.AcquireLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Close())
}

func TestSessionReportsLockLostToAnotherProcess(t *testing.T) {
	profile := testProfile(t)
	opts := DefaultOptions()
	opts.HeartbeatInterval = 10 * time.Millisecond
	m := NewManager(profile, &fakeLauncher{browser: &fakeBrowser{}}, opts, testLogger())

	session, err := m.Launch(context.Background())
	require.NoError(t, err)
	defer session.Close()

	select {
	case <-session.Lost():
		t.Fatal("session reported lost while still owning the lock")
	default:
	}

	lockPath := DefaultLockPath(profile.ProfilePath)
	writeForeignLock(t, lockPath, 0)

	select {
	case <-session.Lost():
	case <-time.After(time.Second):
		t.Fatal("lock loss was not reported")
	}
	assert.False(t, m.IsLocked())

	require.NoError(t, session.Close())
	assert.FileExists(t, lockPath, "the new owner's lock must survive our close")
}
