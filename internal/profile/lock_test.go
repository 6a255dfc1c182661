package profile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const foreignPID = 999999

func writeForeignLock(t *testing.T, path string, age time.Duration) []byte {
	t.Helper()

	content := []byte(strconv.Itoa(foreignPID))
	require.NoError(t, os.WriteFile(path, content, 0o644))

	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return content
}

func TestTryAcquireCreatesLockWithOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "exchange.lock")
	lock := NewFileLock(path, 0, nil)

	ok, err := lock.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, lock.Held())

	pid, err := readPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestTryAcquireLeavesFreshForeignLockUntouched(t *testing.T) {
	for _, age := range []time.Duration{0, time.Minute, 4*time.Minute + 50*time.Second} {
		path := filepath.Join(t.TempDir(), "exchange.lock")
		before := writeForeignLock(t, path, age)
		statBefore, err := os.Stat(path)
		require.NoError(t, err)

		lock := NewFileLock(path, DefaultStaleAfter, nil)
		ok, err := lock.TryAcquire()

		require.NoError(t, err)
		assert.False(t, ok, "age %s", age)
		assert.False(t, lock.Held())

		after, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, before, after)

		statAfter, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, statBefore.ModTime(), statAfter.ModTime())
	}
}

func TestTryAcquireTakesOverStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.lock")
	writeForeignLock(t, path, 10*time.Minute)

	lock := NewFileLock(path, DefaultStaleAfter, nil)
	ok, err := lock.TryAcquire()

	require.NoError(t, err)
	assert.True(t, ok)

	pid, err := readPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be renamed away")
}

func TestTryAcquireUsesInjectedClock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.lock")
	writeForeignLock(t, path, 0)

	future := func() time.Time { return time.Now().Add(6 * time.Minute) }
	lock := NewFileLock(path, DefaultStaleAfter, future)

	ok, err := lock.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTouchRefreshesModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.lock")
	lock := NewFileLock(path, 0, nil)
	_, err := lock.TryAcquire()
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	require.NoError(t, lock.Touch())

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), st.ModTime(), 5*time.Second)
}

func TestTouchDetectsLostLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.lock")
	lock := NewFileLock(path, 0, nil)
	_, err := lock.TryAcquire()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(foreignPID)), 0o644))

	err = lock.Touch()
	assert.ErrorIs(t, err, ErrLockLost)
	assert.False(t, lock.Held())
}

func TestReleaseRemovesOnlyOwnLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.lock")
	lock := NewFileLock(path, 0, nil)
	_, err := lock.TryAcquire()
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	assert.NoFileExists(t, path)
	assert.False(t, lock.Held())

	// a foreign owner's file survives a release from a stale handle
	_, err = lock.TryAcquire()
	require.NoError(t, err)
	writeForeignLock(t, path, 0)
	require.NoError(t, lock.Release())
	assert.FileExists(t, path)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	info, err := Inspect(filepath.Join(dir, "missing.lock"), 0, now)
	require.NoError(t, err)
	assert.False(t, info.Present)

	path := filepath.Join(dir, "payment.lock")
	writeForeignLock(t, path, 7*time.Minute)

	info, err = Inspect(path, DefaultStaleAfter, now)
	require.NoError(t, err)
	assert.True(t, info.Present)
	assert.True(t, info.Stale)
	assert.Equal(t, foreignPID, info.PID)
}
