package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultStaleAfter is the lock-file age after which the owner is presumed dead
	DefaultStaleAfter = 5 * time.Minute

	// DefaultHeartbeatInterval is how often a held lock file is touched
	DefaultHeartbeatInterval = 30 * time.Second
)

// ErrLockLost means the lock file now names another owner
var ErrLockLost = errors.New("profile lock lost to another owner")

// FileLock is a cross-process lock backed by a pid file whose modification
// time doubles as the heartbeat clock
type FileLock struct {
	path       string
	pid        int
	staleAfter time.Duration
	now        func() time.Time

	mu   sync.Mutex
	held bool
}

// NewFileLock creates a lock for path owned by the current process
func NewFileLock(path string, staleAfter time.Duration, now func() time.Time) *FileLock {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if now == nil {
		now = time.Now
	}
	return &FileLock{
		path:       path,
		pid:        os.Getpid(),
		staleAfter: staleAfter,
		now:        now,
	}
}

// Path returns the lock file location
func (l *FileLock) Path() string {
	return l.path
}

// Held reports local ownership without touching disk
func (l *FileLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// TryAcquire takes the lock if the file is absent or stale. A fresh file
// held by anyone else yields false and is left untouched. It never blocks.
func (l *FileLock) TryAcquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	info, err := os.Stat(l.path)
	switch {
	case err == nil:
		if l.now().Sub(info.ModTime()) < l.staleAfter {
			return false, nil
		}
		if err := l.replace(); err != nil {
			return false, err
		}
		// catches a takeover whose rename landed before this read; one landing
		// after it is reported by the next Touch as ErrLockLost
		owner, err := readPID(l.path)
		if err != nil || owner != l.pid {
			return false, nil
		}
	case errors.Is(err, fs.ErrNotExist):
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				return false, nil
			}
			return false, fmt.Errorf("failed to create lock file: %w", err)
		}
		_, werr := f.WriteString(strconv.Itoa(l.pid))
		cerr := f.Close()
		if werr != nil || cerr != nil {
			_ = os.Remove(l.path)
			return false, fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
		}
	default:
		return false, fmt.Errorf("failed to stat lock file: %w", err)
	}

	l.held = true
	return true, nil
}

// Touch refreshes the lock file modification time
func (l *FileLock) Touch() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}

	owner, err := readPID(l.path)
	if err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}
	if owner != l.pid {
		l.held = false
		return fmt.Errorf("%w: pid %d", ErrLockLost, owner)
	}

	now := l.now()
	return os.Chtimes(l.path, now, now)
}

// Release deletes the lock file if this process still owns it
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false

	owner, err := readPID(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read lock file: %w", err)
	}
	if owner != l.pid {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (l *FileLock) replace() error {
	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	_, werr := tmp.WriteString(strconv.Itoa(l.pid))
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace stale lock file: %w", err)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed lock file %s: %w", path, err)
	}
	return pid, nil
}

// LockInfo describes a lock file as seen by an operator
type LockInfo struct {
	Path    string        `json:"path"`
	Present bool          `json:"present"`
	PID     int           `json:"pid,omitempty"`
	ModTime time.Time     `json:"mod_time,omitempty"`
	Age     time.Duration `json:"age,omitempty"`
	Stale   bool          `json:"stale"`
}

// Inspect reads a lock file without modifying it
func Inspect(path string, staleAfter time.Duration, now time.Time) (LockInfo, error) {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	info := LockInfo{Path: path}

	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return info, nil
		}
		return info, err
	}

	info.Present = true
	info.ModTime = st.ModTime()
	info.Age = now.Sub(st.ModTime())
	info.Stale = info.Age >= staleAfter

	pid, err := readPID(path)
	if err != nil {
		return info, err
	}
	info.PID = pid

	return info, nil
}
