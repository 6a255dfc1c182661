package concurrency

import (
	"log/slog"
	"sync"
	"time"
)

// Heartbeat runs a beat function on a fixed interval until stopped
type Heartbeat struct {
	interval time.Duration
	beat     func() error
	logger   *slog.Logger

	mu      sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewHeartbeat creates a stopped heartbeat
func NewHeartbeat(interval time.Duration, beat func() error, logger *slog.Logger) *Heartbeat {
	return &Heartbeat{
		interval: interval,
		beat:     beat,
		logger:   logger,
	}
}

// Start begins beating. Calling Start on a running heartbeat is a no-op.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return
	}

	h.done = make(chan struct{})
	h.running = true
	h.wg.Add(1)
	go h.loop(h.done)
}

// Stop halts the heartbeat and waits for the loop to exit, so no beat
// runs after Stop returns
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	close(h.done)
	h.running = false
	h.mu.Unlock()

	h.wg.Wait()
}

// Running reports whether the heartbeat loop is active
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Heartbeat) loop(done <-chan struct{}) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// done may have closed while the tick was pending
			select {
			case <-done:
				return
			default:
			}
			if err := h.beat(); err != nil {
				h.logger.Warn("Heartbeat failed", "error", err)
			}
		}
	}
}
