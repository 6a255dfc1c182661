package concurrency

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHeartbeatBeatsUntilStopped(t *testing.T) {
	var beats atomic.Int32
	hb := NewHeartbeat(10*time.Millisecond, func() error {
		beats.Add(1)
		return nil
	}, discardLogger())

	hb.Start()
	require.Eventually(t, func() bool { return beats.Load() >= 3 }, time.Second, 5*time.Millisecond)

	hb.Stop()
	assert.False(t, hb.Running())

	after := beats.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, beats.Load(), "no beat may run after Stop returns")
}

func TestHeartbeatStopIsIdempotent(t *testing.T) {
	hb := NewHeartbeat(time.Hour, func() error { return nil }, discardLogger())

	hb.Stop()
	hb.Start()
	hb.Start()
	assert.True(t, hb.Running())
	hb.Stop()
	hb.Stop()
	assert.False(t, hb.Running())
}

func TestSystemClockSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := SystemClock{}.Sleep(ctx, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSystemClockSleepCompletes(t *testing.T) {
	err := SystemClock{}.Sleep(context.Background(), 5*time.Millisecond)
	assert.NoError(t, err)
}
