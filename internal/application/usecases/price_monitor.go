package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
	"github.com/ecucondorSA/autorenta-sub030/internal/concurrency"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
	"github.com/ecucondorSA/autorenta-sub030/internal/metrics"
)

// PriceMonitorOptions tunes the polling loop
type PriceMonitorOptions struct {
	TopN         int
	IdleWait     time.Duration
	MarketDelay  time.Duration
	ErrorBackoff time.Duration
}

// DefaultPriceMonitorOptions returns the production cadence
func DefaultPriceMonitorOptions() PriceMonitorOptions {
	return PriceMonitorOptions{
		TopN:         10,
		IdleWait:     60 * time.Second,
		MarketDelay:  5 * time.Second,
		ErrorBackoff: 30 * time.Second,
	}
}

// MarketStatus is the last outcome recorded for one market
type MarketStatus struct {
	FiatCurrency string    `json:"fiat_currency"`
	CountryCode  string    `json:"country_code"`
	LastSuccess  time.Time `json:"last_success,omitempty"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Recorded     int       `json:"recorded"`
}

// MonitorStatus is a point-in-time view of the price monitor
type MonitorStatus struct {
	Running   bool                    `json:"running"`
	Venue     string                  `json:"venue"`
	Cycles    int                     `json:"cycles"`
	LastCycle time.Time               `json:"last_cycle,omitempty"`
	NextWait  string                  `json:"next_wait,omitempty"`
	LastError string                  `json:"last_error,omitempty"`
	Markets   map[string]MarketStatus `json:"markets"`
}

// PriceMonitor polls top-of-book quotes for every active market and appends them to the store
type PriceMonitor struct {
	store  ports.MarketDataStore
	venue  ports.TradingVenue
	cache  ports.PriceCache
	clock  concurrency.Clock
	opts   PriceMonitorOptions
	logger *slog.Logger

	runMu sync.Mutex
	run   *monitorRun

	mu     sync.RWMutex
	status MonitorStatus
}

// NewPriceMonitor creates a stopped monitor. cache may be nil.
func NewPriceMonitor(store ports.MarketDataStore, venue ports.TradingVenue, cache ports.PriceCache, clock concurrency.Clock, opts PriceMonitorOptions, logger *slog.Logger) *PriceMonitor {
	defaults := DefaultPriceMonitorOptions()
	if opts.TopN <= 0 {
		opts.TopN = defaults.TopN
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = defaults.IdleWait
	}
	if opts.MarketDelay < 0 {
		opts.MarketDelay = 0
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = defaults.ErrorBackoff
	}
	if clock == nil {
		clock = concurrency.SystemClock{}
	}

	return &PriceMonitor{
		store:  store,
		venue:  venue,
		cache:  cache,
		clock:  clock,
		opts:   opts,
		logger: logger.With("component", "price_monitor"),
		status: MonitorStatus{
			Venue:   venue.GetName(),
			Markets: make(map[string]MarketStatus),
		},
	}
}

// errStopped ends a cycle early once Stop has been observed
var errStopped = errors.New("price monitor stopped")

// monitorRun is the state of one Start call. A fresh run per Start keeps a
// loop that is still winding down from seeing a later run's flag.
type monitorRun struct {
	stopped atomic.Bool
	done    chan struct{}
}

func (r *monitorRun) stopping() bool {
	return r != nil && r.stopped.Load()
}

// Start runs the polling loop until Stop is called or ctx is cancelled.
// Stop is observed once the current fetch or sleep has completed. Start
// fails while a previous run is still winding down.
func (m *PriceMonitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	if m.run != nil {
		m.runMu.Unlock()
		return errors.New("price monitor already running")
	}
	run := &monitorRun{done: make(chan struct{})}
	m.run = run
	m.runMu.Unlock()

	defer func() {
		m.runMu.Lock()
		m.run = nil
		m.runMu.Unlock()
		close(run.done)
	}()

	m.logger.Info("Price monitor started", "venue", m.venue.GetName(), "top_n", m.opts.TopN)

	for !run.stopping() {
		wait, err := m.runCycle(ctx, run)
		if errors.Is(err, errStopped) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			metrics.MonitorCycles.WithLabelValues("error").Inc()
			m.logger.Error("Price monitor cycle failed", "error", err, "backoff", m.opts.ErrorBackoff)
			m.setCycleError(err)
			wait = m.opts.ErrorBackoff
		}

		if run.stopping() {
			break
		}
		if err := m.clock.Sleep(ctx, wait); err != nil {
			break
		}
	}

	m.logger.Info("Price monitor stopped")
	return nil
}

// Stop asks the current run to exit after its current suspension point.
// It does not wait; use Done to observe the exit.
func (m *PriceMonitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.run != nil && !m.run.stopped.Load() {
		m.logger.Info("Stopping price monitor")
		m.run.stopped.Store(true)
	}
}

// Done returns a channel closed when the current run exits. It is already
// closed when the monitor is not running.
func (m *PriceMonitor) Done() <-chan struct{} {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.run == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.run.done
}

// IsRunning reports whether a run is active and has not been asked to stop
func (m *PriceMonitor) IsRunning() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	return m.run != nil && !m.run.stopped.Load()
}

// RunCycle performs one full pass over the active markets and returns the
// wait before the next pass. Per-market failures are logged and skipped;
// only failures outside a market's scope are returned.
func (m *PriceMonitor) RunCycle(ctx context.Context) (time.Duration, error) {
	return m.runCycle(ctx, nil)
}

func (m *PriceMonitor) runCycle(ctx context.Context, run *monitorRun) (time.Duration, error) {
	configs, err := m.store.GetActiveConfigs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active market configs: %w", err)
	}

	if len(configs) == 0 {
		m.logger.Info("No active market configs", "wait", m.opts.IdleWait)
		metrics.MonitorCycles.WithLabelValues("idle").Inc()
		m.finishCycle(m.opts.IdleWait)
		return m.opts.IdleWait, nil
	}

	for i, cfg := range configs {
		if i > 0 {
			if run.stopping() {
				return 0, errStopped
			}
			if err := m.clock.Sleep(ctx, m.opts.MarketDelay); err != nil {
				return 0, err
			}
		}
		if run.stopping() {
			return 0, errStopped
		}

		recorded, err := m.collectMarket(ctx, cfg)
		if err != nil {
			metrics.MarketFetchErrors.WithLabelValues(cfg.FiatCurrency).Inc()
			m.logger.Warn("Skipping market",
				"country", cfg.CountryCode,
				"fiat", cfg.FiatCurrency,
				"error", err,
			)
			m.setMarketFailure(cfg, err)
			continue
		}
		m.setMarketSuccess(cfg, recorded)
	}

	wait := NextCycleWait(configs, m.opts.IdleWait)
	metrics.MonitorCycles.WithLabelValues("ok").Inc()
	metrics.MonitorNextWait.Set(wait.Seconds())
	m.logger.Info("Price monitor cycle complete", "markets", len(configs), "next_wait", wait)
	m.finishCycle(wait)

	return wait, nil
}

// NextCycleWait returns the smallest positive update interval across configs,
// or fallback when none is positive
func NextCycleWait(configs []models.P2PMarketConfig, fallback time.Duration) time.Duration {
	var wait time.Duration
	for _, cfg := range configs {
		d := cfg.UpdateInterval()
		if d <= 0 {
			continue
		}
		if wait == 0 || d < wait {
			wait = d
		}
	}
	if wait == 0 {
		return fallback
	}
	return wait
}

func (m *PriceMonitor) collectMarket(ctx context.Context, cfg models.P2PMarketConfig) (int, error) {
	batches := make(map[models.Side][]models.MarketPriceSnapshot, 2)
	for _, side := range []models.Side{models.SideBuy, models.SideSell} {
		prices, err := m.venue.ScrapeMarketPrices(ctx, cfg.FiatCurrency, side, m.opts.TopN)
		if err != nil {
			return 0, fmt.Errorf("%w: %s %s: %w", models.ErrMarketFetch, cfg.FiatCurrency, side, err)
		}
		batches[side] = m.normalize(cfg, side, prices)
	}

	recorded := 0
	for _, side := range []models.Side{models.SideBuy, models.SideSell} {
		batch := batches[side]
		if len(batch) == 0 {
			m.logger.Warn("Venue returned no quotes", "fiat", cfg.FiatCurrency, "side", side)
			continue
		}

		if err := m.store.RecordMarketPrices(ctx, batch); err != nil {
			return recorded, fmt.Errorf("%w: record %s %s: %w", models.ErrMarketFetch, cfg.FiatCurrency, side, err)
		}
		recorded += len(batch)
		metrics.SnapshotsRecorded.WithLabelValues(cfg.FiatCurrency, string(side)).Add(float64(len(batch)))

		if m.cache != nil {
			if err := m.cache.SetLatestPrices(ctx, cfg.FiatCurrency, side, batch); err != nil {
				m.logger.Warn("Failed to cache latest prices", "fiat", cfg.FiatCurrency, "side", side, "error", err)
			}
		}
	}

	m.logger.Debug("Market collected", "fiat", cfg.FiatCurrency, "recorded", recorded)
	return recorded, nil
}

// normalize fills defaults and stamps the whole batch with one capture time,
// the venue's first timestamp when it set one
func (m *PriceMonitor) normalize(cfg models.P2PMarketConfig, side models.Side, prices []models.MarketPriceSnapshot) []models.MarketPriceSnapshot {
	capturedAt := m.clock.Now()
	if len(prices) > 0 && !prices[0].Timestamp.IsZero() {
		capturedAt = prices[0].Timestamp
	}
	out := make([]models.MarketPriceSnapshot, 0, len(prices))
	for i, p := range prices {
		if p.FiatCurrency == "" {
			p.FiatCurrency = cfg.FiatCurrency
		}
		if p.AssetCode == "" {
			p.AssetCode = models.DefaultAssetCode
		}
		if p.Side == "" {
			p.Side = side
		}
		if p.Rank == 0 {
			p.Rank = i + 1
		}
		p.Timestamp = capturedAt
		out = append(out, p)
	}
	return out
}

// Status returns a copy of the monitor state
func (m *PriceMonitor) Status() MonitorStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := m.status
	status.Running = m.IsRunning()
	status.Markets = make(map[string]MarketStatus, len(m.status.Markets))
	for k, v := range m.status.Markets {
		status.Markets[k] = v
	}
	return status
}

func (m *PriceMonitor) finishCycle(wait time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.Cycles++
	m.status.LastCycle = m.clock.Now()
	m.status.NextWait = wait.String()
	m.status.LastError = ""
}

func (m *PriceMonitor) setCycleError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.LastError = err.Error()
}

func (m *PriceMonitor) setMarketSuccess(cfg models.P2PMarketConfig, recorded int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.status.Markets[cfg.FiatCurrency]
	st.FiatCurrency = cfg.FiatCurrency
	st.CountryCode = cfg.CountryCode
	st.LastSuccess = m.clock.Now()
	st.LastError = ""
	st.Recorded += recorded
	m.status.Markets[cfg.FiatCurrency] = st
}

func (m *PriceMonitor) setMarketFailure(cfg models.P2PMarketConfig, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.status.Markets[cfg.FiatCurrency]
	st.FiatCurrency = cfg.FiatCurrency
	st.CountryCode = cfg.CountryCode
	st.LastFailure = m.clock.Now()
	st.LastError = err.Error()
	m.status.Markets[cfg.FiatCurrency] = st
}
