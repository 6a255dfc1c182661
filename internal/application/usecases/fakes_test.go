package usecases

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock records every sleep and returns immediately
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(n int, d time.Duration)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	n := len(c.sleeps)
	hook := c.onSleep
	c.mu.Unlock()

	if hook != nil {
		hook(n, d)
	}
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeStore struct {
	mu        sync.Mutex
	configs   []models.P2PMarketConfig
	configErr error
	recordErr map[string]error
	recorded  [][]models.MarketPriceSnapshot
	latest    []models.MarketPriceSnapshot
	latestErr error
}

func (s *fakeStore) GetActiveConfigs(context.Context) ([]models.P2PMarketConfig, error) {
	if s.configErr != nil {
		return nil, s.configErr
	}
	return s.configs, nil
}

func (s *fakeStore) RecordMarketPrices(_ context.Context, prices []models.MarketPriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(prices) > 0 {
		if err := s.recordErr[prices[0].FiatCurrency]; err != nil {
			return err
		}
	}
	s.recorded = append(s.recorded, prices)
	return nil
}

func (s *fakeStore) GetLatestPrices(context.Context, string, models.Side) ([]models.MarketPriceSnapshot, error) {
	return s.latest, s.latestErr
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) recordedFiats() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fiats []string
	for _, batch := range s.recorded {
		fiats = append(fiats, batch[0].FiatCurrency+"/"+string(batch[0].Side))
	}
	return fiats
}

type fakeCache struct {
	mu     sync.Mutex
	stored map[string][]models.MarketPriceSnapshot
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{stored: make(map[string][]models.MarketPriceSnapshot)}
}

func (c *fakeCache) SetLatestPrices(_ context.Context, fiat string, side models.Side, prices []models.MarketPriceSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored[fiat+"/"+string(side)] = prices
	return nil
}

func (c *fakeCache) GetLatestPrices(_ context.Context, fiat string, side models.Side) ([]models.MarketPriceSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.stored[fiat+"/"+string(side)], nil
}

func (c *fakeCache) Close() error { return nil }

// fakeVenue serves canned quotes and settlement answers
type fakeVenue struct {
	mu         sync.Mutex
	scrapeErr  map[string]error
	scrapes    []string
	details    models.OrderDetails
	detailsErr error
	release    models.ReleaseResult
	releaseErr error
	// releaseBlocks makes ReleaseOrder wait for its context
	releaseBlocks bool
	releases      []string
	releaseCtx    context.Context

	// onScrape runs inside every scrape, outside the lock
	onScrape func(fiat string, side models.Side)
	// stampFrom makes each quote carry its own timestamp, 1ms apart
	stampFrom time.Time

	sessionExpired bool
	sessionErr     error
	sessionChecks  int
}

func (v *fakeVenue) ScrapeMarketPrices(_ context.Context, fiat string, side models.Side, topN int) ([]models.MarketPriceSnapshot, error) {
	v.mu.Lock()
	v.scrapes = append(v.scrapes, fiat+"/"+string(side))
	hook := v.onScrape
	err := v.scrapeErr[fiat]
	v.mu.Unlock()

	if hook != nil {
		hook(fiat, side)
	}
	if err != nil {
		return nil, err
	}

	prices := make([]models.MarketPriceSnapshot, 0, topN)
	for i := 0; i < topN && i < 3; i++ {
		p := models.MarketPriceSnapshot{PricePerUnit: decimal.NewFromInt(int64(1000 + i))}
		if !v.stampFrom.IsZero() {
			p.Timestamp = v.stampFrom.Add(time.Duration(i) * time.Millisecond)
		}
		prices = append(prices, p)
	}
	return prices, nil
}

func (v *fakeVenue) scraped() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.scrapes...)
}

func (v *fakeVenue) VerifySession(context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sessionChecks++
	return !v.sessionExpired, v.sessionErr
}

func (v *fakeVenue) FetchOrderDetails(context.Context, string) (models.OrderDetails, error) {
	return v.details, v.detailsErr
}

func (v *fakeVenue) ReleaseOrder(ctx context.Context, ref string) (models.ReleaseResult, error) {
	v.mu.Lock()
	v.releases = append(v.releases, ref)
	v.releaseCtx = ctx
	v.mu.Unlock()

	if v.releaseBlocks {
		<-ctx.Done()
		return models.ReleaseResult{}, ctx.Err()
	}
	return v.release, v.releaseErr
}

func (v *fakeVenue) GetName() string { return "fake" }

type fakePayment struct {
	sessionExpired bool
	sessionErr     error
	sessionChecks  int

	calls  int
	amount decimal.Decimal
	name   string
	result models.PaymentVerificationResult
	err    error
}

func (p *fakePayment) VerifyIncomingTransaction(_ context.Context, amount decimal.Decimal, name string) (models.PaymentVerificationResult, error) {
	p.calls++
	p.amount = amount
	p.name = name
	return p.result, p.err
}

func (p *fakePayment) VerifySession(context.Context) (bool, error) {
	p.sessionChecks++
	return !p.sessionExpired, p.sessionErr
}
