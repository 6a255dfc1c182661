package test

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// Base USDT prices per fiat currency
var basePrices = map[string]float64{
	"ARS": 1250.0,
	"BRL": 5.70,
	"CLP": 950.0,
	"COP": 4100.0,
	"MXN": 18.5,
	"PEN": 3.75,
	"USD": 1.0,
}

// Adapter implements ports.TradingVenue with generated quotes. It serves
// the price monitor in test mode and refuses settlement operations.
type Adapter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a new simulated venue
func New(seed int64) *Adapter {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Adapter{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GetName returns the venue name
func (a *Adapter) GetName() string {
	return "test"
}

// VerifySession always succeeds; there is no login to expire
func (a *Adapter) VerifySession(context.Context) (bool, error) {
	return true, nil
}

// ScrapeMarketPrices returns topN quotes around the base price, ranked best first
func (a *Adapter) ScrapeMarketPrices(ctx context.Context, fiatCurrency string, side models.Side, topN int) ([]models.MarketPriceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fiatCurrency = strings.ToUpper(fiatCurrency)
	base, ok := basePrices[fiatCurrency]
	if !ok {
		return nil, fmt.Errorf("no simulated market for %s", fiatCurrency)
	}

	a.mu.Lock()
	values := make([]float64, topN)
	for i := range values {
		// Add some random variation (±2%)
		variation := (a.rng.Float64() - 0.5) * 0.04
		values[i] = base * (1 + variation)
	}
	a.mu.Unlock()

	// best for a buyer is the cheapest ad, best for a seller the highest bid
	if side == models.SideBuy {
		sort.Float64s(values)
	} else {
		sort.Sort(sort.Reverse(sort.Float64Slice(values)))
	}

	now := time.Now()
	prices := make([]models.MarketPriceSnapshot, 0, topN)
	for i, v := range values {
		available := decimal.NewFromInt(int64(100 + 50*i))
		prices = append(prices, models.MarketPriceSnapshot{
			FiatCurrency:    fiatCurrency,
			AssetCode:       models.DefaultAssetCode,
			Side:            side,
			PricePerUnit:    decimal.NewFromFloat(v).Round(2),
			Rank:            i + 1,
			Timestamp:       now,
			AdvertiserName:  fmt.Sprintf("sim-%s-%d", strings.ToLower(fiatCurrency), i+1),
			AvailableAmount: &available,
		})
	}
	return prices, nil
}

// FetchOrderDetails is not available on the simulated venue
func (a *Adapter) FetchOrderDetails(context.Context, string) (models.OrderDetails, error) {
	return models.OrderDetails{}, fmt.Errorf("test venue: %w", models.ErrNotSupported)
}

// ReleaseOrder is not available on the simulated venue
func (a *Adapter) ReleaseOrder(context.Context, string) (models.ReleaseResult, error) {
	return models.ReleaseResult{Status: models.ReleaseStatusError}, fmt.Errorf("test venue: %w", models.ErrNotSupported)
}
