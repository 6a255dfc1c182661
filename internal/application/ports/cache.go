package ports

import (
	"context"

	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// PriceCache defines the interface for caching the latest quotes per market side
type PriceCache interface {
	// SetLatestPrices replaces the cached quotes for a currency and side
	SetLatestPrices(ctx context.Context, fiatCurrency string, side models.Side, prices []models.MarketPriceSnapshot) error

	// GetLatestPrices returns cached quotes, or nil when nothing is cached
	GetLatestPrices(ctx context.Context, fiatCurrency string, side models.Side) ([]models.MarketPriceSnapshot, error)

	// Close closes the cache connection
	Close() error
}
