package ports

import (
	"context"

	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// MarketDataStore defines the interface for market configuration and price persistence
type MarketDataStore interface {
	// GetActiveConfigs returns the active market configurations in a stable order
	GetActiveConfigs(ctx context.Context) ([]models.P2PMarketConfig, error)

	// RecordMarketPrices appends a batch of price snapshots
	RecordMarketPrices(ctx context.Context, prices []models.MarketPriceSnapshot) error

	// GetLatestPrices returns the most recent batch recorded for a currency and side
	GetLatestPrices(ctx context.Context, fiatCurrency string, side models.Side) ([]models.MarketPriceSnapshot, error)

	// Close closes the storage connection
	Close() error
}
