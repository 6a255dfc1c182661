package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// MarketDataUseCase serves the latest recorded quotes to the HTTP surface
type MarketDataUseCase struct {
	storage ports.MarketDataStore
	cache   ports.PriceCache
	logger  *slog.Logger
}

// NewMarketDataUseCase creates a new MarketDataUseCase. cache may be nil.
func NewMarketDataUseCase(storage ports.MarketDataStore, cache ports.PriceCache, logger *slog.Logger) *MarketDataUseCase {
	return &MarketDataUseCase{
		storage: storage,
		cache:   cache,
		logger:  logger,
	}
}

// GetLatestPrices returns the newest quotes for a currency and side, from the
// cache when present and from the store otherwise
func (uc *MarketDataUseCase) GetLatestPrices(ctx context.Context, fiatCurrency string, side models.Side) ([]models.MarketPriceSnapshot, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("invalid side %q", side)
	}
	fiatCurrency = strings.ToUpper(fiatCurrency)

	if uc.cache != nil {
		prices, err := uc.cache.GetLatestPrices(ctx, fiatCurrency, side)
		if err != nil {
			uc.logger.Warn("Cache read failed, falling back to storage", "fiat", fiatCurrency, "side", side, "error", err)
		} else if len(prices) > 0 {
			return prices, nil
		}
	}

	prices, err := uc.storage.GetLatestPrices(ctx, fiatCurrency, side)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest prices: %w", err)
	}
	return prices, nil
}

// GetActiveMarkets lists the markets the monitor polls
func (uc *MarketDataUseCase) GetActiveMarkets(ctx context.Context) ([]models.P2PMarketConfig, error) {
	return uc.storage.GetActiveConfigs(ctx)
}
