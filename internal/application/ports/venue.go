package ports

import (
	"context"

	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// SessionVerifier reports whether a browser-backed adapter is still logged in.
// false with a nil error means the session expired and needs a manual login.
type SessionVerifier interface {
	VerifySession(ctx context.Context) (bool, error)
}

// TradingVenue defines the contract of the P2P exchange page adapter
type TradingVenue interface {
	SessionVerifier

	// ScrapeMarketPrices returns up to topN ranked quotes for a fiat currency and side
	ScrapeMarketPrices(ctx context.Context, fiatCurrency string, side models.Side, topN int) ([]models.MarketPriceSnapshot, error)

	// FetchOrderDetails reads the amount and counterparty of an order
	FetchOrderDetails(ctx context.Context, orderReference string) (models.OrderDetails, error)

	// ReleaseOrder triggers the irreversible release of an order.
	// The context deadline bounds the wait for the second factor.
	ReleaseOrder(ctx context.Context, orderReference string) (models.ReleaseResult, error)

	// GetName returns the venue name
	GetName() string
}
