package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAssetCode is the crypto asset quoted on the P2P venue
const DefaultAssetCode = "USDT"

// Side is the user-perspective trade side of a quote
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// P2PMarketConfig describes one market the price monitor polls
type P2PMarketConfig struct {
	CountryCode                string `json:"country_code"`
	CountryName                string `json:"country_name"`
	FiatCurrency               string `json:"fiat_currency"`
	PriceUpdateIntervalMinutes int    `json:"price_update_interval_minutes"`
	IsActive                   bool   `json:"is_active"`
}

// UpdateInterval returns the configured polling interval as a duration
func (c P2PMarketConfig) UpdateInterval() time.Duration {
	return time.Duration(c.PriceUpdateIntervalMinutes) * time.Minute
}

// MarketPriceSnapshot represents one ranked quote captured from the venue.
// Snapshots are append-only.
type MarketPriceSnapshot struct {
	FiatCurrency    string           `json:"fiat_currency"`
	AssetCode       string           `json:"asset_code"`
	Side            Side             `json:"side"`
	PricePerUnit    decimal.Decimal  `json:"price_per_unit"`
	Rank            int              `json:"rank"`
	Timestamp       time.Time        `json:"timestamp"`
	AdvertiserName  string           `json:"advertiser_name,omitempty"`
	AvailableAmount *decimal.Decimal `json:"available_amount,omitempty"`
	MinOrderLimit   *decimal.Decimal `json:"min_order_limit,omitempty"`
	MaxOrderLimit   *decimal.Decimal `json:"max_order_limit,omitempty"`
}

// DataMode selects which venue adapter feeds the price monitor
type DataMode string

const (
	DataModeLive DataMode = "live"
	DataModeTest DataMode = "test"
)
