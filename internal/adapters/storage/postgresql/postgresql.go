package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ecucondorSA/autorenta-sub030/internal/config"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// Adapter implements ports.MarketDataStore for PostgreSQL
type Adapter struct {
	db *sql.DB
}

// New creates a new PostgreSQL adapter
func New(cfg config.DatabaseConfig) (*Adapter, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewFromDB(db), nil
}

// NewFromDB wraps an open connection pool
func NewFromDB(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

// GetActiveConfigs returns the active markets ordered by country code
func (a *Adapter) GetActiveConfigs(ctx context.Context) ([]models.P2PMarketConfig, error) {
	query := `SELECT country_code, country_name, fiat_currency, price_update_interval_minutes, is_active
			  FROM p2p_market_configs
			  WHERE is_active = true
			  ORDER BY country_code`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []models.P2PMarketConfig
	for rows.Next() {
		var c models.P2PMarketConfig
		if err := rows.Scan(&c.CountryCode, &c.CountryName, &c.FiatCurrency, &c.PriceUpdateIntervalMinutes, &c.IsActive); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}

	return configs, rows.Err()
}

// RecordMarketPrices appends a batch of snapshots in one transaction
func (a *Adapter) RecordMarketPrices(ctx context.Context, prices []models.MarketPriceSnapshot) error {
	if len(prices) == 0 {
		return nil
	}

	query := `INSERT INTO p2p_market_prices (fiat_currency, asset_code, side, price_per_unit, ranking_position,
			  advertiser_name, available_amount, min_order_limit, max_order_limit, captured_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range prices {
		_, err := stmt.ExecContext(ctx,
			p.FiatCurrency, p.AssetCode, string(p.Side), p.PricePerUnit, p.Rank,
			nullString(p.AdvertiserName), nullDecimal(p.AvailableAmount), nullDecimal(p.MinOrderLimit), nullDecimal(p.MaxOrderLimit),
			p.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert %s %s rank %d: %w", p.FiatCurrency, p.Side, p.Rank, err)
		}
	}

	return tx.Commit()
}

// GetLatestPrices returns the most recent batch for a currency and side, best rank first
func (a *Adapter) GetLatestPrices(ctx context.Context, fiatCurrency string, side models.Side) ([]models.MarketPriceSnapshot, error) {
	query := `SELECT fiat_currency, asset_code, side, price_per_unit, ranking_position,
			  advertiser_name, available_amount, min_order_limit, max_order_limit, captured_at
			  FROM p2p_market_prices
			  WHERE fiat_currency = $1 AND side = $2
			  AND captured_at = (SELECT MAX(captured_at) FROM p2p_market_prices WHERE fiat_currency = $1 AND side = $2)
			  ORDER BY ranking_position`

	rows, err := a.db.QueryContext(ctx, query, fiatCurrency, string(side))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []models.MarketPriceSnapshot
	for rows.Next() {
		var (
			p                          models.MarketPriceSnapshot
			sideText                   string
			advertiser                 sql.NullString
			available, minLim, maxLim decimal.NullDecimal
		)
		err := rows.Scan(&p.FiatCurrency, &p.AssetCode, &sideText, &p.PricePerUnit, &p.Rank,
			&advertiser, &available, &minLim, &maxLim, &p.Timestamp)
		if err != nil {
			return nil, err
		}
		p.Side = models.Side(sideText)
		p.AdvertiserName = advertiser.String
		p.AvailableAmount = fromNullDecimal(available)
		p.MinOrderLimit = fromNullDecimal(minLim)
		p.MaxOrderLimit = fromNullDecimal(maxLim)
		prices = append(prices, p)
	}

	return prices, rows.Err()
}

// Ping checks the connection pool
func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the storage connection
func (a *Adapter) Close() error {
	return a.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
