package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ecucondorSA/autorenta-sub030/internal/config"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// DefaultTTL keeps a batch visible for a few monitor cycles
const DefaultTTL = 30 * time.Minute

// Adapter implements ports.PriceCache for Redis
type Adapter struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a new Redis adapter
func New(cfg config.CacheConfig) (*Adapter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewFromClient(client, cfg.TTL), nil
}

// NewFromClient wraps an existing client
func NewFromClient(client *redis.Client, ttl time.Duration) *Adapter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Adapter{
		client: client,
		ttl:    ttl,
	}
}

// LatestKey returns the key holding the newest batch for a market side
func LatestKey(fiatCurrency string, side models.Side) string {
	return fmt.Sprintf("p2p:latest:%s:%s", strings.ToUpper(fiatCurrency), side)
}

// SetLatestPrices replaces the cached batch with a TTL
func (a *Adapter) SetLatestPrices(ctx context.Context, fiatCurrency string, side models.Side, prices []models.MarketPriceSnapshot) error {
	data, err := json.Marshal(prices)
	if err != nil {
		return err
	}

	if err := a.client.Set(ctx, LatestKey(fiatCurrency, side), data, a.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache latest prices: %w", err)
	}
	return nil
}

// GetLatestPrices returns the cached batch, or nil when nothing is cached
func (a *Adapter) GetLatestPrices(ctx context.Context, fiatCurrency string, side models.Side) ([]models.MarketPriceSnapshot, error) {
	data, err := a.client.Get(ctx, LatestKey(fiatCurrency, side)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var prices []models.MarketPriceSnapshot
	if err := json.Unmarshal(data, &prices); err != nil {
		return nil, fmt.Errorf("corrupt cache entry: %w", err)
	}
	return prices, nil
}

// Ping checks the connection for the health endpoint
func (a *Adapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

// Close closes the cache connection
func (a *Adapter) Close() error {
	return a.client.Close()
}
