// Package binance drives the Binance P2P web pages through a logged-in
// browser tab: market quote scraping, order detail extraction and the
// seller-side release flow.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
	"github.com/ecucondorSA/autorenta-sub030/internal/concurrency"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

const (
	// DefaultBaseURL is the P2P web front
	DefaultBaseURL = "https://p2p.binance.com"

	defaultSettleDelay = 3 * time.Second
	modalTimeout       = 5 * time.Second
	default2FATimeout  = 60 * time.Second
)

var sessionMarkers = []string{"All Orders", "Processing", "Order History"}

var completedTexts = []string{"Order Completed", "Successfully sold"}

const (
	paymentReceivedButton = `button:has-text("Payment received")`
	correctAmountLabel    = `label:has-text("I have received the correct amount")`
	confirmReleaseButton  = `button:has-text("Confirm")`
)

// Adapter implements ports.TradingVenue on a browser page
type Adapter struct {
	page        ports.Page
	baseURL     string
	asset       string
	settleDelay time.Duration
	clock       concurrency.Clock
	logger      *slog.Logger
}

// Option customises an Adapter
type Option func(*Adapter)

// WithBaseURL points the adapter at another front, mostly for tests
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithSettleDelay sets the pause after each navigation
func WithSettleDelay(d time.Duration) Option {
	return func(a *Adapter) { a.settleDelay = d }
}

// New creates a Binance adapter bound to page
func New(page ports.Page, clock concurrency.Clock, logger *slog.Logger, opts ...Option) *Adapter {
	if clock == nil {
		clock = concurrency.SystemClock{}
	}
	a := &Adapter{
		page:        page,
		baseURL:     DefaultBaseURL,
		asset:       models.DefaultAssetCode,
		settleDelay: defaultSettleDelay,
		clock:       clock,
		logger:      logger.With("component", "venue", "venue", "binance"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetName returns the venue name
func (a *Adapter) GetName() string {
	return "binance"
}

// ScrapeMarketPrices reads up to topN ads for fiatCurrency. side is the
// user's perspective, so buy quotes come from SELL adverts and vice versa.
func (a *Adapter) ScrapeMarketPrices(ctx context.Context, fiatCurrency string, side models.Side, topN int) ([]models.MarketPriceSnapshot, error) {
	fiatCurrency = strings.ToUpper(fiatCurrency)
	target := a.tradeURL(fiatCurrency, side)

	a.logger.Info("Scraping market prices", "fiat", fiatCurrency, "side", side, "url", target)

	if err := a.open(ctx, target); err != nil {
		return nil, err
	}

	raw, err := a.page.Evaluate(ctx, advertTextsScript, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read adverts: %w", err)
	}

	capturedAt := a.clock.Now()
	texts := toStrings(raw)
	prices := make([]models.MarketPriceSnapshot, 0, topN)
	for _, text := range texts {
		if len(prices) >= topN {
			break
		}
		ad, ok := ParseAdvert(text, fiatCurrency)
		if !ok {
			continue
		}
		ad.AssetCode = a.asset
		ad.Side = side
		ad.Rank = len(prices) + 1
		ad.Timestamp = capturedAt
		prices = append(prices, ad)
	}

	a.logger.Info("Extracted market prices", "fiat", fiatCurrency, "side", side, "count", len(prices), "containers", len(texts))
	return prices, nil
}

// VerifySession reports whether the profile is still logged in. A redirect
// to the login or accounts pages means the session expired.
func (a *Adapter) VerifySession(ctx context.Context) (bool, error) {
	if err := a.open(ctx, a.baseURL+"/en/myOrder?tab=1"); err != nil {
		return false, err
	}

	text, err := a.bodyText(ctx)
	if err != nil {
		return false, err
	}
	for _, marker := range sessionMarkers {
		if strings.Contains(text, marker) {
			a.logger.Info("Venue session is active")
			return true, nil
		}
	}

	if isLoginURL(a.page.URL()) {
		a.logger.Warn("Venue session expired, log in to the profile again", "url", a.page.URL())
		return false, nil
	}
	return true, nil
}

// FetchOrderDetails opens the order page and extracts the fiat amount and
// the counterparty's real name
func (a *Adapter) FetchOrderDetails(ctx context.Context, orderReference string) (models.OrderDetails, error) {
	if err := a.open(ctx, a.orderURL(orderReference)); err != nil {
		return models.OrderDetails{}, err
	}

	text, err := a.bodyText(ctx)
	if err != nil {
		return models.OrderDetails{}, err
	}

	details, err := ParseOrderDetails(text)
	if err != nil {
		return models.OrderDetails{}, fmt.Errorf("order %s: %w", orderReference, err)
	}

	a.logger.Info("Order details extracted", "order", orderReference, "amount", details.Amount.String(), "counterparty", details.CounterpartyName)
	return details, nil
}

// ReleaseOrder confirms receipt of payment and waits for the user to pass
// the second factor. The wait is bounded by the ctx deadline.
func (a *Adapter) ReleaseOrder(ctx context.Context, orderReference string) (models.ReleaseResult, error) {
	a.logger.Info("Initiating release sequence", "order", orderReference)

	if err := a.open(ctx, a.orderURL(orderReference)); err != nil {
		return models.ReleaseResult{Status: models.ReleaseStatusError}, err
	}

	text, err := a.bodyText(ctx)
	if err != nil {
		return models.ReleaseResult{Status: models.ReleaseStatusError}, err
	}

	if !strings.Contains(text, "Payment received") {
		if strings.Contains(text, "Order Completed") {
			return models.ReleaseResult{Success: true, Status: models.ReleaseStatusAlreadyCompleted}, nil
		}
		return models.ReleaseResult{Status: models.ReleaseStatusButtonNotFound}, nil
	}

	if err := a.page.Click(ctx, paymentReceivedButton); err != nil {
		return models.ReleaseResult{Status: models.ReleaseStatusButtonNotFound}, fmt.Errorf("failed to click payment received: %w", err)
	}
	a.logger.Info("Clicked payment received")

	if err := a.confirmModal(ctx); err != nil {
		a.logger.Error("Release modal failed", "error", err)
		return models.ReleaseResult{Status: models.ReleaseStatusModalError}, nil
	}

	wait := default2FATimeout
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}

	a.logger.Warn("Waiting for user 2FA input", "timeout", wait.Round(time.Second))

	if err := a.page.WaitForText(ctx, completedTexts, wait); err != nil {
		if isTimeout(ctx, err) {
			return models.ReleaseResult{Status: models.ReleaseStatus2FATimeout}, nil
		}
		return models.ReleaseResult{Status: models.ReleaseStatusError}, err
	}

	return models.ReleaseResult{Success: true, Status: models.ReleaseStatusReleased}, nil
}

func (a *Adapter) confirmModal(ctx context.Context) error {
	modalCtx, cancel := context.WithTimeout(ctx, modalTimeout)
	defer cancel()

	if err := a.page.Click(modalCtx, correctAmountLabel); err != nil {
		return fmt.Errorf("correct amount option: %w", err)
	}
	if err := a.page.Click(modalCtx, confirmReleaseButton); err != nil {
		return fmt.Errorf("confirm button: %w", err)
	}
	return nil
}

func (a *Adapter) open(ctx context.Context, target string) error {
	if err := a.page.Goto(ctx, target); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}
	return a.clock.Sleep(ctx, a.settleDelay)
}

func (a *Adapter) bodyText(ctx context.Context) (string, error) {
	raw, err := a.page.Evaluate(ctx, bodyTextScript, nil)
	if err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	text, _ := raw.(string)
	return text, nil
}

func (a *Adapter) tradeURL(fiat string, side models.Side) string {
	advertiser := "SELL"
	if side == models.SideSell {
		advertiser = "BUY"
	}
	q := url.Values{}
	q.Set("fiat", fiat)
	q.Set("payment", "all-payments")
	return fmt.Sprintf("%s/en/trade/%s/%s?%s", a.baseURL, advertiser, a.asset, q.Encode())
}

func (a *Adapter) orderURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return fmt.Sprintf("%s/en/fiatOrderDetail?orderNo=%s", a.baseURL, url.QueryEscape(ref))
}

func toStrings(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		if ss, ok := raw.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func isLoginURL(u string) bool {
	return strings.Contains(u, "login") || strings.Contains(u, "accounts")
}
