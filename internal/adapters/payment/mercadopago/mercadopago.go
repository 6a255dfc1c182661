// Package mercadopago verifies incoming transfers on the Mercado Pago
// activity page of a logged-in browser tab.
package mercadopago

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
	"github.com/ecucondorSA/autorenta-sub030/internal/concurrency"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// DefaultActivityURL lists money-in activity only
const DefaultActivityURL = "https://www.mercadopago.com.ar/activities?q=money_in"

const activityScript = `() => Array.from(document.querySelectorAll('div[class*="activity-row"]')).map(row => ({
  amount: row.querySelector('[class*="amount"]')?.textContent || '',
  title: row.querySelector('[class*="title"]')?.textContent || '',
  subtitle: row.querySelector('[class*="subtitle"]')?.textContent || '',
  status: row.querySelector('[class*="status"]')?.textContent || '',
}))`

const bodyTextScript = `() => document.body.innerText`

// sessionMarkers only render on the logged-in home page
var sessionMarkers = []string{"Saldo", "Transferir", "Tu dinero"}

// Adapter implements ports.PaymentInstitution
type Adapter struct {
	page        ports.Page
	activityURL string
	settleDelay time.Duration
	clock       concurrency.Clock
	logger      *slog.Logger
}

// New creates a Mercado Pago adapter bound to page. An empty activityURL
// uses the public money-in list.
func New(page ports.Page, activityURL string, settleDelay time.Duration, clock concurrency.Clock, logger *slog.Logger) *Adapter {
	if activityURL == "" {
		activityURL = DefaultActivityURL
	}
	if clock == nil {
		clock = concurrency.SystemClock{}
	}
	return &Adapter{
		page:        page,
		activityURL: activityURL,
		settleDelay: settleDelay,
		clock:       clock,
		logger:      logger.With("component", "payment", "institution", "mercadopago"),
	}
}

// VerifySession opens the home page of the activity site and reports
// whether it renders as logged in. Anything else counts as expired.
func (a *Adapter) VerifySession(ctx context.Context) (bool, error) {
	home := homeURL(a.activityURL)
	if err := a.page.Goto(ctx, home); err != nil {
		return false, fmt.Errorf("failed to open %s: %w", home, err)
	}
	if err := a.clock.Sleep(ctx, a.settleDelay); err != nil {
		return false, err
	}

	raw, err := a.page.Evaluate(ctx, bodyTextScript, nil)
	if err != nil {
		return false, fmt.Errorf("failed to read page text: %w", err)
	}
	text := str(raw)
	for _, marker := range sessionMarkers {
		if strings.Contains(text, marker) {
			a.logger.Info("Payment session is active")
			return true, nil
		}
	}

	a.logger.Warn("Payment session expired, log in to the profile again", "url", a.page.URL())
	return false, nil
}

func homeURL(activityURL string) string {
	u, err := url.Parse(activityURL)
	if err != nil || u.Host == "" {
		return "https://www.mercadopago.com.ar/home"
	}
	return u.Scheme + "://" + u.Host + "/home"
}

// VerifyIncomingTransaction scans recent incoming transfers for one that
// matches both amount and sender exactly
func (a *Adapter) VerifyIncomingTransaction(ctx context.Context, amount decimal.Decimal, counterpartyName string) (models.PaymentVerificationResult, error) {
	a.logger.Info("Security check: verifying incoming payment", "amount", amount.String(), "sender", counterpartyName)

	if err := a.page.Goto(ctx, a.activityURL); err != nil {
		return models.PaymentVerificationResult{Error: err.Error()}, fmt.Errorf("failed to open activity: %w", err)
	}
	if err := a.clock.Sleep(ctx, a.settleDelay); err != nil {
		return models.PaymentVerificationResult{Error: err.Error()}, err
	}

	raw, err := a.page.Evaluate(ctx, activityScript, nil)
	if err != nil {
		return models.PaymentVerificationResult{Error: err.Error()}, fmt.Errorf("failed to read activity: %w", err)
	}

	txs := toTransactions(raw)
	a.logger.Info("Scanned recent transactions", "count", len(txs))

	result := Match(txs, amount, counterpartyName)
	if !result.Verified {
		a.logger.Warn("Payment not verified", "reason", result.Error, "found", result.Sender, "status", result.Status)
		return result, nil
	}

	a.logger.Info("Payment verified", "sender", result.Sender, "status", result.Status)
	return result, nil
}

func toTransactions(raw any) []Transaction {
	rows, ok := raw.([]any)
	if !ok {
		return nil
	}

	txs := make([]Transaction, 0, len(rows))
	for _, r := range rows {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		txs = append(txs, Transaction{
			AmountText: str(m["amount"]),
			Title:      str(m["title"]),
			Subtitle:   str(m["subtitle"]),
			Status:     str(m["status"]),
		})
	}
	return txs
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
