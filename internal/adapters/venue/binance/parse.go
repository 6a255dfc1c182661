package binance

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

const bodyTextScript = `() => document.body.innerText`

// advertTextsScript returns the innerText of every advert row, falling back
// to generic containers when the list markup changes
const advertTextsScript = `() => {
  let rows = document.querySelectorAll('[data-testid="ad-list-row"], [class*="AdItem"]');
  if (rows.length === 0) {
    rows = document.querySelectorAll('[class*="css-"] > div > div > div');
  }
  return Array.from(rows).map(r => r.innerText || r.textContent || '');
}`

const number = `(\d[\d,]*(?:\.\d+)?)`

var (
	availableRe = regexp.MustCompile(`(?i)(?:available|disponible)[:\s]*` + number + `\s*USDT`)
	usdtRe      = regexp.MustCompile(number + `\s*USDT`)
	limitRe     = regexp.MustCompile(`(?i)(?:limit|l[ií]mite)[:\s]*[^\d\n]*` + number + `\s*[-–~]\s*[^\d\n]*` + number)
	firstLineRe = regexp.MustCompile(`^\s*([A-Za-z0-9_-]+)\s*\n`)
	nameStatRe  = regexp.MustCompile(`([A-Za-z][A-Za-z0-9_-]+)\s*(?:\d+\s*orders|\d+%)`)

	fiatAmountRe = regexp.MustCompile(`(?i)(?:fiat amount|total amount|monto)[ \t:]*\n?[^\d\n]*` + number)
	currencyRe   = regexp.MustCompile(number + `\s*([A-Z]{3,4})`)
	buyerNameRe  = regexp.MustCompile(`(?i)(?:buyer'?s?\s+(?:real\s+)?name|real\s+name|full\s+name|nombre\s+completo)[ \t:]*\n?[ \t]*([^\n]+)`)
)

// ParseAdvert extracts a quote from the text of one advert row. The price is
// the first amount denominated in fiat.
func ParseAdvert(text, fiat string) (models.MarketPriceSnapshot, bool) {
	priceRe, err := regexp.Compile(number + `\s*` + regexp.QuoteMeta(strings.ToUpper(fiat)))
	if err != nil {
		return models.MarketPriceSnapshot{}, false
	}

	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return models.MarketPriceSnapshot{}, false
	}
	price, err := parseNumber(m[1])
	if err != nil || !price.IsPositive() {
		return models.MarketPriceSnapshot{}, false
	}

	snap := models.MarketPriceSnapshot{
		FiatCurrency: strings.ToUpper(fiat),
		PricePerUnit: price,
	}

	if m := availableRe.FindStringSubmatch(text); m != nil {
		snap.AvailableAmount = optionalNumber(m[1])
	} else if m := usdtRe.FindStringSubmatch(text); m != nil {
		snap.AvailableAmount = optionalNumber(m[1])
	}

	if m := limitRe.FindStringSubmatch(text); m != nil {
		snap.MinOrderLimit = optionalNumber(m[1])
		snap.MaxOrderLimit = optionalNumber(m[2])
	}

	if m := firstLineRe.FindStringSubmatch(text); m != nil {
		snap.AdvertiserName = m[1]
	} else if m := nameStatRe.FindStringSubmatch(text); m != nil {
		snap.AdvertiserName = m[1]
	}

	return snap, true
}

// ParseOrderDetails extracts the fiat amount and the buyer's real name from
// an order detail page. Both are required.
func ParseOrderDetails(text string) (models.OrderDetails, error) {
	var details models.OrderDetails

	if m := fiatAmountRe.FindStringSubmatch(text); m != nil {
		if amount, err := parseNumber(m[1]); err == nil {
			details.Amount = amount
		}
	}
	if details.Amount.IsZero() {
		for _, m := range currencyRe.FindAllStringSubmatch(text, -1) {
			if m[2] == "USDT" {
				continue
			}
			if amount, err := parseNumber(m[1]); err == nil {
				details.Amount = amount
				break
			}
		}
	}

	if m := buyerNameRe.FindStringSubmatch(text); m != nil {
		details.CounterpartyName = strings.TrimSpace(m[1])
	}

	switch {
	case !details.Amount.IsPositive():
		return details, fmt.Errorf("%w: fiat amount not found", models.ErrExtraction)
	case details.CounterpartyName == "":
		return details, fmt.Errorf("%w: counterparty name not found", models.ErrExtraction)
	}
	return details, nil
}

// parseNumber reads the venue's en-US formatting, e.g. 20,891.70
func parseNumber(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}

func optionalNumber(s string) *decimal.Decimal {
	d, err := parseNumber(s)
	if err != nil {
		return nil
	}
	return &d
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, ports.ErrWaitTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded)
}
