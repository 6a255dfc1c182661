package mercadopago

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// Transaction is one row of the money-in activity list
type Transaction struct {
	AmountText string
	Title      string
	Subtitle   string
	Status     string
}

// Statuses that mean the money is not yet available
var pendingMarkers = []string{"pendiente", "revisión", "revision", "pending", "in review"}

// Words the activity list puts around the sender's name
var boilerplate = map[string]bool{
	"TRANSFERENCIA": true,
	"RECIBIDA":      true,
	"RECIBISTE":     true,
	"DINERO":        true,
	"DE":            true,
	"DEL":           true,
}

var nonAmountRe = regexp.MustCompile(`[^0-9,.\-]`)

// ParseAmount reads the es-AR money format, e.g. "$ 25.351,00"
func ParseAmount(text string) (decimal.Decimal, error) {
	clean := nonAmountRe.ReplaceAllString(text, "")
	clean = strings.ReplaceAll(clean, ".", "")
	clean = strings.Replace(clean, ",", ".", 1)
	if clean == "" {
		return decimal.Zero, fmt.Errorf("no amount in %q", text)
	}
	return decimal.NewFromString(clean)
}

// NameTokens upper-cases name, strips accents and non-letters, drops
// single letters and returns the remaining words sorted
func NameTokens(name string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, strings.ToUpper(name))
	if err != nil {
		plain = strings.ToUpper(name)
	}

	words := strings.FieldsFunc(plain, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z')
	})

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) > 1 {
			tokens = append(tokens, w)
		}
	}
	sort.Strings(tokens)
	return tokens
}

// SenderTokens returns the name tokens of a row with list boilerplate removed
func SenderTokens(tx Transaction) []string {
	var out []string
	for _, tok := range NameTokens(tx.Title + " " + tx.Subtitle) {
		if !boilerplate[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// SameName reports whether a and b have exactly the same name tokens,
// ignoring order, case and accents
func SameName(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Match decides whether txs contain exactly one settled incoming transfer of
// amount from counterpartyName. Anything else fails closed.
func Match(txs []Transaction, amount decimal.Decimal, counterpartyName string) models.PaymentVerificationResult {
	expected := NameTokens(counterpartyName)
	if len(expected) == 0 {
		return models.PaymentVerificationResult{Error: "expected sender name is empty"}
	}

	var sameAmount, matches []Transaction
	for _, tx := range txs {
		if strings.Contains(tx.AmountText, "-") {
			continue
		}
		got, err := ParseAmount(tx.AmountText)
		if err != nil || !got.Equal(amount) {
			continue
		}
		sameAmount = append(sameAmount, tx)
		if SameName(expected, SenderTokens(tx)) {
			matches = append(matches, tx)
		}
	}

	switch {
	case len(sameAmount) == 0:
		return models.PaymentVerificationResult{Error: "transaction not found with correct amount"}
	case len(matches) == 0:
		found := sameAmount[0]
		return models.PaymentVerificationResult{
			Sender: strings.TrimSpace(found.Title + " " + found.Subtitle),
			Error:  "sender name mismatch",
		}
	case len(matches) > 1:
		return models.PaymentVerificationResult{Error: fmt.Sprintf("ambiguous: %d matching transactions", len(matches))}
	}

	tx := matches[0]
	sender := strings.Join(SenderTokens(tx), " ")
	status := strings.ToLower(strings.TrimSpace(tx.Status))
	for _, marker := range pendingMarkers {
		if strings.Contains(status, marker) {
			return models.PaymentVerificationResult{Sender: sender, Status: status, Error: "transaction is pending or in review"}
		}
	}
	if status == "" {
		status = "approved"
	}

	return models.PaymentVerificationResult{Verified: true, Sender: sender, Status: status}
}
