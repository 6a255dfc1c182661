package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// PaymentInstitution defines the contract of the payment provider page adapter
type PaymentInstitution interface {
	SessionVerifier

	// VerifyIncomingTransaction looks for an incoming transfer matching both amount and sender
	VerifyIncomingTransaction(ctx context.Context, amount decimal.Decimal, counterpartyName string) (models.PaymentVerificationResult, error)
}
