package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
	"github.com/ecucondorSA/autorenta-sub030/internal/concurrency"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
	"github.com/ecucondorSA/autorenta-sub030/internal/metrics"
)

// DefaultReleaseTimeout bounds the wait for the second factor during release
const DefaultReleaseTimeout = 60 * time.Second

// SettlementOrchestrator carries one sell order through fetch, payment
// verification and release. Release is only reachable from VERIFIED.
type SettlementOrchestrator struct {
	venue          ports.TradingVenue
	payment        ports.PaymentInstitution
	clock          concurrency.Clock
	releaseTimeout time.Duration
	newRunID       func() string
	logger         *slog.Logger
}

// NewSettlementOrchestrator creates an orchestrator over the two page adapters
func NewSettlementOrchestrator(venue ports.TradingVenue, payment ports.PaymentInstitution, clock concurrency.Clock, releaseTimeout time.Duration, logger *slog.Logger) *SettlementOrchestrator {
	if clock == nil {
		clock = concurrency.SystemClock{}
	}
	if releaseTimeout <= 0 {
		releaseTimeout = DefaultReleaseTimeout
	}

	return &SettlementOrchestrator{
		venue:          venue,
		payment:        payment,
		clock:          clock,
		releaseTimeout: releaseTimeout,
		newRunID:       uuid.NewString,
		logger:         logger.With("component", "settlement"),
	}
}

// Settle runs the state machine for orderReference. The returned order is
// never nil and reflects the last state reached; the error classifies why a
// run did not end in RELEASED.
func (s *SettlementOrchestrator) Settle(ctx context.Context, orderReference string) (*models.SettlementOrder, error) {
	order := models.NewSettlementOrder(s.newRunID(), orderReference)
	log := s.logger.With("run_id", order.RunID, "order", orderReference)

	log.Info("Settlement started", "state", order.State)

	err := s.run(ctx, order, log)
	if order.State.Terminal() {
		metrics.SettlementOutcomes.WithLabelValues(string(order.State)).Inc()
	}

	if err != nil {
		log.Warn("Settlement ended without release", "state", order.State, "error", err)
		return order, err
	}

	log.Info("Settlement complete", "state", order.State, "amount", order.Amount.String())
	return order, nil
}

func (s *SettlementOrchestrator) run(ctx context.Context, order *models.SettlementOrder, log *slog.Logger) error {
	// an expired login reads as an empty page, which must not look like a mismatch
	if err := VerifySession(ctx, s.venue.GetName(), s.venue); err != nil {
		return s.fail(order, models.StateFailed, err)
	}
	if err := VerifySession(ctx, "payment", s.payment); err != nil {
		return s.fail(order, models.StateFailed, err)
	}

	details, err := s.venue.FetchOrderDetails(ctx, order.OrderReference)
	if err != nil {
		return s.fail(order, models.StateFailed, fmt.Errorf("%w: %w", models.ErrExtraction, err))
	}

	// partial data must never reach verification
	name := strings.TrimSpace(details.CounterpartyName)
	if !details.Amount.IsPositive() || name == "" {
		return s.fail(order, models.StateFailed,
			fmt.Errorf("%w: order page missing amount or counterparty (amount=%s, counterparty=%q)",
				models.ErrExtraction, details.Amount, details.CounterpartyName))
	}

	order.Amount = details.Amount
	order.CounterpartyName = name
	if err := s.advance(order, models.StateFetched, ""); err != nil {
		return err
	}
	log.Info("Order details fetched", "amount", order.Amount.String(), "counterparty", order.CounterpartyName)

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.advance(order, models.StateVerifying, ""); err != nil {
		return err
	}

	result, err := s.payment.VerifyIncomingTransaction(ctx, order.Amount, order.CounterpartyName)
	if reason := rejectionReason(result, err); reason != "" {
		if advErr := s.advance(order, models.StateRejected, reason); advErr != nil {
			return advErr
		}
		metrics.SecurityAlerts.Inc()
		log.Error("SECURITY ALERT: payment not verified, release blocked",
			"amount", order.Amount.String(),
			"counterparty", order.CounterpartyName,
			"reason", reason,
		)
		return &models.VerificationMismatchError{OrderReference: order.OrderReference, Reason: reason}
	}

	if err := s.advance(order, models.StateVerified, "sender "+result.Sender); err != nil {
		return err
	}
	log.Info("Payment verified", "sender", result.Sender)

	if err := ctx.Err(); err != nil {
		return err
	}

	return s.release(ctx, order, log)
}

func (s *SettlementOrchestrator) release(ctx context.Context, order *models.SettlementOrder, log *slog.Logger) error {
	if order.State != models.StateVerified {
		return fmt.Errorf("release refused from state %s", order.State)
	}
	if err := s.advance(order, models.StateReleasing, ""); err != nil {
		return err
	}

	// a shutdown signal must not abandon a release halfway; only the 2FA bound applies
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer cancel()

	log.Info("Releasing order, confirm the second factor on your device", "timeout", s.releaseTimeout)
	result, err := s.venue.ReleaseOrder(relCtx, order.OrderReference)

	switch {
	case err == nil && result.Success:
		return s.advance(order, models.StateReleased, result.Status)
	case result.Status == models.ReleaseStatus2FATimeout,
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ports.ErrWaitTimeout):
		log.Error("Second factor not confirmed in time, complete the release manually", "timeout", s.releaseTimeout)
		return s.fail(order, models.StateTimedOut2FA,
			fmt.Errorf("%w: order %s after %s", models.ErrReleaseTimeout, order.OrderReference, s.releaseTimeout))
	case err != nil:
		return s.fail(order, models.StateFailed, fmt.Errorf("%w: %w", models.ErrReleaseFailed, err))
	default:
		return s.fail(order, models.StateFailed, fmt.Errorf("%w: status %s", models.ErrReleaseFailed, result.Status))
	}
}

func (s *SettlementOrchestrator) advance(order *models.SettlementOrder, next models.SettlementState, reason string) error {
	return order.Advance(next, s.clock.Now(), reason)
}

func (s *SettlementOrchestrator) fail(order *models.SettlementOrder, next models.SettlementState, cause error) error {
	if err := s.advance(order, next, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// rejectionReason returns why a verification answer cannot authorise release,
// or "" when it can
func rejectionReason(result models.PaymentVerificationResult, err error) string {
	switch {
	case err != nil:
		return "verification error: " + err.Error()
	case !result.Verified && result.Error != "":
		return "not verified: " + result.Error
	case !result.Verified && result.Status != "":
		return "not verified: status " + result.Status
	case !result.Verified:
		return "no matching incoming transaction"
	default:
		return ""
	}
}
