package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

var juanOrder = models.OrderDetails{
	Amount:           decimal.NewFromInt(25000),
	CounterpartyName: "Juan Perez",
}

func newTestOrchestrator(venue *fakeVenue, payment *fakePayment) *SettlementOrchestrator {
	o := NewSettlementOrchestrator(venue, payment, newFakeClock(), 50*time.Millisecond, discardLogger())
	o.newRunID = func() string { return "run-test" }
	return o
}

func statesOf(order *models.SettlementOrder) []models.SettlementState {
	states := []models.SettlementState{models.StateFetching}
	for _, tr := range order.History {
		states = append(states, tr.To)
	}
	return states
}

func TestSettleMissingFieldsNeverVerifies(t *testing.T) {
	cases := map[string]models.OrderDetails{
		"zero amount":     {Amount: decimal.Zero, CounterpartyName: "Juan Perez"},
		"empty name":      {Amount: decimal.NewFromInt(25000)},
		"blank name":      {Amount: decimal.NewFromInt(25000), CounterpartyName: "   "},
		"negative amount": {Amount: decimal.NewFromInt(-1), CounterpartyName: "Juan Perez"},
	}

	for name, details := range cases {
		t.Run(name, func(t *testing.T) {
			venue := &fakeVenue{details: details}
			payment := &fakePayment{result: models.PaymentVerificationResult{Verified: true}}

			order, err := newTestOrchestrator(venue, payment).Settle(context.Background(), "ref-1")

			assert.ErrorIs(t, err, models.ErrExtraction)
			assert.Equal(t, models.StateFailed, order.State)
			assert.Zero(t, payment.calls)
			assert.Empty(t, venue.releases)
		})
	}
}

func TestSettleFetchErrorFails(t *testing.T) {
	venue := &fakeVenue{detailsErr: errors.New("order page did not load")}
	payment := &fakePayment{}

	order, err := newTestOrchestrator(venue, payment).Settle(context.Background(), "ref-1")

	assert.ErrorIs(t, err, models.ErrExtraction)
	assert.Equal(t, models.StateFailed, order.State)
	assert.Zero(t, payment.calls)
}

func TestSettleUnverifiedPaymentIsRejected(t *testing.T) {
	venue := &fakeVenue{details: juanOrder}
	payment := &fakePayment{result: models.PaymentVerificationResult{Verified: false}}

	order, err := newTestOrchestrator(venue, payment).Settle(context.Background(), "ref-1")

	var mismatch *models.VerificationMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.ErrorIs(t, err, models.ErrVerificationMismatch)
	assert.Equal(t, models.StateRejected, order.State)
	assert.Empty(t, venue.releases)

	assert.Equal(t, 1, payment.calls)
	assert.True(t, payment.amount.Equal(decimal.NewFromInt(25000)))
	assert.Equal(t, "Juan Perez", payment.name)
}

func TestSettleVerificationErrorFailsClosed(t *testing.T) {
	venue := &fakeVenue{details: juanOrder}
	payment := &fakePayment{
		result: models.PaymentVerificationResult{Verified: true},
		err:    errors.New("activity page timeout"),
	}

	order, err := newTestOrchestrator(venue, payment).Settle(context.Background(), "ref-1")

	assert.ErrorIs(t, err, models.ErrVerificationMismatch)
	assert.Equal(t, models.StateRejected, order.State)
	assert.Empty(t, venue.releases)
}

func TestSettleVerifiedPaymentIsReleased(t *testing.T) {
	venue := &fakeVenue{
		details: juanOrder,
		release: models.ReleaseResult{Success: true, Status: models.ReleaseStatusReleased},
	}
	payment := &fakePayment{result: models.PaymentVerificationResult{Verified: true, Sender: "Juan Perez"}}

	order, err := newTestOrchestrator(venue, payment).Settle(context.Background(), "ref-1")

	require.NoError(t, err)
	assert.Equal(t, models.StateReleased, order.State)
	assert.Equal(t, []string{"ref-1"}, venue.releases)
	assert.Equal(t, "run-test", order.RunID)
	assert.Equal(t, []models.SettlementState{
		models.StateFetching,
		models.StateFetched,
		models.StateVerifying,
		models.StateVerified,
		models.StateReleasing,
		models.StateReleased,
	}, statesOf(order))
}

func TestSettle2FATimeoutStatus(t *testing.T) {
	venue := &fakeVenue{
		details: juanOrder,
		release: models.ReleaseResult{Success: false, Status: models.ReleaseStatus2FATimeout},
	}
	payment := &fakePayment{result: models.PaymentVerificationResult{Verified: true, Sender: "Juan Perez"}}

	order, err := newTestOrchestrator(venue, payment).Settle(context.Background(), "ref-1")

	assert.ErrorIs(t, err, models.ErrReleaseTimeout)
	assert.Equal(t, models.StateTimedOut2FA, order.State)
	assert.Len(t, venue.releases, 1, "release is never retried")
}

func TestSettleReleaseDeadlineIsTimedOut2FA(t *testing.T) {
	venue := &fakeVenue{details: juanOrder, releaseBlocks: true}
	payment := &fakePayment{result: models.PaymentVerificationResult{Verified: true}}

	order, err := newTestOrchestrator(venue, payment).Settle(context.Background(), "ref-1")

	assert.ErrorIs(t, err, models.ErrReleaseTimeout)
	assert.Equal(t, models.StateTimedOut2FA, order.State)
}

func TestSettleReleaseErrorFails(t *testing.T) {
	venue := &fakeVenue{
		details:    juanOrder,
		release:    models.ReleaseResult{Status: models.ReleaseStatusButtonNotFound},
		releaseErr: errors.New("payment received button not found"),
	}
	payment := &fakePayment{result: models.PaymentVerificationResult{Verified: true}}

	order, err := newTestOrchestrator(venue, payment).Settle(context.Background(), "ref-1")

	assert.ErrorIs(t, err, models.ErrReleaseFailed)
	assert.Equal(t, models.StateFailed, order.State)
	assert.Len(t, venue.releases, 1)
}

func TestSettleUnsuccessfulReleaseStatusFails(t *testing.T) {
	venue := &fakeVenue{
		details: juanOrder,
		release: models.ReleaseResult{Status: models.ReleaseStatusModalError},
	}
	payment := &fakePayment{result: models.PaymentVerificationResult{Verified: true}}

	order, err := newTestOrchestrator(venue, payment).Settle(context.Background(), "ref-1")

	assert.ErrorIs(t, err, models.ErrReleaseFailed)
	assert.Equal(t, models.StateFailed, order.State)
}

func TestSettleCancelledBeforeVerifyDoesNotProceed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	venue := &fakeVenue{details: juanOrder}
	payment := &fakePayment{result: models.PaymentVerificationResult{Verified: true}}

	order, err := newTestOrchestrator(venue, payment).Settle(ctx, "ref-1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StateFetched, order.State)
	assert.Zero(t, payment.calls)
	assert.Empty(t, venue.releases)
}

func TestSettleCancelledAfterVerifyStopsBeforeRelease(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	venue := &fakeVenue{
		details: juanOrder,
		release: models.ReleaseResult{Success: true},
	}
	payment := &verifyThenCancel{cancel: cancel}

	order, err := NewSettlementOrchestrator(venue, payment, newFakeClock(), time.Second, discardLogger()).Settle(ctx, "ref-1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StateVerified, order.State)
	assert.Empty(t, venue.releases)
}

func TestReleaseRunsDetachedFromCancellation(t *testing.T) {
	venue := &fakeVenue{details: juanOrder, release: models.ReleaseResult{Success: true}}
	payment := &fakePayment{result: models.PaymentVerificationResult{Verified: true}}

	_, err := newTestOrchestrator(venue, payment).Settle(context.Background(), "ref-1")
	require.NoError(t, err)

	deadline, ok := venue.releaseCtx.Deadline()
	assert.True(t, ok, "release context carries the 2FA bound")
	assert.WithinDuration(t, time.Now(), deadline, time.Second)
}

type verifyThenCancel struct {
	cancel context.CancelFunc
}

func (v *verifyThenCancel) VerifyIncomingTransaction(context.Context, decimal.Decimal, string) (models.PaymentVerificationResult, error) {
	v.cancel()
	return models.PaymentVerificationResult{Verified: true}, nil
}

func (v *verifyThenCancel) VerifySession(context.Context) (bool, error) { return true, nil }

func TestSettleExpiredSessionFailsBeforeFetching(t *testing.T) {
	tests := []struct {
		name    string
		venue   *fakeVenue
		payment *fakePayment
	}{
		{"venue logged out", &fakeVenue{details: juanOrder, sessionExpired: true}, &fakePayment{}},
		{"payment logged out", &fakeVenue{details: juanOrder}, &fakePayment{sessionExpired: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := newTestOrchestrator(tt.venue, tt.payment).Settle(context.Background(), "ref-1")

			assert.ErrorIs(t, err, models.ErrSessionExpired)
			assert.NotErrorIs(t, err, models.ErrVerificationMismatch, "an expired login is not a payment mismatch")
			assert.Equal(t, models.StateFailed, order.State)
			assert.Equal(t, []models.SettlementState{models.StateFetching, models.StateFailed}, statesOf(order))
			assert.Zero(t, tt.payment.calls)
			assert.Empty(t, tt.venue.releases)
		})
	}
}

func TestSettleSessionCheckErrorFails(t *testing.T) {
	venue := &fakeVenue{details: juanOrder}
	payment := &fakePayment{sessionErr: errors.New("net::ERR_TIMED_OUT")}

	order, err := newTestOrchestrator(venue, payment).Settle(context.Background(), "ref-1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrSessionExpired)
	assert.Equal(t, models.StateFailed, order.State)
	assert.Equal(t, 1, venue.sessionChecks)
	assert.Zero(t, payment.calls)
}

func TestVerifySession(t *testing.T) {
	assert.NoError(t, VerifySession(context.Background(), "fake", &fakeVenue{}))
	assert.ErrorIs(t, VerifySession(context.Background(), "fake", &fakeVenue{sessionExpired: true}), models.ErrSessionExpired)

	err := VerifySession(context.Background(), "fake", &fakeVenue{sessionErr: errors.New("detached")})
	assert.ErrorContains(t, err, "fake session")
	assert.NotErrorIs(t, err, models.ErrSessionExpired)
}
