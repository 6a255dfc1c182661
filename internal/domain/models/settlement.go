package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementState is a stage of a single sell-order settlement run
type SettlementState string

const (
	StateFetching    SettlementState = "FETCHING"
	StateFetched     SettlementState = "FETCHED"
	StateVerifying   SettlementState = "VERIFYING"
	StateVerified    SettlementState = "VERIFIED"
	StateRejected    SettlementState = "REJECTED"
	StateReleasing   SettlementState = "RELEASING"
	StateReleased    SettlementState = "RELEASED"
	StateTimedOut2FA SettlementState = "TIMED_OUT_2FA"
	StateFailed      SettlementState = "FAILED"
)

// Release statuses reported by the venue adapter
const (
	ReleaseStatusReleased         = "released_after_2fa"
	ReleaseStatusAlreadyCompleted = "already_completed"
	ReleaseStatus2FATimeout       = "2fa_timeout"
	ReleaseStatusButtonNotFound   = "button_not_found"
	ReleaseStatusModalError       = "modal_error"
	ReleaseStatusError            = "error"
)

var allowedTransitions = map[SettlementState][]SettlementState{
	StateFetching:  {StateFetched, StateFailed},
	StateFetched:   {StateVerifying},
	StateVerifying: {StateVerified, StateRejected},
	StateVerified:  {StateReleasing},
	StateReleasing: {StateReleased, StateTimedOut2FA, StateFailed},
}

// Terminal reports whether no further transition is possible from s
func (s SettlementState) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// CanTransition reports whether the machine may move from s to next
func (s SettlementState) CanTransition(next SettlementState) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition records one state change of a settlement run
type Transition struct {
	From   SettlementState `json:"from"`
	To     SettlementState `json:"to"`
	At     time.Time       `json:"at"`
	Reason string          `json:"reason,omitempty"`
}

// SettlementOrder is the in-memory record of one settlement run
type SettlementOrder struct {
	RunID            string          `json:"run_id"`
	OrderReference   string          `json:"order_reference"`
	Amount           decimal.Decimal `json:"amount"`
	CounterpartyName string          `json:"counterparty_name"`
	State            SettlementState `json:"state"`
	History          []Transition    `json:"history"`
}

// NewSettlementOrder starts a run in the FETCHING state
func NewSettlementOrder(runID, orderReference string) *SettlementOrder {
	return &SettlementOrder{
		RunID:          runID,
		OrderReference: orderReference,
		State:          StateFetching,
	}
}

// Advance moves the order to next, refusing transitions outside the state table
func (o *SettlementOrder) Advance(next SettlementState, at time.Time, reason string) error {
	if !o.State.CanTransition(next) {
		return fmt.Errorf("illegal settlement transition %s -> %s", o.State, next)
	}
	o.History = append(o.History, Transition{From: o.State, To: next, At: at, Reason: reason})
	o.State = next
	return nil
}

// OrderDetails is what the venue order page yields
type OrderDetails struct {
	Amount           decimal.Decimal `json:"amount"`
	CounterpartyName string          `json:"counterparty_name"`
}

// PaymentVerificationResult is the payment institution's answer for one expected transfer
type PaymentVerificationResult struct {
	Verified bool   `json:"verified"`
	Sender   string `json:"sender,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ReleaseResult is the outcome of the venue release action
type ReleaseResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}
