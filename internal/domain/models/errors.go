package models

import (
	"errors"
	"fmt"
)

var (
	// ErrProfileBusy means another live process owns the browser profile
	ErrProfileBusy = errors.New("profile busy")

	// ErrSessionExpired means a browser profile is no longer logged in; retry after logging in again
	ErrSessionExpired = errors.New("session expired")

	// ErrExtraction means an order or payment page could not be parsed into required fields
	ErrExtraction = errors.New("extraction failed")

	// ErrVerificationMismatch means the counterparty payment could not be matched
	ErrVerificationMismatch = errors.New("verification mismatch")

	// ErrReleaseTimeout means the second factor was not confirmed in time
	ErrReleaseTimeout = errors.New("release 2fa timeout")

	// ErrReleaseFailed means the release action did not complete
	ErrReleaseFailed = errors.New("release failed")

	// ErrMarketFetch wraps failures isolated to one market configuration
	ErrMarketFetch = errors.New("market fetch failed")

	// ErrNotSupported is returned by adapters that do not implement an operation
	ErrNotSupported = errors.New("operation not supported")
)

// VerificationMismatchError carries the reason a payment check failed closed
type VerificationMismatchError struct {
	OrderReference string
	Reason         string
}

func (e *VerificationMismatchError) Error() string {
	return fmt.Sprintf("verification mismatch for order %s: %s", e.OrderReference, e.Reason)
}

// Unwrap lets errors.Is match ErrVerificationMismatch
func (e *VerificationMismatchError) Unwrap() error {
	return ErrVerificationMismatch
}
