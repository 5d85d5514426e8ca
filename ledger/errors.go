/*
errors.go - Centralized error types for the credit engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The booking package wraps these with additional orchestration context.

ERROR CATEGORIES:
  1. Balance errors - Utilization/restoration rule violations
  2. Lookup errors - Referenced rows that do not exist
  3. Integrity errors - Guard violations and store-level failures

USAGE:
  Callers match with errors.Is():

    if errors.Is(err, ledger.ErrInsufficientBalance) {
        var detail *ledger.InsufficientBalanceError
        errors.As(err, &detail) // detail.Shortfall, detail.Available
    }

SEE ALSO:
  - balance.go: Produces balance errors
  - booking/guard.go: Produces CreditInUseError
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a utilization exceeds the
	// credit's available balance.
	ErrInsufficientBalance = errors.New("insufficient credit balance")

	// ErrOverRestoration is returned when a restoration would push the
	// balance above the original amount. If invariants held this cannot
	// happen, so callers must treat it as a data-corruption signal and
	// fail loudly rather than clamp.
	ErrOverRestoration = errors.New("restoration exceeds original amount")

	// ErrCreditRefunded is returned when utilizing a terminally refunded credit.
	ErrCreditRefunded = errors.New("credit was refunded and cannot be utilized")

	// ErrMissingBusAssignment is returned when a link request carries no
	// target bus. There is no implicit auto-assignment.
	ErrMissingBusAssignment = errors.New("missing bus assignment")

	// ErrCreditNotFound is returned when a referenced credit doesn't exist.
	ErrCreditNotFound = errors.New("credit not found")

	// ErrTripNotFound is returned when a referenced trip doesn't exist.
	ErrTripNotFound = errors.New("trip not found")

	// ErrPassengerNotFound is returned when a referenced roster row doesn't exist.
	ErrPassengerNotFound = errors.New("passenger not found")

	// ErrNotCreditFunded is returned when unlinking a passenger whose seat
	// was not funded by a credit.
	ErrNotCreditFunded = errors.New("passenger is not credit funded")

	// ErrCreditMismatch is returned when linking a credit to a passenger
	// whose seat is already funded by a different credit. A seat has at
	// most one origin credit; unlink it first.
	ErrCreditMismatch = errors.New("passenger is funded by a different credit")

	// ErrInvalidAmount is returned when a request carries a non-positive
	// monetary amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrCreditInUse is returned when deleting a credit that still funds
	// active roster rows.
	ErrCreditInUse = errors.New("credit is in use by active passengers")

	// ErrLedgerCorrupted is returned when replaying an entry chain finds a
	// before/after mismatch.
	ErrLedgerCorrupted = errors.New("ledger entry chain does not reconcile")

	// ErrConcurrentModification is returned when an optimistic balance
	// update detects a conflicting writer.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrStorageFailure wraps transport/transient store errors. Callers may
	// retry; orchestrator transactions guarantee a failed attempt left no
	// partial effect.
	ErrStorageFailure = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry enough detail for the UI to explain the problem
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	CreditID  CreditID
	Available decimal.Decimal
	Requested decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on credit %s: available %s, requested %s, shortfall %s",
		e.CreditID, e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// OverRestorationError provides details about an inverse-invariant breach.
type OverRestorationError struct {
	CreditID       CreditID
	Balance        decimal.Decimal
	OriginalAmount decimal.Decimal
	Restored       decimal.Decimal
}

func (e *OverRestorationError) Error() string {
	return fmt.Sprintf("restoring %s to credit %s would exceed original %s (balance %s)",
		e.Restored, e.CreditID, e.OriginalAmount, e.Balance)
}

func (e *OverRestorationError) Unwrap() error {
	return ErrOverRestoration
}

// BlockingPassenger identifies a roster row preventing credit deletion.
type BlockingPassenger struct {
	PassengerID PassengerID
	ClientID    ClientID
	TripID      TripID
}

// CreditInUseError lists the passengers blocking a deletion so the caller
// can direct the user to unlink them first.
type CreditInUseError struct {
	CreditID CreditID
	Blocking []BlockingPassenger
}

func (e *CreditInUseError) Error() string {
	return fmt.Sprintf("credit %s funds %d active passenger(s); unlink them before deleting",
		e.CreditID, len(e.Blocking))
}

func (e *CreditInUseError) Unwrap() error {
	return ErrCreditInUse
}

// ReconciliationError pinpoints where an entry chain broke.
type ReconciliationError struct {
	CreditID CreditID
	EntryID  EntryID
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("ledger for credit %s broken at entry %s: expected balance %s, entry says %s",
		e.CreditID, e.EntryID, e.Expected, e.Actual)
}

func (e *ReconciliationError) Unwrap() error {
	return ErrLedgerCorrupted
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is a business-rule violation the
// caller must fix; these are never retried automatically.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrMissingBusAssignment) ||
		errors.Is(err, ErrNotCreditFunded) ||
		errors.Is(err, ErrCreditRefunded) ||
		errors.Is(err, ErrCreditMismatch) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrCreditInUse)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCreditNotFound) ||
		errors.Is(err, ErrTripNotFound) ||
		errors.Is(err, ErrPassengerNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrStorageFailure)
}
