/*
balance.go - Balance engine: utilization, restoration, replay

PURPOSE:
  Pure functions that compute the result of moving value on a credit.
  No I/O here: the booking orchestrators decide WHEN to move value,
  this file decides WHAT the resulting balance and status are.

KEY INSIGHT:
  The stored AvailableBalance is a cache of the ledger history. Every
  mutation goes through ApplyUtilization/ApplyRestoration, which also
  produce the matching LedgerEntry, so the cache and the history cannot
  drift. Replay() recomputes the balance from entries to audit that claim.

STATUS TABLE (DeriveStatus):
  balance == original           -> Available
  0 < balance < original        -> Partial
  balance == 0                  -> Used
  (Refunded is terminal and never derived; it is set explicitly)

SEE ALSO:
  - status.go: Payment status for roster rows (a different taxonomy)
  - booking/link.go: Calls ApplyUtilization inside a transaction
  - booking/unlink.go: Calls ApplyRestoration inside a transaction
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// UTILIZATION / RESTORATION
// =============================================================================

// ApplyUtilization computes the credit's new balance and status after
// consuming amount. The credit itself is not mutated.
//
// Fails with InsufficientBalanceError if amount exceeds the available
// balance, and with ErrCreditRefunded if the credit is terminally refunded.
// Never produces a negative balance.
func ApplyUtilization(credit Credit, amount decimal.Decimal) (newBalance decimal.Decimal, newStatus CreditStatus, err error) {
	if credit.Status == CreditRefunded {
		return credit.AvailableBalance, credit.Status, ErrCreditRefunded
	}
	if amount.GreaterThan(credit.AvailableBalance) {
		return credit.AvailableBalance, credit.Status, &InsufficientBalanceError{
			CreditID:  credit.ID,
			Available: credit.AvailableBalance,
			Requested: amount,
			Shortfall: amount.Sub(credit.AvailableBalance),
		}
	}
	newBalance = credit.AvailableBalance.Sub(amount)
	return newBalance, DeriveStatus(newBalance, credit.OriginalAmount), nil
}

// ApplyRestoration computes the credit's new balance and status after
// restoring amount (unlink or refund of a previous utilization).
//
// Fails with OverRestorationError if the result would exceed the original
// amount. Under intact invariants this cannot happen, so callers treat it
// as corruption and surface it loudly instead of clamping.
func ApplyRestoration(credit Credit, amount decimal.Decimal) (newBalance decimal.Decimal, newStatus CreditStatus, err error) {
	newBalance = credit.AvailableBalance.Add(amount)
	if newBalance.GreaterThan(credit.OriginalAmount) {
		return credit.AvailableBalance, credit.Status, &OverRestorationError{
			CreditID:       credit.ID,
			Balance:        credit.AvailableBalance,
			OriginalAmount: credit.OriginalAmount,
			Restored:       amount,
		}
	}
	return newBalance, DeriveStatus(newBalance, credit.OriginalAmount), nil
}

// DeriveStatus maps a balance to the credit status enumeration.
// Pure; Refunded is never derived here.
func DeriveStatus(balance, original decimal.Decimal) CreditStatus {
	switch {
	case balance.IsZero():
		return CreditUsed
	case balance.Equal(original):
		return CreditAvailable
	default:
		return CreditPartial
	}
}

// =============================================================================
// ENTRY CONSTRUCTORS - Enforce the before/after arithmetic
// =============================================================================

// NewCreationEntry records the initial grant of value to a fresh credit.
func NewCreationEntry(credit Credit, description string) LedgerEntry {
	return LedgerEntry{
		ID:            EntryID(NewID()),
		CreditID:      credit.ID,
		Kind:          MovementCreation,
		BalanceBefore: decimal.Zero,
		Amount:        credit.OriginalAmount,
		BalanceAfter:  credit.OriginalAmount,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewUtilizationEntry records value consumed against a trip.
// Amount is stored positive; the kind carries the sign.
func NewUtilizationEntry(credit Credit, amount decimal.Decimal, tripID TripID, description string) LedgerEntry {
	return LedgerEntry{
		ID:            EntryID(NewID()),
		CreditID:      credit.ID,
		Kind:          MovementUtilization,
		BalanceBefore: credit.AvailableBalance,
		Amount:        amount,
		BalanceAfter:  credit.AvailableBalance.Sub(amount),
		Description:   description,
		TripID:        tripID,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewRefundEntry records value restored to the credit after an unlink.
func NewRefundEntry(credit Credit, amount decimal.Decimal, tripID TripID, description string) LedgerEntry {
	return LedgerEntry{
		ID:            EntryID(NewID()),
		CreditID:      credit.ID,
		Kind:          MovementRefund,
		BalanceBefore: credit.AvailableBalance,
		Amount:        amount,
		BalanceAfter:  credit.AvailableBalance.Add(amount),
		Description:   description,
		TripID:        tripID,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewAdjustmentEntry records a signed manual correction. Positive amounts
// raise the balance, negative amounts lower it.
func NewAdjustmentEntry(credit Credit, amount decimal.Decimal, description string) LedgerEntry {
	return LedgerEntry{
		ID:            EntryID(NewID()),
		CreditID:      credit.ID,
		Kind:          MovementAdjustment,
		BalanceBefore: credit.AvailableBalance,
		Amount:        amount,
		BalanceAfter:  credit.AvailableBalance.Add(amount),
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}
}

// delta returns the signed balance effect of an entry.
func (e LedgerEntry) delta() decimal.Decimal {
	switch e.Kind {
	case MovementUtilization:
		return e.Amount.Neg()
	default: // creation, refund, adjustment (adjustment amount is signed)
		return e.Amount
	}
}

// =============================================================================
// REPLAY - Recompute aggregate state from the entry history
// =============================================================================

// Summary is the aggregate state reconstructed from a credit's history.
type Summary struct {
	CreditID      CreditID
	Balance       decimal.Decimal
	TotalGranted  decimal.Decimal // creation entries
	TotalUtilized decimal.Decimal
	TotalRefunded decimal.Decimal
	TotalAdjusted decimal.Decimal
	Entries       int
}

// Replay folds a chronological entry history into a Summary. Entries must
// be ordered as appended; the store guarantees that ordering.
func Replay(creditID CreditID, entries []LedgerEntry) Summary {
	s := Summary{
		CreditID:      creditID,
		Balance:       decimal.Zero,
		TotalGranted:  decimal.Zero,
		TotalUtilized: decimal.Zero,
		TotalRefunded: decimal.Zero,
		TotalAdjusted: decimal.Zero,
	}
	for _, e := range entries {
		s.Balance = s.Balance.Add(e.delta())
		s.Entries++
		switch e.Kind {
		case MovementCreation:
			s.TotalGranted = s.TotalGranted.Add(e.Amount)
		case MovementUtilization:
			s.TotalUtilized = s.TotalUtilized.Add(e.Amount)
		case MovementRefund:
			s.TotalRefunded = s.TotalRefunded.Add(e.Amount)
		case MovementAdjustment:
			s.TotalAdjusted = s.TotalAdjusted.Add(e.Amount)
		}
	}
	return s
}

// ReconcileEntries verifies the before/after chain of a chronological
// history: each entry's BalanceAfter must match BalanceBefore plus its
// delta, and each BalanceBefore must match the previous BalanceAfter.
// Returns a ReconciliationError at the first break.
func ReconcileEntries(creditID CreditID, entries []LedgerEntry) error {
	running := decimal.Zero
	for _, e := range entries {
		if !e.BalanceBefore.Equal(running) {
			return &ReconciliationError{
				CreditID: creditID,
				EntryID:  e.ID,
				Expected: running,
				Actual:   e.BalanceBefore,
			}
		}
		expectedAfter := e.BalanceBefore.Add(e.delta())
		if !e.BalanceAfter.Equal(expectedAfter) {
			return &ReconciliationError{
				CreditID: creditID,
				EntryID:  e.ID,
				Expected: expectedAfter,
				Actual:   e.BalanceAfter,
			}
		}
		running = e.BalanceAfter
	}
	return nil
}
