/*
Package booking orchestrates state-changing workflows on the credit ledger.

PURPOSE:
  The ledger package computes; this package decides and persists. Every
  operation that moves credit value (creation, linking, unlinking,
  adjustment, refund, deletion) runs here, inside a single store
  transaction, so a failed or abandoned call leaves zero observable
  effect. AvailableBalance and bus occupancy are mutated ONLY through
  these orchestrators.

OPERATIONS:
  orchestrator.go: Credit lifecycle (create, adjust, refund, reconcile)
  link.go:         Bind credit value to a trip passenger
  unlink.go:       Reverse a linking on passenger withdrawal
  guard.go:        Credit deletion guard
  capacity.go:     Remaining seats per bus
  roster.go:       Read-side roster/status queries

CONCURRENCY:
  One logical transaction per external call, no background workers.
  Balance writes are optimistic (expected-balance compare); a concurrent
  writer surfaces as ErrConcurrentModification and the caller retries.

SEE ALSO:
  - ledger/balance.go: The pure math these workflows apply
  - ledger/store.go: The TxStore contract they require
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rotaviagens/backoffice/ledger"
)

// Orchestrator runs the credit workflows against a transactional store.
type Orchestrator struct {
	store  ledger.TxStore
	events ledger.Publisher
	log    *zap.Logger
}

// New creates an orchestrator. A nil publisher or logger is replaced with
// a no-op so callers in tests don't have to wire them.
func New(store ledger.TxStore, events ledger.Publisher, log *zap.Logger) *Orchestrator {
	if events == nil {
		events = ledger.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{store: store, events: events, log: log}
}

// =============================================================================
// CREDIT LIFECYCLE
// =============================================================================

// CreateCreditRequest carries the inputs for a new prepaid credit.
type CreateCreditRequest struct {
	ClientID      ledger.ClientID
	Amount        decimal.Decimal
	PaymentMethod string
	Notes         string
}

// CreateCredit registers a prepaid credit with its full value available
// and writes the Creation ledger entry in the same transaction.
func (o *Orchestrator) CreateCredit(ctx context.Context, req CreateCreditRequest) (*ledger.Credit, error) {
	if req.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("credit amount %s: %w", req.Amount, ledger.ErrInvalidAmount)
	}

	credit := ledger.NewCredit(req.ClientID, req.Amount, req.PaymentMethod, req.Notes)
	err := o.store.WithTx(ctx, func(s ledger.Store) error {
		if err := s.InsertCredit(ctx, credit); err != nil {
			return err
		}
		return s.AppendEntry(ctx, ledger.NewCreationEntry(credit, "credit created"))
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("credit created",
		zap.String("credit_id", string(credit.ID)),
		zap.String("client_id", string(credit.ClientID)),
		zap.String("amount", credit.OriginalAmount.String()))
	o.events.Publish(ledger.Event{CreditID: credit.ID, Action: ledger.ActionCreated, At: credit.CreatedAt})
	return &credit, nil
}

// AdjustCredit applies a signed manual correction to the balance and
// records the Adjustment entry. The result must stay within
// [0, OriginalAmount]; corrections cannot fabricate value the client
// never paid nor push the balance negative.
func (o *Orchestrator) AdjustCredit(ctx context.Context, id ledger.CreditID, amount decimal.Decimal, reason string) (*ledger.Credit, error) {
	var updated ledger.Credit
	err := o.store.WithTx(ctx, func(s ledger.Store) error {
		credit, err := s.GetCredit(ctx, id)
		if err != nil {
			return err
		}
		if credit == nil {
			return ledger.ErrCreditNotFound
		}
		if credit.Status == ledger.CreditRefunded {
			return ledger.ErrCreditRefunded
		}

		newBalance := credit.AvailableBalance.Add(amount)
		if newBalance.IsNegative() {
			return &ledger.InsufficientBalanceError{
				CreditID:  credit.ID,
				Available: credit.AvailableBalance,
				Requested: amount.Neg(),
				Shortfall: newBalance.Neg(),
			}
		}
		if newBalance.GreaterThan(credit.OriginalAmount) {
			return &ledger.OverRestorationError{
				CreditID:       credit.ID,
				Balance:        credit.AvailableBalance,
				OriginalAmount: credit.OriginalAmount,
				Restored:       amount,
			}
		}

		status := ledger.DeriveStatus(newBalance, credit.OriginalAmount)
		if err := s.UpdateCreditBalance(ctx, credit.ID, credit.AvailableBalance, newBalance, status); err != nil {
			return err
		}
		if err := s.AppendEntry(ctx, ledger.NewAdjustmentEntry(*credit, amount, reason)); err != nil {
			return err
		}
		updated = *credit
		updated.AvailableBalance = newBalance
		updated.Status = status
		updated.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("credit adjusted",
		zap.String("credit_id", string(id)),
		zap.String("amount", amount.String()),
		zap.String("reason", reason))
	o.events.Publish(ledger.Event{CreditID: id, Action: ledger.ActionAdjusted, At: updated.UpdatedAt})
	return &updated, nil
}

// RefundCredit returns the remaining balance to the client and marks the
// credit terminally refunded. Refunded credits accept no further
// utilization or adjustment. Blocked while the credit still funds seats.
func (o *Orchestrator) RefundCredit(ctx context.Context, id ledger.CreditID, reason string) (*ledger.Credit, error) {
	var updated ledger.Credit
	err := o.store.WithTx(ctx, func(s ledger.Store) error {
		credit, err := s.GetCredit(ctx, id)
		if err != nil {
			return err
		}
		if credit == nil {
			return ledger.ErrCreditNotFound
		}
		if credit.Status == ledger.CreditRefunded {
			return ledger.ErrCreditRefunded
		}

		blocking, err := s.PassengersFundedBy(ctx, id)
		if err != nil {
			return err
		}
		if len(blocking) > 0 {
			e := &ledger.CreditInUseError{CreditID: id}
			for _, p := range blocking {
				e.Blocking = append(e.Blocking, ledger.BlockingPassenger{
					PassengerID: p.ID,
					ClientID:    p.ClientID,
					TripID:      p.TripID,
				})
			}
			return e
		}

		if err := s.UpdateCreditBalance(ctx, credit.ID, credit.AvailableBalance, decimal.Zero, ledger.CreditRefunded); err != nil {
			return err
		}
		entry := ledger.NewAdjustmentEntry(*credit, credit.AvailableBalance.Neg(), reason)
		if err := s.AppendEntry(ctx, entry); err != nil {
			return err
		}
		updated = *credit
		updated.AvailableBalance = decimal.Zero
		updated.Status = ledger.CreditRefunded
		updated.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("credit refunded",
		zap.String("credit_id", string(id)),
		zap.String("reason", reason))
	o.events.Publish(ledger.Event{CreditID: id, Action: ledger.ActionAdjusted, At: updated.UpdatedAt})
	return &updated, nil
}

// GetCredit returns a single credit without its history.
func (o *Orchestrator) GetCredit(ctx context.Context, id ledger.CreditID) (*ledger.Credit, error) {
	credit, err := o.store.GetCredit(ctx, id)
	if err != nil {
		return nil, err
	}
	if credit == nil {
		return nil, ledger.ErrCreditNotFound
	}
	return credit, nil
}

// ListCredits returns all credits, optionally scoped to one client.
func (o *Orchestrator) ListCredits(ctx context.Context, clientID ledger.ClientID) ([]ledger.Credit, error) {
	return o.store.ListCredits(ctx, clientID)
}

// ReconcileCredit replays the credit's entry chain and checks it against
// the stored balance. Read-only; a mismatch means corruption somewhere
// outside the orchestrators.
func (o *Orchestrator) ReconcileCredit(ctx context.Context, id ledger.CreditID) (ledger.Summary, error) {
	credit, err := o.store.GetCredit(ctx, id)
	if err != nil {
		return ledger.Summary{}, err
	}
	if credit == nil {
		return ledger.Summary{}, ledger.ErrCreditNotFound
	}

	entries, err := o.store.EntriesForCredit(ctx, id)
	if err != nil {
		return ledger.Summary{}, err
	}
	if err := ledger.ReconcileEntries(id, entries); err != nil {
		return ledger.Summary{}, err
	}

	summary := ledger.Replay(id, entries)
	if !summary.Balance.Equal(credit.AvailableBalance) {
		return summary, &ledger.ReconciliationError{
			CreditID: id,
			Expected: summary.Balance,
			Actual:   credit.AvailableBalance,
		}
	}
	return summary, nil
}
