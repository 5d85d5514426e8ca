/*
guard.go - Credit deletion guard

PURPOSE:
  A credit that still funds active roster rows cannot be deleted; the
  caller is told exactly which passengers block it so the user can be
  directed to unlink them first. Historical trip links and ledger entries
  never block deletion and are preserved afterwards: the history is
  append-only and outlives the credit for audit purposes.

DEFENSE IN DEPTH:
  The blocking-passenger query is advisory; the store's referential
  constraint is the enforcement backstop. A storage-level rejection is
  mapped back to the same ErrCreditInUse the advisory check produces.
*/
package booking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rotaviagens/backoffice/ledger"
)

// DeleteCredit removes a credit after verifying nothing active references
// it. Ledger entries and historical trip links survive the deletion.
func (o *Orchestrator) DeleteCredit(ctx context.Context, id ledger.CreditID) error {
	err := o.store.WithTx(ctx, func(s ledger.Store) error {
		credit, err := s.GetCredit(ctx, id)
		if err != nil {
			return err
		}
		if credit == nil {
			return ledger.ErrCreditNotFound
		}

		// Advisory check: list blockers so the caller can explain.
		blocking, err := s.PassengersFundedBy(ctx, id)
		if err != nil {
			return err
		}
		if len(blocking) > 0 {
			inUse := &ledger.CreditInUseError{CreditID: id}
			for _, p := range blocking {
				inUse.Blocking = append(inUse.Blocking, ledger.BlockingPassenger{
					PassengerID: p.ID,
					ClientID:    p.ClientID,
					TripID:      p.TripID,
				})
			}
			return inUse
		}

		// Backstop: the store's own constraint has the final word.
		if err := s.DeleteCredit(ctx, id); err != nil {
			if errors.Is(err, ledger.ErrCreditInUse) {
				return &ledger.CreditInUseError{CreditID: id}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.log.Info("credit deleted", zap.String("credit_id", string(id)))
	o.events.Publish(ledger.Event{CreditID: id, Action: ledger.ActionDeleted, At: time.Now().UTC()})
	return nil
}
