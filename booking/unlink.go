/*
unlink.go - Unlinking orchestrator: passenger withdrawal

PURPOSE:
  Reverses a linking. The roster row disappears, the credit gets back
  exactly the amount it funded, and a Refund entry explains the movement.
  One atomic unit: either all of it happens or none of it does.

INVERSE GUARANTEE:
  Linking then immediately unlinking returns the credit to its pre-link
  balance and status, with exactly two new ledger entries (Utilization,
  Refund) of equal magnitude.

CORRUPTION SIGNAL:
  ApplyRestoration failing here means the stored data already violated
  the conservation invariant. The error is surfaced loudly; nothing is
  clamped or papered over.
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

// UnlinkResult tells the caller what was restored so dependent views can
// refresh without re-querying.
type UnlinkResult struct {
	TripID         ledger.TripID
	CreditID       ledger.CreditID
	RestoredAmount decimal.Decimal
	Traveler       ledger.ClientID
}

// UnlinkPassenger removes a credit-funded roster row and restores the
// funded amount to the origin credit.
func (o *Orchestrator) UnlinkPassenger(ctx context.Context, id ledger.PassengerID) (*UnlinkResult, error) {
	var result UnlinkResult
	err := o.store.WithTx(ctx, func(s ledger.Store) error {
		// Step 1: the row, its origin credit and funded amount.
		passenger, err := s.GetPassenger(ctx, id)
		if err != nil {
			return err
		}
		if passenger == nil {
			return ledger.ErrPassengerNotFound
		}
		if !passenger.FundedByCredit || passenger.OriginCreditID == "" {
			return ledger.ErrNotCreditFunded
		}

		credit, err := s.GetCredit(ctx, passenger.OriginCreditID)
		if err != nil {
			return err
		}
		if credit == nil {
			return ledger.ErrCreditNotFound
		}

		// Step 2: remove the trip participation.
		if err := s.DeletePassenger(ctx, id); err != nil {
			return err
		}

		// Step 3: restore exactly what was consumed.
		newBalance, newStatus, err := ledger.ApplyRestoration(*credit, passenger.CreditAmount)
		if err != nil {
			return err
		}
		if err := s.UpdateCreditBalance(ctx, credit.ID, credit.AvailableBalance, newBalance, newStatus); err != nil {
			return err
		}

		// Step 4: the Refund entry, referencing the trip.
		entry := ledger.NewRefundEntry(*credit, passenger.CreditAmount,
			passenger.TripID, fmt.Sprintf("passenger %s withdrew", passenger.ClientID))
		if err := s.AppendEntry(ctx, entry); err != nil {
			return err
		}

		result = UnlinkResult{
			TripID:         passenger.TripID,
			CreditID:       credit.ID,
			RestoredAmount: passenger.CreditAmount,
			Traveler:       passenger.ClientID,
		}
		return nil
	})
	if err != nil {
		o.log.Warn("unlink failed", zap.String("passenger_id", string(id)), zap.Error(err))
		return nil, err
	}

	o.log.Info("credit unlinked",
		zap.String("passenger_id", string(id)),
		zap.String("credit_id", string(result.CreditID)),
		zap.String("restored", result.RestoredAmount.String()))
	o.events.Publish(ledger.Event{
		TripID:   result.TripID,
		CreditID: result.CreditID,
		Action:   ledger.ActionUnlinked,
		At:       time.Now().UTC(),
	})
	return &result, nil
}
