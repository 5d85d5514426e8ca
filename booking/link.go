/*
link.go - Linking orchestrator: bind credit value to a trip passenger

PURPOSE:
  Atomically consumes part of a credit's balance to pay for a seat on a
  trip. The flow touches four row kinds (passenger, credit, trip link,
  ledger entry) and must never leave partial state: everything runs
  inside one store transaction.

PRECONDITIONS (validated in order, first failure wins):
  1. Bus identifier present   -> ErrMissingBusAssignment
  2. Credit exists, amount ok -> ErrCreditNotFound / InsufficientBalanceError
  3. Trip exists              -> ErrTripNotFound

SEAT CHOICE:
  The caller commits to an explicit bus. Capacity is NOT re-validated
  here: an earlier implicit auto-seat-pick silently bypassed capacity
  checks, so auto-assignment was removed. Use ListBusesWithVacancy to
  suggest a bus before calling.

PROVENANCE:
  The trip link always records the credit OWNER as its client, even when
  the credit funds someone else's seat (role "other"). Payer provenance
  must survive the roster row.

SEE ALSO:
  - unlink.go: The exact inverse
  - ledger/status.go: How the resulting payment status is derived
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

// FundingRole says who travels on the credit owner's money.
type FundingRole string

const (
	// RoleTitular: the credit owner is the traveling passenger.
	RoleTitular FundingRole = "titular"
	// RoleOther: the credit owner funds someone else's seat.
	RoleOther FundingRole = "other"
)

// LinkRequest carries the inputs for a credit-to-trip linking.
type LinkRequest struct {
	CreditID ledger.CreditID
	TripID   ledger.TripID

	// Traveler is the traveling client. Ignored for RoleTitular, where
	// the credit owner travels.
	Traveler ledger.ClientID
	Role     FundingRole

	// Amount of credit value to utilize.
	Amount decimal.Decimal

	// BusID is mandatory. There is no implicit auto-assignment.
	BusID ledger.BusID

	// AddonNames optionally replaces the passenger's itemized add-ons.
	// Each starts priced at zero; pricing is assigned downstream.
	AddonNames []string

	Notes string
}

// LinkCredit binds a credit's value to a trip passenger and returns the
// updated roster row with its resolved payment breakdown.
func (o *Orchestrator) LinkCredit(ctx context.Context, req LinkRequest) (*ledger.PassengerDetail, error) {
	// Precondition 1: explicit seat choice.
	if req.BusID == "" {
		return nil, ledger.ErrMissingBusAssignment
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("utilization amount %s: %w", req.Amount, ledger.ErrInvalidAmount)
	}

	var detail ledger.PassengerDetail
	err := o.store.WithTx(ctx, func(s ledger.Store) error {
		// Precondition 2: credit exists and covers the amount.
		credit, err := s.GetCredit(ctx, req.CreditID)
		if err != nil {
			return err
		}
		if credit == nil {
			return ledger.ErrCreditNotFound
		}
		newBalance, newStatus, err := ledger.ApplyUtilization(*credit, req.Amount)
		if err != nil {
			return err
		}

		// Precondition 3: trip exists.
		trip, err := s.GetTrip(ctx, req.TripID)
		if err != nil {
			return err
		}
		if trip == nil {
			return ledger.ErrTripNotFound
		}

		traveler := req.Traveler
		if req.Role == RoleTitular || traveler == "" {
			traveler = credit.ClientID
		}

		// Step 1/2: update the traveler's roster row in place, or create
		// it with the caller's explicit bus.
		passenger, err := s.FindPassenger(ctx, traveler, req.TripID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		isNew := passenger == nil
		if isNew {
			passenger = &ledger.TripPassenger{
				ID:        ledger.PassengerID(ledger.NewID()),
				ClientID:  traveler,
				TripID:    req.TripID,
				BusID:     req.BusID,
				BasePrice: trip.StandardPrice,
				Discount:  decimal.Zero,
				CreatedAt: now,
			}
		}
		// A seat records exactly one origin credit. Silently retargeting
		// it would orphan the first credit's utilization: the deletion
		// guard would stop seeing the seat and the eventual unlink would
		// try to restore the pooled amount to the wrong credit.
		if !isNew && passenger.FundedByCredit && passenger.OriginCreditID != credit.ID {
			return fmt.Errorf("passenger %s already funded by credit %s: %w",
				passenger.ID, passenger.OriginCreditID, ledger.ErrCreditMismatch)
		}
		passenger.FundedByCredit = true
		passenger.OriginCreditID = credit.ID
		passenger.CreditAmount = passenger.CreditAmount.Add(req.Amount)
		passenger.UpdatedAt = now

		// Step 3: replace itemized add-ons, each initially priced at zero.
		if len(req.AddonNames) > 0 {
			addons := make([]ledger.Addon, 0, len(req.AddonNames))
			for _, name := range req.AddonNames {
				addons = append(addons, ledger.Addon{
					ID:          ledger.NewID(),
					PassengerID: passenger.ID,
					Name:        name,
					Price:       decimal.Zero,
				})
			}
			passenger.Addons = addons
		}

		// Payment status is derived, never set by hand: with the credit
		// covering at least the standard price this resolves to the
		// "complete" family, otherwise "partial"/pending.
		breakdown := ledger.ResolvePaymentStatus(ledger.PaymentFacts{
			BasePrice:     passenger.BasePrice,
			Discount:      passenger.Discount,
			AddonCharges:  addonPrices(passenger.Addons),
			Installments:  passenger.Installments,
			CreditAmounts: []decimal.Decimal{passenger.CreditAmount},
			Complimentary: passenger.Complimentary,
			Cancelled:     passenger.CancelledAt != nil,
		})
		passenger.Status = breakdown.Status

		if isNew {
			if err := s.InsertPassenger(ctx, *passenger); err != nil {
				return err
			}
		} else if err := s.UpdatePassenger(ctx, *passenger); err != nil {
			return err
		}
		if len(req.AddonNames) > 0 {
			if err := s.ReplaceAddons(ctx, passenger.ID, passenger.Addons); err != nil {
				return err
			}
		}

		// Step 4: persist the credit's new balance and status.
		if err := s.UpdateCreditBalance(ctx, credit.ID, credit.AvailableBalance, newBalance, newStatus); err != nil {
			return err
		}

		// Step 5: provenance row. Client is ALWAYS the credit owner.
		link := ledger.TripLink{
			ID:             ledger.LinkID(ledger.NewID()),
			CreditID:       credit.ID,
			TripID:         req.TripID,
			ClientID:       credit.ClientID,
			AmountUtilized: req.Amount,
			Notes:          req.Notes,
			CreatedAt:      now,
		}
		if err := s.InsertLink(ctx, link); err != nil {
			return err
		}

		// Step 6: ledger entry with before/after balances.
		entry := ledger.NewUtilizationEntry(*credit, req.Amount,
			req.TripID, fmt.Sprintf("linked to trip %s (%s)", trip.Name, req.Role))
		if err := s.AppendEntry(ctx, entry); err != nil {
			return err
		}

		detail = ledger.PassengerDetail{Passenger: *passenger, Breakdown: breakdown}
		return nil
	})
	if err != nil {
		o.log.Warn("link failed",
			zap.String("credit_id", string(req.CreditID)),
			zap.String("trip_id", string(req.TripID)),
			zap.Error(err))
		return nil, err
	}

	o.log.Info("credit linked",
		zap.String("credit_id", string(req.CreditID)),
		zap.String("trip_id", string(req.TripID)),
		zap.String("passenger_id", string(detail.Passenger.ID)),
		zap.String("amount", req.Amount.String()))
	o.events.Publish(ledger.Event{
		TripID:   req.TripID,
		CreditID: req.CreditID,
		Action:   ledger.ActionLinked,
		At:       time.Now().UTC(),
	})
	return &detail, nil
}

func addonPrices(addons []ledger.Addon) []decimal.Decimal {
	prices := make([]decimal.Decimal, 0, len(addons))
	for _, a := range addons {
		prices = append(prices, a.Price)
	}
	return prices
}
