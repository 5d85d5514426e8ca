/*
roster.go - Read-side roster and payment-status queries

PURPOSE:
  Read-only lookups the UI renders from. PassengerPaymentStatus derives a
  row's status from its current financial facts, so a stale stored status
  can always be cross-checked against the authoritative derivation.
*/
package booking

import (
	"context"

	"github.com/rotaviagens/backoffice/ledger"
)

// PassengerPaymentStatus resolves the passenger's payment breakdown from
// the stored financial facts. Read-only.
func (o *Orchestrator) PassengerPaymentStatus(ctx context.Context, id ledger.PassengerID) (*ledger.PassengerDetail, error) {
	passenger, err := o.store.GetPassenger(ctx, id)
	if err != nil {
		return nil, err
	}
	if passenger == nil {
		return nil, ledger.ErrPassengerNotFound
	}

	facts := ledger.FactsFor(*passenger, nil)
	if passenger.FundedByCredit && passenger.CreditAmount.IsPositive() {
		facts.CreditAmounts = append(facts.CreditAmounts, passenger.CreditAmount)
	}
	breakdown := ledger.ResolvePaymentStatus(facts)
	return &ledger.PassengerDetail{Passenger: *passenger, Breakdown: breakdown}, nil
}

// TripRoster lists the passengers of a trip in the narrow summary shape.
func (o *Orchestrator) TripRoster(ctx context.Context, tripID ledger.TripID) ([]ledger.PassengerSummary, error) {
	trip, err := o.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, ledger.ErrTripNotFound
	}
	return o.store.ListPassengers(ctx, tripID)
}

// CreditHistory returns a credit with its ledger entries and trip links.
func (o *Orchestrator) CreditHistory(ctx context.Context, id ledger.CreditID) (*ledger.Credit, []ledger.LedgerEntry, []ledger.TripLink, error) {
	credit, err := o.store.GetCredit(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if credit == nil {
		return nil, nil, nil, ledger.ErrCreditNotFound
	}
	entries, err := o.store.EntriesForCredit(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	links, err := o.store.LinksForCredit(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return credit, entries, links, nil
}
