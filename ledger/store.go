/*
store.go - Persistence interfaces for credits and the trip roster

PURPOSE:
  Defines the contract between the orchestration layer and the database.
  Different implementations back it with SQLite (store/sqlite) or memory
  (ledger/store) for tests.

SHAPE:
  Instead of a generic find/insert/update/delete surface over untyped rows,
  every row kind gets typed methods. Missing rows are (nil, nil), not
  errors; the booking layer maps them to the NotFound sentinels.

LEDGER CONTRACT:
  AppendEntry is the ONLY write on the entry table. No update, no delete.
  Deleting a credit must NOT cascade to its entries: history outlives the
  credit for audit purposes.

ATOMICITY:
  TxStore.WithTx runs a closure against a transactional view of the store.
  Both orchestrators run entirely inside WithTx, so a failed or abandoned
  call leaves zero observable effect. UpdateCreditBalance is optimistic:
  it compares the expected balance and fails with
  ErrConcurrentModification when another writer got there first.

SEE ALSO:
  - store/memory.go: In-memory implementation for tests
  - ../store/sqlite/sqlite.go: Durable implementation
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CREDIT SIDE
// =============================================================================

// CreditStore persists credits, their append-only ledger, and trip links.
type CreditStore interface {
	InsertCredit(ctx context.Context, c Credit) error

	// GetCredit returns (nil, nil) when the credit does not exist.
	GetCredit(ctx context.Context, id CreditID) (*Credit, error)

	ListCredits(ctx context.Context, clientID ClientID) ([]Credit, error)

	// UpdateCreditBalance persists a new balance/status only if the stored
	// balance still equals expect. Returns ErrConcurrentModification
	// otherwise. This is the only way a balance changes.
	UpdateCreditBalance(ctx context.Context, id CreditID, expect, balance decimal.Decimal, status CreditStatus) error

	// DeleteCredit removes the credit row. Ledger entries are preserved.
	// A referential-integrity rejection surfaces as ErrCreditInUse.
	DeleteCredit(ctx context.Context, id CreditID) error

	// AppendEntry adds to the ledger. Append-only: no update, no delete.
	AppendEntry(ctx context.Context, e LedgerEntry) error

	// EntriesForCredit returns the chronological history, oldest first.
	EntriesForCredit(ctx context.Context, id CreditID) ([]LedgerEntry, error)

	InsertLink(ctx context.Context, l TripLink) error
	LinksForCredit(ctx context.Context, id CreditID) ([]TripLink, error)
}

// =============================================================================
// ROSTER SIDE
// =============================================================================

// RosterStore persists the trip roster rows this engine consumes/mutates.
type RosterStore interface {
	// GetTrip returns (nil, nil) when the trip does not exist.
	GetTrip(ctx context.Context, id TripID) (*Trip, error)

	// GetPassenger returns the row with addons and installments loaded,
	// or (nil, nil) when absent.
	GetPassenger(ctx context.Context, id PassengerID) (*TripPassenger, error)

	// FindPassenger locates the roster row for a traveling client on a
	// trip, or (nil, nil).
	FindPassenger(ctx context.Context, clientID ClientID, tripID TripID) (*TripPassenger, error)

	InsertPassenger(ctx context.Context, p TripPassenger) error
	UpdatePassenger(ctx context.Context, p TripPassenger) error
	DeletePassenger(ctx context.Context, id PassengerID) error

	// ReplaceAddons swaps the passenger's itemized add-ons for the given
	// set (delete-then-insert).
	ReplaceAddons(ctx context.Context, id PassengerID, addons []Addon) error

	// PassengersFundedBy returns active roster rows whose origin credit is
	// the given credit. Used by the deletion guard.
	PassengersFundedBy(ctx context.Context, id CreditID) ([]PassengerSummary, error)

	ListPassengers(ctx context.Context, tripID TripID) ([]PassengerSummary, error)

	BusesForTrip(ctx context.Context, tripID TripID) ([]Bus, error)

	// OccupancyByBus counts roster rows per bus on a trip.
	OccupancyByBus(ctx context.Context, tripID TripID) (map[BusID]int, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is the full persistence surface the orchestrators depend on.
type Store interface {
	CreditStore
	RosterStore
}

// TxStore wraps Store with transaction support.
// If fn returns an error, the transaction is rolled back; otherwise it
// commits. Both orchestrators require a TxStore.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
