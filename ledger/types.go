/*
Package ledger provides the core credit-ledger engine.

PURPOSE:
  This package contains the pure domain types and algorithms for tracking
  prepaid customer credits: balances, the append-only movement history that
  explains every balance change, and the links that tie consumed credit
  value to specific trip participations.

KEY CONCEPTS IN THIS FILE (types.go):
  - Credit: A prepaid amount a client is owed in usable travel value
  - LedgerEntry: An immutable record of one balance-affecting event
  - TripLink: Provenance record tying consumed value to a trip
  - TripPassenger/Bus/Trip: Roster types consumed from the trip subsystem
  - Typed IDs: CreditID, ClientID, TripID, ... prevent cross-wiring

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never edited, only appended
  2. Precision: Uses decimal.Decimal to avoid floating-point drift
  3. Type Safety: Strong typing for IDs prevents mixing credit/trip IDs
  4. Auditability: Balance is always reconstructible from the entry chain

USAGE:
  credit := ledger.NewCredit("client-7", decimal.NewFromInt(1500), "pix", "")
  entry  := ledger.NewUtilizationEntry(credit, amount, tripID, "linked to Gramado")

SEE ALSO:
  - balance.go: Balance engine (utilization, restoration, replay)
  - status.go: Payment-status resolution for roster rows
  - store.go: Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CreditID string
type ClientID string
type TripID string
type PassengerID string
type BusID string
type EntryID string
type LinkID string

// NewID returns a fresh random identifier usable for any of the typed IDs.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// CREDIT - Prepaid balance owned by a client
// =============================================================================

type CreditStatus string

const (
	CreditAvailable CreditStatus = "available" // balance untouched
	CreditPartial   CreditStatus = "partial"   // some balance consumed
	CreditUsed      CreditStatus = "used"      // balance exhausted
	CreditRefunded  CreditStatus = "refunded"  // terminal, no further utilization
)

// Credit represents a prepaid amount a client can spend on trips.
//
// INVARIANT: 0 <= AvailableBalance <= OriginalAmount, and Status is a pure
// function of the two (see DeriveStatus) unless explicitly Refunded.
// AvailableBalance is mutated only by the orchestrators in the booking
// package, never directly.
type Credit struct {
	ID               CreditID
	ClientID         ClientID
	OriginalAmount   decimal.Decimal // fixed at creation
	AvailableBalance decimal.Decimal
	Status           CreditStatus
	PaymentMethod    string
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewCredit creates a credit with its full value available.
func NewCredit(clientID ClientID, amount decimal.Decimal, paymentMethod, notes string) Credit {
	now := time.Now().UTC()
	return Credit{
		ID:               CreditID(NewID()),
		ClientID:         clientID,
		OriginalAmount:   amount,
		AvailableBalance: amount,
		Status:           CreditAvailable,
		PaymentMethod:    paymentMethod,
		Notes:            notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Consumed returns how much of the original value has been spent.
func (c Credit) Consumed() decimal.Decimal {
	return c.OriginalAmount.Sub(c.AvailableBalance)
}

// =============================================================================
// LEDGER ENTRY - Immutable record of one balance-affecting event
// =============================================================================

type MovementKind string

const (
	MovementCreation    MovementKind = "creation"
	MovementUtilization MovementKind = "utilization"
	MovementRefund      MovementKind = "refund"
	MovementAdjustment  MovementKind = "adjustment"
)

// LedgerEntry records one balance change. Entries are append-only: never
// edited, never deleted, and they outlive the credit itself for audit.
//
// INVARIANT: BalanceAfter = BalanceBefore - Amount for utilization,
// BalanceBefore + Amount for creation/refund, BalanceBefore + Amount
// (signed) for adjustment. The chronological chain must always
// reconstruct the credit's current AvailableBalance.
type LedgerEntry struct {
	ID            EntryID
	CreditID      CreditID
	Kind          MovementKind
	BalanceBefore decimal.Decimal
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	TripID        TripID // optional; set for utilization/refund tied to a trip
	CreatedAt     time.Time
}

// =============================================================================
// TRIP LINK - Provenance of credit-funded trip participations
// =============================================================================

// TripLink records that a credit funded a specific trip participation.
//
// ClientID is ALWAYS the credit owner, never the traveling passenger: a
// credit can fund someone else's seat, but provenance traces to the payer.
//
// INVARIANT: sum of AmountUtilized across a credit's links equals
// OriginalAmount - AvailableBalance, minus amounts already restored.
type TripLink struct {
	ID             LinkID
	CreditID       CreditID
	TripID         TripID
	ClientID       ClientID
	AmountUtilized decimal.Decimal
	Notes          string
	CreatedAt      time.Time
}

// =============================================================================
// ROSTER TYPES - Owned by the trip subsystem, consumed here
// =============================================================================

// PaymentStatus is the display status derived for a roster row.
// It is computed by ResolvePaymentStatus, never set by hand.
type PaymentStatus string

const (
	PaidComplete  PaymentStatus = "paid_complete"
	TripPaid      PaymentStatus = "trip_paid"
	ToursPaid     PaymentStatus = "tours_paid"
	Pending       PaymentStatus = "pending"
	Complimentary PaymentStatus = "complimentary"
	Cancelled     PaymentStatus = "cancelled"
)

// PaymentCategory tags what an installment payment covers.
type PaymentCategory string

const (
	CategoryTrip   PaymentCategory = "trip"
	CategoryAddons PaymentCategory = "addons"
	CategoryBoth   PaymentCategory = "both"
)

// Installment is a non-credit payment recorded against a roster row.
type Installment struct {
	ID       string
	Amount   decimal.Decimal
	Category PaymentCategory
	PaidAt   time.Time
}

// Addon is an optional, separately priced activity (passeio) purchased
// alongside a trip. Price starts at zero when attached during linking;
// pricing is assigned by a downstream process.
type Addon struct {
	ID          string
	PassengerID PassengerID
	Name        string
	Price       decimal.Decimal
}

// TripPassenger is a trip roster row: one person's participation,
// including seat assignment and payment facts.
type TripPassenger struct {
	ID            PassengerID
	ClientID      ClientID // traveling client, not necessarily the payer
	TripID        TripID
	BusID         BusID
	BasePrice     decimal.Decimal
	Discount      decimal.Decimal
	Status        PaymentStatus
	Complimentary bool
	CancelledAt   *time.Time

	// Credit funding. Zero-or-one credit funds a passenger.
	FundedByCredit bool
	OriginCreditID CreditID
	CreditAmount   decimal.Decimal

	Addons       []Addon
	Installments []Installment
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Trip is the subset of a trip record this engine needs.
type Trip struct {
	ID            TripID
	Name          string
	StandardPrice decimal.Decimal // valor padrao: full seat price
	DepartsAt     time.Time
}

// Bus carries what capacity computation needs.
type Bus struct {
	ID           BusID
	TripID       TripID
	Name         string
	BaseCapacity int
	ExtraSeats   int
}

// TotalCapacity is base capacity plus fold-down/extra seats.
func (b Bus) TotalCapacity() int {
	return b.BaseCapacity + b.ExtraSeats
}

// =============================================================================
// NARROW DTOs - Per-operation shapes instead of one nullable mega-struct
// =============================================================================

// PassengerSummary is the narrow shape for roster listings.
type PassengerSummary struct {
	ID             PassengerID
	ClientID       ClientID
	TripID         TripID
	BusID          BusID
	Status         PaymentStatus
	FundedByCredit bool
}

// PassengerDetail is the full shape returned by the orchestrators for
// editing views: the roster row plus resolved financial facts.
type PassengerDetail struct {
	Passenger TripPassenger
	Breakdown PaymentBreakdown
}

// Summary projects a roster row to its listing shape.
func (p TripPassenger) Summary() PassengerSummary {
	return PassengerSummary{
		ID:             p.ID,
		ClientID:       p.ClientID,
		TripID:         p.TripID,
		BusID:          p.BusID,
		Status:         p.Status,
		FundedByCredit: p.FundedByCredit,
	}
}
