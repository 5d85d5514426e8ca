/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Decimal amounts travel as JSON strings ("150.00") to avoid float
  rounding on the wire. Parsing happens in handlers.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ../ledger/types.go: Domain model these project
*/
package api

import (
	"time"

	"github.com/rotaviagens/backoffice/booking"
	"github.com/rotaviagens/backoffice/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateCreditRequest creates a prepaid credit for a client.
type CreateCreditRequest struct {
	ClientID      string `json:"client_id"`
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// AdjustCreditRequest applies a signed manual correction to a balance.
type AdjustCreditRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

// RefundCreditRequest marks a credit refunded, zeroing its balance.
type RefundCreditRequest struct {
	Reason string `json:"reason"`
}

// LinkCreditRequest applies credit value to a trip participation.
type LinkCreditRequest struct {
	TripID     string   `json:"trip_id"`
	Traveler   string   `json:"traveler,omitempty"`
	Role       string   `json:"role,omitempty"` // "titular" (default) or "other"
	Amount     string   `json:"amount"`
	BusID      string   `json:"bus_id"`
	AddonNames []string `json:"addon_names,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// CreditDTO represents a credit in API responses.
type CreditDTO struct {
	ID               string    `json:"id"`
	ClientID         string    `json:"client_id"`
	OriginalAmount   string    `json:"original_amount"`
	AvailableBalance string    `json:"available_balance"`
	Consumed         string    `json:"consumed"`
	Status           string    `json:"status"`
	PaymentMethod    string    `json:"payment_method,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// LedgerEntryDTO represents one movement in a credit's history.
type LedgerEntryDTO struct {
	ID            string    `json:"id"`
	CreditID      string    `json:"credit_id"`
	Kind          string    `json:"kind"`
	BalanceBefore string    `json:"balance_before"`
	Amount        string    `json:"amount"`
	BalanceAfter  string    `json:"balance_after"`
	Description   string    `json:"description,omitempty"`
	TripID        string    `json:"trip_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TripLinkDTO represents credit-to-trip provenance.
type TripLinkDTO struct {
	ID             string    `json:"id"`
	CreditID       string    `json:"credit_id"`
	TripID         string    `json:"trip_id"`
	ClientID       string    `json:"client_id"`
	AmountUtilized string    `json:"amount_utilized"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreditHistoryDTO is the full audit view of one credit.
type CreditHistoryDTO struct {
	Credit  CreditDTO        `json:"credit"`
	Entries []LedgerEntryDTO `json:"entries"`
	Links   []TripLinkDTO    `json:"links"`
}

// ReconcileDTO reports the replayed history against the stored balance.
type ReconcileDTO struct {
	CreditID      string `json:"credit_id"`
	Balance       string `json:"balance"`
	TotalGranted  string `json:"total_granted"`
	TotalUtilized string `json:"total_utilized"`
	TotalRefunded string `json:"total_refunded"`
	TotalAdjusted string `json:"total_adjusted"`
	Entries       int    `json:"entries"`
}

// PaymentBreakdownDTO explains how a passenger's status was derived.
type PaymentBreakdownDTO struct {
	Status         string `json:"status"`
	NetTrip        string `json:"net_trip"`
	TotalAddons    string `json:"total_addons"`
	PaidTrip       string `json:"paid_trip"`
	PaidAddons     string `json:"paid_addons"`
	CreditToTrip   string `json:"credit_to_trip"`
	CreditToAddons string `json:"credit_to_addons"`
	ExcessCredit   string `json:"excess_credit"`
}

// AddonDTO is one itemized add-on on a roster row.
type AddonDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

// PassengerDTO is the full roster-row view with the resolved breakdown.
type PassengerDTO struct {
	ID             string              `json:"id"`
	ClientID       string              `json:"client_id"`
	TripID         string              `json:"trip_id"`
	BusID          string              `json:"bus_id,omitempty"`
	BasePrice      string              `json:"base_price"`
	Discount       string              `json:"discount"`
	Status         string              `json:"status"`
	Complimentary  bool                `json:"complimentary"`
	CancelledAt    *time.Time          `json:"cancelled_at,omitempty"`
	FundedByCredit bool                `json:"funded_by_credit"`
	OriginCreditID string              `json:"origin_credit_id,omitempty"`
	CreditAmount   string              `json:"credit_amount"`
	Addons         []AddonDTO          `json:"addons"`
	Breakdown      PaymentBreakdownDTO `json:"breakdown"`
}

// PassengerSummaryDTO is the narrow roster-listing shape.
type PassengerSummaryDTO struct {
	ID             string `json:"id"`
	ClientID       string `json:"client_id"`
	TripID         string `json:"trip_id"`
	BusID          string `json:"bus_id,omitempty"`
	Status         string `json:"status"`
	FundedByCredit bool   `json:"funded_by_credit"`
}

// BusVacancyDTO reports remaining seats on one bus.
type BusVacancyDTO struct {
	BusID         string `json:"bus_id"`
	Name          string `json:"name"`
	CapacityTotal int    `json:"capacity_total"`
	Occupied      int    `json:"occupied"`
	Vacancies     int    `json:"vacancies"`
}

// UnlinkResultDTO reports a completed unlink.
type UnlinkResultDTO struct {
	TripID         string `json:"trip_id"`
	CreditID       string `json:"credit_id"`
	RestoredAmount string `json:"restored_amount"`
	Traveler       string `json:"traveler"`
}

// EventDTO is the most recent ledger event, for dashboard polling.
type EventDTO struct {
	TripID   string    `json:"trip_id,omitempty"`
	CreditID string    `json:"credit_id"`
	Action   string    `json:"action"`
	At       time.Time `json:"at"`
}

// =============================================================================
// PROJECTIONS
// =============================================================================

func toCreditDTO(c ledger.Credit) CreditDTO {
	return CreditDTO{
		ID:               string(c.ID),
		ClientID:         string(c.ClientID),
		OriginalAmount:   c.OriginalAmount.StringFixed(2),
		AvailableBalance: c.AvailableBalance.StringFixed(2),
		Consumed:         c.Consumed().StringFixed(2),
		Status:           string(c.Status),
		PaymentMethod:    c.PaymentMethod,
		Notes:            c.Notes,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func toEntryDTO(e ledger.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:            string(e.ID),
		CreditID:      string(e.CreditID),
		Kind:          string(e.Kind),
		BalanceBefore: e.BalanceBefore.StringFixed(2),
		Amount:        e.Amount.StringFixed(2),
		BalanceAfter:  e.BalanceAfter.StringFixed(2),
		Description:   e.Description,
		TripID:        string(e.TripID),
		CreatedAt:     e.CreatedAt,
	}
}

func toLinkDTO(l ledger.TripLink) TripLinkDTO {
	return TripLinkDTO{
		ID:             string(l.ID),
		CreditID:       string(l.CreditID),
		TripID:         string(l.TripID),
		ClientID:       string(l.ClientID),
		AmountUtilized: l.AmountUtilized.StringFixed(2),
		Notes:          l.Notes,
		CreatedAt:      l.CreatedAt,
	}
}

func toBreakdownDTO(b ledger.PaymentBreakdown) PaymentBreakdownDTO {
	return PaymentBreakdownDTO{
		Status:         string(b.Status),
		NetTrip:        b.NetTrip.StringFixed(2),
		TotalAddons:    b.TotalAddons.StringFixed(2),
		PaidTrip:       b.PaidTrip.StringFixed(2),
		PaidAddons:     b.PaidAddons.StringFixed(2),
		CreditToTrip:   b.CreditToTrip.StringFixed(2),
		CreditToAddons: b.CreditToAddons.StringFixed(2),
		ExcessCredit:   b.ExcessCredit.StringFixed(2),
	}
}

func toPassengerDTO(d ledger.PassengerDetail) PassengerDTO {
	p := d.Passenger
	addons := make([]AddonDTO, 0, len(p.Addons))
	for _, a := range p.Addons {
		addons = append(addons, AddonDTO{ID: a.ID, Name: a.Name, Price: a.Price.StringFixed(2)})
	}
	return PassengerDTO{
		ID:             string(p.ID),
		ClientID:       string(p.ClientID),
		TripID:         string(p.TripID),
		BusID:          string(p.BusID),
		BasePrice:      p.BasePrice.StringFixed(2),
		Discount:       p.Discount.StringFixed(2),
		Status:         string(p.Status),
		Complimentary:  p.Complimentary,
		CancelledAt:    p.CancelledAt,
		FundedByCredit: p.FundedByCredit,
		OriginCreditID: string(p.OriginCreditID),
		CreditAmount:   p.CreditAmount.StringFixed(2),
		Addons:         addons,
		Breakdown:      toBreakdownDTO(d.Breakdown),
	}
}

func toSummaryDTO(p ledger.PassengerSummary) PassengerSummaryDTO {
	return PassengerSummaryDTO{
		ID:             string(p.ID),
		ClientID:       string(p.ClientID),
		TripID:         string(p.TripID),
		BusID:          string(p.BusID),
		Status:         string(p.Status),
		FundedByCredit: p.FundedByCredit,
	}
}

func toVacancyDTO(v booking.BusVacancy) BusVacancyDTO {
	return BusVacancyDTO{
		BusID:         string(v.BusID),
		Name:          v.Name,
		CapacityTotal: v.CapacityTotal,
		Occupied:      v.Occupied,
		Vacancies:     v.Vacancies,
	}
}
