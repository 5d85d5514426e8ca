/*
status.go - Payment status resolution for roster rows

PURPOSE:
  Derives the display status of a trip passenger (paid / partial / pending /
  complimentary) from raw financial facts. The status is a deterministic
  function of the inputs, never a manually-set flag, so it cannot
  desynchronize from the underlying payments.

PRIORITY:
  1. Cancelled rows have no financial status to compute.
  2. Complimentary short-circuits everything else.
  3. Otherwise paid/pending is computed from amounts.

CREDIT SPILLOVER:
  Credit amounts always fund the trip first. Whatever exceeds the net trip
  price spills over to add-ons. Spillover beyond the add-on total is
  reported as ExcessCredit in the breakdown; it counts toward neither
  bucket and is never silently forfeited (the ledger still carries the
  full utilized amount, so an unlink restores all of it).

SEE ALSO:
  - types.go: PaymentStatus, PaymentCategory, Installment
  - booking/link.go: Sets the roster status on linking
*/
package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// INPUT / OUTPUT SHAPES
// =============================================================================

// PaymentFacts is everything the resolver needs about one passenger.
// Lists are summed only, so the result is order-independent.
type PaymentFacts struct {
	BasePrice     decimal.Decimal
	Discount      decimal.Decimal
	AddonCharges  []decimal.Decimal
	Installments  []Installment
	CreditAmounts []decimal.Decimal // per-link utilized amounts
	Complimentary bool
	Cancelled     bool
}

// PaymentBreakdown carries the intermediate numbers so the UI can explain
// the status without re-deriving it.
type PaymentBreakdown struct {
	Status      PaymentStatus
	NetTrip     decimal.Decimal // base price minus discount, floored at zero
	TotalAddons decimal.Decimal
	PaidTrip    decimal.Decimal
	PaidAddons  decimal.Decimal
	// Credit accounting: how linked credit value was applied.
	CreditToTrip   decimal.Decimal
	CreditToAddons decimal.Decimal
	ExcessCredit   decimal.Decimal // utilized credit beyond trip+addons
}

// =============================================================================
// RESOLVER
// =============================================================================

// ResolvePaymentStatus derives a passenger's display status and the
// breakdown behind it. Pure and idempotent.
func ResolvePaymentStatus(f PaymentFacts) PaymentBreakdown {
	b := PaymentBreakdown{
		NetTrip:        f.BasePrice.Sub(f.Discount),
		TotalAddons:    decimal.Zero,
		PaidTrip:       decimal.Zero,
		PaidAddons:     decimal.Zero,
		CreditToTrip:   decimal.Zero,
		CreditToAddons: decimal.Zero,
		ExcessCredit:   decimal.Zero,
	}
	if b.NetTrip.IsNegative() {
		b.NetTrip = decimal.Zero
	}

	if f.Cancelled {
		b.Status = Cancelled
		return b
	}
	if f.Complimentary {
		b.Status = Complimentary
		return b
	}

	for _, charge := range f.AddonCharges {
		b.TotalAddons = b.TotalAddons.Add(charge)
	}

	for _, inst := range f.Installments {
		switch inst.Category {
		case CategoryTrip:
			b.PaidTrip = b.PaidTrip.Add(inst.Amount)
		case CategoryAddons:
			b.PaidAddons = b.PaidAddons.Add(inst.Amount)
		case CategoryBoth:
			b.PaidTrip = b.PaidTrip.Add(inst.Amount)
			b.PaidAddons = b.PaidAddons.Add(inst.Amount)
		}
	}

	// Credit funds the trip first, up to the net trip price; the remainder
	// spills over to add-ons. Spillover never refunds as "extra" trip value.
	totalCredit := decimal.Zero
	for _, amt := range f.CreditAmounts {
		totalCredit = totalCredit.Add(amt)
	}
	b.CreditToTrip = decimal.Min(totalCredit, b.NetTrip)
	spill := totalCredit.Sub(b.CreditToTrip)
	addonGap := b.TotalAddons.Sub(b.PaidAddons)
	if addonGap.IsNegative() {
		addonGap = decimal.Zero
	}
	b.CreditToAddons = decimal.Min(spill, addonGap)
	b.ExcessCredit = spill.Sub(b.CreditToAddons)

	b.PaidTrip = b.PaidTrip.Add(b.CreditToTrip)
	b.PaidAddons = b.PaidAddons.Add(b.CreditToAddons)

	tripPaid := b.PaidTrip.GreaterThanOrEqual(b.NetTrip)
	addonsPaid := b.TotalAddons.IsZero() || b.PaidAddons.GreaterThanOrEqual(b.TotalAddons)

	switch {
	case tripPaid && addonsPaid:
		b.Status = PaidComplete
	case tripPaid:
		b.Status = TripPaid
	case addonsPaid && b.TotalAddons.IsPositive():
		b.Status = ToursPaid
	default:
		b.Status = Pending
	}
	return b
}

// FactsFor assembles PaymentFacts from a roster row.
func FactsFor(p TripPassenger, links []TripLink) PaymentFacts {
	f := PaymentFacts{
		BasePrice:     p.BasePrice,
		Discount:      p.Discount,
		Complimentary: p.Complimentary,
		Cancelled:     p.CancelledAt != nil,
		Installments:  p.Installments,
	}
	for _, a := range p.Addons {
		f.AddonCharges = append(f.AddonCharges, a.Price)
	}
	for _, l := range links {
		f.CreditAmounts = append(f.CreditAmounts, l.AmountUtilized)
	}
	return f
}
