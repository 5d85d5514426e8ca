package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotaviagens/backoffice/booking"
	"github.com/rotaviagens/backoffice/ledger"
)

func TestPassengerPaymentStatus_DerivedFromStoredFacts(t *testing.T) {
	// GIVEN: A row with trip 800 covered by credit and an unpaid 150 add-on
	// WHEN: The payment status is queried
	// THEN: trip_paid with the explaining breakdown

	orch, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	seedTrip(st, "trip-1", 800)
	credit := createCredit(t, orch, "client-1", 1000)

	detail, err := orch.LinkCredit(ctx, booking.LinkRequest{
		CreditID: credit.ID, TripID: "trip-1", Role: booking.RoleTitular,
		Amount: money(800), BusID: "bus-1",
		AddonNames: []string{"city tour"},
	})
	require.NoError(t, err)

	// Downstream pricing lands on the add-on later.
	priced := detail.Passenger.Addons
	priced[0].Price = money(150)
	require.NoError(t, st.ReplaceAddons(ctx, detail.Passenger.ID, priced))

	got, err := orch.PassengerPaymentStatus(ctx, detail.Passenger.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TripPaid, got.Breakdown.Status)
	assert.True(t, got.Breakdown.CreditToTrip.Equal(money(800)))
	assert.True(t, got.Breakdown.TotalAddons.Equal(money(150)))
}

func TestPassengerPaymentStatus_CancelledRow(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	seedTrip(st, "trip-1", 800)

	cancelled := time.Now().UTC()
	p := ledger.TripPassenger{
		ID:          "pax-1",
		ClientID:    "client-1",
		TripID:      "trip-1",
		BusID:       "bus-1",
		BasePrice:   money(800),
		Discount:    decimal.Zero,
		Status:      ledger.Cancelled,
		CancelledAt: &cancelled,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.InsertPassenger(ctx, p))

	got, err := orch.PassengerPaymentStatus(ctx, "pax-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Cancelled, got.Breakdown.Status)
}

func TestPassengerPaymentStatus_NotFound(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	_, err := orch.PassengerPaymentStatus(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrPassengerNotFound)
}

func TestTripRoster_ListsSummaries(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	seedTrip(st, "trip-1", 800)
	credit := createCredit(t, orch, "client-1", 2000)

	_, err := orch.LinkCredit(ctx, booking.LinkRequest{
		CreditID: credit.ID, TripID: "trip-1", Role: booking.RoleTitular,
		Amount: money(800), BusID: "bus-1",
	})
	require.NoError(t, err)
	_, err = orch.LinkCredit(ctx, booking.LinkRequest{
		CreditID: credit.ID, TripID: "trip-1", Traveler: "client-2",
		Role: booking.RoleOther, Amount: money(800), BusID: "bus-1",
	})
	require.NoError(t, err)

	roster, err := orch.TripRoster(ctx, "trip-1")
	require.NoError(t, err)
	assert.Len(t, roster, 2)
	for _, p := range roster {
		assert.True(t, p.FundedByCredit)
		assert.Equal(t, ledger.TripID("trip-1"), p.TripID)
	}
}

func TestTripRoster_TripNotFound(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	_, err := orch.TripRoster(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrTripNotFound)
}

func TestCreditHistory_FullAuditView(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	seedTrip(st, "trip-1", 800)
	credit := createCredit(t, orch, "client-1", 1000)

	detail, err := orch.LinkCredit(ctx, booking.LinkRequest{
		CreditID: credit.ID, TripID: "trip-1", Role: booking.RoleTitular,
		Amount: money(800), BusID: "bus-1",
	})
	require.NoError(t, err)
	_, err = orch.UnlinkPassenger(ctx, detail.Passenger.ID)
	require.NoError(t, err)

	got, entries, links, err := orch.CreditHistory(ctx, credit.ID)
	require.NoError(t, err)
	assert.Equal(t, credit.ID, got.ID)
	assert.Len(t, entries, 3)
	assert.Len(t, links, 1)
}
