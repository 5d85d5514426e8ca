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

// =============================================================================
// INVERSE GUARANTEE
// =============================================================================

func TestUnlinkPassenger_IsExactInverseOfLink(t *testing.T) {
	// GIVEN: A credit of 1000 linked at 800 to a trip
	// WHEN: The passenger is unlinked
	// THEN: Balance and status return to pre-link values, roster row gone,
	//       and the history shows exactly two movements of equal magnitude

	orch, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	seedTrip(st, "trip-1", 800)
	credit := createCredit(t, orch, "client-1", 1000)

	detail, err := orch.LinkCredit(ctx, booking.LinkRequest{
		CreditID: credit.ID, TripID: "trip-1", Role: booking.RoleTitular,
		Amount: money(800), BusID: "bus-1",
	})
	require.NoError(t, err)

	result, err := orch.UnlinkPassenger(ctx, detail.Passenger.ID)
	require.NoError(t, err)
	assert.True(t, result.RestoredAmount.Equal(money(800)))
	assert.Equal(t, ledger.TripID("trip-1"), result.TripID)
	assert.Equal(t, ledger.ClientID("client-1"), result.Traveler)

	stored, err := st.GetCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.True(t, stored.AvailableBalance.Equal(money(1000)))
	assert.Equal(t, ledger.CreditAvailable, stored.Status)

	gone, err := st.GetPassenger(ctx, detail.Passenger.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	entries, err := st.EntriesForCredit(ctx, credit.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3) // creation, utilization, refund
	util, refund := entries[1], entries[2]
	assert.Equal(t, ledger.MovementUtilization, util.Kind)
	assert.Equal(t, ledger.MovementRefund, refund.Kind)
	assert.True(t, util.Amount.Equal(refund.Amount))
	assert.Equal(t, ledger.TripID("trip-1"), refund.TripID)
}

func TestUnlinkPassenger_HistoricalLinkSurvives(t *testing.T) {
	// Provenance is append-only: unlinking does not erase the trip link.
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

	links, err := st.LinksForCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

// =============================================================================
// FAILURE MODES
// =============================================================================

func TestUnlinkPassenger_NotFound(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	_, err := orch.UnlinkPassenger(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrPassengerNotFound)
}

func TestUnlinkPassenger_NotCreditFunded(t *testing.T) {
	// GIVEN: A roster row paid by installments, not by a credit
	// WHEN: Unlinked through the credit engine
	// THEN: ErrNotCreditFunded; the row is untouched

	orch, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	seedTrip(st, "trip-1", 800)

	p := ledger.TripPassenger{
		ID:        "pax-1",
		ClientID:  "client-9",
		TripID:    "trip-1",
		BusID:     "bus-1",
		BasePrice: money(800),
		Discount:  decimal.Zero,
		Status:    ledger.Pending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.InsertPassenger(ctx, p))

	_, err := orch.UnlinkPassenger(ctx, "pax-1")
	assert.ErrorIs(t, err, ledger.ErrNotCreditFunded)

	still, err := st.GetPassenger(ctx, "pax-1")
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func TestUnlinkPassenger_CorruptionRollsBackEverything(t *testing.T) {
	// GIVEN: A roster row claiming more funded credit than was ever consumed
	// WHEN: Unlinked (restoration would exceed the original amount)
	// THEN: OverRestoration surfaces and the roster row is NOT deleted

	orch, st, _ := newTestOrchestrator(t)
	ctx := context.Background()
	seedTrip(st, "trip-1", 800)
	credit := createCredit(t, orch, "client-1", 1000)

	p := ledger.TripPassenger{
		ID:             "pax-corrupt",
		ClientID:       "client-1",
		TripID:         "trip-1",
		BusID:          "bus-1",
		BasePrice:      money(800),
		Discount:       decimal.Zero,
		Status:         ledger.PaidComplete,
		FundedByCredit: true,
		OriginCreditID: credit.ID,
		CreditAmount:   money(400), // never actually consumed from the credit
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, st.InsertPassenger(ctx, p))

	_, err := orch.UnlinkPassenger(ctx, "pax-corrupt")
	assert.ErrorIs(t, err, ledger.ErrOverRestoration)

	// Transaction rolled back: row still present, balance unchanged.
	still, err := st.GetPassenger(ctx, "pax-corrupt")
	require.NoError(t, err)
	assert.NotNil(t, still)

	stored, err := st.GetCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.True(t, stored.AvailableBalance.Equal(money(1000)))
}

func TestUnlinkPassenger_PublishesEvent(t *testing.T) {
	orch, st, events := newTestOrchestrator(t)
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

	last, ok := events.Last()
	require.True(t, ok)
	assert.Equal(t, ledger.ActionUnlinked, last.Action)
	assert.Equal(t, ledger.TripID("trip-1"), last.TripID)
}
