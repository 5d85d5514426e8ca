package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotaviagens/backoffice/booking"
	"github.com/rotaviagens/backoffice/ledger"
	"github.com/rotaviagens/backoffice/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func seedTrip(t *testing.T, st *sqlite.Store, id ledger.TripID, price float64) {
	t.Helper()
	require.NoError(t, st.SaveTrip(context.Background(), ledger.Trip{
		ID:            id,
		Name:          "Trip " + string(id),
		StandardPrice: money(price),
		DepartsAt:     time.Now().AddDate(0, 1, 0).UTC(),
	}))
}

func seedBus(t *testing.T, st *sqlite.Store, tripID ledger.TripID, busID ledger.BusID, base, extra int) {
	t.Helper()
	require.NoError(t, st.SaveBus(context.Background(), ledger.Bus{
		ID:           busID,
		TripID:       tripID,
		Name:         "Bus " + string(busID),
		BaseCapacity: base,
		ExtraSeats:   extra,
	}))
}

// =============================================================================
// CREDIT ROUND TRIPS
// =============================================================================

func TestCreditRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	credit := ledger.NewCredit("client-1", money(1500), "pix", "prepaid package")
	require.NoError(t, st.InsertCredit(ctx, credit))

	got, err := st.GetCredit(ctx, credit.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, credit.ClientID, got.ClientID)
	assert.True(t, got.OriginalAmount.Equal(money(1500)))
	assert.True(t, got.AvailableBalance.Equal(money(1500)))
	assert.Equal(t, ledger.CreditAvailable, got.Status)
	assert.Equal(t, "pix", got.PaymentMethod)
	assert.Equal(t, "prepaid package", got.Notes)
}

func TestGetCredit_MissingIsNilNil(t *testing.T) {
	st := newTestStore(t)
	got, err := st.GetCredit(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListCredits_FilterByClient(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertCredit(ctx, ledger.NewCredit("client-1", money(100), "", "")))
	require.NoError(t, st.InsertCredit(ctx, ledger.NewCredit("client-1", money(200), "", "")))
	require.NoError(t, st.InsertCredit(ctx, ledger.NewCredit("client-2", money(300), "", "")))

	all, err := st.ListCredits(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := st.ListCredits(ctx, "client-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

// =============================================================================
// OPTIMISTIC BALANCE UPDATE
// =============================================================================

func TestUpdateCreditBalance_OptimisticCheck(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	credit := ledger.NewCredit("client-1", money(1000), "", "")
	require.NoError(t, st.InsertCredit(ctx, credit))

	// Matching expectation succeeds.
	err := st.UpdateCreditBalance(ctx, credit.ID, money(1000), money(600), ledger.CreditPartial)
	require.NoError(t, err)

	got, err := st.GetCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.True(t, got.AvailableBalance.Equal(money(600)))
	assert.Equal(t, ledger.CreditPartial, got.Status)

	// A stale expectation is a concurrent-modification conflict.
	err = st.UpdateCreditBalance(ctx, credit.ID, money(1000), money(200), ledger.CreditPartial)
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)

	// A missing credit is reported as such, not as a conflict.
	err = st.UpdateCreditBalance(ctx, "ghost", money(1000), money(200), ledger.CreditPartial)
	assert.ErrorIs(t, err, ledger.ErrCreditNotFound)
}

// =============================================================================
// LEDGER ENTRIES + LINKS
// =============================================================================

func TestEntriesForCredit_ChronologicalHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	credit := ledger.NewCredit("client-1", money(1000), "", "")
	require.NoError(t, st.InsertCredit(ctx, credit))
	require.NoError(t, st.AppendEntry(ctx, ledger.NewCreationEntry(credit, "created")))

	util := ledger.NewUtilizationEntry(credit, money(400), "trip-1", "linked")
	require.NoError(t, st.AppendEntry(ctx, util))

	entries, err := st.EntriesForCredit(ctx, credit.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, ledger.MovementCreation, entries[0].Kind)
	assert.Equal(t, ledger.MovementUtilization, entries[1].Kind)
	assert.True(t, entries[1].BalanceBefore.Equal(money(1000)))
	assert.True(t, entries[1].BalanceAfter.Equal(money(600)))
	assert.Equal(t, ledger.TripID("trip-1"), entries[1].TripID)

	// The chain still reconciles after the TEXT round trip.
	require.NoError(t, ledger.ReconcileEntries(credit.ID, entries))
}

func TestEntriesForCredit_SameSecondKeepsInsertionOrder(t *testing.T) {
	// GIVEN: Many entries appended within the same wall-clock second
	// WHEN: The history is read back
	// THEN: Insertion order is preserved; created_at has second
	//       granularity so timestamps alone cannot break these ties

	st := newTestStore(t)
	ctx := context.Background()

	credit := ledger.NewCredit("client-1", money(1000), "", "")
	require.NoError(t, st.InsertCredit(ctx, credit))
	require.NoError(t, st.AppendEntry(ctx, ledger.NewCreationEntry(credit, "created")))

	for i := 0; i < 8; i++ {
		entry := ledger.NewUtilizationEntry(credit, money(100), "trip-1", "linked")
		require.NoError(t, st.AppendEntry(ctx, entry))
		credit.AvailableBalance = entry.BalanceAfter
	}

	entries, err := st.EntriesForCredit(ctx, credit.ID)
	require.NoError(t, err)
	require.Len(t, entries, 9)

	for i, e := range entries[1:] {
		assert.True(t, e.BalanceBefore.Equal(money(float64(1000-i*100))),
			"entry %d read back out of insertion order", i+1)
	}
	require.NoError(t, ledger.ReconcileEntries(credit.ID, entries))
}

func TestLedgerAndLinks_SurviveCreditDeletion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	credit := ledger.NewCredit("client-1", money(1000), "", "")
	require.NoError(t, st.InsertCredit(ctx, credit))
	require.NoError(t, st.AppendEntry(ctx, ledger.NewCreationEntry(credit, "created")))
	require.NoError(t, st.InsertLink(ctx, ledger.TripLink{
		ID:             ledger.LinkID(ledger.NewID()),
		CreditID:       credit.ID,
		TripID:         "trip-1",
		ClientID:       credit.ClientID,
		AmountUtilized: money(400),
		CreatedAt:      time.Now().UTC(),
	}))

	require.NoError(t, st.DeleteCredit(ctx, credit.ID))

	gone, err := st.GetCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	entries, err := st.EntriesForCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	links, err := st.LinksForCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

// =============================================================================
// REFERENTIAL BACKSTOP
// =============================================================================

func TestDeleteCredit_ForeignKeyBackstop(t *testing.T) {
	// GIVEN: A roster row whose origin credit is still set
	// WHEN: The credit row is deleted directly, bypassing the advisory guard
	// THEN: The database itself refuses, surfacing ErrCreditInUse

	st := newTestStore(t)
	ctx := context.Background()
	seedTrip(t, st, "trip-1", 800)

	credit := ledger.NewCredit("client-1", money(1000), "", "")
	require.NoError(t, st.InsertCredit(ctx, credit))

	now := time.Now().UTC()
	require.NoError(t, st.InsertPassenger(ctx, ledger.TripPassenger{
		ID:             "pax-1",
		ClientID:       "client-1",
		TripID:         "trip-1",
		BusID:          "bus-1",
		BasePrice:      money(800),
		Discount:       decimal.Zero,
		Status:         ledger.PaidComplete,
		FundedByCredit: true,
		OriginCreditID: credit.ID,
		CreditAmount:   money(800),
		CreatedAt:      now,
		UpdatedAt:      now,
	}))

	err := st.DeleteCredit(ctx, credit.ID)
	assert.ErrorIs(t, err, ledger.ErrCreditInUse)
}

// =============================================================================
// PASSENGERS, ADDONS, INSTALLMENTS
// =============================================================================

func TestPassengerRoundTrip_WithAddons(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedTrip(t, st, "trip-1", 800)

	now := time.Now().UTC()
	p := ledger.TripPassenger{
		ID:        "pax-1",
		ClientID:  "client-1",
		TripID:    "trip-1",
		BusID:     "bus-1",
		BasePrice: money(800),
		Discount:  money(50),
		Status:    ledger.Pending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.InsertPassenger(ctx, p))

	addons := []ledger.Addon{
		{ID: ledger.NewID(), PassengerID: "pax-1", Name: "boat trip", Price: money(120)},
		{ID: ledger.NewID(), PassengerID: "pax-1", Name: "city tour", Price: decimal.Zero},
	}
	require.NoError(t, st.ReplaceAddons(ctx, "pax-1", addons))

	got, err := st.GetPassenger(ctx, "pax-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.BasePrice.Equal(money(800)))
	assert.True(t, got.Discount.Equal(money(50)))
	require.Len(t, got.Addons, 2)
	assert.Equal(t, "boat trip", got.Addons[0].Name)
	assert.True(t, got.Addons[0].Price.Equal(money(120)))

	// Replace is delete-then-insert, not accumulate.
	require.NoError(t, st.ReplaceAddons(ctx, "pax-1", addons[:1]))
	got, err = st.GetPassenger(ctx, "pax-1")
	require.NoError(t, err)
	assert.Len(t, got.Addons, 1)

	found, err := st.FindPassenger(ctx, "client-1", "trip-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ledger.PassengerID("pax-1"), found.ID)
}

func TestOccupancyByBus_GroupsAssignedSeats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedTrip(t, st, "trip-1", 800)
	seedBus(t, st, "trip-1", "bus-1", 44, 2)
	seedBus(t, st, "trip-1", "bus-2", 10, 0)

	now := time.Now().UTC()
	for i, busID := range []ledger.BusID{"bus-1", "bus-1", "bus-2"} {
		require.NoError(t, st.InsertPassenger(ctx, ledger.TripPassenger{
			ID:        ledger.PassengerID(ledger.NewID()),
			ClientID:  ledger.ClientID(ledger.NewID()),
			TripID:    "trip-1",
			BusID:     busID,
			BasePrice: money(800),
			Discount:  decimal.Zero,
			Status:    ledger.Pending,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			UpdatedAt: now,
		}))
	}

	occupancy, err := st.OccupancyByBus(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, 2, occupancy["bus-1"])
	assert.Equal(t, 1, occupancy["bus-2"])

	buses, err := st.BusesForTrip(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, buses, 2)
	assert.Equal(t, 46, buses[0].TotalCapacity())
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	credit := ledger.NewCredit("client-1", money(1000), "", "")
	err := st.WithTx(ctx, func(s ledger.Store) error {
		if err := s.InsertCredit(ctx, credit); err != nil {
			return err
		}
		if err := s.AppendEntry(ctx, ledger.NewCreationEntry(credit, "created")); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	gone, err := st.GetCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "rolled-back insert must not be observable")

	entries, err := st.EntriesForCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDriverErrors_ClassifiedRetryable(t *testing.T) {
	// A broken connection is a transport problem, not a business rule:
	// callers must be able to tell the two apart and retry.

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	err = st.InsertCredit(context.Background(), ledger.NewCredit("client-1", money(100), "", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStorageFailure)
	assert.True(t, ledger.IsRetryable(err))
	assert.False(t, ledger.IsClientError(err))
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	credit := ledger.NewCredit("client-1", money(1000), "", "")
	err := st.WithTx(ctx, func(s ledger.Store) error {
		if err := s.InsertCredit(ctx, credit); err != nil {
			return err
		}
		return s.AppendEntry(ctx, ledger.NewCreationEntry(credit, "created"))
	})
	require.NoError(t, err)

	got, err := st.GetCredit(ctx, credit.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

// =============================================================================
// FULL ORCHESTRATION AGAINST SQLITE
// =============================================================================

func TestBookingFlow_AgainstSQLite(t *testing.T) {
	// The booking tests run against the memory store; this drives the same
	// link -> unlink -> reconcile flow through the durable store.

	st := newTestStore(t)
	ctx := context.Background()
	seedTrip(t, st, "trip-gramado", 800)
	seedBus(t, st, "trip-gramado", "bus-1", 44, 0)

	orch := booking.New(st, nil, nil)

	credit, err := orch.CreateCredit(ctx, booking.CreateCreditRequest{
		ClientID:      "client-1",
		Amount:        money(1000),
		PaymentMethod: "pix",
	})
	require.NoError(t, err)

	detail, err := orch.LinkCredit(ctx, booking.LinkRequest{
		CreditID:   credit.ID,
		TripID:     "trip-gramado",
		Role:       booking.RoleTitular,
		Amount:     money(800),
		BusID:      "bus-1",
		AddonNames: []string{"city tour"},
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.PaidComplete, detail.Passenger.Status)

	stored, err := st.GetCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.True(t, stored.AvailableBalance.Equal(money(200)))
	assert.Equal(t, ledger.CreditPartial, stored.Status)

	// Deletion is blocked while the seat is funded, even at the store level.
	err = orch.DeleteCredit(ctx, credit.ID)
	assert.ErrorIs(t, err, ledger.ErrCreditInUse)

	result, err := orch.UnlinkPassenger(ctx, detail.Passenger.ID)
	require.NoError(t, err)
	assert.True(t, result.RestoredAmount.Equal(money(800)))

	summary, err := orch.ReconcileCredit(ctx, credit.ID)
	require.NoError(t, err)
	assert.True(t, summary.Balance.Equal(money(1000)))
	assert.Equal(t, 3, summary.Entries)

	require.NoError(t, orch.DeleteCredit(ctx, credit.ID))
}
