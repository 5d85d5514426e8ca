package booking_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotaviagens/backoffice/ledger"
	memstore "github.com/rotaviagens/backoffice/ledger/store"
)

func seedPassengers(t *testing.T, st *memstore.TxMemory, tripID ledger.TripID, busID ledger.BusID, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		p := ledger.TripPassenger{
			ID:        ledger.PassengerID(fmt.Sprintf("%s-pax-%d", busID, i)),
			ClientID:  ledger.ClientID(fmt.Sprintf("%s-client-%d", busID, i)),
			TripID:    tripID,
			BusID:     busID,
			BasePrice: money(800),
			Discount:  decimal.Zero,
			Status:    ledger.Pending,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, st.InsertPassenger(context.Background(), p))
	}
}

func TestListBusesWithVacancy_ExcludesFullSortsByRoom(t *testing.T) {
	// GIVEN: Three buses - one full, one with 2 seats left, one empty
	// WHEN: Vacancies are listed
	// THEN: The full bus is excluded; the rest are sorted most room first

	orch, st, _ := newTestOrchestrator(t)
	seedTrip(st, "trip-1", 800)
	seedBus(st, "trip-1", "bus-full", 10, 0)
	seedBus(st, "trip-1", "bus-almost", 10, 0)
	seedBus(st, "trip-1", "bus-empty", 40, 0)

	seedPassengers(t, st, "trip-1", "bus-full", 10)
	seedPassengers(t, st, "trip-1", "bus-almost", 8)

	out, err := orch.ListBusesWithVacancy(context.Background(), "trip-1")
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, ledger.BusID("bus-empty"), out[0].BusID)
	assert.Equal(t, 40, out[0].Vacancies)
	assert.Equal(t, 0, out[0].Occupied)

	assert.Equal(t, ledger.BusID("bus-almost"), out[1].BusID)
	assert.Equal(t, 2, out[1].Vacancies)
	assert.Equal(t, 8, out[1].Occupied)
}

func TestListBusesWithVacancy_ExtraSeatsCountTowardCapacity(t *testing.T) {
	// GIVEN: A bus of 44 base seats plus 2 fold-down seats, 44 occupied
	// WHEN: Vacancies are listed
	// THEN: 2 seats remain

	orch, st, _ := newTestOrchestrator(t)
	seedTrip(st, "trip-1", 800)
	seedBus(st, "trip-1", "bus-1", 44, 2)
	seedPassengers(t, st, "trip-1", "bus-1", 44)

	out, err := orch.ListBusesWithVacancy(context.Background(), "trip-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 46, out[0].CapacityTotal)
	assert.Equal(t, 2, out[0].Vacancies)
}

func TestListBusesWithVacancy_TripNotFound(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	_, err := orch.ListBusesWithVacancy(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrTripNotFound)
}

func TestListBusesWithVacancy_NoBuses(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t)
	seedTrip(st, "trip-1", 800)

	out, err := orch.ListBusesWithVacancy(context.Background(), "trip-1")
	require.NoError(t, err)
	assert.Empty(t, out)
}
