/*
capacity.go - Remaining seats per bus on a trip

PURPOSE:
  Computes, fresh on every call, how many seats are left on each bus
  assigned to a trip. Callers use it to suggest a default bus before
  linking; the linking itself still demands an explicit bus choice.

SEMANTICS:
  capacity = base capacity + extra seats
  occupied = roster rows currently assigned to the bus
  Buses with no vacancy are excluded. Results are sorted by vacancies,
  most room first, so callers can default to the least-loaded bus.
  No caching, no locking: the numbers are consistent only at call time.
*/
package booking

import (
	"context"
	"sort"

	"github.com/rotaviagens/backoffice/ledger"
)

// BusVacancy is one bus's seat arithmetic.
type BusVacancy struct {
	BusID         ledger.BusID
	Name          string
	CapacityTotal int
	Occupied      int
	Vacancies     int
}

// ListBusesWithVacancy returns the buses of a trip that still have room,
// sorted descending by vacancies. Side-effect free.
func (o *Orchestrator) ListBusesWithVacancy(ctx context.Context, tripID ledger.TripID) ([]BusVacancy, error) {
	trip, err := o.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, ledger.ErrTripNotFound
	}

	buses, err := o.store.BusesForTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	occupancy, err := o.store.OccupancyByBus(ctx, tripID)
	if err != nil {
		return nil, err
	}

	var out []BusVacancy
	for _, b := range buses {
		total := b.TotalCapacity()
		occupied := occupancy[b.ID]
		vacancies := total - occupied
		if vacancies <= 0 {
			continue
		}
		out = append(out, BusVacancy{
			BusID:         b.ID,
			Name:          b.Name,
			CapacityTotal: total,
			Occupied:      occupied,
			Vacancies:     vacancies,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Vacancies > out[j].Vacancies
	})
	return out, nil
}
