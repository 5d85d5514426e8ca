// Package store provides an in-memory ledger.TxStore implementation
// (for testing/dev).
package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rotaviagens/backoffice/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	credits    map[ledger.CreditID]ledger.Credit
	entries    map[ledger.CreditID][]ledger.LedgerEntry
	links      map[ledger.CreditID][]ledger.TripLink
	trips      map[ledger.TripID]ledger.Trip
	passengers map[ledger.PassengerID]ledger.TripPassenger
	buses      map[ledger.TripID][]ledger.Bus
}

func NewMemory() *Memory {
	return &Memory{
		credits:    make(map[ledger.CreditID]ledger.Credit),
		entries:    make(map[ledger.CreditID][]ledger.LedgerEntry),
		links:      make(map[ledger.CreditID][]ledger.TripLink),
		trips:      make(map[ledger.TripID]ledger.Trip),
		passengers: make(map[ledger.PassengerID]ledger.TripPassenger),
		buses:      make(map[ledger.TripID][]ledger.Bus),
	}
}

// PutTrip and PutBus seed roster fixtures owned by the trip subsystem.
func (m *Memory) PutTrip(t ledger.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[t.ID] = t
}

func (m *Memory) PutBus(b ledger.Bus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buses[b.TripID] = append(m.buses[b.TripID], b)
}

// =============================================================================
// CREDIT STORE
// =============================================================================

func (m *Memory) InsertCredit(_ context.Context, c ledger.Credit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits[c.ID] = c
	return nil
}

func (m *Memory) GetCredit(_ context.Context, id ledger.CreditID) (*ledger.Credit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credits[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListCredits(_ context.Context, clientID ledger.ClientID) ([]ledger.Credit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Credit
	for _, c := range m.credits {
		if clientID == "" || c.ClientID == clientID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) UpdateCreditBalance(_ context.Context, id ledger.CreditID, expect, balance decimal.Decimal, status ledger.CreditStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBalanceLocked(id, expect, balance, status)
}

func (m *Memory) updateBalanceLocked(id ledger.CreditID, expect, balance decimal.Decimal, status ledger.CreditStatus) error {
	c, ok := m.credits[id]
	if !ok {
		return ledger.ErrCreditNotFound
	}
	if !c.AvailableBalance.Equal(expect) {
		return ledger.ErrConcurrentModification
	}
	c.AvailableBalance = balance
	c.Status = status
	m.credits[id] = c
	return nil
}

func (m *Memory) DeleteCredit(_ context.Context, id ledger.CreditID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// FK backstop: active roster rows referencing this credit block deletion.
	for _, p := range m.passengers {
		if p.FundedByCredit && p.OriginCreditID == id {
			return ledger.ErrCreditInUse
		}
	}
	delete(m.credits, id)
	// Ledger entries and links are preserved: history outlives the credit.
	return nil
}

func (m *Memory) AppendEntry(_ context.Context, e ledger.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.CreditID] = append(m.entries[e.CreditID], e)
	return nil
}

func (m *Memory) EntriesForCredit(_ context.Context, id ledger.CreditID) ([]ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.LedgerEntry, len(m.entries[id]))
	copy(out, m.entries[id])
	return out, nil
}

func (m *Memory) InsertLink(_ context.Context, l ledger.TripLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[l.CreditID] = append(m.links[l.CreditID], l)
	return nil
}

func (m *Memory) LinksForCredit(_ context.Context, id ledger.CreditID) ([]ledger.TripLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.TripLink, len(m.links[id]))
	copy(out, m.links[id])
	return out, nil
}

// =============================================================================
// ROSTER STORE
// =============================================================================

func (m *Memory) GetTrip(_ context.Context, id ledger.TripID) (*ledger.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) GetPassenger(_ context.Context, id ledger.PassengerID) (*ledger.TripPassenger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.passengers[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) FindPassenger(_ context.Context, clientID ledger.ClientID, tripID ledger.TripID) (*ledger.TripPassenger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.passengers {
		if p.ClientID == clientID && p.TripID == tripID {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *Memory) InsertPassenger(_ context.Context, p ledger.TripPassenger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passengers[p.ID] = p
	return nil
}

func (m *Memory) UpdatePassenger(_ context.Context, p ledger.TripPassenger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.passengers[p.ID]; !ok {
		return ledger.ErrPassengerNotFound
	}
	m.passengers[p.ID] = p
	return nil
}

func (m *Memory) DeletePassenger(_ context.Context, id ledger.PassengerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.passengers[id]; !ok {
		return ledger.ErrPassengerNotFound
	}
	delete(m.passengers, id)
	return nil
}

func (m *Memory) ReplaceAddons(_ context.Context, id ledger.PassengerID, addons []ledger.Addon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.passengers[id]
	if !ok {
		return ledger.ErrPassengerNotFound
	}
	p.Addons = append([]ledger.Addon{}, addons...)
	m.passengers[id] = p
	return nil
}

func (m *Memory) PassengersFundedBy(_ context.Context, id ledger.CreditID) ([]ledger.PassengerSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.PassengerSummary
	for _, p := range m.passengers {
		if p.FundedByCredit && p.OriginCreditID == id {
			out = append(out, p.Summary())
		}
	}
	return out, nil
}

func (m *Memory) ListPassengers(_ context.Context, tripID ledger.TripID) ([]ledger.PassengerSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.PassengerSummary
	for _, p := range m.passengers {
		if p.TripID == tripID {
			out = append(out, p.Summary())
		}
	}
	return out, nil
}

func (m *Memory) BusesForTrip(_ context.Context, tripID ledger.TripID) ([]ledger.Bus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Bus, len(m.buses[tripID]))
	copy(out, m.buses[tripID])
	return out, nil
}

func (m *Memory) OccupancyByBus(_ context.Context, tripID ledger.TripID) (map[ledger.BusID]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	occupancy := make(map[ledger.BusID]int)
	for _, p := range m.passengers {
		if p.TripID == tripID && p.BusID != "" {
			occupancy[p.BusID]++
		}
	}
	return occupancy, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	s := memorySnapshot{
		credits:    make(map[ledger.CreditID]ledger.Credit, len(tm.credits)),
		entries:    make(map[ledger.CreditID][]ledger.LedgerEntry, len(tm.entries)),
		links:      make(map[ledger.CreditID][]ledger.TripLink, len(tm.links)),
		passengers: make(map[ledger.PassengerID]ledger.TripPassenger, len(tm.passengers)),
	}
	for k, v := range tm.credits {
		s.credits[k] = v
	}
	for k, v := range tm.entries {
		s.entries[k] = append([]ledger.LedgerEntry{}, v...)
	}
	for k, v := range tm.links {
		s.links[k] = append([]ledger.TripLink{}, v...)
	}
	for k, v := range tm.passengers {
		s.passengers[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.credits = s.credits
	tm.entries = s.entries
	tm.links = s.links
	tm.passengers = s.passengers
}

type memorySnapshot struct {
	credits    map[ledger.CreditID]ledger.Credit
	entries    map[ledger.CreditID][]ledger.LedgerEntry
	links      map[ledger.CreditID][]ledger.TripLink
	passengers map[ledger.PassengerID]ledger.TripPassenger
}
