/*
Package sqlite provides the SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Durable storage for credits, the append-only movement ledger, trip
  links, and the roster rows the engine mutates. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The credit_ledger table has no UPDATE and no DELETE statements anywhere
  in this package, and deliberately no foreign key to credits: entries
  outlive the credit row for audit purposes. The same holds for
  credit_trip_links.

REFERENTIAL BACKSTOP:
  trip_passengers.origin_credit_id references credits(id) WITHOUT cascade.
  With foreign_keys=on, deleting a credit that still funds roster rows is
  rejected by the database itself - the enforcement backstop behind the
  advisory deletion guard in the booking package.

CONCURRENCY:
  Uses sync.RWMutex for in-process serialization plus WAL mode. Balance
  writes are optimistic: UPDATE ... WHERE available_balance = expected,
  with zero rows affected surfacing as ErrConcurrentModification.

USAGE:
  st, err := sqlite.New("./data/backoffice.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  orch := booking.New(st, bus, logger)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/rotaviagens/backoffice/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credits (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		original_amount TEXT NOT NULL,
		available_balance TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credits_client ON credits(client_id);
	CREATE INDEX IF NOT EXISTS idx_credits_status ON credits(status);

	-- Append-only movement history. Deliberately NO foreign key to
	-- credits: entries must survive credit deletion for audit. The seq
	-- column gives a monotonic insertion order; created_at has second
	-- granularity and cannot order entries written in the same second.
	CREATE TABLE IF NOT EXISTS credit_ledger (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		credit_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		description TEXT,
		trip_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_credit ON credit_ledger(credit_id, seq);

	-- Provenance rows also outlive the credit (no foreign key).
	CREATE TABLE IF NOT EXISTS credit_trip_links (
		id TEXT PRIMARY KEY,
		credit_id TEXT NOT NULL,
		trip_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		amount_utilized TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_links_credit ON credit_trip_links(credit_id);
	CREATE INDEX IF NOT EXISTS idx_links_trip ON credit_trip_links(trip_id);

	CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		standard_price TEXT NOT NULL,
		departs_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS buses (
		id TEXT PRIMARY KEY,
		trip_id TEXT NOT NULL REFERENCES trips(id),
		name TEXT NOT NULL,
		base_capacity INTEGER NOT NULL,
		extra_seats INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_buses_trip ON buses(trip_id);

	-- origin_credit_id references credits WITHOUT cascade: the database
	-- rejects deleting a credit that still funds a seat. This is the
	-- backstop behind the advisory deletion guard.
	CREATE TABLE IF NOT EXISTS trip_passengers (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		trip_id TEXT NOT NULL REFERENCES trips(id),
		bus_id TEXT,
		base_price TEXT NOT NULL,
		discount TEXT NOT NULL,
		status TEXT NOT NULL,
		complimentary INTEGER NOT NULL DEFAULT 0,
		cancelled_at TEXT,
		funded_by_credit INTEGER NOT NULL DEFAULT 0,
		origin_credit_id TEXT REFERENCES credits(id),
		credit_amount TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_passengers_client_trip
		ON trip_passengers(client_id, trip_id);
	CREATE INDEX IF NOT EXISTS idx_passengers_trip_bus ON trip_passengers(trip_id, bus_id);
	CREATE INDEX IF NOT EXISTS idx_passengers_origin_credit ON trip_passengers(origin_credit_id);

	CREATE TABLE IF NOT EXISTS passenger_addons (
		id TEXT PRIMARY KEY,
		passenger_id TEXT NOT NULL REFERENCES trip_passengers(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		price TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_addons_passenger ON passenger_addons(passenger_id);

	CREATE TABLE IF NOT EXISTS passenger_installments (
		id TEXT PRIMARY KEY,
		passenger_id TEXT NOT NULL REFERENCES trip_passengers(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		paid_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_installments_passenger ON passenger_installments(passenger_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CREDIT STORE
// =============================================================================

func (s *Store) InsertCredit(ctx context.Context, c ledger.Credit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertCredit(ctx, s.db, c)
}

func insertCredit(ctx context.Context, q dbtx, c ledger.Credit) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO credits
		(id, client_id, original_amount, available_balance, status, payment_method, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClientID, c.OriginalAmount.String(), c.AvailableBalance.String(),
		c.Status, c.PaymentMethod, c.Notes,
		c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return storageFailure("failed to insert credit", err)
	}
	return nil
}

func (s *Store) GetCredit(ctx context.Context, id ledger.CreditID) (*ledger.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCredit(ctx, s.db, id)
}

func getCredit(ctx context.Context, q dbtx, id ledger.CreditID) (*ledger.Credit, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, client_id, original_amount, available_balance, status,
		       payment_method, notes, created_at, updated_at
		FROM credits WHERE id = ?`, id)
	c, err := scanCredit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageFailure("failed to get credit", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredit(r rowScanner) (*ledger.Credit, error) {
	var c ledger.Credit
	var original, balance, createdAt, updatedAt string
	var method, notes sql.NullString
	err := r.Scan(&c.ID, &c.ClientID, &original, &balance, &c.Status,
		&method, &notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.OriginalAmount = parseDecimal(original)
	c.AvailableBalance = parseDecimal(balance)
	c.PaymentMethod = method.String
	c.Notes = notes.String
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

func (s *Store) ListCredits(ctx context.Context, clientID ledger.ClientID) ([]ledger.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCredits(ctx, s.db, clientID)
}

func listCredits(ctx context.Context, q dbtx, clientID ledger.ClientID) ([]ledger.Credit, error) {
	query := `
		SELECT id, client_id, original_amount, available_balance, status,
		       payment_method, notes, created_at, updated_at
		FROM credits`
	var args []any
	if clientID != "" {
		query += " WHERE client_id = ?"
		args = append(args, clientID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageFailure("failed to query credits", err)
	}
	defer rows.Close()

	var credits []ledger.Credit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, *c)
	}
	return credits, rows.Err()
}

func (s *Store) UpdateCreditBalance(ctx context.Context, id ledger.CreditID, expect, balance decimal.Decimal, status ledger.CreditStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateCreditBalance(ctx, s.db, id, expect, balance, status)
}

func updateCreditBalance(ctx context.Context, q dbtx, id ledger.CreditID, expect, balance decimal.Decimal, status ledger.CreditStatus) error {
	res, err := q.ExecContext(ctx, `
		UPDATE credits
		SET available_balance = ?, status = ?, updated_at = ?
		WHERE id = ? AND available_balance = ?`,
		balance.String(), status, time.Now().UTC().Format(time.RFC3339),
		id, expect.String(),
	)
	if err != nil {
		return storageFailure("failed to update credit balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the credit vanished or another writer moved the balance.
		existing, err := getCredit(ctx, q, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ledger.ErrCreditNotFound
		}
		return ledger.ErrConcurrentModification
	}
	return nil
}

func (s *Store) DeleteCredit(ctx context.Context, id ledger.CreditID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteCredit(ctx, s.db, id)
}

func deleteCredit(ctx context.Context, q dbtx, id ledger.CreditID) error {
	_, err := q.ExecContext(ctx, "DELETE FROM credits WHERE id = ?", id)
	if err != nil {
		if isForeignKeyError(err) {
			return ledger.ErrCreditInUse
		}
		return storageFailure("failed to delete credit", err)
	}
	return nil
}

func (s *Store) AppendEntry(ctx context.Context, e ledger.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, q dbtx, e ledger.LedgerEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO credit_ledger
		(id, credit_id, kind, balance_before, amount, balance_after, description, trip_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreditID, e.Kind,
		e.BalanceBefore.String(), e.Amount.String(), e.BalanceAfter.String(),
		e.Description, nullString(string(e.TripID)),
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return storageFailure("failed to append ledger entry", err)
	}
	return nil
}

func (s *Store) EntriesForCredit(ctx context.Context, id ledger.CreditID) ([]ledger.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesForCredit(ctx, s.db, id)
}

func entriesForCredit(ctx context.Context, q dbtx, id ledger.CreditID) ([]ledger.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, credit_id, kind, balance_before, amount, balance_after, description, trip_id, created_at
		FROM credit_ledger
		WHERE credit_id = ?
		ORDER BY seq ASC`, id)
	if err != nil {
		return nil, storageFailure("failed to query ledger", err)
	}
	defer rows.Close()

	var entries []ledger.LedgerEntry
	for rows.Next() {
		var e ledger.LedgerEntry
		var before, amount, after, createdAt string
		var description, tripID sql.NullString
		if err := rows.Scan(&e.ID, &e.CreditID, &e.Kind, &before, &amount, &after,
			&description, &tripID, &createdAt); err != nil {
			return nil, err
		}
		e.BalanceBefore = parseDecimal(before)
		e.Amount = parseDecimal(amount)
		e.BalanceAfter = parseDecimal(after)
		e.Description = description.String
		e.TripID = ledger.TripID(tripID.String)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) InsertLink(ctx context.Context, l ledger.TripLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertLink(ctx, s.db, l)
}

func insertLink(ctx context.Context, q dbtx, l ledger.TripLink) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO credit_trip_links
		(id, credit_id, trip_id, client_id, amount_utilized, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CreditID, l.TripID, l.ClientID,
		l.AmountUtilized.String(), l.Notes, l.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return storageFailure("failed to insert trip link", err)
	}
	return nil
}

func (s *Store) LinksForCredit(ctx context.Context, id ledger.CreditID) ([]ledger.TripLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return linksForCredit(ctx, s.db, id)
}

func linksForCredit(ctx context.Context, q dbtx, id ledger.CreditID) ([]ledger.TripLink, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, credit_id, trip_id, client_id, amount_utilized, notes, created_at
		FROM credit_trip_links
		WHERE credit_id = ?
		ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, storageFailure("failed to query trip links", err)
	}
	defer rows.Close()

	var links []ledger.TripLink
	for rows.Next() {
		var l ledger.TripLink
		var amount, createdAt string
		var notes sql.NullString
		if err := rows.Scan(&l.ID, &l.CreditID, &l.TripID, &l.ClientID,
			&amount, &notes, &createdAt); err != nil {
			return nil, err
		}
		l.AmountUtilized = parseDecimal(amount)
		l.Notes = notes.String
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		links = append(links, l)
	}
	return links, rows.Err()
}

// =============================================================================
// ROSTER STORE
// =============================================================================

// SaveTrip upserts a trip record. Trips are owned by the surrounding trip
// subsystem; this method exists for seeding and the admin surface.
func (s *Store) SaveTrip(ctx context.Context, t ledger.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trips (id, name, standard_price, departs_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			standard_price = excluded.standard_price,
			departs_at = excluded.departs_at`,
		t.ID, t.Name, t.StandardPrice.String(), t.DepartsAt.Format(time.RFC3339),
	)
	return err
}

// SaveBus upserts a bus assignment for a trip.
func (s *Store) SaveBus(ctx context.Context, b ledger.Bus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buses (id, trip_id, name, base_capacity, extra_seats)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			base_capacity = excluded.base_capacity,
			extra_seats = excluded.extra_seats`,
		b.ID, b.TripID, b.Name, b.BaseCapacity, b.ExtraSeats,
	)
	return err
}

func (s *Store) GetTrip(ctx context.Context, id ledger.TripID) (*ledger.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTrip(ctx, s.db, id)
}

func getTrip(ctx context.Context, q dbtx, id ledger.TripID) (*ledger.Trip, error) {
	var t ledger.Trip
	var price, departsAt string
	err := q.QueryRowContext(ctx,
		"SELECT id, name, standard_price, departs_at FROM trips WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &price, &departsAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.StandardPrice = parseDecimal(price)
	t.DepartsAt, _ = time.Parse(time.RFC3339, departsAt)
	return &t, nil
}

func (s *Store) GetPassenger(ctx context.Context, id ledger.PassengerID) (*ledger.TripPassenger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPassenger(ctx, s.db, id)
}

const passengerColumns = `
	id, client_id, trip_id, bus_id, base_price, discount, status,
	complimentary, cancelled_at, funded_by_credit, origin_credit_id,
	credit_amount, created_at, updated_at`

func getPassenger(ctx context.Context, q dbtx, id ledger.PassengerID) (*ledger.TripPassenger, error) {
	row := q.QueryRowContext(ctx,
		"SELECT"+passengerColumns+" FROM trip_passengers WHERE id = ?", id)
	return scanPassengerFull(ctx, q, row)
}

func findPassenger(ctx context.Context, q dbtx, clientID ledger.ClientID, tripID ledger.TripID) (*ledger.TripPassenger, error) {
	row := q.QueryRowContext(ctx,
		"SELECT"+passengerColumns+" FROM trip_passengers WHERE client_id = ? AND trip_id = ?",
		clientID, tripID)
	return scanPassengerFull(ctx, q, row)
}

func scanPassengerFull(ctx context.Context, q dbtx, row *sql.Row) (*ledger.TripPassenger, error) {
	p, err := scanPassenger(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Addons, err = addonsFor(ctx, q, p.ID); err != nil {
		return nil, err
	}
	if p.Installments, err = installmentsFor(ctx, q, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func scanPassenger(r rowScanner) (*ledger.TripPassenger, error) {
	var p ledger.TripPassenger
	var basePrice, discount, creditAmount, createdAt, updatedAt string
	var busID, cancelledAt, originCredit sql.NullString
	var complimentary, funded bool
	err := r.Scan(&p.ID, &p.ClientID, &p.TripID, &busID, &basePrice, &discount,
		&p.Status, &complimentary, &cancelledAt, &funded, &originCredit,
		&creditAmount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.BusID = ledger.BusID(busID.String)
	p.BasePrice = parseDecimal(basePrice)
	p.Discount = parseDecimal(discount)
	p.Complimentary = complimentary
	p.FundedByCredit = funded
	p.OriginCreditID = ledger.CreditID(originCredit.String)
	p.CreditAmount = parseDecimal(creditAmount)
	if cancelledAt.Valid {
		t, _ := time.Parse(time.RFC3339, cancelledAt.String)
		p.CancelledAt = &t
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func addonsFor(ctx context.Context, q dbtx, id ledger.PassengerID) ([]ledger.Addon, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, passenger_id, name, price FROM passenger_addons WHERE passenger_id = ? ORDER BY name", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addons []ledger.Addon
	for rows.Next() {
		var a ledger.Addon
		var price string
		if err := rows.Scan(&a.ID, &a.PassengerID, &a.Name, &price); err != nil {
			return nil, err
		}
		a.Price = parseDecimal(price)
		addons = append(addons, a)
	}
	return addons, rows.Err()
}

func installmentsFor(ctx context.Context, q dbtx, id ledger.PassengerID) ([]ledger.Installment, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, amount, category, paid_at FROM passenger_installments WHERE passenger_id = ? ORDER BY paid_at", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var installments []ledger.Installment
	for rows.Next() {
		var i ledger.Installment
		var amount, paidAt string
		if err := rows.Scan(&i.ID, &amount, &i.Category, &paidAt); err != nil {
			return nil, err
		}
		i.Amount = parseDecimal(amount)
		i.PaidAt, _ = time.Parse(time.RFC3339, paidAt)
		installments = append(installments, i)
	}
	return installments, rows.Err()
}

func (s *Store) FindPassenger(ctx context.Context, clientID ledger.ClientID, tripID ledger.TripID) (*ledger.TripPassenger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findPassenger(ctx, s.db, clientID, tripID)
}

func (s *Store) InsertPassenger(ctx context.Context, p ledger.TripPassenger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPassenger(ctx, s.db, p)
}

func insertPassenger(ctx context.Context, q dbtx, p ledger.TripPassenger) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO trip_passengers
		(id, client_id, trip_id, bus_id, base_price, discount, status,
		 complimentary, cancelled_at, funded_by_credit, origin_credit_id,
		 credit_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ClientID, p.TripID, nullString(string(p.BusID)),
		p.BasePrice.String(), p.Discount.String(), p.Status,
		p.Complimentary, nullTime(p.CancelledAt), p.FundedByCredit,
		nullString(string(p.OriginCreditID)), p.CreditAmount.String(),
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return storageFailure("failed to insert passenger", err)
	}
	return nil
}

func (s *Store) UpdatePassenger(ctx context.Context, p ledger.TripPassenger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePassenger(ctx, s.db, p)
}

func updatePassenger(ctx context.Context, q dbtx, p ledger.TripPassenger) error {
	res, err := q.ExecContext(ctx, `
		UPDATE trip_passengers
		SET bus_id = ?, base_price = ?, discount = ?, status = ?,
		    complimentary = ?, cancelled_at = ?, funded_by_credit = ?,
		    origin_credit_id = ?, credit_amount = ?, updated_at = ?
		WHERE id = ?`,
		nullString(string(p.BusID)), p.BasePrice.String(), p.Discount.String(),
		p.Status, p.Complimentary, nullTime(p.CancelledAt), p.FundedByCredit,
		nullString(string(p.OriginCreditID)), p.CreditAmount.String(),
		time.Now().UTC().Format(time.RFC3339), p.ID,
	)
	if err != nil {
		return storageFailure("failed to update passenger", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrPassengerNotFound
	}
	return nil
}

func (s *Store) DeletePassenger(ctx context.Context, id ledger.PassengerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePassenger(ctx, s.db, id)
}

func deletePassenger(ctx context.Context, q dbtx, id ledger.PassengerID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM trip_passengers WHERE id = ?", id)
	if err != nil {
		return storageFailure("failed to delete passenger", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrPassengerNotFound
	}
	return nil
}

func (s *Store) ReplaceAddons(ctx context.Context, id ledger.PassengerID, addons []ledger.Addon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replaceAddons(ctx, s.db, id, addons)
}

func replaceAddons(ctx context.Context, q dbtx, id ledger.PassengerID, addons []ledger.Addon) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM passenger_addons WHERE passenger_id = ?", id); err != nil {
		return storageFailure("failed to clear addons", err)
	}
	for _, a := range addons {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO passenger_addons (id, passenger_id, name, price) VALUES (?, ?, ?, ?)",
			a.ID, id, a.Name, a.Price.String()); err != nil {
			return storageFailure("failed to insert addon", err)
		}
	}
	return nil
}

func (s *Store) PassengersFundedBy(ctx context.Context, id ledger.CreditID) ([]ledger.PassengerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return passengersFundedBy(ctx, s.db, id)
}

func passengersFundedBy(ctx context.Context, q dbtx, id ledger.CreditID) ([]ledger.PassengerSummary, error) {
	return querySummaries(ctx, q, `
		SELECT id, client_id, trip_id, bus_id, status, funded_by_credit
		FROM trip_passengers
		WHERE funded_by_credit = 1 AND origin_credit_id = ?`, id)
}

func (s *Store) ListPassengers(ctx context.Context, tripID ledger.TripID) ([]ledger.PassengerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPassengers(ctx, s.db, tripID)
}

func listPassengers(ctx context.Context, q dbtx, tripID ledger.TripID) ([]ledger.PassengerSummary, error) {
	return querySummaries(ctx, q, `
		SELECT id, client_id, trip_id, bus_id, status, funded_by_credit
		FROM trip_passengers
		WHERE trip_id = ?
		ORDER BY created_at ASC`, tripID)
}

func querySummaries(ctx context.Context, q dbtx, query string, args ...any) ([]ledger.PassengerSummary, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageFailure("failed to query passengers", err)
	}
	defer rows.Close()

	var out []ledger.PassengerSummary
	for rows.Next() {
		var p ledger.PassengerSummary
		var busID sql.NullString
		if err := rows.Scan(&p.ID, &p.ClientID, &p.TripID, &busID, &p.Status, &p.FundedByCredit); err != nil {
			return nil, err
		}
		p.BusID = ledger.BusID(busID.String)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) BusesForTrip(ctx context.Context, tripID ledger.TripID) ([]ledger.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return busesForTrip(ctx, s.db, tripID)
}

func busesForTrip(ctx context.Context, q dbtx, tripID ledger.TripID) ([]ledger.Bus, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, trip_id, name, base_capacity, extra_seats FROM buses WHERE trip_id = ? ORDER BY name", tripID)
	if err != nil {
		return nil, storageFailure("failed to query buses", err)
	}
	defer rows.Close()

	var buses []ledger.Bus
	for rows.Next() {
		var b ledger.Bus
		if err := rows.Scan(&b.ID, &b.TripID, &b.Name, &b.BaseCapacity, &b.ExtraSeats); err != nil {
			return nil, err
		}
		buses = append(buses, b)
	}
	return buses, rows.Err()
}

func (s *Store) OccupancyByBus(ctx context.Context, tripID ledger.TripID) (map[ledger.BusID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return occupancyByBus(ctx, s.db, tripID)
}

func occupancyByBus(ctx context.Context, q dbtx, tripID ledger.TripID) (map[ledger.BusID]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT bus_id, COUNT(*)
		FROM trip_passengers
		WHERE trip_id = ? AND bus_id IS NOT NULL
		GROUP BY bus_id`, tripID)
	if err != nil {
		return nil, storageFailure("failed to query occupancy", err)
	}
	defer rows.Close()

	occupancy := make(map[ledger.BusID]int)
	for rows.Next() {
		var busID ledger.BusID
		var count int
		if err := rows.Scan(&busID, &count); err != nil {
			return nil, err
		}
		occupancy[busID] = count
	}
	return occupancy, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction. Any error from fn
// rolls back every write made through the transactional view.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageFailure("failed to begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every Store method through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) InsertCredit(ctx context.Context, c ledger.Credit) error {
	return insertCredit(ctx, t.tx, c)
}

func (t *txStore) GetCredit(ctx context.Context, id ledger.CreditID) (*ledger.Credit, error) {
	return getCredit(ctx, t.tx, id)
}

func (t *txStore) ListCredits(ctx context.Context, clientID ledger.ClientID) ([]ledger.Credit, error) {
	return listCredits(ctx, t.tx, clientID)
}

func (t *txStore) UpdateCreditBalance(ctx context.Context, id ledger.CreditID, expect, balance decimal.Decimal, status ledger.CreditStatus) error {
	return updateCreditBalance(ctx, t.tx, id, expect, balance, status)
}

func (t *txStore) DeleteCredit(ctx context.Context, id ledger.CreditID) error {
	return deleteCredit(ctx, t.tx, id)
}

func (t *txStore) AppendEntry(ctx context.Context, e ledger.LedgerEntry) error {
	return appendEntry(ctx, t.tx, e)
}

func (t *txStore) EntriesForCredit(ctx context.Context, id ledger.CreditID) ([]ledger.LedgerEntry, error) {
	return entriesForCredit(ctx, t.tx, id)
}

func (t *txStore) InsertLink(ctx context.Context, l ledger.TripLink) error {
	return insertLink(ctx, t.tx, l)
}

func (t *txStore) LinksForCredit(ctx context.Context, id ledger.CreditID) ([]ledger.TripLink, error) {
	return linksForCredit(ctx, t.tx, id)
}

func (t *txStore) GetTrip(ctx context.Context, id ledger.TripID) (*ledger.Trip, error) {
	return getTrip(ctx, t.tx, id)
}

func (t *txStore) GetPassenger(ctx context.Context, id ledger.PassengerID) (*ledger.TripPassenger, error) {
	return getPassenger(ctx, t.tx, id)
}

func (t *txStore) FindPassenger(ctx context.Context, clientID ledger.ClientID, tripID ledger.TripID) (*ledger.TripPassenger, error) {
	return findPassenger(ctx, t.tx, clientID, tripID)
}

func (t *txStore) InsertPassenger(ctx context.Context, p ledger.TripPassenger) error {
	return insertPassenger(ctx, t.tx, p)
}

func (t *txStore) UpdatePassenger(ctx context.Context, p ledger.TripPassenger) error {
	return updatePassenger(ctx, t.tx, p)
}

func (t *txStore) DeletePassenger(ctx context.Context, id ledger.PassengerID) error {
	return deletePassenger(ctx, t.tx, id)
}

func (t *txStore) ReplaceAddons(ctx context.Context, id ledger.PassengerID, addons []ledger.Addon) error {
	return replaceAddons(ctx, t.tx, id, addons)
}

func (t *txStore) PassengersFundedBy(ctx context.Context, id ledger.CreditID) ([]ledger.PassengerSummary, error) {
	return passengersFundedBy(ctx, t.tx, id)
}

func (t *txStore) ListPassengers(ctx context.Context, tripID ledger.TripID) ([]ledger.PassengerSummary, error) {
	return listPassengers(ctx, t.tx, tripID)
}

func (t *txStore) BusesForTrip(ctx context.Context, tripID ledger.TripID) ([]ledger.Bus, error) {
	return busesForTrip(ctx, t.tx, tripID)
}

func (t *txStore) OccupancyByBus(ctx context.Context, tripID ledger.TripID) (map[ledger.BusID]int, error) {
	return occupancyByBus(ctx, t.tx, tripID)
}

// =============================================================================
// HELPERS
// =============================================================================

// storageFailure tags a driver error so callers can classify it as
// retryable with ledger.IsRetryable while errors.Is still reaches the
// underlying cause.
func storageFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ledger.ErrStorageFailure, err)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
