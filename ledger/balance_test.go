package ledger_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rotaviagens/backoffice/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func testCredit(original, balance float64) ledger.Credit {
	c := ledger.NewCredit("client-1", money(original), "pix", "")
	c.AvailableBalance = money(balance)
	c.Status = ledger.DeriveStatus(c.AvailableBalance, c.OriginalAmount)
	return c
}

// =============================================================================
// UTILIZATION TESTS
// =============================================================================

func TestApplyUtilization_PartialConsumption(t *testing.T) {
	// GIVEN: A credit of 1000 fully available
	// WHEN: 400 is utilized
	// THEN: Balance 600, status partial

	credit := testCredit(1000, 1000)
	balance, status, err := ledger.ApplyUtilization(credit, money(400))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !balance.Equal(money(600)) {
		t.Errorf("expected balance 600, got %s", balance)
	}
	if status != ledger.CreditPartial {
		t.Errorf("expected partial, got %s", status)
	}
}

func TestApplyUtilization_ExactBalance(t *testing.T) {
	// GIVEN: A credit with 250 remaining
	// WHEN: Exactly 250 is utilized
	// THEN: Balance zero, status used, no error

	credit := testCredit(1000, 250)
	balance, status, err := ledger.ApplyUtilization(credit, money(250))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("expected zero balance, got %s", balance)
	}
	if status != ledger.CreditUsed {
		t.Errorf("expected used, got %s", status)
	}
}

func TestApplyUtilization_Insufficient(t *testing.T) {
	// GIVEN: A credit with 100 remaining
	// WHEN: 150 is requested
	// THEN: InsufficientBalanceError with shortfall 50; balance untouched

	credit := testCredit(1000, 100)
	balance, _, err := ledger.ApplyUtilization(credit, money(150))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	var detail *ledger.InsufficientBalanceError
	if !errors.As(err, &detail) {
		t.Fatal("expected structured InsufficientBalanceError")
	}
	if !detail.Shortfall.Equal(money(50)) {
		t.Errorf("expected shortfall 50, got %s", detail.Shortfall)
	}
	if !balance.Equal(money(100)) {
		t.Errorf("balance must be unchanged, got %s", balance)
	}
}

func TestApplyUtilization_RefundedCredit(t *testing.T) {
	// GIVEN: A terminally refunded credit
	// WHEN: Any utilization is attempted
	// THEN: ErrCreditRefunded

	credit := testCredit(1000, 0)
	credit.Status = ledger.CreditRefunded

	_, _, err := ledger.ApplyUtilization(credit, money(1))
	if !errors.Is(err, ledger.ErrCreditRefunded) {
		t.Fatalf("expected ErrCreditRefunded, got %v", err)
	}
}

// =============================================================================
// RESTORATION TESTS
// =============================================================================

func TestApplyRestoration_ReturnsToAvailable(t *testing.T) {
	// GIVEN: A credit of 1000 with 600 remaining
	// WHEN: The consumed 400 is restored
	// THEN: Balance back at 1000, status available

	credit := testCredit(1000, 600)
	balance, status, err := ledger.ApplyRestoration(credit, money(400))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !balance.Equal(money(1000)) {
		t.Errorf("expected 1000, got %s", balance)
	}
	if status != ledger.CreditAvailable {
		t.Errorf("expected available, got %s", status)
	}
}

func TestApplyRestoration_OverRestorationFailsLoudly(t *testing.T) {
	// GIVEN: A credit of 1000 with 900 remaining
	// WHEN: 200 is restored (would exceed the original)
	// THEN: OverRestorationError, never a clamp

	credit := testCredit(1000, 900)
	balance, _, err := ledger.ApplyRestoration(credit, money(200))
	if !errors.Is(err, ledger.ErrOverRestoration) {
		t.Fatalf("expected ErrOverRestoration, got %v", err)
	}
	if !balance.Equal(money(900)) {
		t.Errorf("balance must be unchanged on failure, got %s", balance)
	}
}

func TestDeriveStatus(t *testing.T) {
	original := money(500)
	cases := []struct {
		balance float64
		want    ledger.CreditStatus
	}{
		{500, ledger.CreditAvailable},
		{250, ledger.CreditPartial},
		{0.01, ledger.CreditPartial},
		{0, ledger.CreditUsed},
	}
	for _, c := range cases {
		if got := ledger.DeriveStatus(money(c.balance), original); got != c.want {
			t.Errorf("DeriveStatus(%v) = %s, want %s", c.balance, got, c.want)
		}
	}
}

// =============================================================================
// ENTRY CONSTRUCTOR TESTS
// =============================================================================

func TestEntryConstructors_BeforeAfterArithmetic(t *testing.T) {
	credit := testCredit(1000, 700)

	util := ledger.NewUtilizationEntry(credit, money(300), "trip-1", "linked")
	if !util.BalanceBefore.Equal(money(700)) || !util.BalanceAfter.Equal(money(400)) {
		t.Errorf("utilization arithmetic wrong: %s -> %s", util.BalanceBefore, util.BalanceAfter)
	}

	refund := ledger.NewRefundEntry(credit, money(300), "trip-1", "withdrew")
	if !refund.BalanceAfter.Equal(money(1000)) {
		t.Errorf("refund arithmetic wrong: after %s", refund.BalanceAfter)
	}

	adj := ledger.NewAdjustmentEntry(credit, money(-100), "correction")
	if !adj.BalanceAfter.Equal(money(600)) {
		t.Errorf("signed adjustment wrong: after %s", adj.BalanceAfter)
	}
}

// =============================================================================
// REPLAY / RECONCILE TESTS
// =============================================================================

func TestReplay_ReconstructsBalance(t *testing.T) {
	// GIVEN: A history of creation 1000, utilization 400, refund 400,
	//        utilization 250
	// WHEN: The history is replayed
	// THEN: Balance 750 with per-kind totals

	credit := testCredit(1000, 1000)
	entries := []ledger.LedgerEntry{ledger.NewCreationEntry(credit, "created")}

	e1 := ledger.NewUtilizationEntry(credit, money(400), "trip-1", "")
	entries = append(entries, e1)
	credit.AvailableBalance = e1.BalanceAfter

	e2 := ledger.NewRefundEntry(credit, money(400), "trip-1", "")
	entries = append(entries, e2)
	credit.AvailableBalance = e2.BalanceAfter

	e3 := ledger.NewUtilizationEntry(credit, money(250), "trip-2", "")
	entries = append(entries, e3)

	s := ledger.Replay(credit.ID, entries)
	if !s.Balance.Equal(money(750)) {
		t.Errorf("expected replayed balance 750, got %s", s.Balance)
	}
	if !s.TotalGranted.Equal(money(1000)) {
		t.Errorf("expected granted 1000, got %s", s.TotalGranted)
	}
	if !s.TotalUtilized.Equal(money(650)) {
		t.Errorf("expected utilized 650, got %s", s.TotalUtilized)
	}
	if !s.TotalRefunded.Equal(money(400)) {
		t.Errorf("expected refunded 400, got %s", s.TotalRefunded)
	}
	if s.Entries != 4 {
		t.Errorf("expected 4 entries, got %d", s.Entries)
	}
}

func TestReconcileEntries_DetectsBrokenChain(t *testing.T) {
	// GIVEN: A history whose second entry claims the wrong BalanceBefore
	// WHEN: The chain is reconciled
	// THEN: A ReconciliationError pinpointing that entry

	credit := testCredit(1000, 1000)
	good := ledger.NewCreationEntry(credit, "created")

	bad := ledger.NewUtilizationEntry(credit, money(100), "trip-1", "")
	bad.BalanceBefore = money(900) // chain break: should be 1000
	bad.BalanceAfter = money(800)

	err := ledger.ReconcileEntries(credit.ID, []ledger.LedgerEntry{good, bad})
	if !errors.Is(err, ledger.ErrLedgerCorrupted) {
		t.Fatalf("expected ErrLedgerCorrupted, got %v", err)
	}

	var detail *ledger.ReconciliationError
	if !errors.As(err, &detail) {
		t.Fatal("expected structured ReconciliationError")
	}
	if detail.EntryID != bad.ID {
		t.Errorf("expected break at %s, got %s", bad.ID, detail.EntryID)
	}
}

func TestReconcileEntries_CleanChain(t *testing.T) {
	credit := testCredit(1000, 1000)
	entries := []ledger.LedgerEntry{ledger.NewCreationEntry(credit, "created")}
	e := ledger.NewUtilizationEntry(credit, money(100), "trip-1", "")
	entries = append(entries, e)

	if err := ledger.ReconcileEntries(credit.ID, entries); err != nil {
		t.Fatalf("clean chain must reconcile, got %v", err)
	}
}
