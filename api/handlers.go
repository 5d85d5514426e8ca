/*
handlers.go - HTTP API handlers for the credit ledger engine

PURPOSE:
  Exposes the credit ledger and trip-linking engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the booking
  orchestrators.

ENDPOINTS:
  Credits:
    GET    /api/credits                    List credits (optional ?client_id=)
    POST   /api/credits                    Create credit
    GET    /api/credits/{id}               Get credit
    GET    /api/credits/{id}/history       Ledger entries + trip links
    GET    /api/credits/{id}/reconcile     Replay history vs stored balance
    POST   /api/credits/{id}/adjust        Manual balance adjustment
    POST   /api/credits/{id}/link          Apply credit to a trip seat
    DELETE /api/credits/{id}               Delete (guarded)

  Passengers:
    GET    /api/passengers/{id}/payment-status  Resolved status + breakdown
    POST   /api/passengers/{id}/unlink          Remove seat, restore credit

  Trips:
    GET    /api/trips/{id}/passengers      Roster listing
    GET    /api/trips/{id}/buses/vacancies Buses with remaining seats

  Events:
    GET    /api/events/latest              Most recent ledger event

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call orchestrator (booking package)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, missing bus assignment
  - 404: Credit/trip/passenger not found
  - 409: Insufficient balance, credit in use, concurrent modification
  - 500: Storage and reconciliation errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rotaviagens/backoffice/booking"
	"github.com/rotaviagens/backoffice/ledger"
	"github.com/rotaviagens/backoffice/observability"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Orchestrator *booking.Orchestrator
	Events       *ledger.EventBus
	Metrics      *observability.Metrics
}

// NewHandler creates a new handler around the booking orchestrator.
func NewHandler(orch *booking.Orchestrator, events *ledger.EventBus, metrics *observability.Metrics) *Handler {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Handler{
		Orchestrator: orch,
		Events:       events,
		Metrics:      metrics,
	}
}

// =============================================================================
// CREDIT HANDLERS
// =============================================================================

func (h *Handler) ListCredits(w http.ResponseWriter, r *http.Request) {
	clientID := ledger.ClientID(r.URL.Query().Get("client_id"))
	credits, err := h.Orchestrator.ListCredits(r.Context(), clientID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]CreditDTO, 0, len(credits))
	for _, c := range credits {
		dtos = append(dtos, toCreditDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCredit(w http.ResponseWriter, r *http.Request) {
	var req CreateCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required", nil)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	start := time.Now()
	credit, err := h.Orchestrator.CreateCredit(r.Context(), booking.CreateCreditRequest{
		ClientID:      ledger.ClientID(req.ClientID),
		Amount:        amount,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	h.Metrics.ObserveOperation("create_credit", outcome(err), time.Since(start))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCreditDTO(*credit))
}

func (h *Handler) GetCredit(w http.ResponseWriter, r *http.Request) {
	id := ledger.CreditID(chi.URLParam(r, "id"))
	credit, err := h.Orchestrator.GetCredit(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(*credit))
}

func (h *Handler) GetCreditHistory(w http.ResponseWriter, r *http.Request) {
	id := ledger.CreditID(chi.URLParam(r, "id"))
	credit, entries, links, err := h.Orchestrator.CreditHistory(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := CreditHistoryDTO{
		Credit:  toCreditDTO(*credit),
		Entries: make([]LedgerEntryDTO, 0, len(entries)),
		Links:   make([]TripLinkDTO, 0, len(links)),
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, toEntryDTO(e))
	}
	for _, l := range links {
		out.Links = append(out.Links, toLinkDTO(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ReconcileCredit(w http.ResponseWriter, r *http.Request) {
	id := ledger.CreditID(chi.URLParam(r, "id"))
	summary, err := h.Orchestrator.ReconcileCredit(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ReconcileDTO{
		CreditID:      string(summary.CreditID),
		Balance:       summary.Balance.StringFixed(2),
		TotalGranted:  summary.TotalGranted.StringFixed(2),
		TotalUtilized: summary.TotalUtilized.StringFixed(2),
		TotalRefunded: summary.TotalRefunded.StringFixed(2),
		TotalAdjusted: summary.TotalAdjusted.StringFixed(2),
		Entries:       summary.Entries,
	})
}

func (h *Handler) AdjustCredit(w http.ResponseWriter, r *http.Request) {
	id := ledger.CreditID(chi.URLParam(r, "id"))

	var req AdjustCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Adjustments are signed; allow negatives but not garbage.
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "Reason is required", nil)
		return
	}

	start := time.Now()
	credit, err := h.Orchestrator.AdjustCredit(r.Context(), id, amount, req.Reason)
	h.Metrics.ObserveOperation("adjust_credit", outcome(err), time.Since(start))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCreditDTO(*credit))
}

func (h *Handler) RefundCredit(w http.ResponseWriter, r *http.Request) {
	id := ledger.CreditID(chi.URLParam(r, "id"))

	var req RefundCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "Reason is required", nil)
		return
	}

	start := time.Now()
	credit, err := h.Orchestrator.RefundCredit(r.Context(), id, req.Reason)
	h.Metrics.ObserveOperation("refund_credit", outcome(err), time.Since(start))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCreditDTO(*credit))
}

func (h *Handler) DeleteCredit(w http.ResponseWriter, r *http.Request) {
	id := ledger.CreditID(chi.URLParam(r, "id"))

	start := time.Now()
	err := h.Orchestrator.DeleteCredit(r.Context(), id)
	h.Metrics.ObserveOperation("delete_credit", outcome(err), time.Since(start))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": string(id)})
}

// =============================================================================
// LINK / UNLINK HANDLERS
// =============================================================================

func (h *Handler) LinkCredit(w http.ResponseWriter, r *http.Request) {
	id := ledger.CreditID(chi.URLParam(r, "id"))

	var req LinkCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	role := booking.RoleTitular
	if req.Role == string(booking.RoleOther) {
		role = booking.RoleOther
	}

	start := time.Now()
	detail, err := h.Orchestrator.LinkCredit(r.Context(), booking.LinkRequest{
		CreditID:   id,
		TripID:     ledger.TripID(req.TripID),
		Traveler:   ledger.ClientID(req.Traveler),
		Role:       role,
		Amount:     amount,
		BusID:      ledger.BusID(req.BusID),
		AddonNames: req.AddonNames,
		Notes:      req.Notes,
	})
	h.Metrics.ObserveOperation("link_credit", outcome(err), time.Since(start))
	if err != nil {
		if errors.Is(err, ledger.ErrConcurrentModification) {
			h.Metrics.IncrConflict()
		}
		writeDomainError(w, err)
		return
	}

	amt, _ := detail.Passenger.CreditAmount.Float64()
	h.Metrics.AddUtilized(amt)
	writeJSON(w, http.StatusCreated, toPassengerDTO(*detail))
}

func (h *Handler) UnlinkPassenger(w http.ResponseWriter, r *http.Request) {
	id := ledger.PassengerID(chi.URLParam(r, "id"))

	start := time.Now()
	result, err := h.Orchestrator.UnlinkPassenger(r.Context(), id)
	h.Metrics.ObserveOperation("unlink_passenger", outcome(err), time.Since(start))
	if err != nil {
		if errors.Is(err, ledger.ErrConcurrentModification) {
			h.Metrics.IncrConflict()
		}
		writeDomainError(w, err)
		return
	}

	amt, _ := result.RestoredAmount.Float64()
	h.Metrics.AddRestored(amt)
	writeJSON(w, http.StatusOK, UnlinkResultDTO{
		TripID:         string(result.TripID),
		CreditID:       string(result.CreditID),
		RestoredAmount: result.RestoredAmount.StringFixed(2),
		Traveler:       string(result.Traveler),
	})
}

// =============================================================================
// PASSENGER / TRIP HANDLERS
// =============================================================================

func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := ledger.PassengerID(chi.URLParam(r, "id"))
	detail, err := h.Orchestrator.PassengerPaymentStatus(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPassengerDTO(*detail))
}

func (h *Handler) ListTripPassengers(w http.ResponseWriter, r *http.Request) {
	id := ledger.TripID(chi.URLParam(r, "id"))
	roster, err := h.Orchestrator.TripRoster(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PassengerSummaryDTO, 0, len(roster))
	for _, p := range roster {
		dtos = append(dtos, toSummaryDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListBusVacancies(w http.ResponseWriter, r *http.Request) {
	id := ledger.TripID(chi.URLParam(r, "id"))
	vacancies, err := h.Orchestrator.ListBusesWithVacancy(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]BusVacancyDTO, 0, len(vacancies))
	for _, v := range vacancies {
		dtos = append(dtos, toVacancyDTO(v))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EVENT / HEALTH HANDLERS
// =============================================================================

func (h *Handler) LatestEvent(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	e, ok := h.Events.Last()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, EventDTO{
		TripID:   string(e.TripID),
		CreditID: string(e.CreditID),
		Action:   string(e.Action),
		At:       e.At,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrCreditInUse),
		errors.Is(err, ledger.ErrCreditRefunded),
		errors.Is(err, ledger.ErrCreditMismatch),
		errors.Is(err, ledger.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "Conflict", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.Sign() <= 0 {
		return decimal.Zero, errors.New("amount must be positive")
	}
	return d, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
