/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates all computation to the billing package.

ENDPOINTS:
  Dictionaries:
    GET/POST /api/apartments     GET/POST /api/services
    GET/POST /api/tariffs        GET/POST /api/meters

  Facts:
    GET /api/readings?period=    PUT /api/readings
    PUT /api/heating
    GET/POST /api/adjustments?period=
    PUT/DELETE /api/overrides

  Reports:
    GET /api/reports?period=                      all-apartment summary
    GET /api/reports/{apartmentID}?period=        one statement
    GET /api/reports/{apartmentID}/history?period=&months=
    GET /api/reports/export?period=               summary as CSV

SESSION MODEL:
  The handler owns one billing.Session guarded by a mutex. Mutating
  endpoints stage changes on the session and commit immediately; if the
  commit fails the session is reloaded from the store so staged rows are
  discarded rather than silently surviving as phantom state. A 409 tells
  the client the store moved underneath us and the request may be retried.

ERROR HANDLING:
  - 400: validation, malformed periods, non-numeric amounts
  - 404: unknown apartment/service/meter
  - 409: revision conflict at the store
  - 502: the record store failed
  - 500: everything else
*/
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/metrics"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the store, the current session, and engine configuration.
type Handler struct {
	mu      sync.Mutex
	store   billing.RecordStore
	session *billing.Session

	mode        billing.InputMode
	derivations billing.DerivationTable
}

// Option tweaks engine configuration applied to each loaded session.
type Option func(*Handler)

// WithInputMode selects cumulative-counter or direct-volume readings.
func WithInputMode(mode billing.InputMode) Option {
	return func(h *Handler) { h.mode = mode }
}

// WithDerivations replaces the built-in derived-service formula table.
func WithDerivations(table billing.DerivationTable) Option {
	return func(h *Handler) { h.derivations = table }
}

// NewHandler creates a handler backed by the given record store.
func NewHandler(store billing.RecordStore, opts ...Option) *Handler {
	h := &Handler{
		store:       store,
		mode:        billing.InputCumulative,
		derivations: billing.DefaultDerivations(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Reload replaces the session with a fresh snapshot from the store.
func (h *Handler) Reload(ctx context.Context) error {
	session, err := billing.Load(ctx, h.store)
	if err != nil {
		return err
	}
	session.Mode = h.mode
	session.Derivations = h.derivations

	for _, name := range billing.SetNames {
		metrics.QuarantinedRows.WithLabelValues(name).Set(float64(session.Quarantined[name]))
	}
	for name, n := range session.Quarantined {
		log.Printf("warning: %d quarantined row(s) in %s", n, name)
	}

	h.mu.Lock()
	h.session = session
	h.mu.Unlock()
	return nil
}

// commit persists staged changes; on failure the session is reloaded so a
// retry does not double-apply staged rows.
func (h *Handler) commit(ctx context.Context) error {
	if err := h.session.Commit(ctx); err != nil {
		if session, rerr := billing.Load(ctx, h.store); rerr == nil {
			session.Mode = h.mode
			session.Derivations = h.derivations
			h.session = session
		}
		return err
	}
	return nil
}

// =============================================================================
// DICTIONARIES
// =============================================================================

func (h *Handler) ListApartments(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ApartmentDTO, 0, len(h.session.Apartments))
	for _, a := range h.session.Apartments {
		out = append(out, apartmentDTO(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateApartment(w http.ResponseWriter, r *http.Request) {
	var req CreateApartmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, badRequest("name is required"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	apt := h.session.AddApartment(req.Name, req.Type, req.Notes)
	if err := h.commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, apartmentDTO(apt))
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ServiceDTO, 0, len(h.session.Services))
	for _, s := range h.session.Services {
		out = append(out, serviceDTO(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Code == "" || req.Name == "" {
		writeError(w, badRequest("code and name are required"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	svc, err := h.session.AddService(req.Code, req.Name, req.Unit, billing.CalcKind(req.Kind))
	if err != nil {
		writeError(w, badRequest(err.Error()))
		return
	}
	if err := h.commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, serviceDTO(svc))
}

func (h *Handler) ListTariffs(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TariffDTO, 0, len(h.session.Tariffs))
	for _, t := range h.session.Tariffs {
		out = append(out, tariffDTO(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateTariff(w http.ResponseWriter, r *http.Request) {
	var req CreateTariffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	start, err := billing.ParsePeriod(req.Start)
	if err != nil {
		writeError(w, err)
		return
	}
	var end billing.Period
	if req.End != "" {
		if end, err = billing.ParsePeriod(req.End); err != nil {
			writeError(w, err)
			return
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	t, err := h.session.AddTariff(req.ServiceID, price, start, end, req.ApartmentType)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tariffDTO(t))
}

func (h *Handler) ListMeters(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]MeterDTO, 0, len(h.session.Meters))
	for _, m := range h.session.Meters {
		out = append(out, meterDTO(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateMeter(w http.ResponseWriter, r *http.Request) {
	var req CreateMeterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	m, err := h.session.AddMeter(req.ApartmentID, req.ServiceID, req.Serial, req.Shared)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meterDTO(m))
}

// =============================================================================
// READINGS
// =============================================================================

// ListReadingEntries builds the readings-entry view for a period: every
// meter joined with its apartment and service, the latest prior counter
// state, and the current value when already entered.
func (h *Handler) ListReadingEntries(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.session
	out := make([]ReadingEntryDTO, 0, len(s.Meters))
	for _, m := range s.Meters {
		entry := ReadingEntryDTO{MeterID: m.ID, Serial: m.Serial}
		if apt, err := s.ApartmentByID(m.ApartmentID); err == nil {
			entry.ApartmentName = apt.Name
		}
		if svc, err := s.ServiceByID(m.ServiceID); err == nil {
			entry.ServiceName = svc.Name
		}
		if prev, ok := billing.LastReadingBefore(s.Readings, m.ID, period); ok {
			entry.PrevPeriod = prev.Period.String()
			entry.PrevValue = prev.Value.String()
		}
		if cur, ok := billing.FindReading(s.Readings, m.ID, period); ok {
			entry.Value = cur.Value.String()
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) UpsertReading(w http.ResponseWriter, r *http.Request) {
	var req UpsertReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, err)
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	reading, err := h.session.PutReading(req.MeterID, period, value)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       reading.ID,
		"meter_id": reading.MeterID,
		"period":   reading.Period.String(),
		"value":    reading.Value.String(),
	})
}

// =============================================================================
// HEATING / ADJUSTMENTS / OVERRIDES
// =============================================================================

func (h *Handler) UpsertHeating(w http.ResponseWriter, r *http.Request) {
	var req HeatingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	flag, err := h.session.PutHeating(req.ApartmentID, period, req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           flag.ID,
		"apartment_id": flag.ApartmentID,
		"period":       flag.Period.String(),
		"enabled":      flag.Enabled,
	})
}

func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	out := []AdjustmentDTO{}
	for _, a := range h.session.Adjustments {
		if a.Period == period {
			out = append(out, adjustmentDTO(a))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req CreateAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	adj, err := h.session.AddAdjustment(req.ApartmentID, period, amount, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, adjustmentDTO(adj))
}

func (h *Handler) UpsertOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	ov, err := h.session.PutOverride(req.ApartmentID, req.ServiceID, period, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           ov.ID,
		"apartment_id": ov.ApartmentID,
		"service_id":   ov.ServiceID,
		"period":       ov.Period.String(),
		"amount":       ov.Amount.StringFixed(2),
	})
}

func (h *Handler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	apartmentID, err1 := queryInt(r, "apartment_id")
	serviceID, err2 := queryInt(r, "service_id")
	period, err3 := queryPeriod(r)
	if err1 != nil || err2 != nil || err3 != nil {
		writeError(w, badRequest("apartment_id, service_id and period are required"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.session.RemoveOverride(apartmentID, serviceID, period) {
		writeError(w, fmt.Errorf("override: %w", billing.ErrNotFound))
		return
	}
	if err := h.commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	start := time.Now()
	bills, err := billing.ComputeSummary(h.session, period)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.BillComputeSeconds.Observe(time.Since(start).Seconds())

	out := SummaryDTO{
		Period:           period.String(),
		Bills:            make([]StatementDTO, 0, len(bills)),
		DanglingReadings: billing.DanglingReadings(h.session, period),
	}
	for _, st := range bills {
		out.Bills = append(out.Bills, statementDTO(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	apartmentID, err := chiInt(r, "apartmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	start := time.Now()
	st, err := billing.ComputeBill(h.session, apartmentID, period)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.BillComputeSeconds.Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, statementDTO(st))
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	apartmentID, err := chiInt(r, "apartmentID")
	if err != nil {
		writeError(w, err)
		return
	}
	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}
	months := 12
	if raw := r.URL.Query().Get("months"); raw != "" {
		months, err = strconv.Atoi(raw)
		if err != nil || months < 1 || months > 36 {
			writeError(w, badRequest("months must be 1..36"))
			return
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	history, err := billing.ComputeHistory(h.session, apartmentID, period, months)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]StatementDTO, 0, len(history))
	for _, st := range history {
		out = append(out, statementDTO(st))
	}
	writeJSON(w, http.StatusOK, out)
}

// ExportSummary streams the period summary as CSV, one line per apartment.
func (h *Handler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	bills, err := billing.ComputeSummary(h.session, period)
	h.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=bills-%s.csv", period))
	cw := csv.NewWriter(w)
	cw.Write([]string{"apartment_id", "apartment_name", "services_total", "adjustments", "total"})
	for _, st := range bills {
		cw.Write([]string{
			strconv.Itoa(st.ApartmentID), st.ApartmentName,
			st.ServicesTotal.StringFixed(2), st.Adjustment.StringFixed(2), st.Total.StringFixed(2),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("export summary: %v", err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

type clientError struct{ msg string }

func (e *clientError) Error() string { return e.msg }

func badRequest(msg string) error { return &clientError{msg: msg} }

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", billing.ErrNonNumericInput, raw)
	}
	return d, nil
}

func queryPeriod(r *http.Request) (billing.Period, error) {
	return billing.ParsePeriod(r.URL.Query().Get("period"))
}

func queryInt(r *http.Request, key string) (int, error) {
	return strconv.Atoi(r.URL.Query().Get(key))
}

func chiInt(r *http.Request, key string) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, key))
	if err != nil {
		return 0, badRequest(key + " must be an integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var ce *clientError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ce), billing.IsClientError(err):
		status = http.StatusBadRequest
	case billing.IsNotFound(err):
		status = http.StatusNotFound
	case billing.IsRetryable(err):
		status = http.StatusConflict
	case errors.Is(err, billing.ErrPersistenceFailure):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
