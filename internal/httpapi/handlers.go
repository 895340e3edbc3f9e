package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flight-deal-alerts/internal/deals"
	"flight-deal-alerts/internal/fallback"
	"flight-deal-alerts/internal/fetcher"
	"flight-deal-alerts/internal/history"
	"flight-deal-alerts/internal/service"
	"flight-deal-alerts/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

type dealsResponse struct {
	Provenance  fallback.Provenance `json:"provenance"`
	Reason      string              `json:"reason,omitempty"`
	DemoVersion string              `json:"demoVersion,omitempty"`
	Board       deals.Board         `json:"board"`
	Deals       []dealView          `json:"deals"`
}

type dealView struct {
	deals.FlightDeal
	BookingURL string `json:"bookingUrl"`
}

type historyResponse struct {
	Provenance     fallback.Provenance     `json:"provenance"`
	Reason         string                  `json:"reason,omitempty"`
	DemoVersion    string                  `json:"demoVersion,omitempty"`
	Points         []history.Point         `json:"points"`
	Stats          history.Stats           `json:"stats"`
	Recommendation history.LeadTime        `json:"recommendation"`
	LeadTimes      []history.LeadTimeQuote `json:"leadTimes,omitempty"`
	Regret         *decimal.Decimal        `json:"regret,omitempty"`
}

type createAlertRequest struct {
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Threshold   decimal.Decimal `json:"threshold"`
	Currency    string          `json:"currency"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOrigins(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, deals.Origins)
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.DealsQuery{Origin: q.Get("origin")}

	var err error
	if query.MaxPrice, err = optionalDecimal(q.Get("maxPrice")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if raw := q.Get("departure"); raw != "" {
		dep, ok := fetcher.ParseDate(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("departure must be yyyy-mm-dd"))
			return
		}
		query.Departure = &dep
	}

	outcome, err := s.backend.Deals(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	views := make([]dealView, 0, len(outcome.Data))
	for _, d := range outcome.Data {
		views = append(views, dealView{FlightDeal: d, BookingURL: deals.BookingURL(d.Origin, d.Destination, d.DepartureDate, d.ReturnDate)})
	}
	writeJSON(w, http.StatusOK, dealsResponse{
		Provenance:  outcome.Provenance,
		Reason:      outcome.Reason,
		DemoVersion: demoVersion(outcome.Provenance),
		Board:       deals.NewBoard(outcome.Data),
		Deals:       views,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.HistoryQuery{Origin: q.Get("origin"), Destination: q.Get("destination")}

	maxPrice, err := optionalDecimal(q.Get("maxPrice"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if maxPrice.IsPositive() {
		query.MaxPrice = &maxPrice
	}
	if query.ReferencePrice, err = optionalDecimal(q.Get("referencePrice")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var booked *decimal.Decimal
	if raw := q.Get("bookedPrice"); raw != "" {
		price, err := history.ParseBookedPrice(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		booked = &price
	}

	outcome, err := s.backend.History(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := historyResponse{
		Provenance:     outcome.Provenance,
		Reason:         outcome.Reason,
		DemoVersion:    demoVersion(outcome.Provenance),
		Points:         outcome.Data.Points,
		Stats:          outcome.Data.Stats,
		Recommendation: outcome.Data.Recommendation,
		LeadTimes:      outcome.Data.LeadTimes,
	}
	if booked != nil {
		if regret, ok := history.Regret(*booked, outcome.Data.Points); ok {
			resp.Regret = &regret
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	alerts, err := s.backend.ListAlerts(r.Context(), activeOnly)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	alert, err := s.backend.CreateAlert(r.Context(), service.AlertInput{
		Origin:      req.Origin,
		Destination: req.Destination,
		Threshold:   req.Threshold,
		Currency:    req.Currency,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleDeactivateAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid alert id"))
		return
	}
	if err := s.backend.DeactivateAlert(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, storage.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, storage.ErrDuplicateAlert):
		writeError(w, http.StatusConflict, err)
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func optionalDecimal(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", raw)
	}
	return value, nil
}

func demoVersion(p fallback.Provenance) string {
	if p == fallback.Fallback {
		return fallback.DemoVersion
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
