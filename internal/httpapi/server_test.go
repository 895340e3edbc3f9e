package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"flight-deal-alerts/internal/fallback"
	"flight-deal-alerts/internal/fetcher"
	"flight-deal-alerts/internal/metrics"
	"flight-deal-alerts/internal/service"
	"flight-deal-alerts/internal/storage"
)

type stubSearcher struct {
	destinations []fetcher.RawDestinationResult
	dates        []fetcher.RawDateResult
	err          error
}

func (s stubSearcher) SearchDestinations(context.Context, fetcher.DestinationQuery) ([]fetcher.RawDestinationResult, error) {
	return s.destinations, s.err
}

func (s stubSearcher) SearchDates(context.Context, fetcher.DateQuery) ([]fetcher.RawDateResult, error) {
	return s.dates, s.err
}

func newTestServer(t *testing.T, searcher stubSearcher) (*httptest.Server, *metrics.Recorder) {
	t.Helper()
	svc := service.New(service.Options{
		DefaultOrigin:   "ICN",
		DefaultMaxPrice: decimal.NewFromInt(500000),
		AlertsEnabled:   true,
		Now:             func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) },
	}, service.Dependencies{
		Destinations: searcher,
		Dates:        searcher,
		Repository:   storage.NewMemoryStore(),
	}, zerolog.Nop())

	recorder := metrics.New()
	srv := httptest.NewServer(New(Options{}, svc, recorder, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, recorder
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{})
	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &body))
	require.Equal(t, "ok", body["status"])
}

func TestDealsEndpointFallback(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{})

	var body struct {
		Provenance  string `json:"provenance"`
		Reason      string `json:"reason"`
		DemoVersion string `json:"demoVersion"`
		Board       struct {
			ThisWeek []map[string]any `json:"thisWeek"`
		} `json:"board"`
		Deals []map[string]any `json:"deals"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/deals?origin=icn", &body))
	require.Equal(t, "fallback", body.Provenance)
	require.Equal(t, fallback.ReasonEmpty, body.Reason)
	require.Equal(t, fallback.DemoVersion, body.DemoVersion)
	require.Len(t, body.Deals, 4)
	require.Len(t, body.Board.ThisWeek, 4)
	require.Contains(t, body.Deals[0]["bookingUrl"], "google.com/travel/flights")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), `dealwatch_outcomes_total{cause="empty",operation="deals",provenance="fallback"} 1`)
}

func TestDealsEndpointRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{})
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/deals?maxPrice=abc", nil))
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/deals?departure=tomorrow", nil))
	require.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/deals?origin=SEOUL", nil))
}

func TestHistoryEndpointLiveWithRegret(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{dates: []fetcher.RawDateResult{
		{DepartureDate: "2026-11-15", Price: fetcher.Price{Total: "400000"}},
		{DepartureDate: "2026-11-22", Price: fetcher.Price{Total: "420000"}},
	}})

	var body struct {
		Provenance     string          `json:"provenance"`
		Points         []any           `json:"points"`
		Recommendation string          `json:"recommendation"`
		Regret         decimal.Decimal `json:"regret"`
		LeadTimes      []struct {
			Label string          `json:"label"`
			Price decimal.Decimal `json:"price"`
		} `json:"leadTimes"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/history?destination=NRT&bookedPrice=450,000", &body))
	require.Equal(t, "live", body.Provenance)
	require.Len(t, body.Points, 2)
	require.Equal(t, "1–2 weeks before departure", body.Recommendation)
	require.True(t, body.Regret.Equal(decimal.NewFromInt(30000)))
	require.Len(t, body.LeadTimes, 3)
	require.Equal(t, "D-45", body.LeadTimes[1].Label)
	require.True(t, body.LeadTimes[1].Price.Equal(decimal.NewFromInt(348500)))
}

func TestAlertsCRUD(t *testing.T) {
	srv, _ := newTestServer(t, stubSearcher{})

	create := func(payload string) *http.Response {
		resp, err := http.Post(srv.URL+"/v1/alerts", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		return resp
	}

	resp := create(`{"destination":"NRT","threshold":"600000","currency":"KRW"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var alert storage.PriceAlert
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&alert))
	resp.Body.Close()
	require.Equal(t, "ICN", alert.Origin)

	resp = create(`{"destination":"NRT","threshold":"500000"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = create(`{"destination":"NRT","threshold":"500000","bogus":1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	var alerts []storage.PriceAlert
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/alerts", &alerts))
	require.Len(t, alerts, 1)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/alerts/"+alert.ID.String(), nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/v1/alerts/not-a-uuid", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/alerts", &alerts))
	require.Empty(t, alerts)
}
