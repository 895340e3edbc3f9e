package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	r := New()

	r.ObserveRequest("/v1/shopping/flight-dates", 200, 120*time.Millisecond)
	r.ObserveRequest("/v1/shopping/flight-dates", 429, 10*time.Millisecond)
	r.ObserveRequest("/v1/shopping/flight-dates", 0, time.Millisecond)
	r.ObserveTokenRefresh(nil)
	r.ObserveTokenRefresh(errors.New("boom"))
	r.ObserveOutcome("deals", "fallback", "")
	r.ObserveOutcome("deals", "fallback", "unavailable")
	r.AlertFired()
	r.ObserveSweep(time.Second)

	require.Equal(t, 1.0, testutil.ToFloat64(r.upstreamRequests.WithLabelValues("/v1/shopping/flight-dates", "2xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.upstreamRequests.WithLabelValues("/v1/shopping/flight-dates", "4xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.upstreamRequests.WithLabelValues("/v1/shopping/flight-dates", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.tokenRefreshes.WithLabelValues("failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("deals", "fallback", "none")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.alertsFired))
}

func TestRecorderHandler(t *testing.T) {
	r := New()
	r.AlertFired()
	r.ObserveHTTP("get", "/v1/deals", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "dealwatch_alerts_fired_total 1"))
	require.Contains(t, body, `dealwatch_http_requests_total{method="GET",route="/v1/deals",status="200"} 1`)
}
