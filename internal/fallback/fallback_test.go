package fallback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"flight-deal-alerts/internal/deals"
	"flight-deal-alerts/internal/fetcher"
	"flight-deal-alerts/internal/history"
)

func isEmptyDeals(d []deals.FlightDeal) bool { return len(d) == 0 }

func TestDecideLive(t *testing.T) {
	live := []deals.FlightDeal{{ID: "ICN-NRT-2026-11-02-"}}
	out := Decide(live, nil, isEmptyDeals, DemoDeals)

	require.True(t, out.IsLive())
	require.Equal(t, live, out.Data)
	require.Empty(t, out.Reason)
	require.NoError(t, out.Err)
}

func TestDecideEmptyFallsBack(t *testing.T) {
	out := Decide([]deals.FlightDeal{}, nil, isEmptyDeals, DemoDeals)

	require.Equal(t, Fallback, out.Provenance)
	require.Equal(t, ReasonEmpty, out.Reason)
	require.Equal(t, CauseEmpty, out.Cause)
	require.Len(t, out.Data, 4)
}

func TestDecideErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		cause  Cause
		reason string
	}{
		{"rate limited", &fetcher.HTTPError{Status: http.StatusTooManyRequests}, CauseUnavailable, ReasonUnavailable},
		{"server error", &fetcher.HTTPError{Status: http.StatusBadGateway}, CauseUnavailable, ReasonUnavailable},
		{"bad request", &fetcher.HTTPError{Status: http.StatusBadRequest}, CauseRejected, ReasonRejected},
		{"decode", &fetcher.DecodeError{Err: errors.New("eof")}, CauseDecode, ReasonUnreadable},
		{"auth", fmt.Errorf("search: %w", &fetcher.AuthError{Status: 401}), CauseAuth, ReasonAuth},
		{"deadline", context.DeadlineExceeded, CauseUnavailable, ReasonUnavailable},
		{"transport", errors.New("dial tcp: connection refused"), CauseUnavailable, ReasonUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Decide[[]deals.FlightDeal](nil, tc.err, isEmptyDeals, DemoDeals)
			require.Equal(t, Fallback, out.Provenance)
			require.Equal(t, tc.cause, out.Cause)
			require.Equal(t, tc.reason, out.Reason)
			require.ErrorIs(t, out.Err, tc.err)
			require.NotEmpty(t, out.Data)
		})
	}
}

func TestDemoDealsDeterministic(t *testing.T) {
	a, b := DemoDeals(), DemoDeals()
	require.Equal(t, a, b)
	require.Equal(t, []string{"NRT", "HKG", "BKK", "KIX"}, []string{a[0].Destination, a[1].Destination, a[2].Destination, a[3].Destination})
	require.Equal(t, "GMP", a[3].Origin)
	require.True(t, a[0].Price.Equal(decimal.NewFromInt(420000)))

	a[0].Price = decimal.Zero
	require.True(t, DemoDeals()[0].Price.Equal(decimal.NewFromInt(420000)), "callers get their own copy")
}

func TestDemoHistory(t *testing.T) {
	h := DemoHistory(decimal.Zero)
	require.Len(t, h.Points, history.MaxPoints)
	require.True(t, h.Points[0].Price.Equal(decimal.NewFromInt(560000)))
	require.True(t, h.Stats.Min.Equal(decimal.NewFromInt(440000)))
	require.Equal(t, history.LeadTimeMedium, h.Recommendation)
	require.Equal(t, h, DemoHistory(DemoReferencePrice))

	scaled := DemoHistory(decimal.NewFromInt(100000))
	require.True(t, scaled.Points[7].Price.Equal(decimal.NewFromInt(102000)))
}

func TestDecideHistory(t *testing.T) {
	demo := func() history.History { return DemoHistory(decimal.Zero) }
	empty := func(h history.History) bool { return len(h.Points) == 0 }

	out := Decide(history.Build(nil), nil, empty, demo)
	require.Equal(t, Fallback, out.Provenance)
	require.Len(t, out.Data.Points, history.MaxPoints)
}
