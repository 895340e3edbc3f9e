package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"flight-deal-alerts/internal/alerting"
	"flight-deal-alerts/internal/fallback"
	"flight-deal-alerts/internal/fetcher"
	"flight-deal-alerts/internal/history"
	"flight-deal-alerts/internal/storage"
)

var testNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

type fakeSearcher struct {
	mu           sync.Mutex
	destinations []fetcher.RawDestinationResult
	dates        map[string][]fetcher.RawDateResult
	err          error
	lastDates    fetcher.DateQuery
	lastDest     fetcher.DestinationQuery
}

func (f *fakeSearcher) SearchDestinations(_ context.Context, q fetcher.DestinationQuery) ([]fetcher.RawDestinationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDest = q
	if f.err != nil {
		return nil, f.err
	}
	return f.destinations, nil
}

func (f *fakeSearcher) SearchDates(_ context.Context, q fetcher.DateQuery) ([]fetcher.RawDateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDates = q
	if f.err != nil {
		return nil, f.err
	}
	return f.dates[q.Destination], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, note)
	return nil
}

type countingRecorder struct {
	outcomes map[string]int
	fired    int
}

func (c *countingRecorder) ObserveOutcome(op, prov, cause string) {
	c.outcomes[op+"/"+prov+"/"+cause]++
}
func (c *countingRecorder) AlertFired()                { c.fired++ }
func (c *countingRecorder) ObserveSweep(time.Duration) {}

func series(dest string, prices ...string) []fetcher.RawDateResult {
	out := make([]fetcher.RawDateResult, len(prices))
	for i, p := range prices {
		out[i] = fetcher.RawDateResult{
			Type:          "flight-date",
			Origin:        "ICN",
			Destination:   dest,
			DepartureDate: time.Date(2026, 11, 1+7*i, 0, 0, 0, 0, time.UTC).Format(fetcher.DateLayout),
			Price:         fetcher.Price{Total: p},
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	searcher *fakeSearcher
	repo     *storage.MemoryStore
	notifier *recordingNotifier
	recorder *countingRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		searcher: &fakeSearcher{dates: map[string][]fetcher.RawDateResult{}},
		repo:     storage.NewMemoryStore(),
		notifier: &recordingNotifier{},
		recorder: &countingRecorder{outcomes: map[string]int{}},
	}
	f.svc = New(Options{
		DefaultOrigin:    "icn",
		DefaultMaxPrice:  decimal.NewFromInt(500000),
		HistoryWeeksFrom: 4,
		HistoryWeeksTo:   8,
		AlertsEnabled:    true,
		LockKey:          7,
		Now:              func() time.Time { return testNow },
	}, Dependencies{
		Destinations: f.searcher,
		Dates:        f.searcher,
		Repository:   f.repo,
		Notifier:     f.notifier,
		Recorder:     f.recorder,
	}, zerolog.Nop())
	return f
}

func TestDealsLive(t *testing.T) {
	f := newFixture(t)
	f.searcher.destinations = []fetcher.RawDestinationResult{
		{Origin: "ICN", Destination: "BKK", DepartureDate: "2026-11-20", Price: fetcher.Price{Total: "510000"}},
		{Origin: "ICN", Destination: "NRT", DepartureDate: "2026-11-02", Price: fetcher.Price{Total: "420000"}},
	}

	out, err := f.svc.Deals(context.Background(), DealsQuery{})
	require.NoError(t, err)
	require.Equal(t, fallback.Live, out.Provenance)
	require.Equal(t, "NRT", out.Data[0].Destination)
	require.Equal(t, "ICN", f.searcher.lastDest.Origin)
	require.True(t, f.searcher.lastDest.MaxPrice.Equal(decimal.NewFromInt(500000)))
	require.Equal(t, 1, f.recorder.outcomes["deals/live/"])
}

func TestDealsFallbackOnEmptyAndErrors(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Deals(context.Background(), DealsQuery{Origin: "gmp"})
	require.NoError(t, err)
	require.Equal(t, fallback.Fallback, out.Provenance)
	require.Equal(t, fallback.ReasonEmpty, out.Reason)
	require.Equal(t, fallback.DemoDeals(), out.Data)
	require.Equal(t, "GMP", f.searcher.lastDest.Origin)

	f.searcher.err = &fetcher.HTTPError{Status: http.StatusTooManyRequests}
	out, err = f.svc.Deals(context.Background(), DealsQuery{})
	require.NoError(t, err)
	require.Equal(t, fallback.ReasonUnavailable, out.Reason)
	require.Equal(t, 1, f.recorder.outcomes["deals/fallback/unavailable"])
}

func TestDealsRejectsInvalidOrigin(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Deals(context.Background(), DealsQuery{Origin: "SEOUL"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestHistoryUsesDefaultWindow(t *testing.T) {
	f := newFixture(t)
	f.searcher.dates["NRT"] = series("NRT", "100", "200", "300")

	out, err := f.svc.History(context.Background(), HistoryQuery{Destination: "nrt"})
	require.NoError(t, err)
	require.True(t, out.IsLive())
	require.Len(t, out.Data.Points, 3)
	require.True(t, out.Data.Stats.ChangePct.Equal(decimal.NewFromInt(50)))

	window := f.searcher.lastDates.Window
	require.NotNil(t, window)
	require.Equal(t, time.Date(2026, 11, 14, 0, 0, 0, 0, time.UTC), window.From)
	require.Equal(t, time.Date(2026, 12, 12, 0, 0, 0, 0, time.UTC), window.To)
}

func TestHistoryFallbackUsesReferencePrice(t *testing.T) {
	f := newFixture(t)
	f.searcher.err = &fetcher.AuthError{Status: http.StatusUnauthorized}

	out, err := f.svc.History(context.Background(), HistoryQuery{Destination: "NRT", ReferencePrice: decimal.NewFromInt(100000)})
	require.NoError(t, err)
	require.Equal(t, fallback.ReasonAuth, out.Reason)
	require.Len(t, out.Data.Points, history.MaxPoints)
	require.True(t, out.Data.Points[0].Price.Equal(decimal.NewFromInt(112000)))
}

func TestHistoryComparesLeadTimes(t *testing.T) {
	f := newFixture(t)
	f.searcher.dates["NRT"] = series("NRT", "400000", "600000")

	out, err := f.svc.History(context.Background(), HistoryQuery{Destination: "NRT", ReferencePrice: decimal.NewFromInt(500000)})
	require.NoError(t, err)
	require.Len(t, out.Data.LeadTimes, 3)
	require.Equal(t, "D-45", out.Data.LeadTimes[1].Label)
	require.True(t, out.Data.LeadTimes[1].Price.Equal(decimal.NewFromInt(425000)))

	out, err = f.svc.History(context.Background(), HistoryQuery{Destination: "NRT"})
	require.NoError(t, err)
	require.True(t, out.Data.LeadTimes[0].Price.Equal(decimal.NewFromInt(460000)), "base falls back to the series average")
}

func TestHistoryRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.History(context.Background(), HistoryQuery{Destination: "N1"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.History(context.Background(), HistoryQuery{
		Destination: "NRT",
		Window:      &fetcher.DateWindow{From: testNow, To: testNow.AddDate(0, 0, -1)},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateAlertValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAlert(ctx, AlertInput{Destination: "NRT", Threshold: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.CreateAlert(ctx, AlertInput{Destination: "ICN", Threshold: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrInvalidInput, "origin and destination must differ")

	alert, err := f.svc.CreateAlert(ctx, AlertInput{Destination: "nrt", Threshold: decimal.NewFromInt(600000), Currency: "krw"})
	require.NoError(t, err)
	require.Equal(t, "ICN", alert.Origin)
	require.Equal(t, "NRT", alert.Destination)
	require.Equal(t, "KRW", alert.Currency)
}

func TestSweepFiresOnceOnLiveData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.searcher.dates["NRT"] = series("NRT", "700000", "550000")
	f.searcher.dates["BKK"] = series("BKK", "700000", "650000")

	nrt, err := f.svc.CreateAlert(ctx, AlertInput{Destination: "NRT", Threshold: decimal.NewFromInt(600000)})
	require.NoError(t, err)
	_, err = f.svc.CreateAlert(ctx, AlertInput{Destination: "BKK", Threshold: decimal.NewFromInt(600000)})
	require.NoError(t, err)

	report, err := f.svc.ProcessSlot(ctx, testNow)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Checked: 2, Live: 2, Fired: 1}, report)
	require.Len(t, f.notifier.notes, 1)
	require.Equal(t, "NRT", f.notifier.notes[0].Signal.Destination)
	require.Equal(t, nrt.ID.String(), f.notifier.notes[0].AlertID)
	require.Equal(t, 1, f.recorder.fired)

	stored, err := f.repo.GetAlert(ctx, nrt.ID)
	require.NoError(t, err)
	require.False(t, stored.IsActive)
	require.NotNil(t, stored.TriggeredAt)

	snapshots, err := f.svc.Snapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	report, err = f.svc.SweepAlerts(ctx, testNow.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, report.Checked)
	require.Zero(t, report.Fired)
	require.Len(t, f.notifier.notes, 1, "a fired alert is not repeated")
}

func TestSweepIgnoresFallbackData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateAlert(ctx, AlertInput{Destination: "NRT", Threshold: decimal.NewFromInt(10000000)})
	require.NoError(t, err)

	report, err := f.svc.SweepAlerts(ctx, testNow)
	require.NoError(t, err)
	require.Equal(t, 1, report.Checked)
	require.Zero(t, report.Live)
	require.Empty(t, f.notifier.notes, "sample data must never fire an alert")

	active, _ := f.svc.ListAlerts(ctx, true)
	require.Len(t, active, 1)
}

func TestSweepSkipsUnreadableLatestPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.searcher.dates["NRT"] = series("NRT", "700000", "N/A")
	alert, err := f.svc.CreateAlert(ctx, AlertInput{Destination: "NRT", Threshold: decimal.NewFromInt(600000)})
	require.NoError(t, err)

	report, err := f.svc.ProcessSlot(ctx, testNow)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Checked: 1, Live: 1}, report)
	require.Empty(t, f.notifier.notes)

	stored, err := f.repo.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.True(t, stored.IsActive)

	snapshots, err := f.svc.Snapshots(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, snapshots)
}

func TestSweepUsesUpstreamCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	records := series("NRT", "450")
	records[0].Price.Currency = "EUR"
	f.searcher.dates["NRT"] = records
	_, err := f.svc.CreateAlert(ctx, AlertInput{Destination: "NRT", Threshold: decimal.NewFromInt(600000), Currency: "KRW"})
	require.NoError(t, err)

	report, err := f.svc.SweepAlerts(ctx, testNow)
	require.NoError(t, err)
	require.Equal(t, 1, report.Fired)
	require.Len(t, f.notifier.notes, 1)
	require.Equal(t, "EUR", f.notifier.notes[0].Currency)

	snapshots, err := f.svc.Snapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.Equal(t, "EUR", snapshots[0].Currency)
}

func TestSweepKeepsAlertWhenDeliveryFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.searcher.dates["NRT"] = series("NRT", "500000")
	f.notifier.err = errors.New("telegram down")
	_, err := f.svc.CreateAlert(ctx, AlertInput{Destination: "NRT", Threshold: decimal.NewFromInt(600000)})
	require.NoError(t, err)

	report, err := f.svc.SweepAlerts(ctx, testNow)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)

	active, _ := f.svc.ListAlerts(ctx, true)
	require.Len(t, active, 1)
}

func TestProcessSlotSkipsWhenLocked(t *testing.T) {
	f := newFixture(t)
	unlock, ok, err := f.repo.TryAdvisoryLock(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	report, err := f.svc.ProcessSlot(context.Background(), testNow)
	require.NoError(t, err)
	require.True(t, report.Skipped)
}

func TestSimulateAlert(t *testing.T) {
	f := newFixture(t)
	err := f.svc.SimulateAlert(context.Background(), "", alerting.Signal{
		Destination: "NRT",
		Price:       decimal.NewFromInt(550000),
		Threshold:   decimal.NewFromInt(600000),
	}, "KRW")
	require.NoError(t, err)
	require.Len(t, f.notifier.notes, 1)
	require.Equal(t, "ICN", f.notifier.notes[0].Origin)
	require.Contains(t, f.notifier.notes[0].BookingURL, "ICN+to+NRT")
}
