package history

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"flight-deal-alerts/internal/fetcher"
)

func rawDate(dep, total string) fetcher.RawDateResult {
	return fetcher.RawDateResult{
		Type:          "flight-date",
		Origin:        "ICN",
		Destination:   "NRT",
		DepartureDate: dep,
		Price:         fetcher.Price{Total: total},
	}
}

func pointsOf(prices ...int64) []Point {
	out := make([]Point, len(prices))
	for i, p := range prices {
		out[i] = Point{WeekIndex: i, Price: decimal.NewFromInt(p)}
	}
	return out
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestSummarizeBasic(t *testing.T) {
	stats := Summarize(pointsOf(100, 200, 300))
	requireDecimal(t, "100", stats.Min)
	requireDecimal(t, "300", stats.Max)
	requireDecimal(t, "200", stats.Average)
	require.True(t, stats.HasChange)
	requireDecimal(t, "50", stats.ChangePct)
	requireDecimal(t, "50", stats.AverageDeviationPct)
}

func TestSummarizeSinglePointHasNoChange(t *testing.T) {
	stats := Summarize(pointsOf(420000))
	require.False(t, stats.HasChange)
	requireDecimal(t, "0", stats.ChangePct)
	requireDecimal(t, "420000", stats.Average)
}

func TestSummarizeZeroPrevious(t *testing.T) {
	stats := Summarize(pointsOf(0, 100))
	require.False(t, stats.HasChange)
	requireDecimal(t, "0", stats.Min)
}

func TestBuildOrdersAndCaps(t *testing.T) {
	raw := []fetcher.RawDateResult{
		rawDate("2026-12-20", "10"),
		rawDate("2026-11-01", "1"),
		rawDate("2026-12-06", "8"),
		rawDate("2026-11-15", "3"),
		rawDate("2027-01-03", "12"),
		rawDate("2026-11-08", "2"),
		rawDate("2026-11-29", "5"),
		rawDate("2026-11-22", "4"),
		rawDate("2026-12-13", "9"),
		rawDate("2026-11-30", "6"),
	}
	h := Build(raw)

	require.Len(t, h.Points, MaxPoints)
	want := []string{"2026-11-01", "2026-11-08", "2026-11-15", "2026-11-22", "2026-11-29", "2026-11-30", "2026-12-06", "2026-12-13"}
	for i, p := range h.Points {
		require.Equal(t, i, p.WeekIndex)
		require.Equal(t, want[i], p.DepartureDate)
	}
	require.Equal(t, "Nov W1", h.Points[0].WeekLabel)
	require.Equal(t, "Nov W2", h.Points[1].WeekLabel)
	require.Equal(t, "Dec W2", h.Points[6].WeekLabel)
	require.Equal(t, "Dec W3", h.Points[7].WeekLabel)
	requireDecimal(t, "1", h.Stats.Min)
	require.Equal(t, LeadTimeExtended, h.Recommendation)
}

func TestBuildDefensiveParsing(t *testing.T) {
	h := Build([]fetcher.RawDateResult{
		rawDate("2026-11-08", "oops"),
		rawDate("not-a-date", "200"),
	})
	require.Len(t, h.Points, 2)
	require.Equal(t, UnknownLabel, h.Points[0].WeekLabel, "unparsable dates sort first")
	requireDecimal(t, "200", h.Points[0].Price)
	require.False(t, h.Points[0].PriceMissing)
	requireDecimal(t, "0", h.Points[1].Price)
	require.True(t, h.Points[1].PriceMissing)
}

func TestBuildKeepsCurrency(t *testing.T) {
	r := rawDate("2026-11-08", "420000")
	r.Price.Currency = "EUR"
	h := Build([]fetcher.RawDateResult{r})
	require.Equal(t, "EUR", h.Points[0].Currency)
}

func TestSummarizeDeviationUsesUnroundedAverage(t *testing.T) {
	// average 1/3 rounds to 0.33; against the rounded value the deviation would be 203.03%.
	stats := Summarize(pointsOf(0, 0, 1))
	requireDecimal(t, "0.33", stats.Average)
	requireDecimal(t, "200", stats.AverageDeviationPct)
}

func TestBuildEmpty(t *testing.T) {
	h := Build(nil)
	require.NotNil(t, h.Points)
	require.Empty(t, h.Points)
	require.False(t, h.Stats.HasChange)
	requireDecimal(t, "0", h.Stats.Average)
	require.Equal(t, LeadTimeUnknown, h.Recommendation)
	_, ok := h.Latest()
	require.False(t, ok)
}

func TestWeekLabel(t *testing.T) {
	cases := map[string]string{
		"2026-10-03": "Oct W1",
		"2026-10-04": "Oct W2",
		"2026-11-07": "Nov W1",
		"2026-11-30": "Nov W5",
	}
	for in, want := range cases {
		d, err := time.Parse(fetcher.DateLayout, in)
		require.NoError(t, err)
		require.Equal(t, want, WeekLabel(d), in)
	}
}

func TestRecommend(t *testing.T) {
	cases := []struct {
		name   string
		prices []int64
		want   LeadTime
	}{
		{"empty", nil, LeadTimeUnknown},
		{"cheapest last", []int64{300, 200, 100}, LeadTimeShort},
		{"cheapest second to last", []int64{300, 100, 200}, LeadTimeShort},
		{"cheapest first of three", []int64{100, 200, 300}, LeadTimeMedium},
		{"first occurrence wins", []int64{100, 100, 200}, LeadTimeMedium},
		{"cheapest far out", []int64{100, 200, 300, 400, 500, 600, 700, 800}, LeadTimeExtended},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Recommend(pointsOf(tc.prices...)))
		})
	}
}

func TestRegret(t *testing.T) {
	regret, ok := Regret(decimal.NewFromInt(450000), pointsOf(400000, 420000))
	require.True(t, ok)
	requireDecimal(t, "30000", regret)

	_, ok = Regret(decimal.NewFromInt(1), nil)
	require.False(t, ok)
}

func TestParseBookedPrice(t *testing.T) {
	price, err := ParseBookedPrice(" 420,000 ")
	require.NoError(t, err)
	requireDecimal(t, "420000", price)

	for _, raw := range []string{"", "abc", "-5"} {
		_, err := ParseBookedPrice(raw)
		require.Error(t, err, raw)
	}
}

func TestCompareLeadTimes(t *testing.T) {
	quotes := CompareLeadTimes(decimal.NewFromInt(500000))
	require.Len(t, quotes, 3)
	require.Equal(t, []string{"D-60", "D-45", "D-30"}, []string{quotes[0].Label, quotes[1].Label, quotes[2].Label})
	require.Equal(t, 45, quotes[1].DaysBefore)
	requireDecimal(t, "460000", quotes[0].Price)
	requireDecimal(t, "425000", quotes[1].Price)
	requireDecimal(t, "475000", quotes[2].Price)

	best, ok := CheapestLeadTime(quotes)
	require.True(t, ok)
	require.Equal(t, "D-45", best.Label)

	require.Nil(t, CompareLeadTimes(decimal.Zero))
	_, ok = CheapestLeadTime(nil)
	require.False(t, ok)
}
