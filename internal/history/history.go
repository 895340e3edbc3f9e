// Package history builds the bounded weekly price series shown for one route.
package history

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flight-deal-alerts/internal/fetcher"
)

// MaxPoints caps the series length.
const MaxPoints = 8

// UnknownLabel marks a point whose departure date could not be parsed.
const UnknownLabel = "unknown"

var hundred = decimal.NewFromInt(100)

// Point is one cheapest-date observation. PriceMissing marks a price that
// could not be parsed; Price is then zero and must not be compared with a
// threshold.
type Point struct {
	WeekIndex     int             `json:"weekIndex"`
	WeekLabel     string          `json:"weekLabel"`
	Price         decimal.Decimal `json:"price"`
	PriceMissing  bool            `json:"priceMissing,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	DepartureDate string          `json:"departureDate"`
}

// Stats summarises a series. ChangePct compares the last point with the one
// before it and is only meaningful when HasChange is set. AverageDeviationPct
// compares the last point with the series average.
type Stats struct {
	Min                 decimal.Decimal `json:"min"`
	Max                 decimal.Decimal `json:"max"`
	Average             decimal.Decimal `json:"average"`
	ChangePct           decimal.Decimal `json:"changePct"`
	HasChange           bool            `json:"hasChange"`
	AverageDeviationPct decimal.Decimal `json:"averageDeviationPct"`
}

// History is the aggregated series for one route. LeadTimes is filled by the
// caller, which knows the base price.
type History struct {
	Points         []Point         `json:"points"`
	Stats          Stats           `json:"stats"`
	Recommendation LeadTime        `json:"recommendation"`
	LeadTimes      []LeadTimeQuote `json:"leadTimes,omitempty"`
}

// Latest returns the last point of the series.
func (h History) Latest() (Point, bool) {
	if len(h.Points) == 0 {
		return Point{}, false
	}
	return h.Points[len(h.Points)-1], true
}

type entry struct {
	raw    fetcher.RawDateResult
	dep    time.Time
	parsed bool
}

// Build orders raw cheapest-date records by departure, keeps the first
// MaxPoints and derives labels, stats and a lead-time recommendation.
// Records with an unparsable date sort first; unparsable prices count as zero
// in the stats and are flagged PriceMissing.
func Build(raw []fetcher.RawDateResult) History {
	entries := make([]entry, 0, len(raw))
	for _, r := range raw {
		dep, ok := r.Departure()
		entries = append(entries, entry{raw: r, dep: dep, parsed: ok})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.parsed != b.parsed {
			return !a.parsed
		}
		return a.dep.Before(b.dep)
	})
	if len(entries) > MaxPoints {
		entries = entries[:MaxPoints]
	}

	points := make([]Point, 0, len(entries))
	for i, e := range entries {
		price, ok := e.raw.Price.Amount()
		label := UnknownLabel
		if e.parsed {
			label = WeekLabel(e.dep)
		}
		points = append(points, Point{
			WeekIndex:     i,
			WeekLabel:     label,
			Price:         price,
			PriceMissing:  !ok,
			Currency:      e.raw.Price.Currency,
			DepartureDate: e.raw.DepartureDate,
		})
	}

	return History{
		Points:         points,
		Stats:          Summarize(points),
		Recommendation: Recommend(points),
	}
}

// WeekLabel renders "<Mon> W<n>" where n is the Sunday-start week of the month.
func WeekLabel(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	week := (t.Day()-1+int(first.Weekday()))/7 + 1
	return fmt.Sprintf("%s W%d", t.Format("Jan"), week)
}

// Summarize computes min, max, average and percentage changes. An empty series
// yields zero stats.
func Summarize(points []Point) Stats {
	if len(points) == 0 {
		return Stats{Min: decimal.Zero, Max: decimal.Zero, Average: decimal.Zero, ChangePct: decimal.Zero, AverageDeviationPct: decimal.Zero}
	}

	minPrice, maxPrice := points[0].Price, points[0].Price
	sum := decimal.Zero
	for _, p := range points {
		minPrice = decimal.Min(minPrice, p.Price)
		maxPrice = decimal.Max(maxPrice, p.Price)
		sum = sum.Add(p.Price)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(points))))

	stats := Stats{
		Min:                 minPrice,
		Max:                 maxPrice,
		Average:             avg.Round(2),
		ChangePct:           decimal.Zero,
		AverageDeviationPct: decimal.Zero,
	}

	last := points[len(points)-1].Price
	if len(points) >= 2 {
		prev := points[len(points)-2].Price
		if !prev.IsZero() {
			stats.ChangePct = percentChange(prev, last)
			stats.HasChange = true
		}
	}
	if !avg.IsZero() {
		stats.AverageDeviationPct = percentChange(avg, last)
	}
	return stats
}

func percentChange(from, to decimal.Decimal) decimal.Decimal {
	return to.Sub(from).Div(from).Mul(hundred).Round(2)
}

// Regret is how much more the traveler paid than the latest observed price.
// A negative value means the booking beat the market.
func Regret(booked decimal.Decimal, points []Point) (decimal.Decimal, bool) {
	if len(points) == 0 {
		return decimal.Zero, false
	}
	return booked.Sub(points[len(points)-1].Price), true
}

// ParseBookedPrice accepts user input such as "420,000" or "420000.50".
func ParseBookedPrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("booked price is empty")
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse booked price %q: %w", raw, err)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("booked price %q must not be negative", raw)
	}
	return price, nil
}
