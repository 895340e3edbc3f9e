package history

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LeadTime is a booking-window suggestion. It is a coarse heuristic: the
// cheapest point's distance from the end of the series, read as weeks before
// departure. It is not a forecast.
type LeadTime string

const (
	LeadTimeUnknown  LeadTime = ""
	LeadTimeShort    LeadTime = "1–2 weeks before departure"
	LeadTimeMedium   LeadTime = "3–4 weeks before departure"
	LeadTimeExtended LeadTime = "5+ weeks before departure"
)

// Recommend picks a lead time from the first occurrence of the minimum price.
func Recommend(points []Point) LeadTime {
	if len(points) == 0 {
		return LeadTimeUnknown
	}
	minIndex := 0
	for i, p := range points {
		if p.Price.LessThan(points[minIndex].Price) {
			minIndex = i
		}
	}
	switch weeksFromNow := len(points) - 1 - minIndex; {
	case weeksFromNow <= 1:
		return LeadTimeShort
	case weeksFromNow <= 3:
		return LeadTimeMedium
	default:
		return LeadTimeExtended
	}
}

// LeadTimeQuote is an indicative fare for booking a fixed number of days
// before departure.
type LeadTimeQuote struct {
	Label      string          `json:"label"`
	DaysBefore int             `json:"daysBefore"`
	Price      decimal.Decimal `json:"price"`
}

// Fixed booking-window multipliers applied to the base price.
var leadTimeMultipliers = []struct {
	days       int
	multiplier decimal.Decimal
}{
	{60, decimal.RequireFromString("0.92")},
	{45, decimal.RequireFromString("0.85")},
	{30, decimal.RequireFromString("0.95")},
}

// CompareLeadTimes returns the D-60, D-45 and D-30 quotes derived from base.
// The result is deterministic; a non-positive base yields nil.
func CompareLeadTimes(base decimal.Decimal) []LeadTimeQuote {
	if !base.IsPositive() {
		return nil
	}
	quotes := make([]LeadTimeQuote, 0, len(leadTimeMultipliers))
	for _, m := range leadTimeMultipliers {
		quotes = append(quotes, LeadTimeQuote{
			Label:      fmt.Sprintf("D-%d", m.days),
			DaysBefore: m.days,
			Price:      base.Mul(m.multiplier).Round(0),
		})
	}
	return quotes
}

// CheapestLeadTime returns the quote with the lowest price.
func CheapestLeadTime(quotes []LeadTimeQuote) (LeadTimeQuote, bool) {
	if len(quotes) == 0 {
		return LeadTimeQuote{}, false
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.Price.LessThan(best.Price) {
			best = q
		}
	}
	return best, true
}
