package fallback

import (
	"github.com/shopspring/decimal"

	"flight-deal-alerts/internal/deals"
	"flight-deal-alerts/internal/fetcher"
	"flight-deal-alerts/internal/history"
)

// DemoVersion identifies the sample dataset. Bump it whenever the data changes.
const DemoVersion = "2026.10.1"

// DemoReferencePrice is used when a history caller has no reference of its own.
var DemoReferencePrice = decimal.NewFromInt(500000)

const demoCurrency = "KRW"

var demoDeals = []fetcher.RawDestinationResult{
	{Type: "flight-destination", Origin: "ICN", Destination: "NRT", DepartureDate: "2026-11-05", ReturnDate: "2026-11-09", Price: fetcher.Price{Total: "420000", Currency: demoCurrency}},
	{Type: "flight-destination", Origin: "ICN", Destination: "HKG", DepartureDate: "2026-11-07", ReturnDate: "2026-11-11", Price: fetcher.Price{Total: "380000", Currency: demoCurrency}},
	{Type: "flight-destination", Origin: "ICN", Destination: "BKK", DepartureDate: "2026-11-12", ReturnDate: "2026-11-17", Price: fetcher.Price{Total: "510000", Currency: demoCurrency}},
	{Type: "flight-destination", Origin: "GMP", Destination: "KIX", DepartureDate: "2026-11-14", ReturnDate: "2026-11-16", Price: fetcher.Price{Total: "330000", Currency: demoCurrency}},
}

// Weekly departures and price multipliers of the sample history.
var (
	demoDates = []string{
		"2026-11-01", "2026-11-08", "2026-11-15", "2026-11-22",
		"2026-11-29", "2026-12-06", "2026-12-13", "2026-12-20",
	}
	demoMultipliers = []string{"1.12", "1.05", "0.97", "1.08", "0.92", "0.88", "0.95", "1.02"}
)

// DemoDeals returns the sample deals, freshly allocated on every call.
func DemoDeals() []deals.FlightDeal {
	return deals.Normalize(demoDeals)
}

// DemoHistory derives the sample series from a reference price. A zero or
// negative reference uses DemoReferencePrice.
func DemoHistory(reference decimal.Decimal) history.History {
	if !reference.IsPositive() {
		reference = DemoReferencePrice
	}
	raw := make([]fetcher.RawDateResult, 0, len(demoDates))
	for i, dep := range demoDates {
		price := reference.Mul(decimal.RequireFromString(demoMultipliers[i])).Round(0)
		raw = append(raw, fetcher.RawDateResult{
			Type:          "flight-date",
			DepartureDate: dep,
			Price:         fetcher.Price{Total: price.String(), Currency: demoCurrency},
		})
	}
	return history.Build(raw)
}
