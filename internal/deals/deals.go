// Package deals turns raw inspiration-search records into traveler-facing deals.
package deals

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flight-deal-alerts/internal/fetcher"
)

const (
	// DefaultCurrency applies when the upstream omits price.currency.
	DefaultCurrency = "EUR"

	LabelRecommended = "Recommended"
	LabelThisWeek    = "This week"
	LabelNextWeek    = "Next week"

	// BoardSection is the number of deals shown per board section.
	BoardSection = 5
)

// FlightDeal is a normalised inspiration result.
type FlightDeal struct {
	ID              string          `json:"id"`
	Origin          string          `json:"origin"`
	Destination     string          `json:"destination"`
	DestinationName string          `json:"destinationName"`
	DepartureDate   string          `json:"departureDate"`
	ReturnDate      string          `json:"returnDate"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	WeekLabel       string          `json:"weekLabel"`
}

// DealID derives the stable identifier of a deal from its route and dates.
func DealID(origin, destination, departure, ret string) string {
	return fmt.Sprintf("%s-%s-%s-%s", origin, destination, departure, ret)
}

// FromDestination maps one raw record. An unparsable price becomes zero.
func FromDestination(raw fetcher.RawDestinationResult) FlightDeal {
	price, _ := raw.Price.Amount()
	currency := strings.TrimSpace(raw.Price.Currency)
	if currency == "" {
		currency = DefaultCurrency
	}
	return FlightDeal{
		ID:              DealID(raw.Origin, raw.Destination, raw.DepartureDate, raw.ReturnDate),
		Origin:          raw.Origin,
		Destination:     raw.Destination,
		DestinationName: DisplayName(raw.Destination),
		DepartureDate:   raw.DepartureDate,
		ReturnDate:      raw.ReturnDate,
		Price:           price,
		Currency:        currency,
		WeekLabel:       LabelRecommended,
	}
}

// Normalize maps raw records and orders them by departure date. Records with
// an unparsable date go last.
func Normalize(raw []fetcher.RawDestinationResult) []FlightDeal {
	out := make([]FlightDeal, 0, len(raw))
	for _, r := range raw {
		out = append(out, FromDestination(r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return departureKey(out[i]).Before(departureKey(out[j]))
	})
	return out
}

func departureKey(d FlightDeal) time.Time {
	if t, ok := fetcher.ParseDate(d.DepartureDate); ok {
		return t
	}
	return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
}

// Board groups deals into the this-week and next-week sections of the home screen.
type Board struct {
	ThisWeek []FlightDeal `json:"thisWeek"`
	NextWeek []FlightDeal `json:"nextWeek"`
}

// Empty reports whether neither section has deals.
func (b Board) Empty() bool {
	return len(b.ThisWeek) == 0 && len(b.NextWeek) == 0
}

// NewBoard takes deals in departure order: the first five become "This week",
// the next five "Next week". Remaining deals are not shown.
func NewBoard(sorted []FlightDeal) Board {
	board := Board{ThisWeek: []FlightDeal{}, NextWeek: []FlightDeal{}}
	for i, d := range sorted {
		switch {
		case i < BoardSection:
			d.WeekLabel = LabelThisWeek
			board.ThisWeek = append(board.ThisWeek, d)
		case i < 2*BoardSection:
			d.WeekLabel = LabelNextWeek
			board.NextWeek = append(board.NextWeek, d)
		}
	}
	return board
}

// BookingURL builds a Google Flights search link for a round trip.
func BookingURL(origin, destination, departure, ret string) string {
	query := fmt.Sprintf("%s to %s", strings.ToUpper(origin), strings.ToUpper(destination))
	if departure != "" {
		query += " " + departure
		if ret != "" {
			query += " - " + ret
		}
	}
	return "https://www.google.com/travel/flights?q=" + url.QueryEscape(query)
}
