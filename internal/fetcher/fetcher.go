package fetcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// DateLayout is the upstream calendar date format.
const DateLayout = "2006-01-02"

// DestinationSearcher runs inspiration searches ("where can I fly from X under Y").
type DestinationSearcher interface {
	SearchDestinations(ctx context.Context, query DestinationQuery) ([]RawDestinationResult, error)
}

// DateSearcher runs cheapest-date searches for a fixed route.
type DateSearcher interface {
	SearchDates(ctx context.Context, query DateQuery) ([]RawDateResult, error)
}

// TokenSource yields a bearer token for upstream requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// DestinationQuery parameterises an inspiration search.
type DestinationQuery struct {
	Origin        string `validate:"required,len=3,alpha,uppercase"`
	MaxPrice      decimal.Decimal
	DepartureDate *time.Time
}

// DateWindow bounds a cheapest-date search, both ends inclusive.
type DateWindow struct {
	From time.Time
	To   time.Time
}

// DateQuery parameterises a cheapest-date search.
type DateQuery struct {
	Origin      string `validate:"required,len=3,alpha,uppercase"`
	Destination string `validate:"required,len=3,alpha,uppercase"`
	MaxPrice    *decimal.Decimal
	Window      *DateWindow
}

// Price is the upstream price object. Total arrives as a decimal string.
type Price struct {
	Total    string `json:"total"`
	Currency string `json:"currency,omitempty"`
}

// UnmarshalJSON accepts total as a string or a bare number. Any other shape
// leaves the field empty so the record survives with an unparsable price.
func (p *Price) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("price: invalid json")
	}
	*p = Price{}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return nil
	}
	switch total := parsed.Get("total"); total.Type {
	case gjson.String:
		p.Total = total.Str
	case gjson.Number:
		p.Total = total.Raw
	}
	if currency := parsed.Get("currency"); currency.Type == gjson.String {
		p.Currency = currency.Str
	}
	return nil
}

// RawDestinationResult is one /flight-destinations record, kept verbatim.
type RawDestinationResult struct {
	Type          string            `json:"type"`
	Origin        string            `json:"origin"`
	Destination   string            `json:"destination"`
	DepartureDate string            `json:"departureDate"`
	ReturnDate    string            `json:"returnDate,omitempty"`
	Price         Price             `json:"price"`
	Links         map[string]string `json:"links,omitempty"`
}

// RawDateResult is one /flight-dates record, kept verbatim.
type RawDateResult struct {
	Type          string            `json:"type"`
	Origin        string            `json:"origin"`
	Destination   string            `json:"destination"`
	DepartureDate string            `json:"departureDate"`
	ReturnDate    string            `json:"returnDate,omitempty"`
	Price         Price             `json:"price"`
	Links         map[string]string `json:"links,omitempty"`
}

// Amount parses the total price. ok is false for a missing or malformed value.
func (p Price) Amount() (decimal.Decimal, bool) {
	return ParseAmount(p.Total)
}

// ParseAmount parses an upstream decimal string.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

// ParseDate parses an upstream yyyy-mm-dd date in UTC.
func ParseDate(raw string) (time.Time, bool) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// Departure parses the departure date.
func (r RawDestinationResult) Departure() (time.Time, bool) {
	return ParseDate(r.DepartureDate)
}

// Departure parses the departure date.
func (r RawDateResult) Departure() (time.Time, bool) {
	return ParseDate(r.DepartureDate)
}
