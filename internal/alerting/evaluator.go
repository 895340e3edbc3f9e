package alerting

import (
	"github.com/shopspring/decimal"

	"flight-deal-alerts/internal/history"
)

// Signal reports that a watched route dropped to or below its threshold.
type Signal struct {
	Destination string          `json:"destination"`
	Price       decimal.Decimal `json:"price"`
	Threshold   decimal.Decimal `json:"threshold"`
}

// Savings is how far the price sits below the threshold.
func (s Signal) Savings() decimal.Decimal {
	return s.Threshold.Sub(s.Price)
}

// Evaluate compares the latest point of a series with the threshold. It keeps
// no state: deduplication and one-shot semantics belong to the caller. A latest
// point whose price could not be parsed never fires.
func Evaluate(destination string, points []history.Point, threshold decimal.Decimal) (Signal, bool) {
	if len(points) == 0 {
		return Signal{}, false
	}
	latest := points[len(points)-1]
	if latest.PriceMissing || latest.Price.GreaterThan(threshold) {
		return Signal{}, false
	}
	return Signal{Destination: destination, Price: latest.Price, Threshold: threshold}, true
}
