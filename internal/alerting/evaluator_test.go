package alerting

import (
	"testing"

	"github.com/shopspring/decimal"

	"flight-deal-alerts/internal/history"
)

func series(prices ...int64) []history.Point {
	out := make([]history.Point, len(prices))
	for i, p := range prices {
		out[i] = history.Point{WeekIndex: i, Price: decimal.NewFromInt(p)}
	}
	return out
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name      string
		points    []history.Point
		threshold int64
		fire      bool
	}{
		{"below threshold", series(700000, 550000), 600000, true},
		{"above threshold", series(700000, 550000), 500000, false},
		{"equal fires", series(500000), 500000, true},
		{"only latest counts", series(100000, 650000), 600000, false},
		{"empty series", nil, 600000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signal, ok := Evaluate("NRT", tc.points, decimal.NewFromInt(tc.threshold))
			if ok != tc.fire {
				t.Fatalf("Evaluate fired=%v, want %v", ok, tc.fire)
			}
			if !ok {
				return
			}
			if signal.Destination != "NRT" {
				t.Fatalf("unexpected destination %q", signal.Destination)
			}
			if !signal.Threshold.Equal(decimal.NewFromInt(tc.threshold)) {
				t.Fatalf("unexpected threshold %s", signal.Threshold)
			}
		})
	}

	unparsed := series(700000, 0)
	unparsed[1].PriceMissing = true
	if _, ok := Evaluate("NRT", unparsed, decimal.NewFromInt(600000)); ok {
		t.Fatalf("an unparsable latest price must not fire")
	}

	signal, _ := Evaluate("NRT", series(550000), decimal.NewFromInt(600000))
	if !signal.Price.Equal(decimal.NewFromInt(550000)) || !signal.Savings().Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected signal %+v", signal)
	}
}
