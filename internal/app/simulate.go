package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"flight-deal-alerts/internal/alerting"
	"flight-deal-alerts/internal/history"
	"flight-deal-alerts/internal/service"
)

// SimulateAlert evaluates a single observed price against a threshold and, when
// it qualifies, pushes it through the configured notifier.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}
	if opts.Price <= 0 || opts.Threshold <= 0 {
		return errors.New("--price and --threshold must be greater than zero")
	}

	destination := strings.ToUpper(strings.TrimSpace(opts.Destination))
	price := decimal.NewFromFloat(opts.Price)
	threshold := decimal.NewFromFloat(opts.Threshold)
	points := []history.Point{{WeekLabel: "simulated", Price: price}}
	signal, fire := alerting.Evaluate(destination, points, threshold)
	if !fire {
		fmt.Fprintf(a.Out, "price %s is above threshold %s; no alert\n", formatDecimal(price, 0), formatDecimal(threshold, 0))
		return nil
	}

	return a.withService(ctx, func(svc *service.Service) error {
		if err := svc.SimulateAlert(ctx, opts.Origin, signal, strings.ToUpper(opts.Currency)); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "alert dispatched for %s (saves %s)\n", destination, formatDecimal(signal.Savings(), 0))
		return nil
	})
}
