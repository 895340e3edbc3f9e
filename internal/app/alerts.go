package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flight-deal-alerts/internal/service"
)

// AddAlert registers a price alert.
func (a *App) AddAlert(ctx context.Context, opts AlertOptions) error {
	return a.withService(ctx, func(svc *service.Service) error {
		alert, err := svc.CreateAlert(ctx, service.AlertInput{
			Origin:      opts.Origin,
			Destination: opts.Destination,
			Threshold:   decimal.NewFromFloat(opts.Threshold),
			Currency:    opts.Currency,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "alert %s: %s-%s at or below %s %s\n",
			alert.ID, alert.Origin, alert.Destination, formatDecimal(alert.Threshold, 0), alert.Currency)
		return nil
	})
}

// ListAlerts prints the alert registry.
func (a *App) ListAlerts(ctx context.Context, all bool) error {
	return a.withService(ctx, func(svc *service.Service) error {
		alerts, err := svc.ListAlerts(ctx, !all)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Fprintln(a.Out, "no alerts found")
			return nil
		}

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tRoute\tThreshold\tActive\tCreated (UTC)\tTriggered (UTC)")
		for _, alert := range alerts {
			triggered := "-"
			if alert.TriggeredAt != nil {
				triggered = alert.TriggeredAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(
				writer,
				"%s\t%s-%s\t%s %s\t%t\t%s\t%s\n",
				alert.ID,
				alert.Origin,
				alert.Destination,
				formatDecimal(alert.Threshold, 0),
				alert.Currency,
				alert.IsActive,
				alert.CreatedAt.UTC().Format(time.RFC3339),
				triggered,
			)
		}
		writer.Flush()
		return nil
	})
}

// DeactivateAlert switches an alert off.
func (a *App) DeactivateAlert(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid alert id %q: %w", rawID, err)
	}
	return a.withService(ctx, func(svc *service.Service) error {
		if err := svc.DeactivateAlert(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "alert %s deactivated\n", id)
		return nil
	})
}
