package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"flight-deal-alerts/internal/service"
)

// Show prints recently recorded price snapshots.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	return a.withService(ctx, func(svc *service.Service) error {
		snapshots, err := svc.Snapshots(ctx, opts.Limit)
		if err != nil {
			return err
		}
		if len(snapshots) == 0 {
			fmt.Fprintln(a.Out, "no snapshots found")
			return nil
		}

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Observed (UTC)\tRoute\tDepart\tPrice\tSource\tTriggered")
		for _, snapshot := range snapshots {
			fmt.Fprintf(
				writer,
				"%s\t%s-%s\t%s\t%s %s\t%s\t%t\n",
				snapshot.ObservedAt.UTC().Format(time.RFC3339),
				snapshot.Origin,
				snapshot.Destination,
				sanitizeInline(snapshot.DepartureDate),
				formatDecimal(snapshot.Price, 0),
				snapshot.Currency,
				snapshot.Provenance,
				snapshot.Triggered,
			)
		}
		writer.Flush()
		return nil
	})
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
