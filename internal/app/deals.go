package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"flight-deal-alerts/internal/deals"
	"flight-deal-alerts/internal/fallback"
	"flight-deal-alerts/internal/fetcher"
	"flight-deal-alerts/internal/service"
)

// Deals prints the this-week / next-week board for an origin.
func (a *App) Deals(ctx context.Context, opts DealsOptions) error {
	query := service.DealsQuery{
		Origin:   opts.Origin,
		MaxPrice: decimal.NewFromFloat(a.Config.ResolveMaxPrice(opts.MaxPrice)),
	}
	if opts.Departure != "" {
		dep, ok := fetcher.ParseDate(opts.Departure)
		if !ok {
			return fmt.Errorf("invalid --departure %q: expected yyyy-mm-dd", opts.Departure)
		}
		query.Departure = &dep
	}

	return a.withService(ctx, func(svc *service.Service) error {
		outcome, err := svc.Deals(ctx, query)
		if err != nil {
			return err
		}
		printProvenance(a.Out, outcome.Provenance, outcome.Reason)

		board := deals.NewBoard(outcome.Data)
		if board.Empty() {
			fmt.Fprintln(a.Out, "no deals found")
			return nil
		}
		printSection(a.Out, deals.LabelThisWeek, board.ThisWeek)
		printSection(a.Out, deals.LabelNextWeek, board.NextWeek)
		return nil
	})
}

func printSection(out io.Writer, title string, items []deals.FlightDeal) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s\n", title)
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Route\tDestination\tDepart\tReturn\tPrice\tBook")
	for _, d := range items {
		fmt.Fprintf(
			writer,
			"%s-%s\t%s\t%s\t%s\t%s %s\t%s\n",
			d.Origin,
			d.Destination,
			d.DestinationName,
			d.DepartureDate,
			d.ReturnDate,
			d.Price.StringFixed(0),
			d.Currency,
			deals.BookingURL(d.Origin, d.Destination, d.DepartureDate, d.ReturnDate),
		)
	}
	writer.Flush()
}

// printProvenance tells the user when sample data is shown instead of live prices.
func printProvenance(out io.Writer, provenance fallback.Provenance, reason string) {
	if provenance == fallback.Live {
		return
	}
	fmt.Fprintf(out, "Showing sample data (v%s): %s\n", fallback.DemoVersion, reason)
}
