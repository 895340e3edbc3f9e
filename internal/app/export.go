package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"flight-deal-alerts/internal/history"
	"flight-deal-alerts/internal/service"
)

// History prints the weekly price series of a route and optionally exports it.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	if opts.Destination == "" {
		return errors.New("--destination is required")
	}

	query := service.HistoryQuery{
		Origin:         opts.Origin,
		Destination:    opts.Destination,
		ReferencePrice: decimal.NewFromFloat(opts.ReferencePrice),
	}
	if opts.MaxPrice > 0 {
		maxPrice := decimal.NewFromFloat(opts.MaxPrice)
		query.MaxPrice = &maxPrice
	}

	var booked *decimal.Decimal
	if opts.BookedPrice != "" {
		price, err := history.ParseBookedPrice(opts.BookedPrice)
		if err != nil {
			return fmt.Errorf("invalid --booked-price: %w", err)
		}
		booked = &price
	}

	return a.withService(ctx, func(svc *service.Service) error {
		outcome, err := svc.History(ctx, query)
		if err != nil {
			return err
		}
		printProvenance(a.Out, outcome.Provenance, outcome.Reason)

		h := outcome.Data
		a.printHistory(h)
		if booked != nil {
			if regret, ok := history.Regret(*booked, h.Points); ok {
				fmt.Fprintf(a.Out, "Regret index: %s (booked %s vs latest)\n", regret.StringFixed(0), booked.StringFixed(0))
			}
		}

		if opts.CSVPath != "" {
			if err := writeHistoryCSV(opts.CSVPath, h.Points); err != nil {
				return err
			}
			a.Logger.Info().Str("path", opts.CSVPath).Int("points", len(h.Points)).Msg("history exported as csv")
		}
		if opts.PNGPath != "" {
			if err := writeHistoryPNG(opts.PNGPath, h); err != nil {
				return err
			}
			a.Logger.Info().Str("path", opts.PNGPath).Int("points", len(h.Points)).Msg("history exported as png")
		}
		return nil
	})
}

func (a *App) printHistory(h history.History) {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Week\tDepart\tPrice")
	for _, p := range h.Points {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", p.WeekLabel, p.DepartureDate, formatDecimal(p.Price, 0))
	}
	writer.Flush()

	stats := h.Stats
	fmt.Fprintf(a.Out, "Min %s  Max %s  Avg %s\n", formatDecimal(stats.Min, 0), formatDecimal(stats.Max, 0), formatDecimal(stats.Average, 0))
	if stats.HasChange {
		fmt.Fprintf(a.Out, "Change vs previous week: %s%%\n", formatDecimal(stats.ChangePct, 2))
	}
	if h.Recommendation != history.LeadTimeUnknown {
		fmt.Fprintf(a.Out, "Best time to book: %s\n", h.Recommendation)
	}
	for _, q := range h.LeadTimes {
		fmt.Fprintf(a.Out, "Booking at %s: %s\n", q.Label, formatDecimal(q.Price, 0))
	}
	if cheapest, ok := history.CheapestLeadTime(h.LeadTimes); ok {
		fmt.Fprintf(a.Out, "Cheapest lead time: %s\n", cheapest.Label)
	}
}

func writeHistoryCSV(path string, points []history.Point) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"week_index", "week_label", "departure_date", "price"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			strconv.Itoa(p.WeekIndex),
			p.WeekLabel,
			p.DepartureDate,
			p.Price.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeHistoryPNG(path string, h history.History) error {
	if len(h.Points) == 0 {
		return errors.New("no points to chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]float64, len(h.Points))
	prices := make([]float64, len(h.Points))
	average := make([]float64, len(h.Points))
	ticks := make([]chart.Tick, len(h.Points))

	avg := h.Stats.Average.InexactFloat64()
	for i, p := range h.Points {
		x[i] = float64(i)
		prices[i] = p.Price.InexactFloat64()
		average[i] = avg
		ticks[i] = chart.Tick{Value: float64(i), Label: p.WeekLabel}
	}

	// Explicit ranges keep a single point or a flat series renderable.
	minY := h.Stats.Min.InexactFloat64()
	maxY := h.Stats.Max.InexactFloat64()
	pad := (maxY - minY) * 0.1
	if pad == 0 {
		pad = maxY*0.05 + 1
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Ticks: ticks,
			Range: &chart.ContinuousRange{Min: -0.5, Max: float64(len(h.Points)) - 0.5},
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
			Range:          &chart.ContinuousRange{Min: minY - pad, Max: maxY + pad},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Cheapest fare",
				XValues: x,
				YValues: prices,
			},
			chart.ContinuousSeries{
				Name:    "Average",
				XValues: x,
				YValues: average,
				Style: chart.Style{
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
