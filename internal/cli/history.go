package cli

import (
	"github.com/spf13/cobra"

	"flight-deal-alerts/internal/app"
)

var historyOpts app.HistoryOptions

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the weekly price series for a route, optionally as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().History(cmd.Context(), historyOpts)
	},
}

func init() {
	flags := historyCmd.Flags()
	flags.StringVar(&historyOpts.Origin, "origin", "", "Origin IATA code (defaults to config)")
	flags.StringVar(&historyOpts.Destination, "destination", "", "Destination IATA code")
	flags.Float64Var(&historyOpts.MaxPrice, "max-price", 0, "Maximum price filter")
	flags.Float64Var(&historyOpts.ReferencePrice, "reference-price", 0, "Reference price for the sample series")
	flags.StringVar(&historyOpts.BookedPrice, "booked-price", "", "Price you paid, to compute the regret index")
	flags.StringVar(&historyOpts.CSVPath, "csv", "", "Path to write CSV data")
	flags.StringVar(&historyOpts.PNGPath, "png", "", "Path to write PNG chart")
	_ = historyCmd.MarkFlagRequired("destination")
}
