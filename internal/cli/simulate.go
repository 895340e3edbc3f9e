package cli

import (
	"github.com/spf13/cobra"

	"flight-deal-alerts/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push one price signal through the configured notifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateOpts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.Origin, "origin", "", "Origin IATA code (defaults to config)")
	simulateCmd.Flags().StringVar(&simulateOpts.Destination, "destination", "NRT", "Destination IATA code")
	simulateCmd.Flags().Float64Var(&simulateOpts.Price, "price", 0, "Observed price")
	simulateCmd.Flags().Float64Var(&simulateOpts.Threshold, "threshold", 0, "Alert threshold")
	simulateCmd.Flags().StringVar(&simulateOpts.Currency, "currency", "KRW", "Currency of price and threshold")
}
