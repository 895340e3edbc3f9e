package cli

import (
	"github.com/spf13/cobra"

	"flight-deal-alerts/internal/app"
)

var (
	dealsOrigin    string
	dealsMaxPrice  float64
	dealsDeparture string
)

var dealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "Show this week's and next week's cheapest destinations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Deals(cmd.Context(), app.DealsOptions{
			Origin:    dealsOrigin,
			MaxPrice:  dealsMaxPrice,
			Departure: dealsDeparture,
		})
	},
}

func init() {
	dealsCmd.Flags().StringVar(&dealsOrigin, "origin", "", "Origin IATA code (defaults to config)")
	dealsCmd.Flags().Float64Var(&dealsMaxPrice, "max-price", 0, "Maximum price (defaults to config)")
	dealsCmd.Flags().StringVar(&dealsDeparture, "departure", "", "Departure date yyyy-mm-dd; past dates are ignored")
}
