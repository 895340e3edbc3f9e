package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"flight-deal-alerts/internal/app"
)

var (
	alertOpts     app.AlertOptions
	alertsListAll bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alerts",
}

var alertsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a price alert for a route",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertOpts.Threshold <= 0 {
			return errors.New("--threshold must be greater than zero")
		}
		return getApp().AddAlert(cmd.Context(), alertOpts)
	},
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListAlerts(cmd.Context(), alertsListAll)
	},
}

var alertsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Switch an alert off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().DeactivateAlert(cmd.Context(), args[0])
	},
}

func init() {
	alertsAddCmd.Flags().StringVar(&alertOpts.Origin, "origin", "", "Origin IATA code (defaults to config)")
	alertsAddCmd.Flags().StringVar(&alertOpts.Destination, "destination", "", "Destination IATA code")
	alertsAddCmd.Flags().Float64Var(&alertOpts.Threshold, "threshold", 0, "Notify when the price is at or below this value")
	alertsAddCmd.Flags().StringVar(&alertOpts.Currency, "currency", "KRW", "Currency of the threshold")
	_ = alertsAddCmd.MarkFlagRequired("destination")

	alertsListCmd.Flags().BoolVar(&alertsListAll, "all", false, "Include deactivated alerts")

	alertsCmd.AddCommand(alertsAddCmd, alertsListCmd, alertsDeactivateCmd)
}
