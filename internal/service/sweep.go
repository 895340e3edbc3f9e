package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flight-deal-alerts/internal/alerting"
	"flight-deal-alerts/internal/deals"
	"flight-deal-alerts/internal/fallback"
	"flight-deal-alerts/internal/storage"
)

// SweepReport summarises one alert sweep.
type SweepReport struct {
	Checked  int  `json:"checked"`
	Live     int  `json:"live"`
	Fired    int  `json:"fired"`
	Failed   int  `json:"failed"`
	Skipped  bool `json:"skipped"`
	Disabled bool `json:"disabled"`
}

// SweepAlerts evaluates every active alert once. Only live data can fire an
// alert; sample data is never compared with a threshold. A fired alert is
// deactivated after successful delivery, so each alert fires at most once.
// Failures on individual alerts are logged and counted, not returned.
func (s *Service) SweepAlerts(ctx context.Context, at time.Time) (SweepReport, error) {
	repo, err := s.repository()
	if err != nil {
		return SweepReport{}, err
	}

	ctx, span := s.tracer.Start(ctx, "alerts.sweep", trace.WithAttributes(attribute.String("slot", at.UTC().Format(time.RFC3339))))
	defer span.End()
	started := s.now()
	defer func() { s.recorder.ObserveSweep(s.now().Sub(started)) }()

	alerts, err := repo.ListAlerts(ctx, true)
	if err != nil {
		span.RecordError(err)
		return SweepReport{}, err
	}

	report := SweepReport{Disabled: !s.opts.AlertsEnabled}
	for _, alert := range alerts {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++
		s.sweepOne(ctx, repo, alert, at, &report)
	}

	span.SetAttributes(
		attribute.Int("alerts.checked", report.Checked),
		attribute.Int("alerts.fired", report.Fired),
	)
	s.logger.Info().
		Time("slot", at).
		Int("checked", report.Checked).
		Int("live", report.Live).
		Int("fired", report.Fired).
		Int("failed", report.Failed).
		Msg("alert sweep complete")
	return report, nil
}

func (s *Service) sweepOne(ctx context.Context, repo storage.Repository, alert storage.PriceAlert, at time.Time, report *SweepReport) {
	logger := s.logger.With().
		Str("alert_id", alert.ID.String()).
		Str("origin", alert.Origin).
		Str("destination", alert.Destination).
		Logger()

	outcome, err := s.History(ctx, HistoryQuery{Origin: alert.Origin, Destination: alert.Destination})
	if err != nil {
		report.Failed++
		logger.Error().Err(err).Msg("alert has an invalid route")
		return
	}
	if outcome.Provenance != fallback.Live {
		logger.Info().Str("reason", outcome.Reason).Msg("no live data; alert not evaluated")
		return
	}
	report.Live++

	latest, ok := outcome.Data.Latest()
	if !ok {
		return
	}
	if latest.PriceMissing {
		logger.Warn().Str("departure", latest.DepartureDate).Msg("latest price unreadable; alert not evaluated")
		return
	}
	currency := latest.Currency
	if currency == "" {
		currency = alert.Currency
	}
	signal, fire := alerting.Evaluate(alert.Destination, outcome.Data.Points, alert.Threshold)
	fire = fire && s.opts.AlertsEnabled

	alertID := alert.ID
	snapshot := storage.PriceSnapshot{
		AlertID:       &alertID,
		Origin:        alert.Origin,
		Destination:   alert.Destination,
		DepartureDate: latest.DepartureDate,
		Price:         latest.Price,
		Currency:      currency,
		Provenance:    string(outcome.Provenance),
		ObservedAt:    at.UTC(),
	}

	if fire {
		fire = s.deliver(ctx, repo, alert, signal, latest.DepartureDate, currency, at, logger)
		if fire {
			report.Fired++
		} else {
			report.Failed++
		}
	}
	snapshot.Triggered = fire

	if _, err := repo.InsertSnapshot(ctx, snapshot); err != nil {
		logger.Error().Err(err).Msg("failed to record price snapshot")
	}
}

// deliver notifies and deactivates. It reports whether the alert fired; a
// failed notification leaves the alert active for the next sweep.
func (s *Service) deliver(ctx context.Context, repo storage.Repository, alert storage.PriceAlert, signal alerting.Signal, departure, currency string, at time.Time, logger zerolog.Logger) bool {
	if s.notifier == nil {
		logger.Warn().Msg("threshold crossed but no notifier configured")
		return false
	}
	note := alerting.Notification{
		Signal:     signal,
		AlertID:    alert.ID.String(),
		Origin:     alert.Origin,
		Currency:   currency,
		At:         at.UTC(),
		BookingURL: deals.BookingURL(alert.Origin, alert.Destination, departure, ""),
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		logger.Error().Err(err).Msg("failed to dispatch alert")
		return false
	}

	triggeredAt := at.UTC()
	if err := repo.DeactivateAlert(ctx, alert.ID, &triggeredAt); err != nil {
		logger.Error().Err(err).Msg("alert delivered but could not be deactivated")
	}
	s.recorder.AlertFired()
	logger.Info().Str("price", signal.Price.String()).Str("threshold", signal.Threshold.String()).Msg("alert fired")
	return true
}
