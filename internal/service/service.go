package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"flight-deal-alerts/internal/alerting"
	"flight-deal-alerts/internal/deals"
	"flight-deal-alerts/internal/fallback"
	"flight-deal-alerts/internal/fetcher"
	"flight-deal-alerts/internal/history"
	"flight-deal-alerts/internal/scheduler"
	"flight-deal-alerts/internal/storage"
)

// ErrInvalidInput wraps query and alert validation failures.
var ErrInvalidInput = errors.New("invalid input")

// Recorder receives service-level telemetry.
type Recorder interface {
	ObserveOutcome(operation, provenance, cause string)
	AlertFired()
	ObserveSweep(elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOutcome(string, string, string) {}
func (nopRecorder) AlertFired()                           {}
func (nopRecorder) ObserveSweep(time.Duration)            {}

// Options carry the search defaults and sweep settings.
type Options struct {
	DefaultOrigin   string
	DefaultMaxPrice decimal.Decimal
	// HistoryWeeksFrom/To bound the cheapest-date window relative to today.
	// Both zero leaves the window to the upstream.
	HistoryWeeksFrom int
	HistoryWeeksTo   int
	AlertsEnabled    bool
	LockKey          int64
	Now              func() time.Time
}

// Dependencies are the collaborators of the service. Repository, Notifier,
// Scheduler and Recorder are optional.
type Dependencies struct {
	Destinations fetcher.DestinationSearcher
	Dates        fetcher.DateSearcher
	Repository   storage.Repository
	Notifier     alerting.Notifier
	Scheduler    *scheduler.Scheduler
	Recorder     Recorder
}

// Service orchestrates searches, the fallback policy and alert sweeps.
type Service struct {
	destinations fetcher.DestinationSearcher
	dates        fetcher.DateSearcher
	repo         storage.Repository
	notifier     alerting.Notifier
	scheduler    *scheduler.Scheduler
	recorder     Recorder
	validate     *validator.Validate
	tracer       trace.Tracer
	logger       zerolog.Logger

	opts Options
	now  func() time.Time
}

// New constructs the service.
func New(opts Options, deps Dependencies, logger zerolog.Logger) *Service {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	opts.DefaultOrigin = strings.ToUpper(strings.TrimSpace(opts.DefaultOrigin))

	return &Service{
		destinations: deps.Destinations,
		dates:        deps.Dates,
		repo:         deps.Repository,
		notifier:     deps.Notifier,
		scheduler:    deps.Scheduler,
		recorder:     recorder,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		tracer:       otel.Tracer("flight-deal-alerts/service"),
		logger:       logger.With().Str("component", "service").Logger(),
		opts:         opts,
		now:          now,
	}
}

// DealsQuery asks for inspiration deals. Zero values take the configured defaults.
type DealsQuery struct {
	Origin    string
	MaxPrice  decimal.Decimal
	Departure *time.Time
}

// Deals runs an inspiration search and applies the fallback policy. The error
// is non-nil only for invalid input; upstream failures become fallback outcomes.
func (s *Service) Deals(ctx context.Context, q DealsQuery) (fallback.Outcome[[]deals.FlightDeal], error) {
	query := fetcher.DestinationQuery{
		Origin:        s.resolveOrigin(q.Origin),
		MaxPrice:      q.MaxPrice,
		DepartureDate: q.Departure,
	}
	if !query.MaxPrice.IsPositive() {
		query.MaxPrice = s.opts.DefaultMaxPrice
	}
	if err := s.validate.Struct(query); err != nil {
		return fallback.Outcome[[]deals.FlightDeal]{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var normalized []deals.FlightDeal
	raw, err := s.destinations.SearchDestinations(ctx, query)
	if err == nil {
		normalized = deals.Normalize(raw)
	}
	outcome := fallback.Decide(normalized, err, func(d []deals.FlightDeal) bool { return len(d) == 0 }, fallback.DemoDeals)
	s.observe("deals", outcome.Provenance, outcome.Cause, outcome.Err, query.Origin, "")
	return outcome, nil
}

// HistoryQuery asks for the weekly price series of one route.
type HistoryQuery struct {
	Origin      string
	Destination string
	MaxPrice    *decimal.Decimal
	Window      *fetcher.DateWindow
	// ReferencePrice scales the sample series used on fallback.
	ReferencePrice decimal.Decimal
}

// History runs a cheapest-date search, aggregates it and applies the fallback
// policy. The error is non-nil only for invalid input.
func (s *Service) History(ctx context.Context, q HistoryQuery) (fallback.Outcome[history.History], error) {
	query := fetcher.DateQuery{
		Origin:      s.resolveOrigin(q.Origin),
		Destination: strings.ToUpper(strings.TrimSpace(q.Destination)),
		MaxPrice:    q.MaxPrice,
		Window:      q.Window,
	}
	if query.Window == nil {
		query.Window = s.defaultWindow()
	}
	if err := s.validate.Struct(query); err != nil {
		return fallback.Outcome[history.History]{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if query.Window != nil && query.Window.To.Before(query.Window.From) {
		return fallback.Outcome[history.History]{}, fmt.Errorf("%w: window ends before it starts", ErrInvalidInput)
	}

	reference := q.ReferencePrice
	if !reference.IsPositive() && q.MaxPrice != nil {
		reference = *q.MaxPrice
	}

	var built history.History
	raw, err := s.dates.SearchDates(ctx, query)
	if err == nil {
		built = history.Build(raw)
	}
	outcome := fallback.Decide(built, err,
		func(h history.History) bool { return len(h.Points) == 0 },
		func() history.History { return fallback.DemoHistory(reference) },
	)
	s.observe("history", outcome.Provenance, outcome.Cause, outcome.Err, query.Origin, query.Destination)

	// Lead-time quotes are scaled from the caller's reference, else the series average.
	base := q.ReferencePrice
	if !base.IsPositive() {
		base = outcome.Data.Stats.Average
	}
	outcome.Data.LeadTimes = history.CompareLeadTimes(base)
	return outcome, nil
}

func (s *Service) observe(operation string, provenance fallback.Provenance, cause fallback.Cause, err error, origin, destination string) {
	s.recorder.ObserveOutcome(operation, string(provenance), string(cause))
	if provenance == fallback.Live {
		return
	}
	event := s.logger.Warn()
	if err == nil {
		event = s.logger.Info()
	}
	event.Err(err).
		Str("operation", operation).
		Str("origin", origin).
		Str("destination", destination).
		Str("cause", string(cause)).
		Msg("serving sample data")
}

func (s *Service) resolveOrigin(origin string) string {
	if trimmed := strings.TrimSpace(origin); trimmed != "" {
		return strings.ToUpper(trimmed)
	}
	return s.opts.DefaultOrigin
}

func (s *Service) defaultWindow() *fetcher.DateWindow {
	if s.opts.HistoryWeeksFrom == 0 && s.opts.HistoryWeeksTo == 0 {
		return nil
	}
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return &fetcher.DateWindow{
		From: today.AddDate(0, 0, 7*s.opts.HistoryWeeksFrom),
		To:   today.AddDate(0, 0, 7*s.opts.HistoryWeeksTo),
	}
}

// AlertInput describes a new price alert.
type AlertInput struct {
	Origin      string
	Destination string
	Threshold   decimal.Decimal
	Currency    string
}

// CreateAlert validates and registers an alert.
func (s *Service) CreateAlert(ctx context.Context, in AlertInput) (storage.PriceAlert, error) {
	repo, err := s.repository()
	if err != nil {
		return storage.PriceAlert{}, err
	}
	alert := storage.PriceAlert{
		Origin:      s.resolveOrigin(in.Origin),
		Destination: strings.ToUpper(strings.TrimSpace(in.Destination)),
		Threshold:   in.Threshold,
		Currency:    strings.ToUpper(strings.TrimSpace(in.Currency)),
	}
	if err := s.validate.Struct(alert); err != nil {
		return storage.PriceAlert{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !alert.Threshold.IsPositive() {
		return storage.PriceAlert{}, fmt.Errorf("%w: threshold must be positive", ErrInvalidInput)
	}

	created, err := repo.CreateAlert(ctx, alert)
	if err != nil {
		return storage.PriceAlert{}, err
	}
	s.logger.Info().
		Str("alert_id", created.ID.String()).
		Str("origin", created.Origin).
		Str("destination", created.Destination).
		Str("threshold", created.Threshold.String()).
		Msg("alert registered")
	return created, nil
}

// ListAlerts lists registered alerts.
func (s *Service) ListAlerts(ctx context.Context, activeOnly bool) ([]storage.PriceAlert, error) {
	repo, err := s.repository()
	if err != nil {
		return nil, err
	}
	return repo.ListAlerts(ctx, activeOnly)
}

// DeactivateAlert switches an alert off without firing it.
func (s *Service) DeactivateAlert(ctx context.Context, id uuid.UUID) error {
	repo, err := s.repository()
	if err != nil {
		return err
	}
	return repo.DeactivateAlert(ctx, id, nil)
}

// Snapshots lists the most recently recorded prices.
func (s *Service) Snapshots(ctx context.Context, limit int) ([]storage.PriceSnapshot, error) {
	repo, err := s.repository()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return repo.ListRecentSnapshots(ctx, limit)
}

func (s *Service) repository() (storage.Repository, error) {
	if s.repo == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.repo, nil
}

// Run begins the scheduled sweep loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, slot time.Time) error {
		_, err := s.ProcessSlot(ctx, slot)
		return err
	})
}

// ProcessSlot runs one sweep under the advisory lock. A lock held elsewhere
// skips the slot.
func (s *Service) ProcessSlot(ctx context.Context, slot time.Time) (SweepReport, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return SweepReport{}, err
	}
	if !proceed {
		s.logger.Debug().Time("slot", slot).Msg("skip slot because advisory lock held elsewhere")
		return SweepReport{Skipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}
	return s.SweepAlerts(ctx, slot)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.repo == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.repo.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// SimulateAlert pushes one signal through the configured notifier.
func (s *Service) SimulateAlert(ctx context.Context, origin string, signal alerting.Signal, currency string) error {
	if s.notifier == nil {
		return fmt.Errorf("notifier not configured")
	}
	origin = s.resolveOrigin(origin)
	note := alerting.Notification{
		Signal:   signal,
		AlertID:  "simulation",
		Origin:   origin,
		Currency: currency,
		At:       s.now().UTC(),
		Note:     "(simulated alert)",
	}
	if note.Signal.Destination != "" {
		note.BookingURL = deals.BookingURL(origin, note.Signal.Destination, "", "")
	}
	return s.notifier.Notify(ctx, note)
}
