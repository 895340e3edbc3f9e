package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flight-deal-alerts/internal/alerting"
	"flight-deal-alerts/internal/config"
	"flight-deal-alerts/internal/fetcher"
	"flight-deal-alerts/internal/httpapi"
	"flight-deal-alerts/internal/metrics"
	"flight-deal-alerts/internal/scheduler"
	"flight-deal-alerts/internal/service"
	"flight-deal-alerts/internal/storage"
	"flight-deal-alerts/internal/tracing"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Recorder
	// Out receives command output. Defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		Metrics: metrics.New(),
		Out:     os.Stdout,
	}
}

// missingCredentials stands in for the token manager when no client
// credentials are configured, so every search falls back without a round trip.
type missingCredentials struct{}

func (missingCredentials) Token(context.Context) (string, error) {
	return "", &fetcher.AuthError{Err: errors.New("amadeus client credentials not configured")}
}

func (a *App) newFetcher() *fetcher.Amadeus {
	cfg := a.Config.Amadeus

	var tokens fetcher.TokenSource = missingCredentials{}
	if a.Config.HasCredentials() {
		tokens = fetcher.NewTokenManager(fetcher.TokenOptions{
			BaseURL:      cfg.BaseURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Margin:       cfg.TokenMargin,
			Timeout:      cfg.RequestTimeout,
			Observer:     a.Metrics,
		}, a.Logger)
	} else {
		a.Logger.Warn().Msg("amadeus credentials not configured; serving sample data")
	}

	return fetcher.NewAmadeus(fetcher.AmadeusOptions{
		BaseURL:       cfg.BaseURL,
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.RequestTimeout,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
		Observer:      a.Metrics,
	}, tokens, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(alerting.TelegramOptions{
			BotToken: cfg.BotToken,
			ChatID:   cfg.ChatID,
			BaseURL:  cfg.APIBase,
			RetryMax: cfg.RetryMax,
		}, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.Repository, func(), error) {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; alerts kept in memory for this process only")
	}
	repo, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return repo, repo.Close, nil
}

// newService wires the service. sched may be nil for one-shot commands.
func (a *App) newService(repo storage.Repository, sched *scheduler.Scheduler) *service.Service {
	client := a.newFetcher()
	return service.New(service.Options{
		DefaultOrigin:    a.Config.Search.DefaultOrigin,
		DefaultMaxPrice:  decimal.NewFromFloat(a.Config.Search.DefaultMaxPrice),
		HistoryWeeksFrom: a.Config.History.WeeksFrom,
		HistoryWeeksTo:   a.Config.History.WeeksTo,
		AlertsEnabled:    a.Config.Alerting.Enabled,
		LockKey:          a.Config.Scheduler.AdvisoryLockKey,
	}, service.Dependencies{
		Destinations: client,
		Dates:        client,
		Repository:   repo,
		Notifier:     a.newNotifier(),
		Scheduler:    sched,
		Recorder:     a.Metrics,
	}, a.Logger)
}

// withService opens the store, builds a one-shot service and runs fn.
func (a *App) withService(ctx context.Context, fn func(*service.Service) error) error {
	repo, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(a.newService(repo, nil))
}

func (a *App) startTracing(ctx context.Context) (func(), error) {
	shutdown, err := tracing.Init(ctx, a.Config.Tracing, a.Logger)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			a.Logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}, nil
}

// Watch executes the long-running alert sweep service.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stopTracing, err := a.startTracing(ctx)
	if err != nil {
		return err
	}
	defer stopTracing()

	repo, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched, err := scheduler.New(scheduler.Options{
		Interval:        a.Config.Scheduler.Interval,
		AlignToInterval: a.Config.Scheduler.AlignToInterval,
		StartupDelay:    a.Config.Scheduler.StartupDelay,
		RunOnStart:      a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc := a.newService(repo, sched)

	a.Logger.Info().Dur("interval", sched.Interval()).Msg("starting alert watcher")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watcher terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert watcher stopped")
	return nil
}

// Serve runs the HTTP API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stopTracing, err := a.startTracing(ctx)
	if err != nil {
		return err
	}
	defer stopTracing()

	repo, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := httpapi.New(httpapi.Options{
		Addr:              a.Config.Server.Addr,
		ReadHeaderTimeout: a.Config.Server.ReadHeaderTimeout,
		RequestsPerMinute: a.Config.Server.RequestsPerMinute,
	}, a.newService(repo, nil), a.Metrics, a.Logger)
	return srv.Run(ctx)
}

// DealsOptions configure the deals command.
type DealsOptions struct {
	Origin    string
	MaxPrice  float64
	Departure string
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Origin         string
	Destination    string
	MaxPrice       float64
	ReferencePrice float64
	BookedPrice    string
	CSVPath        string
	PNGPath        string
}

// AlertOptions describe a new alert.
type AlertOptions struct {
	Origin      string
	Destination string
	Threshold   float64
	Currency    string
}

// ShowOptions configure the snapshots command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions describe a simulated alert.
type SimulateOptions struct {
	Origin      string
	Destination string
	Price       float64
	Threshold   float64
	Currency    string
}
