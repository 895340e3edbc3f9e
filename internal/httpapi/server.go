// Package httpapi serves deals, price history and the alert registry over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flight-deal-alerts/internal/deals"
	"flight-deal-alerts/internal/fallback"
	"flight-deal-alerts/internal/history"
	"flight-deal-alerts/internal/metrics"
	"flight-deal-alerts/internal/service"
	"flight-deal-alerts/internal/storage"
)

// Backend is the subset of the service the API exposes.
type Backend interface {
	Deals(ctx context.Context, q service.DealsQuery) (fallback.Outcome[[]deals.FlightDeal], error)
	History(ctx context.Context, q service.HistoryQuery) (fallback.Outcome[history.History], error)
	CreateAlert(ctx context.Context, in service.AlertInput) (storage.PriceAlert, error)
	ListAlerts(ctx context.Context, activeOnly bool) ([]storage.PriceAlert, error)
	DeactivateAlert(ctx context.Context, id uuid.UUID) error
}

var _ Backend = (*service.Service)(nil)

// Options configure the listener.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	RequestsPerMinute int
}

// Server wires the router to an http.Server.
type Server struct {
	opts     Options
	backend  Backend
	recorder *metrics.Recorder
	logger   zerolog.Logger
	router   chi.Router
}

// New builds the server. recorder may be nil, which disables /metrics.
func New(opts Options, backend Backend, recorder *metrics.Recorder, logger zerolog.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 10 * time.Second
	}
	s := &Server{
		opts:     opts,
		backend:  backend,
		recorder: recorder,
		logger:   logger.With().Str("component", "http_api").Logger(),
	}
	s.router = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	if s.recorder != nil {
		r.Method(http.MethodGet, "/metrics", s.recorder.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		if s.opts.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(s.opts.RequestsPerMinute, time.Minute))
		}
		r.Get("/origins", s.handleOrigins)
		r.Get("/deals", s.handleDeals)
		r.Get("/history", s.handleHistory)
		r.Get("/alerts", s.handleListAlerts)
		r.Post("/alerts", s.handleCreateAlert)
		r.Delete("/alerts/{id}", s.handleDeactivateAlert)
	})
	return r
}

// observe logs each request and records it in the metrics registry by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if s.recorder != nil && route != "/metrics" {
			s.recorder.ObserveHTTP(r.Method, route, ww.Status(), elapsed)
		}
		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", ww.Status()).
			Dur("elapsed", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request served")
	})
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info().Msg("http api stopped")
		return nil
	}
}
