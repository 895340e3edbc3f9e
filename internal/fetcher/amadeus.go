package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"flight-deal-alerts/internal/version"
)

const (
	destinationsPath = "/v1/shopping/flight-destinations"
	datesPath        = "/v1/shopping/flight-dates"
	defaultBaseURL   = "https://test.api.amadeus.com"
	tracerName       = "flight-deal-alerts/fetcher"
)

// AmadeusOptions parameterise the flight pricing client.
type AmadeusOptions struct {
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	HTTPClient    *http.Client
	Observer      Observer
	Now           func() time.Time
}

// Amadeus queries the Amadeus self-service shopping endpoints. It performs no
// retries; every failure is returned to the caller as-is.
type Amadeus struct {
	baseURL   string
	userAgent string
	tokens    TokenSource
	client    *http.Client
	limiter   *rate.Limiter
	observer  Observer
	now       func() time.Time
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewAmadeus constructs the client. tokens supplies the bearer token for every call.
func NewAmadeus(opts AmadeusOptions, tokens TokenSource, logger zerolog.Logger) *Amadeus {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = version.UserAgent()
	}

	return &Amadeus{
		baseURL:   baseURL,
		userAgent: userAgent,
		tokens:    tokens,
		client:    client,
		limiter:   limiter,
		observer:  observer,
		now:       now,
		tracer:    otel.Tracer(tracerName),
		logger:    logger.With().Str("component", "amadeus_fetcher").Logger(),
	}
}

// SearchDestinations runs a flight inspiration search. An empty result is a
// valid answer, not an error.
func (a *Amadeus) SearchDestinations(ctx context.Context, query DestinationQuery) ([]RawDestinationResult, error) {
	params := url.Values{}
	params.Set("origin", query.Origin)
	if query.MaxPrice.IsPositive() {
		params.Set("maxPrice", query.MaxPrice.Truncate(0).String())
	}
	params.Set("viewBy", "WEEK")
	// The upstream rejects departure dates in the past.
	if query.DepartureDate != nil && !dateOnly(*query.DepartureDate).Before(dateOnly(a.now())) {
		params.Set("departureDate", query.DepartureDate.Format(DateLayout))
	}

	var envelope dataEnvelope
	if err := a.get(ctx, destinationsPath, params, &envelope); err != nil {
		return nil, err
	}
	results, err := decodeRecords[RawDestinationResult](destinationsPath, envelope, a.logger)
	if err != nil {
		return nil, err
	}

	a.logger.Debug().Str("origin", query.Origin).Int("results", len(results)).Msg("destinations fetched")
	return results, nil
}

// SearchDates runs a cheapest-date search for one route. Without a window the
// date range is left to the upstream default.
func (a *Amadeus) SearchDates(ctx context.Context, query DateQuery) ([]RawDateResult, error) {
	params := url.Values{}
	params.Set("origin", query.Origin)
	params.Set("destination", query.Destination)
	params.Set("oneWay", "false")
	params.Set("nonStop", "false")
	params.Set("viewBy", "DURATION")
	if query.MaxPrice != nil && query.MaxPrice.IsPositive() {
		params.Set("maxPrice", query.MaxPrice.Truncate(0).String())
	}
	if query.Window != nil {
		params.Set("departureDate", query.Window.From.Format(DateLayout)+","+query.Window.To.Format(DateLayout))
	}

	var envelope dataEnvelope
	if err := a.get(ctx, datesPath, params, &envelope); err != nil {
		return nil, err
	}
	results, err := decodeRecords[RawDateResult](datesPath, envelope, a.logger)
	if err != nil {
		return nil, err
	}

	a.logger.Debug().Str("origin", query.Origin).Str("destination", query.Destination).Int("results", len(results)).Msg("dates fetched")
	return results, nil
}

func (a *Amadeus) get(ctx context.Context, path string, params url.Values, out any) (err error) {
	ctx, span := a.tracer.Start(ctx, "amadeus "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.route", path)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	token, err := a.tokens.Token(ctx)
	if err != nil {
		return err
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	endpoint := a.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)

	started := a.now()
	resp, err := a.client.Do(req)
	if err != nil {
		a.observer.ObserveRequest(path, 0, a.now().Sub(started))
		return fmt.Errorf("send %s request: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	a.observer.ObserveRequest(path, resp.StatusCode, a.now().Sub(started))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Endpoint: path, Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Endpoint: path, Body: truncate(string(body)), Err: err}
	}
	return nil
}

type dataEnvelope struct {
	Data *[]json.RawMessage `json:"data"`
}

// decodeRecords unmarshals each record on its own. A malformed record is
// skipped; the response fails only when there is no data array or when every
// record is malformed.
func decodeRecords[T any](endpoint string, envelope dataEnvelope, logger zerolog.Logger) ([]T, error) {
	if envelope.Data == nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: errors.New("response has no data array")}
	}

	raw := *envelope.Data
	out := make([]T, 0, len(raw))
	var firstErr error
	for i, item := range raw {
		var record T
		if err := json.Unmarshal(item, &record); err != nil {
			logger.Warn().Err(err).Str("endpoint", endpoint).Int("index", i).Msg("skipping malformed record")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, record)
	}
	if len(out) == 0 && firstErr != nil {
		return nil, &DecodeError{Endpoint: endpoint, Body: truncate(string(raw[0])), Err: firstErr}
	}
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var (
	_ DestinationSearcher = (*Amadeus)(nil)
	_ DateSearcher        = (*Amadeus)(nil)
)
