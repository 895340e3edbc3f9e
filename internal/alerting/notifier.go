package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Notification wraps a signal with the context needed to render it.
type Notification struct {
	Signal     Signal
	AlertID    string
	Origin     string
	Currency   string
	At         time.Time
	BookingURL string
	Note       string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramOptions configures the Telegram notifier.
type TelegramOptions struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *retryablehttp.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier. Transient failures (network
// errors, 429 and 5xx) are retried with backoff.
func NewTelegramNotifier(opts TelegramOptions, logger zerolog.Logger) *TelegramNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 3 * time.Second
	client.HTTPClient.Timeout = opts.Timeout
	client.Logger = nil

	return &TelegramNotifier{
		botToken: opts.BotToken,
		chatID:   opts.ChatID,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		client:   client,
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().
		Str("alert_id", note.AlertID).
		Str("destination", note.Signal.Destination).
		Str("price", note.Signal.Price.String()).
		Msg("alert sent (telegram)")
	return nil
}

// LogNotifier writes notifications to the log. It is used when no delivery
// channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the signal at warn level.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Warn().
		Str("alert_id", note.AlertID).
		Str("origin", note.Origin).
		Str("destination", note.Signal.Destination).
		Str("price", note.Signal.Price.String()).
		Str("threshold", note.Signal.Threshold.String()).
		Str("currency", note.Currency).
		Str("booking_url", note.BookingURL).
		Msg("price alert")
	return nil
}

// RenderMessage formats a notification as plain text.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Flight Deal Alert]\n")
	route := note.Signal.Destination
	if note.Origin != "" {
		route = note.Origin + " → " + route
	}
	builder.WriteString(fmt.Sprintf("Route: %s\n", route))
	builder.WriteString(fmt.Sprintf("Price: %s %s\n", note.Signal.Price.StringFixed(0), note.Currency))
	builder.WriteString(fmt.Sprintf("Threshold: %s %s\n", note.Signal.Threshold.StringFixed(0), note.Currency))
	builder.WriteString(fmt.Sprintf("Below by: %s %s\n", note.Signal.Savings().StringFixed(0), note.Currency))
	if !note.At.IsZero() {
		builder.WriteString(fmt.Sprintf("Checked: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	}
	if note.BookingURL != "" {
		builder.WriteString(fmt.Sprintf("Book: %s\n", note.BookingURL))
	}
	if note.Note != "" {
		builder.WriteString(note.Note)
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
