package fetcher

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const maxErrorBody = 512

// AuthError reports a failed client-credentials exchange. Status is 0 when the
// request never produced a response.
type AuthError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status == 0 && e.Err != nil {
		return fmt.Sprintf("amadeus auth failed: %v", e.Err)
	}
	msg := summarize(e.Body)
	if e.Err != nil && msg == "" {
		msg = e.Err.Error()
	}
	if msg == "" {
		return fmt.Sprintf("amadeus auth failed (%d)", e.Status)
	}
	return fmt.Sprintf("amadeus auth failed (%d): %s", e.Status, msg)
}

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx answer from a data endpoint.
type HTTPError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	if msg := summarize(e.Body); msg != "" {
		return fmt.Sprintf("amadeus api error (%d) %s: %s", e.Status, e.Endpoint, msg)
	}
	return fmt.Sprintf("amadeus api error (%d) %s", e.Status, e.Endpoint)
}

// Transient reports whether the status signals rate limiting or an upstream outage.
func (e *HTTPError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// DecodeError is a 2xx response whose payload does not match the expected shape.
type DecodeError struct {
	Endpoint string
	Body     string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// summarize extracts a human message from the upstream error envelopes:
// {"errors":[{"title":..,"detail":..}]} for data endpoints and
// {"error":..,"error_description":..} for the token endpoint.
func summarize(body string) string {
	if body == "" {
		return ""
	}
	if gjson.Valid(body) {
		first := gjson.Get(body, "errors.0")
		if first.Exists() {
			title := first.Get("title").String()
			detail := first.Get("detail").String()
			switch {
			case title != "" && detail != "":
				return title + ": " + detail
			case detail != "":
				return detail
			case title != "":
				return title
			}
		}
		if desc := gjson.Get(body, "error_description").String(); desc != "" {
			return desc
		}
		if code := gjson.Get(body, "error").String(); code != "" {
			return code
		}
	}
	return truncate(strings.TrimSpace(body))
}

// truncate shortens s to at most maxErrorBody bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
