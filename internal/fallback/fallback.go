// Package fallback converts upstream results and failures into presentable
// outcomes that always carry data and say where it came from.
package fallback

import (
	"errors"

	"flight-deal-alerts/internal/fetcher"
)

// Provenance tells the caller whether data is live or sample data.
type Provenance string

const (
	Live     Provenance = "live"
	Fallback Provenance = "fallback"
)

// Reasons shown alongside fallback data.
const (
	ReasonEmpty       = "no matching deals; showing sample data"
	ReasonUnavailable = "upstream rate-limited or unavailable"
	ReasonRejected    = "upstream rejected the request; showing sample data"
	ReasonUnreadable  = "upstream returned an unreadable response; showing sample data"
	ReasonAuth        = "could not authenticate with upstream; showing sample data"
)

// Cause is a low-cardinality classification of why an outcome fell back.
type Cause string

const (
	CauseNone        Cause = ""
	CauseEmpty       Cause = "empty"
	CauseUnavailable Cause = "unavailable"
	CauseRejected    Cause = "rejected"
	CauseDecode      Cause = "decode"
	CauseAuth        Cause = "auth"
)

// Outcome is what callers present. Data is never the zero value of a failed
// call: on fallback it holds the demo dataset.
type Outcome[T any] struct {
	Data       T          `json:"data"`
	Provenance Provenance `json:"provenance"`
	Reason     string     `json:"reason,omitempty"`
	Cause      Cause      `json:"-"`
	Err        error      `json:"-"`
}

// IsLive reports whether the outcome carries upstream data.
func (o Outcome[T]) IsLive() bool { return o.Provenance == Live }

// Decide applies the degradation policy: any error or an empty result yields
// the demo data with a reason; a non-empty success is live.
func Decide[T any](data T, err error, isEmpty func(T) bool, demo func() T) Outcome[T] {
	if err == nil {
		if isEmpty != nil && isEmpty(data) {
			return Outcome[T]{Data: demo(), Provenance: Fallback, Reason: ReasonEmpty, Cause: CauseEmpty}
		}
		return Outcome[T]{Data: data, Provenance: Live}
	}
	cause, reason := Classify(err)
	return Outcome[T]{Data: demo(), Provenance: Fallback, Reason: reason, Cause: cause, Err: err}
}

// Classify maps an upstream error to its cause and user-facing reason.
// Transport failures, deadlines and anything unrecognised count as unavailable.
func Classify(err error) (Cause, string) {
	var (
		authErr   *fetcher.AuthError
		httpErr   *fetcher.HTTPError
		decodeErr *fetcher.DecodeError
	)
	switch {
	case err == nil:
		return CauseNone, ""
	case errors.As(err, &authErr):
		return CauseAuth, ReasonAuth
	case errors.As(err, &decodeErr):
		return CauseDecode, ReasonUnreadable
	case errors.As(err, &httpErr):
		if httpErr.Transient() || httpErr.Status < 400 {
			return CauseUnavailable, ReasonUnavailable
		}
		return CauseRejected, ReasonRejected
	default:
		return CauseUnavailable, ReasonUnavailable
	}
}
