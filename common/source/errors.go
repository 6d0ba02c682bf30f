package source

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
)

// Kind classifies a source API failure so recovery policy can branch on it
// without inspecting messages.
type Kind int

const (
	// KindRateLimited means the upstream throttled us; the caller must back
	// off before retrying.
	KindRateLimited Kind = iota
	// KindTransient covers network failures and upstream 5xx; retried with
	// bounded attempts.
	KindTransient
	// KindUnavailable means the content is gone (deleted, private, banned);
	// treated as an empty result, not a failure.
	KindUnavailable
	// KindAuth means credentials were rejected; fatal for the whole job.
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindUnavailable:
		return "unavailable"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is a classified source API failure. RetryAfter carries the upstream
// cooldown hint when the API supplied one.
type Error struct {
	Kind       Kind
	Op         string
	RetryAfter mo.Option[time.Duration]
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("source %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a classified source failure.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, RetryAfter: mo.None[time.Duration](), Err: err}
}

// NewRateLimitError builds a rate-limit failure carrying an optional
// upstream cooldown hint.
func NewRateLimitError(op string, hint mo.Option[time.Duration], err error) *Error {
	return &Error{Kind: KindRateLimited, Op: op, RetryAfter: hint, Err: err}
}

// KindOf returns the classification of err, or KindTransient when err is not
// a source Error: an unclassified failure gets the bounded-retry treatment
// rather than aborting the job.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// IsRateLimited reports whether err is an upstream throttle signal.
func IsRateLimited(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindRateLimited
}

// IsTransient reports whether err should be retried with bounded attempts.
func IsTransient(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == KindTransient
	}
	return false
}

// IsUnavailable reports whether err means the content is gone.
func IsUnavailable(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindUnavailable
}

// IsAuth reports whether err is a fatal credential rejection.
func IsAuth(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindAuth
}

// RetryAfterHint extracts the upstream cooldown hint from err, if any.
func RetryAfterHint(err error) mo.Option[time.Duration] {
	var se *Error
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return mo.None[time.Duration]()
}
