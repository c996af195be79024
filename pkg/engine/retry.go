package engine

import (
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/cachemodel"
)

// backoffSequence wraps a cenkalti/backoff ExponentialBackOff configured to
// the retry contract's multiplier-2, +/-25%-jitter schedule.
type backoffSequence struct {
	b *backoff.ExponentialBackOff
}

func newBackoff(base, max time.Duration) *backoffSequence {
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall time
	return &backoffSequence{b: b}
}

func (s *backoffSequence) next() time.Duration {
	d := s.b.NextBackOff()
	if d == backoff.Stop {
		return s.b.MaxInterval
	}
	return d
}

var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// retryable decides whether an attempt failing with err should be retried,
// per the method-gating and status-gating rules. hasIdempotencyKey reflects
// whether the call carried an Idempotency-Key header.
func retryable(err error, method string, retry cachemodel.RetryConfig, hasIdempotencyKey bool) bool {
	var netErr *aperrors.NetworkError
	if errors.As(err, &netErr) {
		return methodAllowsRetry(method, retry, hasIdempotencyKey)
	}

	var statusErr *aperrors.HttpStatusError
	if errors.As(err, &statusErr) {
		if !retryableStatus(statusErr.Status) {
			return false
		}
		return methodAllowsRetry(method, retry, hasIdempotencyKey)
	}

	return false
}

func retryableStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	if status >= 500 && status != http.StatusNotImplemented && status != http.StatusHTTPVersionNotSupported {
		return true
	}
	return false
}

// methodAllowsRetry implements the retry contract's method gate: a naturally
// idempotent method always may retry; a non-idempotent method (POST, PATCH,
// ...) may retry only when the call carries an idempotency key or the caller
// explicitly forced retries.
func methodAllowsRetry(method string, retry cachemodel.RetryConfig, hasIdempotencyKey bool) bool {
	if idempotentMethods[method] {
		return true
	}
	return hasIdempotencyKey || retry.ForceRetry
}

// retryAfterDelay extracts a previously-parsed Retry-After duration from a
// status error, if any.
func retryAfterDelay(err error) (time.Duration, bool) {
	var statusErr *aperrors.HttpStatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return statusErr.RetryAfter, true
	}
	return 0, false
}

// parseRetryAfter accepts either a delay in seconds or an HTTP-date.
func parseRetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := parseNonNegativeSeconds(header); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func parseNonNegativeSeconds(s string) (int64, error) {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNotNumeric
		}
		n = n*10 + int64(r-'0')
	}
	if len(s) == 0 {
		return 0, errNotNumeric
	}
	return n, nil
}

var errNotNumeric = errors.New("retry-after value is not numeric")
