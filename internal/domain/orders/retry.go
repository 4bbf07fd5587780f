package orders

import (
	"net/http"
	"time"
)

// RetryPolicy decides whether a lookup attempt with a given HTTP status is
// retried, and after what delay. Kept separate from the HTTP client so the
// policy is testable without any transport.
type RetryPolicy struct {
	// ThrottleMax is the maximum number of retries after a 429
	ThrottleMax int
	// BackoffBase is the base delay for exponential throttle backoff
	BackoffBase time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ThrottleMax: 1,
		BackoffBase: 500 * time.Millisecond,
	}
}

// ShouldRetry reports whether the attempt numbered attempt (1-based) that
// ended with status should be retried, and the delay before the next attempt.
//
// Policy, by business meaning of each status:
//   - 401: retried exactly once with a freshly signed request, to tolerate
//     clock skew or a nonce collision. A second 401 is an auth problem, not
//     a rate problem, and is never retried again.
//   - 429: retried up to ThrottleMax times with delay base * 2^(attempt-1).
//   - 404 and 422 encode a data mismatch and a malformed payload; retrying
//     changes nothing and only spends rate budget, so they never retry.
//   - Anything else is not a retry case at this layer.
func (p RetryPolicy) ShouldRetry(status, attempt int) (bool, time.Duration) {
	switch status {
	case http.StatusUnauthorized:
		return attempt == 1, 0
	case http.StatusTooManyRequests:
		if attempt > p.ThrottleMax {
			return false, 0
		}
		return true, p.BackoffBase << (attempt - 1)
	default:
		return false, 0
	}
}
