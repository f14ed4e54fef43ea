package index

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// maxBackoff caps the delay between attempts.
const maxBackoff = 30 * time.Second

// RetryableError indicates a transient failure: a network error, 429 or 5xx.
type RetryableError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	msg := e.Message
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return fmt.Sprintf("%s: retryable status %d: %s", e.Op, e.StatusCode, msg)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns the delay before retry n (0-indexed): base doubled per attempt,
// capped, plus up to 50% jitter.
func Backoff(base time.Duration, n uint) time.Duration {
	if n > 16 {
		n = 16
	}
	d := base << n
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}
