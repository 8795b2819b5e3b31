// Package retry runs bounded polling loops shared by the mail poller and the token extractors.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when every attempt ran without a result
var ErrExhausted = errors.New("attempts exhausted")

// Policy bounds a polling loop. Attempts <= 0 means unbounded and requires a Timeout or a context deadline.
type Policy struct {
	Attempts int
	Interval time.Duration
	Timeout  time.Duration
}

// Func is one attempt. It reports done when a result was found; a non-nil error stops the loop immediately.
type Func[T any] func(ctx context.Context, attempt int) (result T, done bool, err error)

// Poll calls fn until it reports done, returns an error, the attempts run out or the context ends.
// It returns the result with the 1-based attempt it was found on. There is no wait after the last attempt.
func Poll[T any](ctx context.Context, p Policy, fn Func[T]) (T, int, error) {
	var zero T

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	for attempt := 1; p.Attempts <= 0 || attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}

		result, done, err := fn(ctx, attempt)
		if err != nil {
			return zero, attempt, err
		}
		if done {
			return result, attempt, nil
		}

		if p.Attempts > 0 && attempt == p.Attempts {
			break
		}

		if err := Sleep(ctx, p.Interval); err != nil {
			return zero, attempt, err
		}
	}

	return zero, p.Attempts, ErrExhausted
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
