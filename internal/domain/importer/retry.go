package importer

import (
	"context"
	"errors"
	"time"
)

// ErrRetriesExhausted indicates a poll loop hit its attempt ceiling.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy is a bounded fixed-interval retry loop, shared by the
// providers' poll sequences.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Do invokes fn until it reports done, returns an error, the attempt
// ceiling is hit, or the context is canceled.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) (bool, error)) error {
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Interval):
		}
	}
	return ErrRetriesExhausted
}
