package agent

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"time"
)

type RetryConfig struct {
	Initial    time.Duration `mapstructure:"initial"`
	Max        time.Duration `mapstructure:"max"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type retrier struct {
	initial    time.Duration
	max        time.Duration
	maxRetries int
}

func newRetrier(cfg RetryConfig) *retrier {
	r := &retrier{initial: cfg.Initial, max: cfg.Max, maxRetries: cfg.MaxRetries}
	if r.initial <= 0 {
		r.initial = 500 * time.Millisecond
	}
	if r.max < r.initial {
		r.max = r.initial
	}
	if r.maxRetries < 0 {
		r.maxRetries = 0
	}
	return r
}

// do runs fn until it succeeds, returns a non-retryable error, exhausts the
// retry budget or ctx ends.
func (r *retrier) do(ctx context.Context, op string, fn func() error) error {
	var attempt int
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= r.maxRetries || !isRetryable(err) {
			return err
		}
		delay := backoffWithJitter(r.initial, r.max, attempt)
		slog.Warn("Retrying request", "op", op, "attempt", attempt+1, "sleep", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		attempt++
	}
}

func backoffWithJitter(initial, max time.Duration, attempt int) time.Duration {
	b := float64(initial) * math.Pow(2, float64(attempt))
	if b > float64(max) {
		b = float64(max)
	}
	j := b / 2
	return time.Duration(j + rand.Float64()*j)
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return false
}
