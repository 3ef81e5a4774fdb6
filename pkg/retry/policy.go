package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy is the retry configuration for one capability adapter
type Policy struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
	Jitter         float64       `mapstructure:"jitter"`

	// Retryable decides whether an error is worth another attempt.
	// A nil Retryable retries every error.
	Retryable func(error) bool `mapstructure:"-"`

	// OnRetry is called before sleeping between attempts.
	OnRetry func(err error, wait time.Duration) `mapstructure:"-"`
}

// DefaultPolicy returns the policy used when an adapter is not configured explicitly
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2,
		Jitter:         0.2,
		Retryable:      IsTransient,
	}
}

// NoRetry runs the operation exactly once
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// WithRetryable returns a copy of the policy using the given classifier
func (p Policy) WithRetryable(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

// WithOnRetry returns a copy of the policy with a retry hook
func (p Policy) WithOnRetry(fn func(err error, wait time.Duration)) Policy {
	p.OnRetry = fn
	return p
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		b.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	return b
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// policy runs out of attempts. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	op := func() (T, error) {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(p.OnRetry)))
	}

	return backoff.Retry(ctx, op, opts...)
}

// Run is Do for operations without a result
func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// StatusCoder is implemented by adapter errors that carry an HTTP status
type StatusCoder interface {
	HTTPStatusCode() int
}

// RetryableStatus reports whether an HTTP status is worth retrying
func RetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

// IsTransient classifies network failures and 408/429/5xx responses as retryable
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return RetryableStatus(sc.HTTPStatusCode())
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
