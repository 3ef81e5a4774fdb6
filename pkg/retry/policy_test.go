package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatusCode() int { return e.code }

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
		Retryable:      IsTransient,
	}
}

func TestDo(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", &statusErr{code: 503}
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
			calls++
			return 0, &statusErr{code: 400}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)

		var se *statusErr
		assert.True(t, errors.As(err, &se))
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := Run(context.Background(), fastPolicy(2), func(ctx context.Context) error {
			calls++
			return &statusErr{code: 429}
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("calls retry hook between attempts", func(t *testing.T) {
		var hooked int
		p := fastPolicy(3).WithOnRetry(func(err error, wait time.Duration) { hooked++ })
		_ = Run(context.Background(), p, func(ctx context.Context) error {
			return &statusErr{code: 500}
		})
		assert.Equal(t, 2, hooked)
	})

	t.Run("no retry policy runs once", func(t *testing.T) {
		calls := 0
		_ = Run(context.Background(), NoRetry(), func(ctx context.Context) error {
			calls++
			return errors.New("boom")
		})
		assert.Equal(t, 1, calls)
	})
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limited", err: &statusErr{code: 429}, want: true},
		{name: "server error", err: fmt.Errorf("wrapped: %w", &statusErr{code: 502}), want: true},
		{name: "bad request", err: &statusErr{code: 400}, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "plain error", err: errors.New("parse failure"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
