package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wayfind/pkg/schema"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"retryable code", schema.NewError(schema.ErrCodeStore, "write failed"), true},
		{"deterministic code", schema.NewError(schema.ErrCodeValidation, "bad args"), false},
		{"wrapped retryable code", fmt.Errorf("call: %w", schema.NewError(schema.ErrCodeTimeout, "slow")), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"too many requests", errors.New("upstream said too many requests"), true},
		{"plain failure", errors.New("parse error"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 5, Delay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, Backoff(p, 0))
	assert.Equal(t, 200*time.Millisecond, Backoff(p, 1))
	assert.Equal(t, 300*time.Millisecond, Backoff(p, 2), "capped at MaxDelay")
	assert.Equal(t, time.Duration(0), Backoff(Policy{}, 3))
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Delay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	want := schema.NewError(schema.ErrCodeValidation, "bad args")
	err := Do(context.Background(), Policy{MaxAttempts: 3, Delay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return want
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, want)
}

func TestDo_ExhaustionEscalatesToTimeout(t *testing.T) {
	cause := errors.New("i/o timeout")
	err := Do(context.Background(), Policy{MaxAttempts: 2, Delay: time.Millisecond}, func(ctx context.Context) error {
		return cause
	})
	require.Error(t, err)

	var wfErr *schema.WayfindError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, schema.ErrCodeTimeout, wfErr.Code)
	assert.ErrorIs(t, err, cause)
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, Policy{MaxAttempts: 5, Delay: time.Second}, func(ctx context.Context) error {
		calls++
		return errors.New("service unavailable")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroPolicyUsesDefault(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
