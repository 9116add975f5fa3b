package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFlaky = errors.New("flaky")

func TestDo_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	}, WithInitialDelay(time.Millisecond), WithMaxAttempts(5))

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPlainError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errFlaky
	}, WithInitialDelay(time.Millisecond))

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentOverridesRetryIf(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errFlaky)
	}, WithRetryIf(func(error) bool { return true }), WithInitialDelay(time.Millisecond))

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ReturnsUnwrappedErrorAfterLastAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(errFlaky)
	}, WithMaxAttempts(2), WithInitialDelay(time.Millisecond))

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 2, calls)
}

func TestDo_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(ctx context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	r := New(WithInitialDelay(time.Millisecond))
	calls := 0
	v, err := DoWithData(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, Retryable(errFlaky)
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}
