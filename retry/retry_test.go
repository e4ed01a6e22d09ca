package retry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"library_circulation/circulation"
	"library_circulation/retry"
)

func Test_OnConflict_Success_NoRetries(t *testing.T) {
	calls := 0
	err := retry.OnConflict(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func Test_OnConflict_RetriesOnceByDefault(t *testing.T) {
	calls := 0
	err := retry.OnConflict(context.Background(), func(context.Context) error {
		calls++
		return circulation.Conflict("row locked", nil)
	}, retry.WithBaseDelay(time.Millisecond))

	assert.ErrorIs(t, err, circulation.ErrConflict)
	assert.Equal(t, 2, calls)
}

func Test_OnConflict_SucceedsOnSecondAttempt(t *testing.T) {
	calls := 0
	err := retry.OnConflict(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return circulation.Conflict("serialization failure", nil)
		}
		return nil
	}, retry.WithBaseDelay(time.Millisecond), retry.WithJitterFactor(0))

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func Test_OnConflict_DoesNotRetryOtherKinds(t *testing.T) {
	for name, failure := range map[string]error{
		"precondition": circulation.ErrLoanLimitReached,
		"transient":    circulation.Transient("db down", nil),
		"not found":    circulation.ErrLoanNotFound,
	} {
		t.Run(name, func(t *testing.T) {
			calls := 0
			err := retry.OnConflict(context.Background(), func(context.Context) error {
				calls++
				return failure
			}, retry.WithMaxAttempts(5))

			assert.ErrorIs(t, err, failure)
			assert.Equal(t, 1, calls)
		})
	}
}

func Test_OnConflict_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry.OnConflict(ctx, func(context.Context) error {
		calls++
		cancel()
		return circulation.Conflict("deadlock", nil)
	}, retry.WithBaseDelay(time.Second))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func Test_OnConflict_InvalidOptions(t *testing.T) {
	fn := func(context.Context) error { return nil }

	assert.ErrorIs(t, retry.OnConflict(context.Background(), fn, retry.WithMaxAttempts(0)), retry.ErrInvalidMaxAttempts)
	assert.ErrorIs(t, retry.OnConflict(context.Background(), fn, retry.WithBaseDelay(-time.Second)), retry.ErrNegativeBaseDelay)
	assert.ErrorIs(t, retry.OnConflict(context.Background(), fn, retry.WithJitterFactor(1.5)), retry.ErrInvalidJitterFactor)
}
