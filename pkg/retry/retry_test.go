package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{Attempts: 3, BaseDelay: time.Millisecond, Factor: 2}

func TestDo_SucceedsFirstTry(t *testing.T) {
	t.Parallel()

	res := Do(context.Background(), fast, func(ctx context.Context) error { return nil })

	require.True(t, res.OK())
	assert.Equal(t, 1, res.Attempts)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	res := Do(context.Background(), fast, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})

	require.True(t, res.OK())
	assert.Equal(t, 3, res.Attempts)
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	res := Do(context.Background(), fast, func(ctx context.Context) error { return boom })

	require.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 3, res.Attempts)
}

func TestDo_PermanentStopsEarly(t *testing.T) {
	t.Parallel()

	boom := errors.New("rejected")
	res := Do(context.Background(), fast, func(ctx context.Context) error { return Permanent(boom) })

	require.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 1, res.Attempts)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	res := Do(context.Background(), Policy{}, func(ctx context.Context) error { return errors.New("x") })

	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.OK())
}
