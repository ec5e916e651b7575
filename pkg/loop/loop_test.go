package loop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx/fxtest"
)

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	var lastErr atomic.Value

	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, 5*time.Millisecond, func(context.Context) error {
			if calls.Add(1) == 3 {
				cancel()
				return errors.New("third")
			}
			return nil
		}, func(_ time.Time, err error) {
			if err != nil {
				lastErr.Store(err.Error())
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "third", lastErr.Load())
}

func TestHook_RunsWithinLifecycle(t *testing.T) {
	t.Parallel()

	lc := fxtest.NewLifecycle(t)
	var calls atomic.Int32
	Hook(lc, "test", time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)

	lc.RequireStart()
	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	lc.RequireStop()

	n := calls.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, calls.Load())
}
