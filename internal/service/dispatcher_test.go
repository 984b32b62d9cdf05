package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"barrel-market-api/internal/inference"
	"barrel-market-api/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T, keys []string, cfg DispatcherConfig) *Dispatcher {
	t.Helper()
	pool, err := inference.NewCredentialPool(keys)
	require.NoError(t, err)
	return NewDispatcher(pool, cfg, logging.Discard())
}

func TestPartition(t *testing.T) {
	items := make([]int, 13)
	for i := range items {
		items[i] = i
	}

	batches := Partition(items, 6)
	require.Len(t, batches, 3)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, batches[0])
	assert.Equal(t, []int{6, 7, 8, 9, 10, 11}, batches[1])
	assert.Equal(t, []int{12}, batches[2])

	assert.Len(t, Partition(items[:6], 6), 1)
	assert.Empty(t, Partition([]int{}, 6))
	assert.Len(t, Partition(items, 0), 13)
}

func TestDispatcher_RotatesCredentials(t *testing.T) {
	d := newDispatcher(t, []string{"k0", "k1", "k2"}, DispatcherConfig{BatchSize: 2})

	var got []string
	for i := 0; i < 4; i++ {
		var mu sync.Mutex
		keys := map[string]struct{}{}
		d.Dispatch(context.Background(), 2, func(_ context.Context, apiKey string, _ int) error {
			mu.Lock()
			keys[apiKey] = struct{}{}
			mu.Unlock()
			return nil
		})
		require.Len(t, keys, 1, "one credential per batch")
		for k := range keys {
			got = append(got, k)
		}
	}

	assert.Equal(t, []string{"k0", "k1", "k2", "k0"}, got)
	assert.Equal(t, uint64(4), d.Batches())
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	d := newDispatcher(t, []string{"k"}, DispatcherConfig{BatchSize: 4})
	boom := errors.New("boom")

	errs := d.Dispatch(context.Background(), 4, func(_ context.Context, _ string, k int) error {
		switch k {
		case 1:
			panic("model went sideways")
		case 2:
			return boom
		}
		return nil
	})

	require.Len(t, errs, 4)
	assert.NoError(t, errs[0])
	assert.ErrorContains(t, errs[1], "panic")
	assert.ErrorIs(t, errs[2], boom)
	assert.NoError(t, errs[3])

	// later batches still run
	errs = d.Dispatch(context.Background(), 1, func(context.Context, string, int) error { return nil })
	assert.NoError(t, errs[0])
}

func TestDispatcher_Cooldown(t *testing.T) {
	d := newDispatcher(t, []string{"k"}, DispatcherConfig{BatchSize: 1, Cooldown: 80 * time.Millisecond})

	var starts []time.Time
	for i := 0; i < 2; i++ {
		d.Dispatch(context.Background(), 1, func(context.Context, string, int) error {
			starts = append(starts, time.Now())
			return nil
		})
	}

	require.Len(t, starts, 2)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), 70*time.Millisecond)
}

func TestDispatcher_Stagger(t *testing.T) {
	d := newDispatcher(t, []string{"k"}, DispatcherConfig{BatchSize: 3, Stagger: 30 * time.Millisecond})

	var mu sync.Mutex
	starts := make([]time.Time, 3)
	begin := time.Now()
	d.Dispatch(context.Background(), 3, func(_ context.Context, _ string, k int) error {
		mu.Lock()
		starts[k] = time.Now()
		mu.Unlock()
		return nil
	})

	assert.GreaterOrEqual(t, starts[2].Sub(begin), 55*time.Millisecond)
	assert.Less(t, starts[0].Sub(begin), 30*time.Millisecond)
}

func TestDispatcher_CancelledContextFailsBatch(t *testing.T) {
	d := newDispatcher(t, []string{"k"}, DispatcherConfig{BatchSize: 2, Cooldown: time.Hour})
	d.Dispatch(context.Background(), 1, func(context.Context, string, int) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	errs := d.Dispatch(ctx, 2, func(context.Context, string, int) error {
		called = true
		return nil
	})
	assert.False(t, called)
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
