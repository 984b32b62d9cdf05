package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"barrel-market-api/internal/inference"
	"barrel-market-api/internal/logging"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DispatcherConfig holds batch pacing settings.
type DispatcherConfig struct {
	// BatchSize bounds the items of one batch and their concurrency.
	BatchSize int
	// Cooldown is the minimum gap between the starts of two batches.
	Cooldown time.Duration
	// Stagger delays item k of a batch by k*Stagger.
	Stagger time.Duration
	// RatePerSecond and RateBurst configure one token bucket per credential.
	// A non-positive rate disables the bucket.
	RatePerSecond float64
	RateBurst     int
}

// Partition splits n items into ceil(n/size) consecutive index ranges.
func Partition[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}

// Dispatcher runs batches of work against the inference service. Batches
// rotate through the credential pool and keep a minimum spacing; items of a
// batch run concurrently with a staggered start.
type Dispatcher struct {
	pool     *inference.CredentialPool
	cfg      DispatcherConfig
	limiters map[string]*rate.Limiter
	log      *slog.Logger

	batches atomic.Uint64

	mu        sync.Mutex
	lastStart time.Time
}

// NewDispatcher creates a dispatcher over pool.
func NewDispatcher(pool *inference.CredentialPool, cfg DispatcherConfig, log *slog.Logger) *Dispatcher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	limiters := make(map[string]*rate.Limiter, pool.Len())
	for i := 0; i < pool.Len(); i++ {
		key := pool.ForBatch(uint64(i))
		if _, ok := limiters[key]; !ok {
			limiters[key] = rate.NewLimiter(limit, cfg.RateBurst)
		}
	}

	return &Dispatcher{
		pool:     pool,
		cfg:      cfg,
		limiters: limiters,
		log:      logging.Component(log, "dispatcher"),
	}
}

// BatchSize returns the configured batch size.
func (d *Dispatcher) BatchSize() int {
	return d.cfg.BatchSize
}

// Batches returns the number of batches started so far.
func (d *Dispatcher) Batches() uint64 {
	return d.batches.Load()
}

// Dispatch runs fn for items 0..n-1 as one batch and returns the error of
// each item. A failing or panicking item never affects its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, n int, fn func(ctx context.Context, apiKey string, k int) error) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	if err := d.waitCooldown(ctx); err != nil {
		for k := range errs {
			errs[k] = err
		}
		return errs
	}

	index := d.batches.Add(1) - 1
	apiKey := d.pool.ForBatch(index)
	limiter := d.limiters[apiKey]
	d.log.Debug("dispatching batch", "batch", index, "items", n, "credential", index%uint64(d.pool.Len()))

	var g errgroup.Group
	g.SetLimit(d.cfg.BatchSize)
	for k := 0; k < n; k++ {
		k := k
		g.Go(func() error {
			errs[k] = d.runItem(ctx, limiter, apiKey, k, fn)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (d *Dispatcher) runItem(ctx context.Context, limiter *rate.Limiter, apiKey string, k int,
	fn func(ctx context.Context, apiKey string, k int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("item panicked", "item", k, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := sleep(ctx, time.Duration(k)*d.cfg.Stagger); err != nil {
		return err
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return fn(ctx, apiKey, k)
}

// waitCooldown blocks until Cooldown has passed since the previous batch
// started, then marks the new start.
func (d *Dispatcher) waitCooldown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lastStart.IsZero() {
		if err := sleep(ctx, time.Until(d.lastStart.Add(d.cfg.Cooldown))); err != nil {
			return err
		}
	}
	d.lastStart = time.Now()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
