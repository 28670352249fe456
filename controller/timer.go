package controller

import (
	"context"
	"sync"
	"time"
)

// NoWaitTimer never blocks. It is used to run through a performance as fast
// as possible, e.g. to fill the cache.
type NoWaitTimer struct{}

func (NoWaitTimer) Start() {}

func (NoWaitTimer) WaitUntil(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func (NoWaitTimer) WaitMilliseconds(ctx context.Context, _ int64) error { return ctx.Err() }

// RealTime blocks against the wall clock.
type RealTime struct {
	mu    sync.Mutex
	start time.Time
	now   func() time.Time
}

func NewRealTime() *RealTime {
	return &RealTime{now: time.Now}
}

func (r *RealTime) Start() {
	r.mu.Lock()
	r.start = r.now()
	r.mu.Unlock()
}

// WaitUntil blocks until offset has elapsed since Start. An offset already
// in the past returns at once.
func (r *RealTime) WaitUntil(ctx context.Context, offset time.Duration) error {
	r.mu.Lock()
	start := r.start
	r.mu.Unlock()
	if start.IsZero() {
		start = r.now()
	}
	return sleep(ctx, start.Add(offset).Sub(r.now()))
}

func (r *RealTime) WaitMilliseconds(ctx context.Context, ms int64) error {
	return sleep(ctx, time.Duration(ms)*time.Millisecond)
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
