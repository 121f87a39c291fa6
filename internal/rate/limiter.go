// Package rate implements fixed-window request throttling.
package rate

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often Memory drops expired windows.
const DefaultSweepInterval = 5 * time.Minute

// Result describes the decision for one request.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long a denied caller should wait, rounded up to a second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return time.Second
	}
	return d.Truncate(time.Second) + time.Second
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

type entry struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local Limiter.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	nowFunc func() time.Time

	sweepEvery time.Duration
	stopOnce   sync.Once
	stop       chan struct{}
	done       chan struct{}
}

// NewMemory returns a Memory limiter. Call Start to run the background sweep.
func NewMemory() *Memory {
	return &Memory{
		entries:    make(map[string]*entry),
		nowFunc:    time.Now,
		sweepEvery: DefaultSweepInterval,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Check records one request for key. A key's first request, or its first
// after resetAt has passed, opens a new window with count 1.
func (m *Memory) Check(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := m.nowFunc()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(window)}
		m.entries[key] = e
	} else {
		e.count++
	}
	return decide(e.count, limit, e.resetAt), nil
}

func decide(count, limit int, resetAt time.Time) Result {
	if count > limit {
		return Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt}
	}
	return Result{Allowed: true, Limit: limit, Remaining: limit - count, ResetAt: resetAt}
}

// Sweep drops windows that have ended and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.nowFunc()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, e := range m.entries {
		if now.After(e.resetAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Len is the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Start runs Sweep every sweep interval until Stop is called.
func (m *Memory) Start() {
	go func() {
		defer close(m.done)
		t := time.NewTicker(m.sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				m.Sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends the sweep started by Start. It is safe to call more than
// once, and without a prior Start.
func (m *Memory) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Wait blocks until the sweep goroutine has exited. Only call it after Start.
func (m *Memory) Wait() { <-m.done }

var _ Limiter = (*Memory)(nil)
