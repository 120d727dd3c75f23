// Package lockout throttles repeated failed logins for the same document and
// client address.
package lockout

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
)

// Attempts is the failure history of one key.
type Attempts struct {
	Count int
	Last  time.Time
}

// Counter stores failure counts. Records expire ttl after the last failure.
type Counter interface {
	Get(ctx context.Context, key string) (Attempts, error)
	Increment(ctx context.Context, key string, at time.Time, ttl time.Duration) (Attempts, error)
	Reset(ctx context.Context, key string) error
}

type Options struct {
	MaxAttempts int
	Window      time.Duration
	Now         func() time.Time
}

// Guard locks a key once MaxAttempts failures were recorded and the last one
// is younger than Window.
type Guard struct {
	counter     Counter
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

func NewGuard(counter Counter, opts Options) *Guard {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Guard{counter: counter, maxAttempts: opts.MaxAttempts, window: opts.Window, now: opts.Now}
}

// Key identifies a login source.
func Key(document, ip string) string {
	return document + "-" + ip
}

func (g *Guard) Locked(ctx context.Context, key string) (bool, error) {
	a, err := g.counter.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return g.locked(a), nil
}

// Fail records a failed attempt and reports whether the key is now locked.
func (g *Guard) Fail(ctx context.Context, key string) (bool, error) {
	a, err := g.counter.Increment(ctx, key, g.now(), g.window)
	if err != nil {
		return false, err
	}
	return g.locked(a), nil
}

func (g *Guard) Succeed(ctx context.Context, key string) error {
	return g.counter.Reset(ctx, key)
}

func (g *Guard) locked(a Attempts) bool {
	return a.Count >= g.maxAttempts && g.now().Sub(a.Last) < g.window
}

// MemoryCounter keeps attempts in process. Counts are lost on restart and not
// shared between instances.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]Attempts
	ttl     map[string]time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: map[string]Attempts{}, ttl: map[string]time.Time{}}
}

func (m *MemoryCounter) Get(_ context.Context, key string) (Attempts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *MemoryCounter) Increment(_ context.Context, key string, at time.Time, ttl time.Duration) (Attempts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, exp := range m.ttl {
		if !at.Before(exp) {
			delete(m.entries, k)
			delete(m.ttl, k)
		}
	}
	a := m.entries[key]
	a.Count++
	a.Last = at
	m.entries[key] = a
	m.ttl[key] = at.Add(ttl)
	return a, nil
}

func (m *MemoryCounter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	delete(m.ttl, key)
	return nil
}
