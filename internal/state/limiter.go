package state

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether an entry identified by key may be forwarded again.
// Allow returns true at most once per window of length every.
type Limiter interface {
	Allow(ctx context.Context, key string, every time.Duration) (bool, error)
	Close() error
}

// MemoryLimiter keeps resend windows in process memory
type MemoryLimiter struct {
	mu   sync.Mutex
	next map[string]time.Time
	now  func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{next: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, every time.Duration) (bool, error) {
	if every <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.next[key]; ok && now.Before(until) {
		return false, nil
	}
	l.next[key] = now.Add(every)
	return true, nil
}

func (l *MemoryLimiter) Close() error { return nil }
