package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter implementa MultiLimiter en proceso con token buckets de x/time/rate.
// Un bucket con burst=limit y recarga de limit por ventana equivale a la
// ventana fija de Redis para el caso limit=1 del polling CIBA.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	l        *rate.Limiter
	lastSeen time.Time
}

var _ MultiLimiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: map[string]*bucket{}, now: time.Now}
}

func (m *MemoryLimiter) AllowWithLimits(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 {
		limit = 1
	}
	now := m.now()
	every := window / time.Duration(limit)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(now, window)

	k := key + "|" + window.String()
	b, ok := m.buckets[k]
	if !ok {
		b = &bucket{l: rate.NewLimiter(rate.Every(every), limit)}
		m.buckets[k] = b
	}
	b.lastSeen = now

	r := b.l.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, RetryAfter: delay, WindowTTL: delay}, nil
	}
	return Result{Allowed: true, Remaining: int64(b.l.TokensAt(now))}, nil
}

// sweep descarta buckets inactivos por más de dos ventanas.
func (m *MemoryLimiter) sweep(now time.Time, window time.Duration) {
	for k, b := range m.buckets {
		if now.Sub(b.lastSeen) > 2*window && now.Sub(b.lastSeen) > time.Minute {
			delete(m.buckets, k)
		}
	}
}
