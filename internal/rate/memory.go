package rate

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter es el fixed window en proceso, sobre go-cache. Cada réplica
// cuenta por separado.
type MemoryLimiter struct {
	c      *gocache.Cache
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewMemoryLimiter(prefix string, max int, window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		c:      gocache.New(window, 2*window),
		prefix: prefix,
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now().UTC()
	winStart := now.Truncate(l.window)
	ttl := winStart.Add(l.window).Sub(now)
	k := windowKey(l.prefix, key, winStart)

	// Add es atómico: solo el primer hit de la ventana crea la entrada.
	if err := l.c.Add(k, int64(1), ttl); err == nil {
		return newResult(1, l.max, ttl), nil
	}
	hits, err := l.c.IncrementInt64(k, 1)
	if err != nil {
		// la entrada expiró entre Add e Increment: arranca una ventana nueva
		l.c.Set(k, int64(1), ttl)
		hits = 1
	}
	return newResult(hits, l.max, ttl), nil
}
