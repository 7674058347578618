package rate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryLimiter("rl:test:", 3, time.Minute)
	start := time.Date(2024, 1, 1, 10, 0, 15, 0, time.UTC)
	l.now = fixedNow(start)

	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4|/oauth/popup/complete")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i)
		assert.Equal(t, i, res.CurrentHits)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, 45*time.Second, res.WindowTTL)
	}

	res, err := l.Allow(ctx, "1.2.3.4|/oauth/popup/complete")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, 45*time.Second, res.RetryAfter)

	// otra clave no comparte contador
	res, err = l.Allow(ctx, "5.6.7.8|/oauth/popup/complete")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// ventana siguiente
	l.now = fixedNow(start.Add(time.Minute))
	res, err = l.Allow(ctx, "1.2.3.4|/oauth/popup/complete")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.CurrentHits)
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l := NewMemoryLimiter("", 50, time.Hour)
	l.now = fixedNow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(context.Background(), "k")
			if err == nil && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestWindowKey(t *testing.T) {
	ws := time.Unix(1700000000, 0)
	assert.Equal(t, fmt.Sprintf("rl:popup:1.2.3.4|/a_b:%d", ws.Unix()), windowKey("rl:popup:", "1.2.3.4|/a b", ws))
}
