package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter_OnePerWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewMultiRedisLimiter(client, "ciba:")
	ctx := context.Background()

	res, err := l.AllowWithLimits(ctx, "req-1", 1, 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.AllowWithLimits(ctx, "req-1", 1, 5*time.Second)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))

	// Otra key no se ve afectada.
	res, err = l.AllowWithLimits(ctx, "req-2", 1, 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	mr.FastForward(6 * time.Second)
	res, err = l.AllowWithLimits(ctx, "req-1", 1, 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestMemoryLimiter_OnePerWindow(t *testing.T) {
	l := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	res, err := l.AllowWithLimits(ctx, "req-1", 1, 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	now = now.Add(2 * time.Second)
	res, err = l.AllowWithLimits(ctx, "req-1", 1, 5*time.Second)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.InDelta(t, float64(3*time.Second), float64(res.RetryAfter), float64(time.Millisecond))

	now = now.Add(3100 * time.Millisecond)
	res, err = l.AllowWithLimits(ctx, "req-1", 1, 5*time.Second)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}
