package rate

import (
	"context"
	"strconv"
	"sync"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// MultiRedisLimiter reparte los polls sobre un RedisLimiter por par
// (limit, window). Cada cliente CIBA puede tener su propio interval, así que
// los limiters se crean a demanda y se comparten entre grants.
type MultiRedisLimiter struct {
	client *rdb.Client
	prefix string
	byCfg  sync.Map // "limit/window" -> *RedisLimiter
}

var _ MultiLimiter = (*MultiRedisLimiter)(nil)

func NewMultiRedisLimiter(client *rdb.Client, prefix string) *MultiRedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &MultiRedisLimiter{client: client, prefix: prefix}
}

func (m *MultiRedisLimiter) AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	id := strconv.Itoa(limit) + "/" + window.String()
	l, ok := m.byCfg.Load(id)
	if !ok {
		l, _ = m.byCfg.LoadOrStore(id, NewRedisLimiter(m.client, m.prefix, limit, window))
	}
	return l.(*RedisLimiter).Allow(ctx, key)
}
