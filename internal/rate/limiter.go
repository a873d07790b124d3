package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

// Result es la respuesta de un Limiter para una clave.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
	Limit       int64
}

// Limiter cuenta hits por clave en ventanas fijas.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// window devuelve el inicio de la ventana que contiene now y lo que falta para que cierre.
func window(now time.Time, size time.Duration) (time.Time, time.Duration) {
	start := now.Truncate(size)
	return start, start.Add(size).Sub(now)
}

func result(hits, max int64, ttl time.Duration) Result {
	res := Result{
		Allowed:     hits <= max,
		Remaining:   max - hits,
		CurrentHits: hits,
		WindowTTL:   ttl,
		Limit:       max,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		// Resto de la ventana, redondeado hacia arriba al segundo.
		res.RetryAfter = ttl.Truncate(time.Second)
		if res.RetryAfter < ttl {
			res.RetryAfter += time.Second
		}
	}
	return res
}

// ─── Redis ───

// RedisLimiter: fixed window compartido entre réplicas (INCR + EXPIRE).
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration

	now func() time.Time
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	start, ttl := window(l.now().UTC(), l.Window)
	redisKey := fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), start.Unix())

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	// La clave muere con la ventana; repetir el EXPIRE en cada hit no la extiende.
	pipe.ExpireAt(ctx, redisKey, start.Add(l.Window))
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate: redis: %w", err)
	}
	return result(incr.Val(), l.Max, ttl), nil
}

// ─── Memoria ───

// MemoryLimiter: misma ventana fija sobre go-cache, para una sola réplica.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	c   *gocache.Cache
	now func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:    int64(max),
		Window: window,
		c:      gocache.New(window, 2*window),
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	start, ttl := window(l.now().UTC(), l.Window)
	k := fmt.Sprintf("%s:%d", key, start.Unix())

	// Add falla si la clave ya existe; en ese caso solo incrementamos.
	_ = l.c.Add(k, int64(0), ttl)
	hits, err := l.c.IncrementInt64(k, 1)
	if err != nil {
		// La clave expiró entre Add e Increment: arranca ventana nueva.
		l.c.Set(k, int64(1), ttl)
		hits = 1
	}
	return result(hits, l.Max, ttl), nil
}
