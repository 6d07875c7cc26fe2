package feeds

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrOffline is returned when the transport failed and no cached snapshot
// exists to serve in its place.
var ErrOffline = errors.New("offline and no cached snapshot available")

// CacheProxy wraps a Transport with a last-known-good cache. Successful
// fetches are written to Redis (TTL-bounded) and kept in memory; on transport
// failure the cached payload is served instead, flagged as cached so the loop
// can show a degraded status.
type CacheProxy struct {
	inner Transport
	rdb   *redis.Client // nil when Redis is not configured
	key   string
	ttl   time.Duration

	mu       sync.RWMutex
	lastGood []byte
}

// NewCacheProxy builds the proxy. redisAddr may be empty, in which case only
// the in-process copy is kept.
func NewCacheProxy(inner Transport, redisAddr, redisPassword string, redisDB int, ttl time.Duration) *CacheProxy {
	p := &CacheProxy{
		inner: inner,
		key:   "evwatch:last_snapshot",
		ttl:   ttl,
	}
	if redisAddr != "" {
		p.rdb = redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: redisPassword,
			DB:       redisDB,
		})
		log.Info().Str("addr", redisAddr).Msg("💾 Snapshot cache on Redis")
	}
	return p
}

// Fetch polls the inner transport; on success it refreshes the cache, on
// failure it serves the last-known-good payload or ErrOffline.
func (p *CacheProxy) Fetch(ctx context.Context) ([]byte, bool, error) {
	raw, err := p.inner.Fetch(ctx)
	if err == nil {
		p.store(ctx, raw)
		return raw, false, nil
	}

	log.Warn().Err(err).Msg("Snapshot fetch failed, trying cache")
	if cached, ok := p.load(ctx); ok {
		return cached, true, nil
	}
	return nil, false, ErrOffline
}

func (p *CacheProxy) store(ctx context.Context, raw []byte) {
	p.mu.Lock()
	p.lastGood = append(p.lastGood[:0], raw...)
	p.mu.Unlock()

	if p.rdb == nil {
		return
	}
	if err := p.rdb.Set(ctx, p.key, raw, p.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to cache snapshot in Redis")
	}
}

func (p *CacheProxy) load(ctx context.Context) ([]byte, bool) {
	p.mu.RLock()
	// Copy so callers never alias the backing array store rewrites in place.
	local := append([]byte(nil), p.lastGood...)
	p.mu.RUnlock()
	if len(local) > 0 {
		return local, true
	}

	// In-process copy is empty (fresh start); Redis may still have one from a
	// previous run.
	if p.rdb == nil {
		return nil, false
	}
	cached, err := p.rdb.Get(ctx, p.key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read cached snapshot from Redis")
		return nil, false
	}
	return cached, true
}

// Close releases the Redis connection, if any.
func (p *CacheProxy) Close() error {
	if p.rdb != nil {
		return p.rdb.Close()
	}
	return nil
}
