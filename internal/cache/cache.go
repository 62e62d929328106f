// Package cache is a keyed TTL cache with stale-while-revalidate semantics
// and in-flight request coalescing. One instance per process, handed to the
// engine and the FX resolver explicitly.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Class selects how long an entry stays fresh.
type Class int

const (
	ClassQuote   Class = iota // intraday quotes
	ClassHistory              // historical series
	ClassEOD                  // FX rates and other end-of-day facts
)

// Config holds the TTL per class plus the stale and negative windows.
type Config struct {
	QuoteTTL   time.Duration
	HistoryTTL time.Duration
	EODTTL     time.Duration
	// StaleFor is how long past its TTL an entry may still be served while a
	// background refresh runs. Beyond that the entry counts as a miss.
	StaleFor time.Duration
	// NegativeTTL backs off repeated calls after a total resolution failure.
	// Failures are never stored as values.
	NegativeTTL time.Duration
	// RefreshTimeout bounds each background revalidation.
	RefreshTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QuoteTTL:       60 * time.Second,
		HistoryTTL:     15 * time.Minute,
		EODTTL:         24 * time.Hour,
		StaleFor:       time.Hour,
		NegativeTTL:    30 * time.Second,
		RefreshTimeout: 10 * time.Second,
	}
}

type entry struct {
	value     any
	writtenAt time.Time
	class     Class
	negative  bool
}

type Cache struct {
	cfg Config
	log *zap.Logger

	mu    sync.RWMutex
	items map[string]entry

	sf singleflight.Group

	// nowFn and refreshWG exist for tests.
	nowFn     func() time.Time
	refreshWG sync.WaitGroup
}

func New(cfg Config, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = DefaultConfig().QuoteTTL
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = DefaultConfig().HistoryTTL
	}
	if cfg.EODTTL <= 0 {
		cfg.EODTTL = DefaultConfig().EODTTL
	}
	if cfg.StaleFor <= 0 {
		cfg.StaleFor = DefaultConfig().StaleFor
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = DefaultConfig().NegativeTTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultConfig().RefreshTimeout
	}
	return &Cache{cfg: cfg, log: log, items: make(map[string]entry), nowFn: time.Now}
}

func (c *Cache) ttl(class Class) time.Duration {
	switch class {
	case ClassQuote:
		return c.cfg.QuoteTTL
	case ClassHistory:
		return c.cfg.HistoryTTL
	default:
		return c.cfg.EODTTL
	}
}

// Get returns the cached value for key. fresh reports whether the entry is
// within its TTL; a stale-but-servable entry comes back with hit=true,
// fresh=false. Negative entries and hard-expired entries are misses.
func (c *Cache) Get(key string) (value any, hit, fresh bool) {
	now := c.nowFn()
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, false
	}
	age := now.Sub(e.writtenAt)
	if e.negative {
		// A fresh negative entry suppresses upstream calls; past its TTL it
		// is simply gone.
		if age < c.cfg.NegativeTTL {
			return nil, true, true
		}
		return nil, false, false
	}
	ttl := c.ttl(e.class)
	if age < ttl {
		return e.value, true, true
	}
	if age < ttl+c.cfg.StaleFor {
		return e.value, true, false
	}
	return nil, false, false
}

// Put stores a successful resolution.
func (c *Cache) Put(key string, class Class, value any) {
	c.mu.Lock()
	c.items[key] = entry{value: value, writtenAt: c.nowFn(), class: class}
	c.mu.Unlock()
}

// Invalidate drops an entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *Cache) putNegative(key string, class Class) {
	c.mu.Lock()
	// Never overwrite a servable stale value with a failure marker.
	if e, ok := c.items[key]; ok && !e.negative {
		c.mu.Unlock()
		return
	}
	c.items[key] = entry{writtenAt: c.nowFn(), class: class, negative: true}
	c.mu.Unlock()
}

// Resolve returns the value for key, resolving it through fn on a miss.
// Semantics:
//   - fresh hit: returned immediately, fn not called;
//   - stale hit: the stale value is returned immediately and fn runs in the
//     background to refresh the entry;
//   - miss: fn runs inline; concurrent callers for the same key share one
//     invocation (singleflight);
//   - fn failure with nothing stale: a negative entry is written and
//     (nil, false) is returned. Errors never escape.
func (c *Cache) Resolve(ctx context.Context, key string, class Class, fn func(ctx context.Context) (any, error)) (any, bool) {
	value, hit, fresh := c.Get(key)
	if hit && fresh {
		if value == nil {
			return nil, false // fresh negative entry
		}
		return value, true
	}
	if hit {
		// Stale: serve it now, revalidate in the background. The refresh is
		// detached from the caller's context so an abandoned request still
		// warms the cache for the next one.
		c.refreshWG.Add(1)
		go func() {
			defer c.refreshWG.Done()
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RefreshTimeout)
			defer cancel()
			v, err, _ := c.sf.Do(key, func() (any, error) { return fn(rctx) })
			if err != nil {
				c.log.Debug("background refresh failed", zap.String("key", key), zap.Error(err))
				return
			}
			c.Put(key, class, v)
		}()
		return value, true
	}

	v, err, _ := c.sf.Do(key, func() (any, error) { return fn(ctx) })
	if err != nil {
		c.log.Debug("resolution failed", zap.String("key", key), zap.Error(err))
		c.putNegative(key, class)
		return nil, false
	}
	c.Put(key, class, v)
	return v, true
}

// WaitRefreshes blocks until in-flight background refreshes finish. Tests
// only; production callers never need it.
func (c *Cache) WaitRefreshes() { c.refreshWG.Wait() }
