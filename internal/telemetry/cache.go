package telemetry

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// KeyFor returns the cache key for a coordinate rounded to two decimals
// (roughly 1 km), so nearby lookups share an entry.
func KeyFor(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", round2(lat), round2(lon))
}

func round2(v float64) float64 {
	// Adding zero folds -0 into 0 so both sides of the equator share a key.
	return math.Round(v*100)/100 + 0
}

// Cache is a size-bounded LRU of telemetry samples. Each entry holds the
// sample and the time it was fetched and is replaced as one value. An entry
// is fresh while now - fetchedAt < ttl; expired entries stay until evicted so
// they can be served when the provider fails. Age is measured on the injected
// clock rather than by the LRU itself.
type Cache struct {
	ttl     time.Duration
	clock   clockwork.Clock
	entries *lru.Cache[string, entry]
}

type entry struct {
	sample    domain.TelemetrySample
	fetchedAt time.Time
}

// NewCache creates a cache. A nil clock uses real time.
func NewCache(ttl time.Duration, maxEntries int, clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxEntries < 1 {
		maxEntries = 1
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, entry](maxEntries)
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: entries,
	}
}

// Fresh returns the cached sample if it is younger than the TTL. A hit marks
// the entry as recently used.
func (c *Cache) Fresh(key string) (domain.TelemetrySample, bool) {
	e, ok := c.entries.Peek(key)
	if !ok || c.clock.Since(e.fetchedAt) >= c.ttl {
		return domain.TelemetrySample{}, false
	}
	c.entries.Get(key)
	return e.sample, true
}

// Stale returns the cached sample regardless of age, with its fetch time.
func (c *Cache) Stale(key string) (domain.TelemetrySample, time.Time, bool) {
	e, ok := c.entries.Peek(key)
	if !ok {
		return domain.TelemetrySample{}, time.Time{}, false
	}
	return e.sample, e.fetchedAt, true
}

// Put stores a live sample stamped with the current time. Fallback samples
// are ignored so a failed fetch never masks a later live one.
func (c *Cache) Put(key string, sample domain.TelemetrySample) {
	if sample.Fallback {
		return
	}
	c.entries.Add(key, entry{sample: sample, fetchedAt: c.clock.Now()})
}

// Len returns the number of cached entries, fresh or expired.
func (c *Cache) Len() int {
	return c.entries.Len()
}
