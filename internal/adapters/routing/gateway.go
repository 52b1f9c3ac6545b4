package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/heinnell/ordertrack/internal/core/ports"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
	"github.com/heinnell/ordertrack/internal/pkg/metrics"
)

// Gateway wraps the configured providers with validation, TTL caching and a
// closed-form last resort. GetDistance never returns an error for valid
// coordinates: when every backend fails, the caller still gets a great-circle
// estimate. Routes cache longer than distances because road geometry changes
// slower than traffic.
type Gateway struct {
	providers []ports.RouteProvider

	mu         sync.Mutex
	routeCache *ttlCache[*ports.RouteResult]
	distCache  *ttlCache[*ports.DistanceResult]
}

const (
	routeCacheTTL    = 30 * time.Minute
	distanceCacheTTL = 5 * time.Minute
	cacheMaxEntries  = 1024
)

// NewGateway chains providers in order: the first is primary, the rest are
// fallbacks. An empty chain is valid; every lookup then uses the closed form.
func NewGateway(providers ...ports.RouteProvider) *Gateway {
	return &Gateway{
		providers:  providers,
		routeCache: newTTLCache[*ports.RouteResult](cacheMaxEntries, routeCacheTTL),
		distCache:  newTTLCache[*ports.DistanceResult](cacheMaxEntries, distanceCacheTTL),
	}
}

// Name implements ports.RouteProvider so the gateway can stand in anywhere a
// single backend is expected.
func (g *Gateway) Name() string { return "gateway" }

// GetRoute resolves a planned path, trying cache, then each provider, in
// order. Unlike GetDistance there is no geometric fallback: a failed lookup
// is reported so the caller can fall back to a straight two-point route.
func (g *Gateway) GetRoute(ctx context.Context, origin, destination geo.Point) (*ports.RouteResult, error) {
	if err := validatePair(origin, destination); err != nil {
		return nil, err
	}

	key := pairKey(origin, destination)
	g.mu.Lock()
	cached, ok := g.routeCache.get(key)
	g.mu.Unlock()
	if ok {
		metrics.CacheHits.WithLabelValues("route").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("route").Inc()

	var lastErr error
	for _, p := range g.providers {
		metrics.ProviderCalls.WithLabelValues(p.Name(), "route").Inc()
		res, err := p.GetRoute(ctx, origin, destination)
		if err != nil {
			metrics.ProviderFailures.WithLabelValues(p.Name(), "route").Inc()
			slog.Warn("route provider failed", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		g.mu.Lock()
		g.routeCache.put(key, res)
		g.mu.Unlock()
		return res, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no routing providers configured")
	}
	return nil, fmt.Errorf("all route providers failed: %w", lastErr)
}

// GetDistance resolves a point-to-point estimate. Guaranteed to succeed for
// valid input: cache, then providers, then the closed-form estimate.
func (g *Gateway) GetDistance(ctx context.Context, origin, destination geo.Point) (*ports.DistanceResult, error) {
	if err := validatePair(origin, destination); err != nil {
		return nil, err
	}

	key := pairKey(origin, destination)
	g.mu.Lock()
	cached, ok := g.distCache.get(key)
	g.mu.Unlock()
	if ok {
		metrics.CacheHits.WithLabelValues("distance").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("distance").Inc()

	for _, p := range g.providers {
		metrics.ProviderCalls.WithLabelValues(p.Name(), "distance").Inc()
		res, err := p.GetDistance(ctx, origin, destination)
		if err != nil {
			metrics.ProviderFailures.WithLabelValues(p.Name(), "distance").Inc()
			slog.Warn("distance provider failed", "provider", p.Name(), "error", err)
			continue
		}
		g.mu.Lock()
		g.distCache.put(key, res)
		g.mu.Unlock()
		return res, nil
	}

	metrics.ProviderFallbacks.Inc()
	res := estimateDistance(origin, destination)
	// Estimates are not cached: a provider that recovers should win the next call.
	return res, nil
}

// estimateDistance is the closed-form last resort: great-circle distance and
// a distance-tiered assumed speed, faster tiers standing in for highway share.
func estimateDistance(origin, destination geo.Point) *ports.DistanceResult {
	d := geo.Distance(origin, destination)

	var speedKMH float64
	switch {
	case d < 5_000:
		speedKMH = 25
	case d < 25_000:
		speedKMH = 40
	case d < 100_000:
		speedKMH = 60
	default:
		speedKMH = 80
	}

	hours := d / 1000 / speedKMH
	return &ports.DistanceResult{
		DistanceM: d,
		Duration:  time.Duration(hours * float64(time.Hour)),
		Estimated: true,
		Provider:  "estimate",
	}
}

func validatePair(origin, destination geo.Point) error {
	if !origin.Valid() || !destination.Valid() {
		return fmt.Errorf("routing: invalid coordinate pair (%.6f,%.6f)-(%.6f,%.6f)",
			origin.Lat, origin.Lon, destination.Lat, destination.Lon)
	}
	return nil
}

// pairKey rounds both endpoints to 4 decimal places so nearby lookups share
// a cache entry.
func pairKey(origin, destination geo.Point) string {
	return fmt.Sprintf("%.4f,%.4f|%.4f,%.4f", origin.Lat, origin.Lon, destination.Lat, destination.Lon)
}

// ttlCache is a bounded map with per-entry insertion timestamps. Not safe for
// concurrent use; the gateway guards it with its mutex.
type ttlCache[T any] struct {
	max     int
	ttl     time.Duration
	entries map[string]ttlEntry[T]
	now     func() time.Time
}

type ttlEntry[T any] struct {
	value    T
	inserted time.Time
}

func newTTLCache[T any](max int, ttl time.Duration) *ttlCache[T] {
	return &ttlCache[T]{
		max:     max,
		ttl:     ttl,
		entries: make(map[string]ttlEntry[T], max),
		now:     time.Now,
	}
}

func (c *ttlCache[T]) get(key string) (T, bool) {
	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.inserted) > c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[T]) put(key string, v T) {
	if len(c.entries) >= c.max {
		c.evict()
	}
	c.entries[key] = ttlEntry[T]{value: v, inserted: c.now()}
}

// evict drops expired entries first, then the oldest if still at capacity.
func (c *ttlCache[T]) evict() {
	now := c.now()
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if now.Sub(e.inserted) > c.ttl {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.inserted.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.inserted
		}
	}
	if len(c.entries) >= c.max && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
