package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/couchcryptid/flood-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// MaxTimeout bounds every upstream fetch.
const MaxTimeout = 3 * time.Second

// Options configures a Source.
type Options struct {
	// Timeout for one upstream call; zero or anything above MaxTimeout uses MaxTimeout.
	Timeout time.Duration
	// WaterLevelM is stamped on live samples; the provider has no water-level feed.
	WaterLevelM float64
	Clock       clockwork.Clock
}

// Source fetches telemetry for a coordinate. Fetch never fails: when the
// provider errors or times out it serves a stale cached sample if one
// exists, and the fixed fallback sample otherwise.
type Source struct {
	provider   domain.WeatherProvider
	cache      *Cache
	timeout    time.Duration
	waterLevel float64
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	inflight   singleflight.Group
}

// NewSource creates a telemetry source. cache may be nil to disable caching.
func NewSource(provider domain.WeatherProvider, cache *Cache, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Source {
	timeout := opts.Timeout
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Source{
		provider:   provider,
		cache:      cache,
		timeout:    timeout,
		waterLevel: opts.WaterLevelM,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Fetch returns the telemetry sample for a coordinate. Concurrent misses for
// the same cache cell share one upstream call. A caller whose context ends
// first stops waiting and degrades on its own; the shared call keeps running
// under its own timeout so it can still fill the cache.
func (s *Source) Fetch(ctx context.Context, lat, lon float64) domain.TelemetrySample {
	key := KeyFor(lat, lon)
	if s.cache != nil {
		if sample, ok := s.cache.Fresh(key); ok {
			s.metrics.TelemetryCache.WithLabelValues("hit").Inc()
			s.metrics.TelemetryRequests.WithLabelValues("cached").Inc()
			return sample
		}
		s.metrics.TelemetryCache.WithLabelValues("miss").Inc()
	}

	ch := s.inflight.DoChan(key, func() (any, error) {
		return s.fetchLive(context.WithoutCancel(ctx), key, lat, lon)
	})
	select {
	case <-ctx.Done():
		return s.degrade(key, lat, lon, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return s.degrade(key, lat, lon, res.Err)
		}
		s.metrics.TelemetryRequests.WithLabelValues("live").Inc()
		return res.Val.(domain.TelemetrySample)
	}
}

func (s *Source) fetchLive(ctx context.Context, key string, lat, lon float64) (domain.TelemetrySample, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	forecast, err := s.provider.Forecast(fetchCtx, lat, lon)
	if err != nil {
		return domain.TelemetrySample{}, err
	}
	if forecast.ObservedAt.IsZero() {
		forecast.ObservedAt = s.clock.Now()
	}
	sample := domain.SampleFromForecast(lat, lon, forecast, s.waterLevel)
	if s.cache != nil {
		s.cache.Put(key, sample)
	}
	return sample, nil
}

func (s *Source) degrade(key string, lat, lon float64, err error) domain.TelemetrySample {
	if s.cache != nil {
		if sample, fetchedAt, ok := s.cache.Stale(key); ok {
			s.logger.Warn("weather fetch failed, serving stale sample",
				"lat", lat, "lon", lon, "age", s.clock.Since(fetchedAt), "error", err)
			s.metrics.TelemetryRequests.WithLabelValues("stale").Inc()
			return sample
		}
	}
	s.logger.Warn("weather fetch failed, serving fallback sample",
		"lat", lat, "lon", lon, "error", err)
	s.metrics.TelemetryRequests.WithLabelValues("fallback").Inc()
	return domain.FallbackSample(lat, lon, s.clock.Now())
}
