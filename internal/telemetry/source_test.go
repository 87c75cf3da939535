package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/couchcryptid/flood-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fake providers ---

type countingProvider struct {
	calls    atomic.Int32
	forecast domain.Forecast
	err      error
}

func (p *countingProvider) Forecast(_ context.Context, _, _ float64) (domain.Forecast, error) {
	p.calls.Add(1)
	if p.err != nil {
		return domain.Forecast{}, p.err
	}
	return p.forecast, nil
}

// blockingProvider waits for the request context, simulating a hung upstream.
type blockingProvider struct{}

func (blockingProvider) Forecast(ctx context.Context, _, _ float64) (domain.Forecast, error) {
	<-ctx.Done()
	return domain.Forecast{}, ctx.Err()
}

var observed = time.Date(2025, time.November, 3, 6, 0, 0, 0, time.UTC)

func liveForecast() domain.Forecast {
	return domain.Forecast{Temperature: 27, Humidity: 90, RainMM: 20, WindSpeedKMH: 10, ObservedAt: observed}
}

func newTestSource(p domain.WeatherProvider, clock clockwork.Clock, cache *Cache) *Source {
	return NewSource(p, cache, Options{Timeout: time.Second, WaterLevelM: 1.5, Clock: clock},
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func TestSource_FetchLive(t *testing.T) {
	p := &countingProvider{forecast: liveForecast()}
	s := newTestSource(p, clockwork.NewFakeClock(), nil)

	sample := s.Fetch(context.Background(), 6.9, 79.8)

	assert.False(t, sample.Fallback)
	assert.Equal(t, 6.9, sample.Latitude)
	assert.Equal(t, 20.0, sample.Rainfall)
	assert.Equal(t, 20.0, sample.StormIntensity)
	assert.Equal(t, 1.5, sample.WaterLevel)
	assert.Equal(t, domain.DefaultElevationM, sample.Elevation)
	assert.Equal(t, observed, sample.ObservedAt)
}

func TestSource_StampsObservedAtWhenMissing(t *testing.T) {
	clock := clockwork.NewFakeClockAt(observed)
	p := &countingProvider{forecast: domain.Forecast{RainMM: 1}}
	s := newTestSource(p, clock, nil)

	assert.Equal(t, observed, s.Fetch(context.Background(), 1, 1).ObservedAt)
}

func TestSource_CacheHitWithinTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := &countingProvider{forecast: liveForecast()}
	s := newTestSource(p, clock, NewCache(5*time.Minute, 100, clock))

	first := s.Fetch(context.Background(), 6.9271, 79.8612)
	clock.Advance(4 * time.Minute)
	second := s.Fetch(context.Background(), 6.9301, 79.8598)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), p.calls.Load())

	clock.Advance(time.Minute)
	s.Fetch(context.Background(), 6.9271, 79.8612)
	assert.Equal(t, int32(2), p.calls.Load(), "expired entry triggers a refetch")
}

func TestSource_FallbackOnError(t *testing.T) {
	clock := clockwork.NewFakeClockAt(observed)
	p := &countingProvider{err: errors.New("connection refused")}
	s := newTestSource(p, clock, NewCache(5*time.Minute, 100, clock))

	sample := s.Fetch(context.Background(), 6.9, 79.8)

	assert.Equal(t, domain.FallbackSample(6.9, 79.8, observed), sample)

	s.Fetch(context.Background(), 6.9, 79.8)
	assert.Equal(t, int32(2), p.calls.Load(), "fallback samples are not cached")
}

func TestSource_FallbackOnTimeout(t *testing.T) {
	s := NewSource(blockingProvider{}, nil, Options{Timeout: 20 * time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())

	start := time.Now()
	sample := s.Fetch(context.Background(), -33.87, 151.21)

	assert.True(t, sample.Fallback)
	assert.Equal(t, -33.87, sample.Latitude)
	assert.Equal(t, 151.21, sample.Longitude)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSource_ServesStaleOnError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := &countingProvider{forecast: liveForecast()}
	s := newTestSource(p, clock, NewCache(5*time.Minute, 100, clock))

	live := s.Fetch(context.Background(), 6.9, 79.8)
	clock.Advance(10 * time.Minute)
	p.err = errors.New("503")

	got := s.Fetch(context.Background(), 6.9, 79.8)
	require.False(t, got.Fallback)
	assert.Equal(t, live, got)
}

func TestSource_TimeoutClampedToMax(t *testing.T) {
	s := NewSource(blockingProvider{}, nil, Options{Timeout: time.Hour},
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	assert.Equal(t, MaxTimeout, s.timeout)

	s = NewSource(blockingProvider{}, nil, Options{},
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	assert.Equal(t, MaxTimeout, s.timeout)
}

func TestSource_FallbackScoresHigh(t *testing.T) {
	p := &countingProvider{err: errors.New("down")}
	s := newTestSource(p, clockwork.NewFakeClock(), nil)

	a := domain.Score(s.Fetch(context.Background(), 1, 1))
	assert.Equal(t, domain.RiskHigh, a.Level)
}

// gatedProvider blocks every call until release is closed.
type gatedProvider struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (p *gatedProvider) Forecast(ctx context.Context, _, _ float64) (domain.Forecast, error) {
	if p.calls.Add(1) == 1 {
		close(p.started)
	}
	select {
	case <-p.release:
		return liveForecast(), nil
	case <-ctx.Done():
		return domain.Forecast{}, ctx.Err()
	}
}

func TestSource_ConcurrentMissesShareOneFetch(t *testing.T) {
	p := &gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
	clock := clockwork.NewFakeClock()
	s := newTestSource(p, clock, NewCache(5*time.Minute, 100, clock))

	const callers = 8
	results := make(chan domain.TelemetrySample, callers)
	go func() { results <- s.Fetch(context.Background(), 6.9271, 79.8612) }()
	<-p.started
	for i := 1; i < callers; i++ {
		go func() { results <- s.Fetch(context.Background(), 6.9301, 79.8598) }()
	}
	// Give followers time to join the in-flight call before it completes.
	time.Sleep(50 * time.Millisecond)
	close(p.release)

	for i := 0; i < callers; i++ {
		got := <-results
		assert.False(t, got.Fallback)
		assert.Equal(t, 20.0, got.Rainfall)
	}
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestSource_CancelledCallerDegradesAlone(t *testing.T) {
	p := &gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
	clock := clockwork.NewFakeClock()
	s := newTestSource(p, clock, NewCache(5*time.Minute, 100, clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan domain.TelemetrySample, 1)
	go func() { done <- s.Fetch(ctx, 6.9, 79.8) }()
	<-p.started
	cancel()

	assert.True(t, (<-done).Fallback)

	close(p.release)
	require.Eventually(t, func() bool {
		_, ok := s.cache.Fresh(KeyFor(6.9, 79.8))
		return ok
	}, time.Second, 5*time.Millisecond, "the shared fetch still fills the cache")
}
