package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/adapter/memory"
	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func ptr[T any](v T) *T { return &v }

var recordedAt = time.Date(2025, time.November, 3, 6, 0, 0, 0, time.UTC)

// stubTelemetry returns a sample keyed by latitude, or a default one.
type stubTelemetry struct {
	mu      sync.Mutex
	byLat   map[float64]domain.TelemetrySample
	calls   int
	onFetch func(ctx context.Context)
}

func (s *stubTelemetry) Fetch(ctx context.Context, lat, _ float64) domain.TelemetrySample {
	s.mu.Lock()
	s.calls++
	sample, ok := s.byLat[lat]
	hook := s.onFetch
	s.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if !ok {
		return calm()
	}
	return sample
}

// calm scores 21 (LOW).
func calm() domain.TelemetrySample {
	return domain.TelemetrySample{Rainfall: 10, StormIntensity: 20, Humidity: 50, WaterLevel: 1.5, Elevation: 20}
}

// flooding scores above 80 (SEVERE).
func flooding() domain.TelemetrySample {
	return domain.TelemetrySample{Rainfall: 120, StormIntensity: 90, Humidity: 95, WaterLevel: 1.5, Elevation: 20}
}

// failingLocations errors for one member and delegates the rest.
type failingLocations struct {
	domain.LocationStore
	failFor string
}

func (f failingLocations) Latest(ctx context.Context, memberID string) (*domain.LocationRecord, error) {
	if memberID == f.failFor {
		return nil, errors.New("connection reset")
	}
	return f.LocationStore.Latest(ctx, memberID)
}

// recordingApplier captures every preference the scheduler is asked to apply.
type recordingApplier struct {
	mu      sync.Mutex
	applied []domain.TrackingPreference
	err     error
	delay   time.Duration // slept before recording
}

func (a *recordingApplier) Apply(_ context.Context, pref domain.TrackingPreference) error {
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, pref)
	return a.err
}

func (a *recordingApplier) calls() []domain.TrackingPreference {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.TrackingPreference(nil), a.applied...)
}

// gatedStore is a PreferenceStore whose writes fail or block on demand.
type gatedStore struct {
	mu     sync.Mutex
	pref   domain.TrackingPreference
	puts   []domain.PreferencePatch
	errs   []error       // consumed one per Put; nil entries succeed
	gate   chan struct{} // when set, the first Put waits for it
	gated  bool
	getErr error
}

func newGatedStore() *gatedStore {
	return &gatedStore{pref: domain.DefaultTrackingPreference()}
}

func (s *gatedStore) Get(context.Context, string) (domain.TrackingPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pref, s.getErr
}

func (s *gatedStore) Put(_ context.Context, _ string, patch domain.PreferencePatch) error {
	s.mu.Lock()
	gate := s.gate
	wait := gate != nil && !s.gated
	s.gated = s.gated || wait
	s.mu.Unlock()
	if wait {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, patch)
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	if err != nil {
		return err
	}
	s.pref = patch.Merge(s.pref)
	return nil
}

func (s *gatedStore) stored() domain.TrackingPreference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pref
}

// recordingPublisher captures published alerts and can fail on demand.
type recordingPublisher struct {
	mu     sync.Mutex
	passes map[string][]domain.Alert
	sos    []domain.SOSAlert
	err    error
}

func (p *recordingPublisher) PublishAlerts(_ context.Context, subjectID string, alerts []domain.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.passes == nil {
		p.passes = make(map[string][]domain.Alert)
	}
	p.passes[subjectID] = alerts
	return nil
}

func (p *recordingPublisher) PublishSOS(_ context.Context, alert domain.SOSAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sos = append(p.sos, alert)
	return nil
}

// flakySafetyLog fails writes while err is set.
type flakySafetyLog struct {
	*memory.SafetyLog
	err error
}

func (l *flakySafetyLog) RecordSOS(ctx context.Context, alert domain.SOSAlert) error {
	if l.err != nil {
		return l.err
	}
	return l.SafetyLog.RecordSOS(ctx, alert)
}

func (l *flakySafetyLog) RecordCheckIn(ctx context.Context, c domain.SafetyCheckIn) error {
	if l.err != nil {
		return l.err
	}
	return l.SafetyLog.RecordCheckIn(ctx, c)
}
