// Package tracking drives the device's periodic location reports. The
// reporting cadence adapts to the subject's preferences and to the risk the
// last report observed.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/couchcryptid/flood-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Mode is the scheduler state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeNormal
	ModeHighFrequency
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeHighFrequency:
		return "HIGH_FREQUENCY"
	default:
		return "IDLE"
	}
}

// Default report periods.
const (
	DefaultNormalInterval = 15 * time.Minute
	DefaultHighInterval   = time.Minute
)

// Reporter takes one location report and returns the risk level at the
// reported position.
type Reporter interface {
	Report(ctx context.Context) (domain.RiskLevel, error)
}

// Options configures a Scheduler.
type Options struct {
	NormalInterval time.Duration
	HighInterval   time.Duration
	Clock          clockwork.Clock
	// OnPermissionDenied runs when a ticked report finds location access
	// revoked. The scheduler has already gone idle.
	OnPermissionDenied func(ctx context.Context)
}

// Scheduler reports on a ticker whose period follows the current mode.
// Every mode change cancels the running ticker before a new one is armed;
// a generation counter discards ticks and report results from superseded
// tickers.
type Scheduler struct {
	reporter Reporter
	normal   time.Duration
	high     time.Duration
	clock    clockwork.Clock
	onDenied func(ctx context.Context)
	logger   *slog.Logger
	metrics  *observability.Metrics

	root       context.Context
	stopRoot   context.CancelFunc
	reportMu   sync.Mutex // one report at a time
	mu         sync.Mutex
	pref       domain.TrackingPreference
	selfRisk   domain.RiskLevel
	mode       Mode
	gen        uint64
	stopTicker context.CancelFunc
	wg         sync.WaitGroup
}

func NewScheduler(reporter Reporter, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if opts.NormalInterval <= 0 {
		opts.NormalInterval = DefaultNormalInterval
	}
	if opts.HighInterval <= 0 {
		opts.HighInterval = DefaultHighInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	root, stop := context.WithCancel(context.Background())
	metrics.TrackingMode.Set(float64(ModeIdle))
	return &Scheduler{
		reporter: reporter,
		normal:   opts.NormalInterval,
		high:     opts.HighInterval,
		clock:    opts.Clock,
		onDenied: opts.OnPermissionDenied,
		logger:   logger,
		metrics:  metrics,
		root:     root,
		stopRoot: stop,
		selfRisk: domain.RiskUnknown,
	}
}

// Mode returns the current mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Apply re-evaluates the mode for pref. When the mode changes to an active
// one, Apply takes one report immediately and then arms the ticker. An
// unchanged mode leaves the running ticker alone. If the immediate report
// is denied location access, the scheduler goes idle and the error is
// returned.
func (s *Scheduler) Apply(ctx context.Context, pref domain.TrackingPreference) error {
	s.mu.Lock()
	s.pref = pref
	next := s.modeLocked()
	if next == s.mode {
		s.mu.Unlock()
		return nil
	}
	gen := s.switchLocked(next)
	s.mu.Unlock()

	if next == ModeIdle {
		return nil
	}

	level, err := s.report(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// A newer Apply took over while this report was in flight.
		return err
	}
	if errors.Is(err, domain.ErrPermissionDenied) {
		s.pref.ActiveTracking = false
		s.switchLocked(ModeIdle)
		return err
	}
	if err == nil {
		s.selfRisk = level
		if m := s.modeLocked(); m != s.mode {
			gen = s.switchLocked(m)
		}
	}
	s.armLocked(gen)
	return nil
}

// ObserveRisk records the subject's own risk level from a report made
// outside the scheduler. A level that changes the mode re-arms the ticker
// without an extra report.
func (s *Scheduler) ObserveRisk(level domain.RiskLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observeLocked(level)
}

// Stop cancels the ticker and waits for an in-flight report to finish.
func (s *Scheduler) Stop() {
	s.stopRoot()
	s.mu.Lock()
	s.switchLocked(ModeIdle)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) modeLocked() Mode {
	switch {
	case !s.pref.ActiveTracking:
		return ModeIdle
	case s.pref.HighRiskFrequency, s.selfRisk.Elevated():
		return ModeHighFrequency
	default:
		return ModeNormal
	}
}

// switchLocked cancels the running ticker and enters mode under a new
// generation.
func (s *Scheduler) switchLocked(mode Mode) uint64 {
	if s.stopTicker != nil {
		s.stopTicker()
		s.stopTicker = nil
	}
	s.gen++
	if s.mode != mode {
		s.logger.Info("tracking mode changed", "from", s.mode.String(), "to", mode.String())
	}
	s.mode = mode
	s.metrics.TrackingMode.Set(float64(mode))
	return s.gen
}

func (s *Scheduler) armLocked(gen uint64) {
	if s.mode == ModeIdle || s.root.Err() != nil {
		return
	}
	period := s.normal
	if s.mode == ModeHighFrequency {
		period = s.high
	}
	ctx, cancel := context.WithCancel(s.root)
	s.stopTicker = cancel
	// The ticker exists once Apply returns; the loop only drains it.
	ticker := s.clock.NewTicker(period)
	s.wg.Add(1)
	go s.loop(ctx, gen, ticker)
}

func (s *Scheduler) observeLocked(level domain.RiskLevel) {
	s.selfRisk = level
	if m := s.modeLocked(); m != s.mode {
		s.armLocked(s.switchLocked(m))
	}
}

func (s *Scheduler) loop(ctx context.Context, gen uint64, ticker clockwork.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			s.tick(ctx, gen)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, gen uint64) {
	// A report already under way finishes even if the ticker is cancelled.
	level, err := s.report(context.WithoutCancel(ctx))

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		s.pref.ActiveTracking = false
		s.switchLocked(ModeIdle)
		s.mu.Unlock()
		if s.onDenied != nil {
			s.onDenied(context.WithoutCancel(ctx))
		}
		return
	case err == nil:
		s.observeLocked(level)
	}
	s.mu.Unlock()
}

func (s *Scheduler) report(ctx context.Context) (domain.RiskLevel, error) {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()

	level, err := s.reporter.Report(ctx)
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		s.metrics.TrackingReports.WithLabelValues("permission_denied").Inc()
		s.logger.Warn("location report denied, tracking stopped")
	case err != nil:
		s.metrics.TrackingReports.WithLabelValues("error").Inc()
		s.logger.Warn("location report failed", "error", err)
	default:
		s.metrics.TrackingReports.WithLabelValues("success").Inc()
		s.logger.Debug("location reported", "risk_level", string(level))
	}
	return level, err
}
