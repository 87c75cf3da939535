package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/couchcryptid/flood-risk-service/internal/observability"
	"golang.org/x/sync/errgroup"
)

// TelemetrySource returns a sample for any coordinate and never fails.
// Satisfied by *telemetry.Source.
type TelemetrySource interface {
	Fetch(ctx context.Context, lat, lon float64) domain.TelemetrySample
}

// DefaultFusionConcurrency bounds concurrent telemetry fetches per circle.
const DefaultFusionConcurrency = 4

// Fuser joins each member with their latest location and the risk there.
// A member whose data cannot be resolved gets an UNKNOWN snapshot; one
// member's failure never fails the batch.
type Fuser struct {
	locations   domain.LocationStore
	telemetry   TelemetrySource
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

func NewFuser(locations domain.LocationStore, telemetry TelemetrySource, concurrency int, logger *slog.Logger, metrics *observability.Metrics) *Fuser {
	if concurrency < 1 {
		concurrency = DefaultFusionConcurrency
	}
	return &Fuser{
		locations:   locations,
		telemetry:   telemetry,
		concurrency: concurrency,
		logger:      logger,
		metrics:     metrics,
	}
}

// Fuse builds the snapshot for one member.
func (f *Fuser) Fuse(ctx context.Context, member domain.FamilyMember) domain.MemberSnapshot {
	unresolved := domain.MemberSnapshot{Member: member, Risk: domain.UnknownAssessment()}

	if err := ctx.Err(); err != nil {
		f.fail(member, err)
		return unresolved
	}

	rec, err := f.locations.Latest(ctx, member.MemberID)
	if err != nil {
		f.fail(member, err)
		return unresolved
	}
	if rec == nil {
		return unresolved
	}

	sample := f.telemetry.Fetch(ctx, rec.Latitude, rec.Longitude)
	// The source degrades to a fallback sample on cancellation; that sample
	// must not be reported as this member's risk.
	if err := ctx.Err(); err != nil {
		f.fail(member, err)
		return unresolved
	}

	loc := rec.WithDeviceDefaults()
	risk := domain.Score(sample)
	observeAssessment(f.metrics, risk)
	return domain.MemberSnapshot{Member: member, Location: &loc, Risk: risk}
}

// FuseAll fuses members concurrently. Results are in member order.
func (f *Fuser) FuseAll(ctx context.Context, members []domain.FamilyMember) []domain.MemberSnapshot {
	start := time.Now()
	defer func() { f.metrics.FusionDuration.Observe(time.Since(start).Seconds()) }()

	snapshots := make([]domain.MemberSnapshot, len(members))
	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i := range members {
		g.Go(func() error {
			snapshots[i] = f.Fuse(ctx, members[i])
			return nil
		})
	}
	_ = g.Wait() // Fuse never returns an error
	return snapshots
}

func (f *Fuser) fail(member domain.FamilyMember, err error) {
	f.logger.Warn("member risk unresolved", "member_id", member.MemberID, "error", err)
	f.metrics.FusionFailures.Inc()
}

func observeAssessment(m *observability.Metrics, a domain.RiskAssessment) {
	m.Assessments.WithLabelValues(string(a.Level)).Inc()
	for _, o := range a.Overrides {
		m.Overrides.WithLabelValues(string(o)).Inc()
	}
}
