package monitor

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/couchcryptid/flood-risk-service/internal/observability"
	"github.com/google/uuid"
)

// History paging bounds.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
	// DefaultSafetyLimit is the page size for SOS and check-in reads.
	DefaultSafetyLimit = 10
)

// Deps are the collaborators of a Service.
type Deps struct {
	Fuser       *Fuser
	Telemetry   TelemetrySource
	Members     domain.FamilyDirectory
	Locations   domain.LocationStore
	Preferences *Preferences
	Publisher   domain.AlertPublisher
	Safety      domain.SafetyLog
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Service is the risk monitor exposed to transports and to the device
// tracker.
type Service struct {
	fuser     *Fuser
	telemetry TelemetrySource
	members   domain.FamilyDirectory
	locations domain.LocationStore
	prefs     *Preferences
	publisher domain.AlertPublisher
	safety    domain.SafetyLog
	logger    *slog.Logger
	metrics   *observability.Metrics
}

func NewService(d Deps) *Service {
	return &Service{
		fuser:     d.Fuser,
		telemetry: d.Telemetry,
		members:   d.Members,
		locations: d.Locations,
		prefs:     d.Preferences,
		publisher: d.Publisher,
		safety:    d.Safety,
		logger:    d.Logger,
		metrics:   d.Metrics,
	}
}

// GetRiskAt scores the current telemetry at a coordinate. Upstream failures
// are absorbed by the telemetry source, so the only error is validation.
func (s *Service) GetRiskAt(ctx context.Context, lat, lon float64) (domain.RiskReport, error) {
	if err := domain.ValidateCoordinate(lat, lon); err != nil {
		return domain.RiskReport{}, err
	}
	sample := s.telemetry.Fetch(ctx, lat, lon)
	risk := domain.Score(sample)
	observeAssessment(s.metrics, risk)

	return domain.RiskReport{
		Location:  domain.Location{Latitude: lat, Longitude: lon},
		Weather:   sample,
		Risk:      risk,
		Timestamp: domain.Now(),
	}, nil
}

// GetFamilyRisk returns one snapshot per member of the subject's circle, in
// directory order.
func (s *Service) GetFamilyRisk(ctx context.Context, subjectID string) ([]domain.MemberSnapshot, error) {
	members, err := s.ListMembers(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return s.fuser.FuseAll(ctx, members), nil
}

// GetAlerts synthesizes the current alert feed for the subject's circle.
func (s *Service) GetAlerts(ctx context.Context, subjectID string) ([]domain.Alert, error) {
	snapshots, err := s.GetFamilyRisk(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	alerts := domain.SynthesizeAlerts(snapshots)
	for _, a := range alerts {
		s.metrics.AlertsSynthesized.WithLabelValues(string(a.Kind)).Inc()
	}
	return alerts, nil
}

// DispatchAlerts synthesizes the feed and hands it to the publisher. The
// alerts are returned even when publishing fails.
func (s *Service) DispatchAlerts(ctx context.Context, subjectID string) ([]domain.Alert, error) {
	alerts, err := s.GetAlerts(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if err := s.publisher.PublishAlerts(ctx, subjectID, alerts); err != nil {
		s.logger.Error("dispatch alerts", "subject_id", subjectID, "error", err)
		return alerts, domain.NewError(domain.CodeUpstreamUnavailable, "alerts could not be dispatched", err)
	}
	return alerts, nil
}

// TriggerSOS records and publishes a distress alert. When the device did not
// send its risk level, the risk at the SOS coordinate is computed first. A
// failed record does not hold back delivery.
func (s *Service) TriggerSOS(ctx context.Context, req domain.SOSRequest) (domain.SOSAlert, error) {
	if err := domain.Validate(req); err != nil {
		return domain.SOSAlert{}, err
	}
	if req.RiskLevel == "" {
		report, err := s.GetRiskAt(ctx, *req.Latitude, *req.Longitude)
		if err != nil {
			return domain.SOSAlert{}, err
		}
		req.RiskLevel = report.Risk.Level
		req.RiskScore = report.Risk.Score
	}

	alert, err := domain.NewSOSAlert(req)
	if err != nil {
		return domain.SOSAlert{}, err
	}
	s.metrics.AlertsSynthesized.WithLabelValues(string(domain.AlertSOS)).Inc()
	if err := s.safety.RecordSOS(ctx, alert); err != nil {
		s.logger.Warn("record sos", "subject_id", alert.SubjectID, "sos_id", alert.ID, "error", err)
	}
	if err := s.publisher.PublishSOS(ctx, alert); err != nil {
		s.logger.Error("dispatch sos", "subject_id", alert.SubjectID, "sos_id", alert.ID, "error", err)
		return alert, domain.NewError(domain.CodeUpstreamUnavailable, "sos could not be dispatched", err)
	}
	s.logger.Info("sos triggered", "subject_id", alert.SubjectID, "sos_id", alert.ID, "risk_level", alert.RiskLevel)
	return alert, nil
}

// RecentSOS returns the subject's latest SOS alerts, newest first.
func (s *Service) RecentSOS(ctx context.Context, subjectID string, limit int) ([]domain.SOSAlert, error) {
	if subjectID == "" {
		return nil, domain.NewError(domain.CodeValidation, "subject_id is required", nil)
	}
	return s.safety.RecentSOS(ctx, subjectID, safetyLimit(limit))
}

// MarkSafe records that the subject is safe, optionally at a shelter.
func (s *Service) MarkSafe(ctx context.Context, req domain.CheckInRequest) (domain.SafetyCheckIn, error) {
	checkIn, err := domain.NewSafetyCheckIn(req)
	if err != nil {
		return domain.SafetyCheckIn{}, err
	}
	if err := s.safety.RecordCheckIn(ctx, checkIn); err != nil {
		return domain.SafetyCheckIn{}, err
	}
	s.logger.Info("subject marked safe", "subject_id", checkIn.SubjectID, "shelter_id", checkIn.ShelterID)
	return checkIn, nil
}

// RecentCheckIns returns the subject's latest check-ins, newest first.
func (s *Service) RecentCheckIns(ctx context.Context, subjectID string, limit int) ([]domain.SafetyCheckIn, error) {
	if subjectID == "" {
		return nil, domain.NewError(domain.CodeValidation, "subject_id is required", nil)
	}
	return s.safety.RecentCheckIns(ctx, subjectID, safetyLimit(limit))
}

func safetyLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSafetyLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}

// RecordLocation validates and appends a location update.
func (s *Service) RecordLocation(ctx context.Context, update domain.LocationUpdate) (domain.LocationRecord, error) {
	rec, err := update.Record(domain.Now())
	if err != nil {
		return domain.LocationRecord{}, err
	}
	if err := s.locations.Append(ctx, rec); err != nil {
		return domain.LocationRecord{}, err
	}
	return rec, nil
}

func (s *Service) LatestLocation(ctx context.Context, memberID string) (domain.LocationRecord, error) {
	if memberID == "" {
		return domain.LocationRecord{}, domain.NewError(domain.CodeValidation, "member_id is required", nil)
	}
	rec, err := s.locations.Latest(ctx, memberID)
	if err != nil {
		return domain.LocationRecord{}, err
	}
	if rec == nil {
		return domain.LocationRecord{}, domain.NewError(domain.CodeNotFound, "no location recorded for member "+memberID, domain.ErrNotFound)
	}
	return rec.WithDeviceDefaults(), nil
}

// LocationHistory returns up to limit records, newest first. A limit of zero
// or less means DefaultHistoryLimit; larger limits are capped.
func (s *Service) LocationHistory(ctx context.Context, memberID string, limit int) ([]domain.LocationRecord, error) {
	if memberID == "" {
		return nil, domain.NewError(domain.CodeValidation, "member_id is required", nil)
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	recs, err := s.locations.History(ctx, memberID, limit)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i] = recs[i].WithDeviceDefaults()
	}
	return recs, nil
}

func (s *Service) ListMembers(ctx context.Context, subjectID string) ([]domain.FamilyMember, error) {
	if subjectID == "" {
		return nil, domain.NewError(domain.CodeValidation, "subject_id is required", nil)
	}
	return s.members.List(ctx, subjectID)
}

// AddMember adds a member to the subject's circle, assigning an ID when the
// caller did not supply one.
func (s *Service) AddMember(ctx context.Context, subjectID string, member domain.FamilyMember) (domain.FamilyMember, error) {
	if subjectID == "" {
		return domain.FamilyMember{}, domain.NewError(domain.CodeValidation, "subject_id is required", nil)
	}
	if member.MemberID == "" {
		member.MemberID = uuid.NewString()
	}
	if err := domain.Validate(member); err != nil {
		return domain.FamilyMember{}, err
	}
	if err := s.members.Add(ctx, subjectID, member); err != nil {
		return domain.FamilyMember{}, err
	}
	return member, nil
}

// UpdateMember applies a settings patch. Marking a member primary clears the
// flag on the rest of the circle.
func (s *Service) UpdateMember(ctx context.Context, subjectID, memberID string, patch domain.MemberPatch) (domain.FamilyMember, error) {
	if subjectID == "" || memberID == "" {
		return domain.FamilyMember{}, domain.NewError(domain.CodeValidation, "subject_id and member_id are required", nil)
	}
	current, err := s.members.Get(ctx, subjectID, memberID)
	if err != nil {
		return domain.FamilyMember{}, err
	}
	updated := patch.Apply(current)
	if err := s.members.Update(ctx, subjectID, updated); err != nil {
		return domain.FamilyMember{}, err
	}
	return updated, nil
}

func (s *Service) RemoveMember(ctx context.Context, subjectID, memberID string) error {
	if subjectID == "" || memberID == "" {
		return domain.NewError(domain.CodeValidation, "subject_id and member_id are required", nil)
	}
	return s.members.Remove(ctx, subjectID, memberID)
}

func (s *Service) GetTrackingPreferences(ctx context.Context, subjectID string) (domain.TrackingPreference, error) {
	return s.prefs.Get(ctx, subjectID)
}

// SetTrackingPreferences applies the toggle locally, re-evaluates the
// subject's tracking scheduler before returning, and persists in the
// background.
func (s *Service) SetTrackingPreferences(ctx context.Context, subjectID string, patch domain.PreferencePatch) (domain.TrackingPreference, error) {
	return s.prefs.Set(ctx, subjectID, patch)
}
