package postgres

import (
	"context"
	"errors"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/jackc/pgx/v5"
)

// PreferenceStore persists tracking preferences in tracking_preferences.
type PreferenceStore struct {
	db DBTX
}

func NewPreferenceStore(db DBTX) *PreferenceStore {
	return &PreferenceStore{db: db}
}

func (s *PreferenceStore) Get(ctx context.Context, subjectID string) (domain.TrackingPreference, error) {
	var p domain.TrackingPreference
	err := s.db.QueryRow(ctx,
		`SELECT gps_backup, high_risk_frequency, temporal_recording, family_access, active_tracking
		 FROM tracking_preferences WHERE subject_id = $1`,
		subjectID,
	).Scan(&p.GPSBackup, &p.HighRiskFrequency, &p.TemporalRecording, &p.FamilyAccess, &p.ActiveTracking)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultTrackingPreference(), nil
	}
	if err != nil {
		return domain.TrackingPreference{}, domain.NewError(domain.CodeInternal, "failed to load preferences", err)
	}
	return p, nil
}

// Put upserts the fields set in patch; NULL parameters keep the stored value
// (or the default for a new row).
func (s *PreferenceStore) Put(ctx context.Context, subjectID string, patch domain.PreferencePatch) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tracking_preferences AS tp
		     (subject_id, gps_backup, high_risk_frequency, temporal_recording, family_access, active_tracking, updated_at)
		 VALUES ($1, COALESCE($2, FALSE), COALESCE($3, FALSE), COALESCE($4, FALSE), COALESCE($5, FALSE), COALESCE($6, TRUE), NOW())
		 ON CONFLICT (subject_id) DO UPDATE SET
		     gps_backup          = COALESCE($2, tp.gps_backup),
		     high_risk_frequency = COALESCE($3, tp.high_risk_frequency),
		     temporal_recording  = COALESCE($4, tp.temporal_recording),
		     family_access       = COALESCE($5, tp.family_access),
		     active_tracking     = COALESCE($6, tp.active_tracking),
		     updated_at          = NOW()`,
		subjectID,
		patch.GPSBackup,
		patch.HighRiskFrequency,
		patch.TemporalRecording,
		patch.FamilyAccess,
		patch.ActiveTracking,
	)
	if err != nil {
		return domain.NewError(domain.CodeInternal, "failed to save preferences", err)
	}
	return nil
}
