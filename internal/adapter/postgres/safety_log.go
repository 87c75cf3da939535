package postgres

import (
	"context"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/jackc/pgx/v5"
)

// SafetyLog persists SOS alerts in sos_alerts and mark-safe events in
// safety_checkins.
type SafetyLog struct {
	db DBTX
}

func NewSafetyLog(db DBTX) *SafetyLog {
	return &SafetyLog{db: db}
}

const sosColumns = `id, subject_id, latitude, longitude, risk_level, risk_score, battery_level, maps_link, status, created_at`

func scanSOS(row pgx.Row) (domain.SOSAlert, error) {
	var a domain.SOSAlert
	var level string
	err := row.Scan(
		&a.ID,
		&a.SubjectID,
		&a.Latitude,
		&a.Longitude,
		&level,
		&a.RiskScore,
		&a.BatteryLevel,
		&a.MapsLink,
		&a.Status,
		&a.CreatedAt,
	)
	a.RiskLevel = domain.RiskLevel(level)
	return a, err
}

func (l *SafetyLog) RecordSOS(ctx context.Context, a domain.SOSAlert) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO sos_alerts (`+sosColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID,
		a.SubjectID,
		a.Latitude,
		a.Longitude,
		string(a.RiskLevel),
		a.RiskScore,
		a.BatteryLevel,
		a.MapsLink,
		a.Status,
		a.CreatedAt,
	)
	if err != nil {
		return domain.NewError(domain.CodeInternal, "failed to record sos alert", err)
	}
	return nil
}

func (l *SafetyLog) RecentSOS(ctx context.Context, subjectID string, limit int) ([]domain.SOSAlert, error) {
	rows, err := l.db.Query(ctx,
		`SELECT `+sosColumns+` FROM sos_alerts
		 WHERE subject_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`,
		subjectID, limit,
	)
	if err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to query sos alerts", err)
	}
	defer rows.Close()

	alerts := make([]domain.SOSAlert, 0, limit)
	for rows.Next() {
		a, err := scanSOS(rows)
		if err != nil {
			return nil, domain.NewError(domain.CodeInternal, "failed to scan sos alert", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to iterate sos alerts", err)
	}
	return alerts, nil
}

func (l *SafetyLog) RecordCheckIn(ctx context.Context, c domain.SafetyCheckIn) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO safety_checkins (id, subject_id, shelter_id, notes, checked_in_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID,
		c.SubjectID,
		c.ShelterID,
		c.Notes,
		c.CheckedInAt,
	)
	if err != nil {
		return domain.NewError(domain.CodeInternal, "failed to record check-in", err)
	}
	return nil
}

func (l *SafetyLog) RecentCheckIns(ctx context.Context, subjectID string, limit int) ([]domain.SafetyCheckIn, error) {
	rows, err := l.db.Query(ctx,
		`SELECT id, subject_id, shelter_id, notes, checked_in_at FROM safety_checkins
		 WHERE subject_id = $1
		 ORDER BY checked_in_at DESC, id
		 LIMIT $2`,
		subjectID, limit,
	)
	if err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to query check-ins", err)
	}
	defer rows.Close()

	checkIns := make([]domain.SafetyCheckIn, 0, limit)
	for rows.Next() {
		var c domain.SafetyCheckIn
		if err := rows.Scan(&c.ID, &c.SubjectID, &c.ShelterID, &c.Notes, &c.CheckedInAt); err != nil {
			return nil, domain.NewError(domain.CodeInternal, "failed to scan check-in", err)
		}
		checkIns = append(checkIns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to iterate check-ins", err)
	}
	return checkIns, nil
}
