package postgres

import (
	"context"
	"errors"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/jackc/pgx/v5"
)

// LocationStore persists the member location log in location_records.
type LocationStore struct {
	db DBTX
}

func NewLocationStore(db DBTX) *LocationStore {
	return &LocationStore{db: db}
}

// Older rows may predate device health columns; defaults are applied on read.
const locationColumns = `member_id, latitude, longitude,
	COALESCE(battery_level, 100), COALESCE(gps_status, 'Active'), recorded_at`

func scanLocation(row pgx.Row) (domain.LocationRecord, error) {
	var rec domain.LocationRecord
	var status string
	err := row.Scan(
		&rec.MemberID,
		&rec.Latitude,
		&rec.Longitude,
		&rec.BatteryLevel,
		&status,
		&rec.RecordedAt,
	)
	rec.GPSStatus = domain.GPSStatus(status)
	return rec, err
}

func (s *LocationStore) Append(ctx context.Context, rec domain.LocationRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO location_records (member_id, latitude, longitude, battery_level, gps_status, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.MemberID,
		rec.Latitude,
		rec.Longitude,
		rec.BatteryLevel,
		string(rec.GPSStatus),
		rec.RecordedAt,
	)
	if err != nil {
		return domain.NewError(domain.CodeInternal, "failed to append location", err)
	}
	return nil
}

func (s *LocationStore) Latest(ctx context.Context, memberID string) (*domain.LocationRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+locationColumns+`
		 FROM location_records
		 WHERE member_id = $1
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT 1`,
		memberID,
	)
	rec, err := scanLocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to load latest location", err)
	}
	return &rec, nil
}

func (s *LocationStore) History(ctx context.Context, memberID string, limit int) ([]domain.LocationRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+locationColumns+`
		 FROM location_records
		 WHERE member_id = $1
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT $2`,
		memberID, limit,
	)
	if err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to query location history", err)
	}
	defer rows.Close()

	records := make([]domain.LocationRecord, 0, limit)
	for rows.Next() {
		rec, err := scanLocation(rows)
		if err != nil {
			return nil, domain.NewError(domain.CodeInternal, "failed to scan location", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to iterate location history", err)
	}
	return records, nil
}
