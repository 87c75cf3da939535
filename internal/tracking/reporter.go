package tracking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
)

// RiskService is the part of the monitor the device reporter needs.
// Satisfied by *monitor.Service.
type RiskService interface {
	RecordLocation(ctx context.Context, update domain.LocationUpdate) (domain.LocationRecord, error)
	GetRiskAt(ctx context.Context, lat, lon float64) (domain.RiskReport, error)
}

// LocationReporter reports the bound device's position as the subject's own
// location record and scores the risk there.
type LocationReporter struct {
	subjectID string
	locator   Locator
	service   RiskService
	logger    *slog.Logger
}

func NewLocationReporter(subjectID string, locator Locator, service RiskService, logger *slog.Logger) *LocationReporter {
	return &LocationReporter{subjectID: subjectID, locator: locator, service: service, logger: logger}
}

// Report takes a fix, appends it, and returns the risk level at the fix.
// Locator errors, including domain.ErrPermissionDenied, are returned as is.
func (r *LocationReporter) Report(ctx context.Context) (domain.RiskLevel, error) {
	fix, err := r.locator.Locate(ctx)
	if err != nil {
		return "", err
	}

	rec, err := r.service.RecordLocation(ctx, domain.LocationUpdate{
		MemberID:     r.subjectID,
		Latitude:     &fix.Latitude,
		Longitude:    &fix.Longitude,
		BatteryLevel: fix.BatteryLevel,
		GPSStatus:    fix.GPSStatus,
	})
	if err != nil {
		return "", fmt.Errorf("record location: %w", err)
	}

	report, err := r.service.GetRiskAt(ctx, rec.Latitude, rec.Longitude)
	if err != nil {
		return "", fmt.Errorf("score location: %w", err)
	}
	r.logger.Debug("device location recorded",
		"subject_id", r.subjectID,
		"lat", rec.Latitude,
		"lon", rec.Longitude,
		"risk_level", string(report.Risk.Level),
	)
	return report.Risk.Level, nil
}
