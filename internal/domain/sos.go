package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SOSStatusActive marks an SOS alert that has not been resolved.
const SOSStatusActive = "ACTIVE"

// SOSRequest is a manual distress signal from a subject's device.
type SOSRequest struct {
	SubjectID    string    `json:"subject_id" validate:"required"`
	Latitude     *float64  `json:"lat" validate:"required,latitude"`
	Longitude    *float64  `json:"lon" validate:"required,longitude"`
	RiskLevel    RiskLevel `json:"risk_level" validate:"omitempty,oneof=LOW MODERATE HIGH SEVERE UNKNOWN"`
	RiskScore    float64   `json:"risk_score"`
	BatteryLevel *int      `json:"battery_level" validate:"omitempty,min=0,max=100"`
}

// SOSAlert is the record published to emergency contacts.
type SOSAlert struct {
	ID           string    `json:"id"`
	SubjectID    string    `json:"subject_id"`
	Latitude     float64   `json:"lat"`
	Longitude    float64   `json:"lon"`
	RiskLevel    RiskLevel `json:"risk_level"`
	RiskScore    float64   `json:"risk_score"`
	BatteryLevel *int      `json:"battery_level,omitempty"`
	MapsLink     string    `json:"maps_link"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewSOSAlert validates req and builds the alert with a navigation link.
func NewSOSAlert(req SOSRequest) (SOSAlert, error) {
	if err := Validate(req); err != nil {
		return SOSAlert{}, err
	}
	level := req.RiskLevel
	if level == "" {
		level = RiskUnknown
	}
	return SOSAlert{
		ID:           uuid.NewString(),
		SubjectID:    req.SubjectID,
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		RiskLevel:    level,
		RiskScore:    req.RiskScore,
		BatteryLevel: req.BatteryLevel,
		MapsLink:     MapsLink(*req.Latitude, *req.Longitude),
		Status:       SOSStatusActive,
		CreatedAt:    clock.Now(),
	}, nil
}

// MapsLink returns a Google Maps directions URL to the coordinate.
func MapsLink(lat, lon float64) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%s,%s",
		strconv.FormatFloat(lat, 'f', -1, 64), strconv.FormatFloat(lon, 'f', -1, 64))
}
