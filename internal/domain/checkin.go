package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnknownShelter is recorded when a subject checks in away from a known shelter.
const UnknownShelter = "UNKNOWN"

// CheckInRequest reports that a subject is safe, optionally at a shelter.
type CheckInRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	ShelterID string `json:"shelter_id" validate:"max=64"`
	Notes     string `json:"notes" validate:"max=500"`
}

// SafetyCheckIn is a recorded mark-safe event. Check-ins are append-only.
type SafetyCheckIn struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	ShelterID   string    `json:"shelter_id"`
	Notes       string    `json:"notes"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// NewSafetyCheckIn validates req and stamps the check-in.
func NewSafetyCheckIn(req CheckInRequest) (SafetyCheckIn, error) {
	if err := Validate(req); err != nil {
		return SafetyCheckIn{}, err
	}
	shelter := req.ShelterID
	if shelter == "" {
		shelter = UnknownShelter
	}
	return SafetyCheckIn{
		ID:          uuid.NewString(),
		SubjectID:   req.SubjectID,
		ShelterID:   shelter,
		Notes:       req.Notes,
		CheckedInAt: clock.Now(),
	}, nil
}
