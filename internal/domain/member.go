package domain

import "time"

// GPSStatus is the device-reported GPS state.
type GPSStatus string

const (
	GPSActive GPSStatus = "Active"
	GPSLost   GPSStatus = "Lost"
)

// DefaultBatteryLevel applies to location records written before devices reported battery.
const DefaultBatteryLevel = 100

// FamilyMember is one person in a subject's safety circle.
type FamilyMember struct {
	MemberID          string `json:"member_id" validate:"required"`
	DisplayName       string `json:"display_name"`
	Relation          string `json:"relation"`
	Phone             string `json:"phone"`
	IsPrimaryContact  bool   `json:"is_primary_contact"`
	HasLocationAccess bool   `json:"has_location_access"`
}

// MemberPatch carries a partial settings update for a member.
type MemberPatch struct {
	DisplayName       *string `json:"display_name,omitempty"`
	Relation          *string `json:"relation,omitempty"`
	Phone             *string `json:"phone,omitempty"`
	IsPrimaryContact  *bool   `json:"is_primary_contact,omitempty"`
	HasLocationAccess *bool   `json:"has_location_access,omitempty"`
}

// Apply returns a copy of m with the patch fields set.
func (p MemberPatch) Apply(m FamilyMember) FamilyMember {
	if p.DisplayName != nil {
		m.DisplayName = *p.DisplayName
	}
	if p.Relation != nil {
		m.Relation = *p.Relation
	}
	if p.Phone != nil {
		m.Phone = *p.Phone
	}
	if p.IsPrimaryContact != nil {
		m.IsPrimaryContact = *p.IsPrimaryContact
	}
	if p.HasLocationAccess != nil {
		m.HasLocationAccess = *p.HasLocationAccess
	}
	return m
}

// LocationRecord is one entry in a member's append-only location log.
type LocationRecord struct {
	MemberID     string    `json:"member_id"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	BatteryLevel int       `json:"battery_level"`
	GPSStatus    GPSStatus `json:"gps_status"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// WithDeviceDefaults fills device-health fields missing from older records.
func (r LocationRecord) WithDeviceDefaults() LocationRecord {
	if r.GPSStatus == "" {
		r.GPSStatus = GPSActive
	}
	return r
}

// LocationUpdate is an inbound location write. Optional device fields take
// defaults when omitted.
type LocationUpdate struct {
	MemberID     string   `json:"member_id" validate:"required"`
	Latitude     *float64 `json:"lat" validate:"required,latitude"`
	Longitude    *float64 `json:"lon" validate:"required,longitude"`
	BatteryLevel *int     `json:"battery_level" validate:"omitempty,min=0,max=100"`
	GPSStatus    string   `json:"gps_status" validate:"omitempty,oneof=Active Lost"`
}

// Record validates the update and converts it into a LocationRecord stamped at.
func (u LocationUpdate) Record(at time.Time) (LocationRecord, error) {
	if err := Validate(u); err != nil {
		return LocationRecord{}, err
	}
	rec := LocationRecord{
		MemberID:     u.MemberID,
		Latitude:     *u.Latitude,
		Longitude:    *u.Longitude,
		BatteryLevel: DefaultBatteryLevel,
		GPSStatus:    GPSStatus(u.GPSStatus),
		RecordedAt:   at,
	}
	if u.BatteryLevel != nil {
		rec.BatteryLevel = *u.BatteryLevel
	}
	return rec.WithDeviceDefaults(), nil
}

// MemberSnapshot joins a member with their latest location and the risk at
// that location. It is recomputed per query and never persisted.
type MemberSnapshot struct {
	Member   FamilyMember    `json:"member"`
	Location *LocationRecord `json:"location"`
	Risk     RiskAssessment  `json:"risk"`
}

// Resolved reports whether the snapshot carries a location.
func (s MemberSnapshot) Resolved() bool {
	return s.Location != nil
}
