package domain

import "context"

// LocationStore is the append-only member location log.
type LocationStore interface {
	Append(ctx context.Context, rec LocationRecord) error
	// Latest returns the newest record for the member, or nil if none exists.
	Latest(ctx context.Context, memberID string) (*LocationRecord, error)
	// History returns up to limit records, newest first.
	History(ctx context.Context, memberID string, limit int) ([]LocationRecord, error)
}

// PreferenceStore persists tracking preferences per subject.
type PreferenceStore interface {
	// Get returns the stored preference, or DefaultTrackingPreference if none.
	Get(ctx context.Context, subjectID string) (TrackingPreference, error)
	// Put merges the patch into the stored preference.
	Put(ctx context.Context, subjectID string, patch PreferencePatch) error
}

// FamilyDirectory owns a subject's safety circle. Implementations keep at most
// one primary contact per circle: marking a member primary clears the others
// in the same write.
type FamilyDirectory interface {
	List(ctx context.Context, subjectID string) ([]FamilyMember, error)
	Get(ctx context.Context, subjectID, memberID string) (FamilyMember, error)
	Add(ctx context.Context, subjectID string, member FamilyMember) error
	Update(ctx context.Context, subjectID string, member FamilyMember) error
	Remove(ctx context.Context, subjectID, memberID string) error
}

// AlertPublisher hands alerts to downstream delivery.
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, subjectID string, alerts []Alert) error
	PublishSOS(ctx context.Context, alert SOSAlert) error
}

// SafetyLog keeps SOS alerts and safety check-ins so the circle can read
// them back. Recent* return newest first.
type SafetyLog interface {
	RecordSOS(ctx context.Context, alert SOSAlert) error
	RecentSOS(ctx context.Context, subjectID string, limit int) ([]SOSAlert, error)
	RecordCheckIn(ctx context.Context, checkIn SafetyCheckIn) error
	RecentCheckIns(ctx context.Context, subjectID string, limit int) ([]SafetyCheckIn, error)
}
