// Package memory provides in-process implementations of the domain stores,
// used when no database is configured and in tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
)

// LocationStore is an append-only location log per member.
type LocationStore struct {
	mu      sync.RWMutex
	records map[string][]domain.LocationRecord
}

func NewLocationStore() *LocationStore {
	return &LocationStore{records: make(map[string][]domain.LocationRecord)}
}

func (s *LocationStore) Append(_ context.Context, rec domain.LocationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep each log sorted by RecordedAt so out-of-order writes still
	// resolve latest correctly; equal timestamps keep write order.
	log := s.records[rec.MemberID]
	i := sort.Search(len(log), func(i int) bool {
		return log[i].RecordedAt.After(rec.RecordedAt)
	})
	s.records[rec.MemberID] = slices.Insert(log, i, rec)
	return nil
}

func (s *LocationStore) Latest(_ context.Context, memberID string) (*domain.LocationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.records[memberID]
	if len(log) == 0 {
		return nil, nil
	}
	rec := log[len(log)-1]
	return &rec, nil
}

func (s *LocationStore) History(_ context.Context, memberID string, limit int) ([]domain.LocationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.records[memberID]
	n := min(limit, len(log))
	out := make([]domain.LocationRecord, 0, max(n, 0))
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, log[i])
	}
	return out, nil
}

// PreferenceStore keeps tracking preferences per subject.
type PreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]domain.TrackingPreference
}

func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{prefs: make(map[string]domain.TrackingPreference)}
}

func (s *PreferenceStore) Get(_ context.Context, subjectID string) (domain.TrackingPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pref, ok := s.prefs[subjectID]; ok {
		return pref, nil
	}
	return domain.DefaultTrackingPreference(), nil
}

func (s *PreferenceStore) Put(_ context.Context, subjectID string, patch domain.PreferencePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pref, ok := s.prefs[subjectID]
	if !ok {
		pref = domain.DefaultTrackingPreference()
	}
	s.prefs[subjectID] = patch.Merge(pref)
	return nil
}

// FamilyDirectory keeps each subject's safety circle in insertion order.
type FamilyDirectory struct {
	mu      sync.RWMutex
	circles map[string][]domain.FamilyMember
}

func NewFamilyDirectory() *FamilyDirectory {
	return &FamilyDirectory{circles: make(map[string][]domain.FamilyMember)}
}

func (d *FamilyDirectory) List(_ context.Context, subjectID string) ([]domain.FamilyMember, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.circles[subjectID]), nil
}

func (d *FamilyDirectory) Get(_ context.Context, subjectID, memberID string) (domain.FamilyMember, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i := d.index(subjectID, memberID)
	if i < 0 {
		return domain.FamilyMember{}, notFound(memberID)
	}
	return d.circles[subjectID][i], nil
}

func (d *FamilyDirectory) Add(_ context.Context, subjectID string, member domain.FamilyMember) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.index(subjectID, member.MemberID) >= 0 {
		return domain.NewError(domain.CodeValidation, "member "+member.MemberID+" is already in the circle", nil)
	}
	if member.IsPrimaryContact {
		d.clearPrimary(subjectID)
	}
	d.circles[subjectID] = append(d.circles[subjectID], member)
	return nil
}

func (d *FamilyDirectory) Update(_ context.Context, subjectID string, member domain.FamilyMember) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.index(subjectID, member.MemberID)
	if i < 0 {
		return notFound(member.MemberID)
	}
	if member.IsPrimaryContact {
		d.clearPrimary(subjectID)
	}
	d.circles[subjectID][i] = member
	return nil
}

func (d *FamilyDirectory) Remove(_ context.Context, subjectID, memberID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.index(subjectID, memberID)
	if i < 0 {
		return notFound(memberID)
	}
	d.circles[subjectID] = slices.Delete(d.circles[subjectID], i, i+1)
	return nil
}

func (d *FamilyDirectory) index(subjectID, memberID string) int {
	return slices.IndexFunc(d.circles[subjectID], func(m domain.FamilyMember) bool {
		return m.MemberID == memberID
	})
}

func (d *FamilyDirectory) clearPrimary(subjectID string) {
	circle := d.circles[subjectID]
	for i := range circle {
		circle[i].IsPrimaryContact = false
	}
}

func notFound(memberID string) error {
	return domain.NewError(domain.CodeNotFound, "member "+memberID+" not found", domain.ErrNotFound)
}
