package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/couchcryptid/flood-risk-service/internal/observability"
)

// TrackingApplier re-evaluates a device's tracking mode for a preference.
// Satisfied by *tracking.Scheduler.
type TrackingApplier interface {
	Apply(ctx context.Context, pref domain.TrackingPreference) error
}

// persistTimeout bounds one background preference write.
const persistTimeout = 10 * time.Second

const (
	fieldGPSBackup = iota
	fieldHighRiskFrequency
	fieldTemporalRecording
	fieldFamilyAccess
	fieldActiveTracking
	numPrefFields
)

func patchFields(p *domain.PreferencePatch) [numPrefFields]**bool {
	return [numPrefFields]**bool{
		&p.GPSBackup,
		&p.HighRiskFrequency,
		&p.TemporalRecording,
		&p.FamilyAccess,
		&p.ActiveTracking,
	}
}

// subjectPrefs is the locally applied view of one subject's preferences.
// applyMu is held from the local merge through the scheduler call and the
// write enqueue, so the scheduler and the store see toggles in the order
// they were applied locally. It is always taken before Preferences.mu.
type subjectPrefs struct {
	applyMu  sync.Mutex
	pref     domain.TrackingPreference
	seq      uint64
	versions [numPrefFields]uint64 // seq of the toggle that last set each field
	persist  chan struct{}         // closed when the latest queued write finishes
}

// Preferences applies preference toggles optimistically. A toggle updates the
// local view and re-evaluates the bound scheduler before returning; the store
// write happens in the background, in toggle order per subject. If the write
// fails, each field it set is restored unless a newer toggle set it since.
type Preferences struct {
	store   domain.PreferenceStore
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	subjects map[string]*subjectPrefs
	bound    map[string]TrackingApplier
	wg       sync.WaitGroup
}

func NewPreferences(store domain.PreferenceStore, logger *slog.Logger, metrics *observability.Metrics) *Preferences {
	return &Preferences{
		store:    store,
		logger:   logger,
		metrics:  metrics,
		subjects: make(map[string]*subjectPrefs),
		bound:    make(map[string]TrackingApplier),
	}
}

// Bind attaches the tracking scheduler that owns subjectID's device.
func (p *Preferences) Bind(subjectID string, applier TrackingApplier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bound[subjectID] = applier
}

// Get returns the subject's current preference, loading it on first use.
func (p *Preferences) Get(ctx context.Context, subjectID string) (domain.TrackingPreference, error) {
	s, err := p.load(ctx, subjectID)
	if err != nil {
		return domain.TrackingPreference{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.pref, nil
}

// Set applies patch. The returned preference is the locally applied one. If
// the bound scheduler reports permission denied, active tracking is switched
// off as part of the same toggle and the error is returned with it.
func (p *Preferences) Set(ctx context.Context, subjectID string, patch domain.PreferencePatch) (domain.TrackingPreference, error) {
	s, err := p.load(ctx, subjectID)
	if err != nil {
		return domain.TrackingPreference{}, err
	}
	if patch.Empty() {
		return p.Get(ctx, subjectID)
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	p.mu.Lock()
	before, pref, seq := applyLocked(s, patch)
	applier := p.bound[subjectID]
	p.mu.Unlock()

	var applyErr error
	if applier != nil {
		applyErr = applier.Apply(ctx, pref)
	}
	if errors.Is(applyErr, domain.ErrPermissionDenied) {
		off := false
		patch.ActiveTracking = &off
		// A failed write must not switch tracking back on.
		before.ActiveTracking = false
		p.mu.Lock()
		s.pref.ActiveTracking = false
		s.versions[fieldActiveTracking] = seq
		pref = s.pref
		p.mu.Unlock()
		p.logger.Warn("location permission denied, tracking disabled", "subject_id", subjectID)
	}

	p.enqueue(subjectID, s, patch, before, seq)

	if applyErr != nil {
		return pref, domain.NewError(domain.CodeOf(applyErr), "tracking could not be applied", applyErr)
	}
	return pref, nil
}

// DisableTracking records that the device lost location permission outside a
// toggle, e.g. during a scheduled report. The bound scheduler is expected to
// have stopped itself already.
func (p *Preferences) DisableTracking(ctx context.Context, subjectID string) {
	off := false
	patch := domain.PreferencePatch{ActiveTracking: &off}

	s, err := p.load(ctx, subjectID)
	if err != nil {
		p.logger.Error("disable tracking: load preferences", "subject_id", subjectID, "error", err)
		return
	}
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	p.mu.Lock()
	before, _, seq := applyLocked(s, patch)
	p.mu.Unlock()

	before.ActiveTracking = false
	p.enqueue(subjectID, s, patch, before, seq)
}

// Wait blocks until all queued preference writes have finished.
func (p *Preferences) Wait() {
	p.wg.Wait()
}

// applyLocked merges patch into the local view and stamps the fields it sets.
func applyLocked(s *subjectPrefs, patch domain.PreferencePatch) (before, after domain.TrackingPreference, seq uint64) {
	before = s.pref
	s.seq++
	s.pref = patch.Merge(s.pref)
	for i, f := range patchFields(&patch) {
		if *f != nil {
			s.versions[i] = s.seq
		}
	}
	return before, s.pref, s.seq
}

func (p *Preferences) load(ctx context.Context, subjectID string) (*subjectPrefs, error) {
	if subjectID == "" {
		return nil, domain.NewError(domain.CodeValidation, "subject_id is required", nil)
	}

	p.mu.Lock()
	s, ok := p.subjects[subjectID]
	p.mu.Unlock()
	if ok {
		return s, nil
	}

	stored, err := p.store.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Another caller may have loaded the subject meanwhile.
	if s, ok := p.subjects[subjectID]; ok {
		return s, nil
	}
	s = &subjectPrefs{pref: stored}
	p.subjects[subjectID] = s
	return s, nil
}

// enqueue schedules the store write for a toggle behind any earlier write for
// the same subject.
func (p *Preferences) enqueue(subjectID string, s *subjectPrefs, patch domain.PreferencePatch, before domain.TrackingPreference, seq uint64) {
	p.mu.Lock()
	prev := s.persist
	done := make(chan struct{})
	s.persist = done
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := p.store.Put(ctx, subjectID, patch); err != nil {
			p.revert(subjectID, s, patch.Inverse(before), seq, err)
		}
	}()
}

func (p *Preferences) revert(subjectID string, s *subjectPrefs, inverse domain.PreferencePatch, seq uint64, cause error) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	p.mu.Lock()
	fields := patchFields(&inverse)
	for i, f := range fields {
		if *f != nil && s.versions[i] != seq {
			*f = nil // superseded by a newer toggle
		}
	}
	if inverse.Empty() {
		p.mu.Unlock()
		p.logger.Warn("preference write failed, change already superseded",
			"subject_id", subjectID, "error", cause)
		return
	}
	s.pref = inverse.Merge(s.pref)
	pref := s.pref
	applier := p.bound[subjectID]
	p.mu.Unlock()

	p.metrics.PreferenceReverts.Inc()
	p.logger.Warn("preference write failed, reverted local change",
		"subject_id", subjectID, "error", cause)

	if applier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := applier.Apply(ctx, pref); err != nil {
			p.logger.Warn("re-apply tracking after revert", "subject_id", subjectID, "error", err)
		}
	}
}
