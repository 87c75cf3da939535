package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/couchcryptid/flood-risk-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPreferences(store domain.PreferenceStore) (*Preferences, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return NewPreferences(store, discardLogger(), metrics), metrics
}

func TestPreferences_GetLoadsStoredValue(t *testing.T) {
	store := newGatedStore()
	store.pref.FamilyAccess = true
	prefs, _ := newTestPreferences(store)

	got, err := prefs.Get(context.Background(), "subj")
	require.NoError(t, err)
	assert.True(t, got.FamilyAccess)
	assert.True(t, got.ActiveTracking)
}

func TestPreferences_GetRequiresSubject(t *testing.T) {
	prefs, _ := newTestPreferences(newGatedStore())
	_, err := prefs.Get(context.Background(), "")
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestPreferences_GetPropagatesStoreError(t *testing.T) {
	store := newGatedStore()
	store.getErr = errors.New("db down")
	prefs, _ := newTestPreferences(store)

	_, err := prefs.Get(context.Background(), "subj")
	assert.Error(t, err)
}

func TestPreferences_SetAppliesBeforePersisting(t *testing.T) {
	store := newGatedStore()
	store.gate = make(chan struct{})
	prefs, _ := newTestPreferences(store)
	applier := &recordingApplier{}
	prefs.Bind("subj", applier)

	got, err := prefs.Set(context.Background(), "subj", domain.PreferencePatch{HighRiskFrequency: ptr(true)})
	require.NoError(t, err)

	assert.True(t, got.HighRiskFrequency)
	require.Len(t, applier.calls(), 1, "scheduler re-evaluated synchronously")
	assert.True(t, applier.calls()[0].HighRiskFrequency)
	assert.False(t, store.stored().HighRiskFrequency, "write still pending")

	close(store.gate)
	prefs.Wait()
	assert.True(t, store.stored().HighRiskFrequency)
}

func TestPreferences_ConcurrentTogglesReachSchedulerInOrder(t *testing.T) {
	store := newGatedStore()
	prefs, _ := newTestPreferences(store)
	applier := &recordingApplier{delay: time.Millisecond}
	prefs.Bind("subj", applier)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(on bool) {
			defer wg.Done()
			_, err := prefs.Set(ctx, "subj", domain.PreferencePatch{HighRiskFrequency: ptr(on)})
			assert.NoError(t, err)
		}(i%2 == 0)
	}
	wg.Wait()
	prefs.Wait()

	local, err := prefs.Get(ctx, "subj")
	require.NoError(t, err)
	calls := applier.calls()
	require.Len(t, calls, 8)
	assert.Equal(t, local, calls[len(calls)-1], "scheduler runs the latest local preference")
	assert.Equal(t, local, store.stored(), "writes persisted in toggle order")
}

func TestPreferences_RevertReachesSchedulerAfterNewerToggle(t *testing.T) {
	store := newGatedStore()
	store.gate = make(chan struct{})
	store.errs = []error{errors.New("db down")}
	prefs, _ := newTestPreferences(store)
	applier := &recordingApplier{}
	prefs.Bind("subj", applier)
	ctx := context.Background()

	_, err := prefs.Set(ctx, "subj", domain.PreferencePatch{HighRiskFrequency: ptr(true)})
	require.NoError(t, err)
	_, err = prefs.Set(ctx, "subj", domain.PreferencePatch{FamilyAccess: ptr(true)})
	require.NoError(t, err)

	close(store.gate)
	prefs.Wait()

	local, err := prefs.Get(ctx, "subj")
	require.NoError(t, err)
	assert.False(t, local.HighRiskFrequency, "failed toggle reverted")
	assert.True(t, local.FamilyAccess)
	calls := applier.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, local, calls[2])
}

func TestPreferences_EmptyPatchIsNoop(t *testing.T) {
	store := newGatedStore()
	prefs, _ := newTestPreferences(store)
	applier := &recordingApplier{}
	prefs.Bind("subj", applier)

	got, err := prefs.Set(context.Background(), "subj", domain.PreferencePatch{})
	require.NoError(t, err)
	prefs.Wait()

	assert.Equal(t, domain.DefaultTrackingPreference(), got)
	assert.Empty(t, applier.calls())
	assert.Empty(t, store.puts)
}

func TestPreferences_FailedWriteReverts(t *testing.T) {
	store := newGatedStore()
	store.errs = []error{errors.New("write timeout")}
	prefs, metrics := newTestPreferences(store)
	applier := &recordingApplier{}
	prefs.Bind("subj", applier)

	got, err := prefs.Set(context.Background(), "subj", domain.PreferencePatch{TemporalRecording: ptr(true)})
	require.NoError(t, err)
	assert.True(t, got.TemporalRecording)

	prefs.Wait()

	now, err := prefs.Get(context.Background(), "subj")
	require.NoError(t, err)
	assert.False(t, now.TemporalRecording, "local change reverted")
	assert.Equal(t, 1.0, counterValue(t, metrics.PreferenceReverts))

	calls := applier.calls()
	require.Len(t, calls, 2, "scheduler re-evaluated after revert")
	assert.False(t, calls[1].TemporalRecording)
}

func TestPreferences_RevertSkipsSupersededFields(t *testing.T) {
	store := newGatedStore()
	store.gate = make(chan struct{})
	store.errs = []error{errors.New("write timeout"), nil}
	prefs, metrics := newTestPreferences(store)
	ctx := context.Background()

	// First toggle sets two fields; its write is held and will fail.
	_, err := prefs.Set(ctx, "subj", domain.PreferencePatch{GPSBackup: ptr(true), FamilyAccess: ptr(true)})
	require.NoError(t, err)
	// Second toggle overrides one of them before the first write resolves.
	_, err = prefs.Set(ctx, "subj", domain.PreferencePatch{GPSBackup: ptr(false)})
	require.NoError(t, err)

	close(store.gate)
	prefs.Wait()

	got, err := prefs.Get(ctx, "subj")
	require.NoError(t, err)
	assert.False(t, got.GPSBackup, "newer toggle wins")
	assert.False(t, got.FamilyAccess, "unsuperseded field reverted")
	assert.Equal(t, 1.0, counterValue(t, metrics.PreferenceReverts))

	require.Len(t, store.puts, 2)
	assert.NotNil(t, store.puts[0].FamilyAccess, "writes persisted in toggle order")
	assert.Nil(t, store.puts[1].FamilyAccess)
}

func TestPreferences_FullySupersededRevertIsSkipped(t *testing.T) {
	store := newGatedStore()
	store.gate = make(chan struct{})
	store.errs = []error{errors.New("write timeout"), nil}
	prefs, metrics := newTestPreferences(store)
	ctx := context.Background()

	_, err := prefs.Set(ctx, "subj", domain.PreferencePatch{HighRiskFrequency: ptr(true)})
	require.NoError(t, err)
	_, err = prefs.Set(ctx, "subj", domain.PreferencePatch{HighRiskFrequency: ptr(true)})
	require.NoError(t, err)

	close(store.gate)
	prefs.Wait()

	got, err := prefs.Get(ctx, "subj")
	require.NoError(t, err)
	assert.True(t, got.HighRiskFrequency)
	assert.Zero(t, counterValue(t, metrics.PreferenceReverts))
}

func TestPreferences_PermissionDeniedDisablesTracking(t *testing.T) {
	store := newGatedStore()
	prefs, _ := newTestPreferences(store)
	prefs.Bind("subj", &recordingApplier{err: domain.ErrPermissionDenied})

	got, err := prefs.Set(context.Background(), "subj", domain.PreferencePatch{HighRiskFrequency: ptr(true)})
	require.Error(t, err)
	assert.Equal(t, domain.CodePermissionDenied, domain.CodeOf(err))
	assert.True(t, errors.Is(err, domain.ErrPermissionDenied))
	assert.False(t, got.ActiveTracking)
	assert.True(t, got.HighRiskFrequency)

	prefs.Wait()
	assert.False(t, store.stored().ActiveTracking)
	assert.True(t, store.stored().HighRiskFrequency)
}

func TestPreferences_PermissionDeniedSurvivesFailedWrite(t *testing.T) {
	store := newGatedStore()
	store.errs = []error{errors.New("write timeout")}
	prefs, _ := newTestPreferences(store)
	prefs.Bind("subj", &recordingApplier{err: domain.ErrPermissionDenied})

	_, err := prefs.Set(context.Background(), "subj", domain.PreferencePatch{ActiveTracking: ptr(true)})
	require.Error(t, err)
	prefs.Wait()

	got, err := prefs.Get(context.Background(), "subj")
	require.NoError(t, err)
	assert.False(t, got.ActiveTracking)
}

func TestPreferences_DisableTracking(t *testing.T) {
	store := newGatedStore()
	prefs, _ := newTestPreferences(store)
	applier := &recordingApplier{}
	prefs.Bind("subj", applier)

	prefs.DisableTracking(context.Background(), "subj")
	prefs.Wait()

	got, err := prefs.Get(context.Background(), "subj")
	require.NoError(t, err)
	assert.False(t, got.ActiveTracking)
	assert.False(t, store.stored().ActiveTracking)
	assert.Empty(t, applier.calls(), "scheduler already stopped itself")
}
