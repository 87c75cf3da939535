package domain

// TrackingPreference holds a subject's tracking toggles.
type TrackingPreference struct {
	GPSBackup         bool `json:"gps_backup"`
	HighRiskFrequency bool `json:"high_risk_frequency"`
	TemporalRecording bool `json:"temporal_recording"`
	FamilyAccess      bool `json:"family_access"`
	ActiveTracking    bool `json:"active_tracking"`
}

// DefaultTrackingPreference is used for subjects with nothing stored.
func DefaultTrackingPreference() TrackingPreference {
	return TrackingPreference{ActiveTracking: true}
}

// PreferencePatch is a partial preference update with merge semantics: nil
// fields are left alone.
type PreferencePatch struct {
	GPSBackup         *bool `json:"gps_backup,omitempty"`
	HighRiskFrequency *bool `json:"high_risk_frequency,omitempty"`
	TemporalRecording *bool `json:"temporal_recording,omitempty"`
	FamilyAccess      *bool `json:"family_access,omitempty"`
	ActiveTracking    *bool `json:"active_tracking,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p PreferencePatch) Empty() bool {
	return p.GPSBackup == nil && p.HighRiskFrequency == nil && p.TemporalRecording == nil &&
		p.FamilyAccess == nil && p.ActiveTracking == nil
}

// Merge returns pref with the patch applied.
func (p PreferencePatch) Merge(pref TrackingPreference) TrackingPreference {
	if p.GPSBackup != nil {
		pref.GPSBackup = *p.GPSBackup
	}
	if p.HighRiskFrequency != nil {
		pref.HighRiskFrequency = *p.HighRiskFrequency
	}
	if p.TemporalRecording != nil {
		pref.TemporalRecording = *p.TemporalRecording
	}
	if p.FamilyAccess != nil {
		pref.FamilyAccess = *p.FamilyAccess
	}
	if p.ActiveTracking != nil {
		pref.ActiveTracking = *p.ActiveTracking
	}
	return pref
}

// Inverse returns the patch that undoes p when applied to the merged result,
// restoring the fields p touched to their values in before.
func (p PreferencePatch) Inverse(before TrackingPreference) PreferencePatch {
	var inv PreferencePatch
	if p.GPSBackup != nil {
		inv.GPSBackup = boolPtr(before.GPSBackup)
	}
	if p.HighRiskFrequency != nil {
		inv.HighRiskFrequency = boolPtr(before.HighRiskFrequency)
	}
	if p.TemporalRecording != nil {
		inv.TemporalRecording = boolPtr(before.TemporalRecording)
	}
	if p.FamilyAccess != nil {
		inv.FamilyAccess = boolPtr(before.FamilyAccess)
	}
	if p.ActiveTracking != nil {
		inv.ActiveTracking = boolPtr(before.ActiveTracking)
	}
	return inv
}

func boolPtr(b bool) *bool { return &b }
