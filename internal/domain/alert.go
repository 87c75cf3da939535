package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// AlertKind identifies the rule that produced an alert.
type AlertKind string

const (
	AlertExtremeDanger AlertKind = "extreme_danger"
	AlertHighFloodRisk AlertKind = "high_flood_risk"
	AlertLowBattery    AlertKind = "low_battery"
	AlertGPSLost       AlertKind = "gps_lost"
	AlertSOS           AlertKind = "sos"
)

// Alert priorities; 0 is most urgent.
const (
	PriorityExtremeDanger = 0
	PriorityHighFloodRisk = 1
	PriorityLowBattery    = 2
	PriorityGPSLost       = 3
)

// lowBatteryThreshold is the battery percentage below which members are flagged.
const lowBatteryThreshold = 10

// Alert is one entry in the prioritized feed. Alerts are regenerated on every
// pass; the ID is stable per (kind, member) so callers can diff passes.
type Alert struct {
	ID            string    `json:"id"`
	MemberID      string    `json:"member_id"`
	Kind          AlertKind `json:"kind"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	IconHint      string    `json:"icon_hint"`
	SeverityColor string    `json:"severity_color"`
	Priority      int       `json:"priority"`
}

// SynthesizeAlerts scans snapshots in order and returns alerts stably sorted
// by priority. Members without a location contribute nothing. The Extreme
// Danger rule supersedes High Flood Risk and GPS Signal Lost for the same
// member.
func SynthesizeAlerts(snapshots []MemberSnapshot) []Alert {
	alerts := make([]Alert, 0, len(snapshots))
	for _, snap := range snapshots {
		if !snap.Resolved() {
			continue
		}
		loc := snap.Location.WithDeviceDefaults()
		name := memberName(snap.Member)
		level := snap.Risk.Level
		lost := loc.GPSStatus == GPSLost

		switch {
		case level.Elevated() && lost:
			alerts = append(alerts, newAlert(AlertExtremeDanger, snap.Member.MemberID,
				"Extreme Danger",
				fmt.Sprintf("%s is in a %s risk zone and their GPS signal is lost. Last known location at %s.",
					name, level, loc.RecordedAt.UTC().Format(time.RFC3339)),
				"alert-octagon", RiskSevere.Color(), PriorityExtremeDanger))
		case level.Elevated():
			alerts = append(alerts, newAlert(AlertHighFloodRisk, snap.Member.MemberID,
				"High Flood Risk",
				fmt.Sprintf("%s is in a %s flood risk zone.", name, level),
				"weather-pouring", level.Color(), PriorityHighFloodRisk))
		case lost:
			alerts = append(alerts, newAlert(AlertGPSLost, snap.Member.MemberID,
				"GPS Signal Lost",
				fmt.Sprintf("GPS signal lost for %s. Last seen %s.",
					name, loc.RecordedAt.UTC().Format(time.RFC3339)),
				"signal-off", "gray", PriorityGPSLost))
		}

		if loc.BatteryLevel < lowBatteryThreshold {
			alerts = append(alerts, newAlert(AlertLowBattery, snap.Member.MemberID,
				"Low Battery",
				fmt.Sprintf("%s's phone battery is below %d%% (%d%%).", name, lowBatteryThreshold, loc.BatteryLevel),
				"battery-alert", "orange", PriorityLowBattery))
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Priority < alerts[j].Priority
	})
	return alerts
}

func newAlert(kind AlertKind, memberID, title, message, icon, color string, priority int) Alert {
	return Alert{
		ID:            alertID(kind, memberID),
		MemberID:      memberID,
		Kind:          kind,
		Title:         title,
		Message:       message,
		IconHint:      icon,
		SeverityColor: color,
		Priority:      priority,
	}
}

// alertID is a deterministic short hash of kind and member.
func alertID(kind AlertKind, memberID string) string {
	hash := sha256.Sum256([]byte(string(kind) + "|" + memberID))
	return string(kind) + "-" + hex.EncodeToString(hash[:8])
}

func memberName(m FamilyMember) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.MemberID
}
