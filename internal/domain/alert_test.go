package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordedAt = time.Date(2025, time.November, 3, 6, 30, 0, 0, time.UTC)

func snapshot(id string, level RiskLevel, gps GPSStatus, battery int) MemberSnapshot {
	return MemberSnapshot{
		Member: FamilyMember{MemberID: id, DisplayName: "Member " + id},
		Location: &LocationRecord{
			MemberID:     id,
			BatteryLevel: battery,
			GPSStatus:    gps,
			RecordedAt:   recordedAt,
		},
		Risk: RiskAssessment{Level: level, Color: level.Color()},
	}
}

func kinds(alerts []Alert) []AlertKind {
	out := make([]AlertKind, len(alerts))
	for i, a := range alerts {
		out[i] = a.Kind
	}
	return out
}

func TestSynthesizeAlerts_ExtremeDangerSupersedes(t *testing.T) {
	alerts := SynthesizeAlerts([]MemberSnapshot{snapshot("m1", RiskSevere, GPSLost, 80)})

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, AlertExtremeDanger, a.Kind)
	assert.Equal(t, PriorityExtremeDanger, a.Priority)
	assert.Equal(t, "Extreme Danger", a.Title)
	assert.Equal(t, "alert-octagon", a.IconHint)
	assert.Equal(t, "red", a.SeverityColor)
	assert.Contains(t, a.Message, "Member m1")
	assert.Contains(t, a.Message, "2025-11-03T06:30:00Z")
}

func TestSynthesizeAlerts_Rules(t *testing.T) {
	tests := []struct {
		name string
		snap MemberSnapshot
		want []AlertKind
	}{
		{"high risk with gps", snapshot("m", RiskHigh, GPSActive, 50), []AlertKind{AlertHighFloodRisk}},
		{"severe with gps", snapshot("m", RiskSevere, GPSActive, 50), []AlertKind{AlertHighFloodRisk}},
		{"moderate with gps lost", snapshot("m", RiskModerate, GPSLost, 50), []AlertKind{AlertGPSLost}},
		{"unknown with gps lost", snapshot("m", RiskUnknown, GPSLost, 50), []AlertKind{AlertGPSLost}},
		{"low battery only", snapshot("m", RiskLow, GPSActive, 9), []AlertKind{AlertLowBattery}},
		{"battery at threshold", snapshot("m", RiskLow, GPSActive, 10), []AlertKind{}},
		{"low and calm", snapshot("m", RiskLow, GPSActive, 80), []AlertKind{}},
		{"extreme danger with low battery", snapshot("m", RiskHigh, GPSLost, 3), []AlertKind{AlertExtremeDanger, AlertLowBattery}},
		{"gps lost with low battery", snapshot("m", RiskLow, GPSLost, 3), []AlertKind{AlertLowBattery, AlertGPSLost}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SynthesizeAlerts([]MemberSnapshot{tt.snap})
			assert.Equal(t, tt.want, kinds(got))
		})
	}
}

func TestSynthesizeAlerts_HighRiskUsesLevelColor(t *testing.T) {
	alerts := SynthesizeAlerts([]MemberSnapshot{snapshot("m", RiskHigh, GPSActive, 50)})
	require.Len(t, alerts, 1)
	assert.Equal(t, "orange", alerts[0].SeverityColor)
	assert.Equal(t, "weather-pouring", alerts[0].IconHint)
	assert.Equal(t, "Member m is in a HIGH flood risk zone.", alerts[0].Message)
}

func TestSynthesizeAlerts_SkipsUnresolvedMembers(t *testing.T) {
	snap := MemberSnapshot{
		Member: FamilyMember{MemberID: "ghost"},
		Risk:   UnknownAssessment(),
	}
	assert.Empty(t, SynthesizeAlerts([]MemberSnapshot{snap}))
}

func TestSynthesizeAlerts_EmptyGPSStatusTreatedAsActive(t *testing.T) {
	snap := snapshot("m", RiskHigh, "", 50)
	alerts := SynthesizeAlerts([]MemberSnapshot{snap})
	assert.Equal(t, []AlertKind{AlertHighFloodRisk}, kinds(alerts))
}

func TestSynthesizeAlerts_StableOrderingByPriority(t *testing.T) {
	snaps := []MemberSnapshot{
		snapshot("a", RiskLow, GPSActive, 5),     // low battery, priority 2
		snapshot("b", RiskSevere, GPSLost, 90),   // extreme danger, priority 0
		snapshot("c", RiskHigh, GPSActive, 90),   // high flood risk, priority 1
		snapshot("d", RiskLow, GPSActive, 1),     // low battery, priority 2
		snapshot("e", RiskModerate, GPSLost, 90), // gps lost, priority 3
	}
	alerts := SynthesizeAlerts(snaps)

	require.Len(t, alerts, 5)
	priorities := make([]int, len(alerts))
	members := make([]string, len(alerts))
	for i, a := range alerts {
		priorities[i] = a.Priority
		members[i] = a.MemberID
	}
	assert.Equal(t, []int{0, 1, 2, 2, 3}, priorities)
	assert.Equal(t, []string{"b", "c", "a", "d", "e"}, members, "equal priorities keep input order")
}

func TestSynthesizeAlerts_DeterministicIDs(t *testing.T) {
	snaps := []MemberSnapshot{snapshot("m1", RiskHigh, GPSActive, 5)}
	first := SynthesizeAlerts(snaps)
	second := SynthesizeAlerts(snaps)

	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first[0].ID, first[1].ID)
	assert.Regexp(t, `^high_flood_risk-[0-9a-f]{16}$`, first[0].ID)
}

func TestSynthesizeAlerts_NameFallsBackToMemberID(t *testing.T) {
	snap := snapshot("m9", RiskLow, GPSActive, 2)
	snap.Member.DisplayName = ""
	alerts := SynthesizeAlerts([]MemberSnapshot{snap})

	require.Len(t, alerts, 1)
	assert.Equal(t, "m9's phone battery is below 10% (2%).", alerts[0].Message)
}
