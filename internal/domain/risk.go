package domain

import (
	"math"
	"slices"
	"time"
)

// RiskLevel is the categorical output of the risk scorer.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
	RiskSevere   RiskLevel = "SEVERE"
	RiskUnknown  RiskLevel = "UNKNOWN"
)

// Score thresholds, compared against the unrounded score.
const (
	severeThreshold   = 80.0
	highThreshold     = 55.0
	moderateThreshold = 30.0
)

// Override thresholds.
const (
	waterLevelOverrideM   = 2.0
	rainOverrideMM        = 50.0
	lowElevationOverrideM = 10.0
)

// Formula weights.
const (
	rainfallWeight = 0.5
	stormWeight    = 0.3
	humidityWeight = 0.2
)

// Override names a rule that forces SEVERE regardless of the formula score.
type Override string

const (
	OverrideWaterLevel    Override = "water_level"
	OverrideRainElevation Override = "rain_elevation"
)

// Elevated reports whether the level is HIGH or SEVERE.
func (l RiskLevel) Elevated() bool {
	return l == RiskHigh || l == RiskSevere
}

// Color returns the fixed display color for the level.
func (l RiskLevel) Color() string {
	switch l {
	case RiskLow:
		return "green"
	case RiskModerate:
		return "yellow"
	case RiskHigh:
		return "orange"
	case RiskSevere:
		return "red"
	default:
		return "gray"
	}
}

// rank orders levels for escalation; UNKNOWN sorts below LOW.
func (l RiskLevel) rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskModerate:
		return 2
	case RiskHigh:
		return 3
	case RiskSevere:
		return 4
	default:
		return 0
	}
}

// RiskAssessment is the scorer's verdict for one telemetry sample.
type RiskAssessment struct {
	Score      float64    `json:"score"` // rounded to 2 decimals, may exceed 100
	RawScore   float64    `json:"-"`
	Level      RiskLevel  `json:"level"`
	Color      string     `json:"color"`
	Overrides  []Override `json:"overrides_applied"`
	ComputedAt time.Time  `json:"computed_at"`
}

// UnknownAssessment is the unresolved verdict used when a member has no usable location.
func UnknownAssessment() RiskAssessment {
	return RiskAssessment{
		Level:     RiskUnknown,
		Color:     RiskUnknown.Color(),
		Overrides: []Override{},
	}
}

// HasOverride reports whether the named override fired.
func (a RiskAssessment) HasOverride(o Override) bool {
	return slices.Contains(a.Overrides, o)
}

// Gauge returns the score capped at 100 for gauge-style display.
func (a RiskAssessment) Gauge() float64 {
	return math.Min(a.Score, 100)
}

// BaseScore applies the weighted formula: rain*0.5 + storm*0.3 + humidity*0.2.
func BaseScore(s TelemetrySample) float64 {
	return s.Rainfall*rainfallWeight + s.StormIntensity*stormWeight + s.Humidity*humidityWeight
}

// LevelForScore classifies an unrounded score against the base thresholds.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score > severeThreshold:
		return RiskSevere
	case score > highThreshold:
		return RiskHigh
	case score > moderateThreshold:
		return RiskModerate
	default:
		return RiskLow
	}
}

// Score classifies a telemetry sample. It performs no I/O.
//
// Overrides run after the base classification, water level first, and can
// only escalate. Each override is recorded when its condition holds, even if
// the formula already produced SEVERE.
func Score(s TelemetrySample) RiskAssessment {
	raw := BaseScore(s)
	level := LevelForScore(raw)
	overrides := make([]Override, 0, 2)

	if s.WaterLevel > waterLevelOverrideM {
		level = escalate(level, RiskSevere)
		overrides = append(overrides, OverrideWaterLevel)
	}
	if s.Rainfall > rainOverrideMM && s.Elevation < lowElevationOverrideM {
		level = escalate(level, RiskSevere)
		overrides = append(overrides, OverrideRainElevation)
	}

	return RiskAssessment{
		Score:      round2(raw),
		RawScore:   raw,
		Level:      level,
		Color:      level.Color(),
		Overrides:  overrides,
		ComputedAt: clock.Now(),
	}
}

func escalate(current, forced RiskLevel) RiskLevel {
	if forced.rank() > current.rank() {
		return forced
	}
	return current
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
