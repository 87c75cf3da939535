package domain

import "time"

// Location is a plain coordinate echoed back in reports.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// RiskReport is the answer to a point risk query.
type RiskReport struct {
	Location  Location        `json:"location"`
	Weather   TelemetrySample `json:"weather"`
	Risk      RiskAssessment  `json:"risk"`
	Timestamp time.Time       `json:"timestamp"`
}
