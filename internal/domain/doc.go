// Package domain models flood-risk telemetry, the safety circle, and the
// decisions derived from them.
//
// # Telemetry
//
// Samples come from the Open-Meteo current-conditions endpoint:
//
//	temperature_2m        -> Temperature (°C)
//	relative_humidity_2m  -> Humidity (%)
//	rain                  -> Rainfall (mm)
//	wind_speed_10m        -> StormIntensity = min(100, km/h × 2)
//	elevation (optional)  -> Elevation (m), 10 when omitted
//
// The provider has no water-level feed; live samples carry a configured
// constant. When the provider fails, the fixed fallback sample
// {28°C, 85%, 45mm, storm 60, 1.8m, 10m} is scored instead, so a score is
// always computable.
//
// # Risk Scoring
//
//	score = rainfall × 0.5 + storm × 0.3 + humidity × 0.2
//
//	  > 80  SEVERE  red
//	  > 55  HIGH    orange
//	  > 30  MODERATE yellow
//	  else  LOW     green
//
// Thresholds compare the unrounded score; the reported score is rounded to
// two decimals afterwards. Two overrides then force SEVERE and are recorded:
//
//	water_level     water level > 2.0 m
//	rain_elevation  rainfall > 50 mm and elevation < 10 m
//
// UNKNOWN (gray) is reserved for members whose location or telemetry could
// not be resolved.
//
// # Alerts
//
// Alerts are recomputed from member snapshots on every pass:
//
//	0 Extreme Danger   HIGH/SEVERE and GPS Lost
//	1 High Flood Risk  HIGH/SEVERE and GPS Active
//	2 Low Battery      battery < 10%
//	3 GPS Signal Lost  GPS Lost and not HIGH/SEVERE
//
// Extreme Danger replaces the High Flood Risk and GPS Signal Lost alerts for
// the same member. Alert IDs are SHA-256 hashes of kind|member so repeated
// passes produce the same ID for the same condition.
package domain
