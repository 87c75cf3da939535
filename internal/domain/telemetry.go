package domain

import (
	"context"
	"time"
)

// DefaultElevationM is used when the weather provider omits elevation.
const DefaultElevationM = 10.0

// Fallback sample constants, served when the upstream provider fails.
const (
	FallbackTemperature    = 28.0
	FallbackHumidity       = 85.0
	FallbackRainfallMM     = 45.0
	FallbackStormIntensity = 60.0
	FallbackWaterLevelM    = 1.8
)

// TelemetrySample is one instantaneous environmental reading at a point.
type TelemetrySample struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Temperature    float64   `json:"temperature"`
	Humidity       float64   `json:"humidity"`        // percent
	Rainfall       float64   `json:"rainfall_mm"`     // mm
	StormIntensity float64   `json:"storm_intensity"` // 0-100, derived from wind speed
	WaterLevel     float64   `json:"water_level_m"`
	Elevation      float64   `json:"elevation_m"`
	ObservedAt     time.Time `json:"observed_at"`

	// Fallback is true when the sample is the fixed stand-in for a failed fetch.
	Fallback bool `json:"fallback,omitempty"`
}

// FallbackSample returns the documented stand-in sample for a coordinate.
func FallbackSample(lat, lon float64, at time.Time) TelemetrySample {
	return TelemetrySample{
		Latitude:       lat,
		Longitude:      lon,
		Temperature:    FallbackTemperature,
		Humidity:       FallbackHumidity,
		Rainfall:       FallbackRainfallMM,
		StormIntensity: FallbackStormIntensity,
		WaterLevel:     FallbackWaterLevelM,
		Elevation:      DefaultElevationM,
		ObservedAt:     at,
		Fallback:       true,
	}
}

// StormIntensityFromWind derives storm intensity from wind speed: min(100, kmh*2).
func StormIntensityFromWind(windKMH float64) float64 {
	v := windKMH * 2
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}

// Forecast is the current-conditions payload returned by a weather provider.
type Forecast struct {
	Temperature  float64
	Humidity     float64
	RainMM       float64
	WindSpeedKMH float64
	ElevationM   *float64 // optional upstream field
	ObservedAt   time.Time
}

// WeatherProvider fetches current conditions for a coordinate. Best effort:
// callers must tolerate slow or failed responses.
type WeatherProvider interface {
	Forecast(ctx context.Context, lat, lon float64) (Forecast, error)
}

// SampleFromForecast converts a provider forecast into a TelemetrySample.
// waterLevel is supplied by the caller because no provider reports it.
func SampleFromForecast(lat, lon float64, f Forecast, waterLevel float64) TelemetrySample {
	elevation := DefaultElevationM
	if f.ElevationM != nil {
		elevation = *f.ElevationM
	}
	return TelemetrySample{
		Latitude:       lat,
		Longitude:      lon,
		Temperature:    f.Temperature,
		Humidity:       f.Humidity,
		Rainfall:       f.RainMM,
		StormIntensity: StormIntensityFromWind(f.WindSpeedKMH),
		WaterLevel:     waterLevel,
		Elevation:      elevation,
		ObservedAt:     f.ObservedAt,
	}
}
