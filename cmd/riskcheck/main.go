// Command riskcheck scores a telemetry sample offline and prints the
// assessment as JSON. The sample comes from flags or, with -stdin, from a
// JSON document shaped like the service's weather payload.
//
// Usage:
//
//	go run ./cmd/riskcheck -rain 60 -wind 25 -humidity 90 -water 2.1
//	echo '{"rainfall_mm": 55, "elevation_m": 4}' | go run ./cmd/riskcheck -stdin
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
)

type result struct {
	Sample     domain.TelemetrySample `json:"sample"`
	Assessment domain.RiskAssessment  `json:"assessment"`
	Gauge      float64                `json:"gauge"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("riskcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fromStdin := fs.Bool("stdin", false, "read the sample as JSON from stdin")
	rain := fs.Float64("rain", 0, "rainfall in mm")
	wind := fs.Float64("wind", 0, "wind speed in km/h; converted to storm intensity")
	storm := fs.Float64("storm", -1, "storm intensity 0-100; overrides -wind")
	humidity := fs.Float64("humidity", 0, "relative humidity in percent")
	water := fs.Float64("water", 1.5, "water level in m")
	elevation := fs.Float64("elevation", domain.DefaultElevationM, "elevation in m")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var sample domain.TelemetrySample
	if *fromStdin {
		sample = domain.TelemetrySample{WaterLevel: 1.5, Elevation: domain.DefaultElevationM}
		if err := json.NewDecoder(stdin).Decode(&sample); err != nil {
			fmt.Fprintf(stderr, "decode sample: %v\n", err)
			return 1
		}
	} else {
		sample = domain.TelemetrySample{
			Rainfall:       *rain,
			StormIntensity: domain.StormIntensityFromWind(*wind),
			Humidity:       *humidity,
			WaterLevel:     *water,
			Elevation:      *elevation,
		}
		if *storm >= 0 {
			sample.StormIntensity = *storm
		}
	}

	a := domain.Score(sample)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result{Sample: sample, Assessment: a, Gauge: a.Gauge()}); err != nil {
		fmt.Fprintf(stderr, "encode result: %v\n", err)
		return 1
	}
	return 0
}
