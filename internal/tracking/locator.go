package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
)

// Fix is one device position reading.
type Fix struct {
	Latitude          float64 `json:"lat"`
	Longitude         float64 `json:"lon"`
	BatteryLevel      *int    `json:"battery_level,omitempty"`
	GPSStatus         string  `json:"gps_status,omitempty"`
	// PermissionGranted false simulates the OS revoking location access.
	PermissionGranted *bool   `json:"permission_granted,omitempty"`
}

// Locator reads the device's current position.
type Locator interface {
	Locate(ctx context.Context) (Fix, error)
}

// FileLocator reads the latest fix from a JSON file that the device agent
// rewrites in place.
type FileLocator struct {
	Path string
}

func (l FileLocator) Locate(_ context.Context) (Fix, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return Fix{}, fmt.Errorf("read fix %s: %w", l.Path, domain.ErrPermissionDenied)
		}
		return Fix{}, fmt.Errorf("read fix %s: %w", l.Path, err)
	}

	var fix Fix
	if err := json.Unmarshal(data, &fix); err != nil {
		return Fix{}, fmt.Errorf("decode fix %s: %w", l.Path, err)
	}
	if fix.PermissionGranted != nil && !*fix.PermissionGranted {
		return Fix{}, domain.ErrPermissionDenied
	}
	return fix, nil
}

// StaticLocator always reports the same fix.
type StaticLocator struct {
	Fix Fix
}

func (l StaticLocator) Locate(context.Context) (Fix, error) {
	return l.Fix, nil
}
