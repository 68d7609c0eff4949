// Package config loads pipeline defaults from a TOML file with a
// [defaults] table.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/paulmach/orb"
	"github.com/sfomuseum/go-media-filter/common"
	"github.com/sfomuseum/go-media-filter/geo"
)

// DefaultMaxDistanceKm is the radius used when neither the caller nor
// the config file specifies one.
const DefaultMaxDistanceKm = 2.0

// ConfigError is returned for any problem that makes a filtering
// session impossible to set up: an unreadable or malformed config
// file, or no resolvable target location.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {

	if e.Err != nil {
		return fmt.Sprintf("%s, %v", e.Reason, e.Err)
	}

	return e.Reason
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError returns a ConfigError wrapping err (which may be nil).
func NewConfigError(reason string, err error) *ConfigError {

	e := &ConfigError{
		Reason: reason,
		Err:    err,
	}

	return e
}

// IsConfigError reports whether any error in err's chain is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Settings holds the resolved contents of the [defaults] table.
type Settings struct {
	// A free-text postal address to geocode when no explicit target
	// location is available.
	HomeAddress string
	// A default target location, or nil when the config doesn't set one.
	TargetLatLon *orb.Point
	// The default filter radius in kilometers.
	MaxDistanceKm float64
}

type configDoc struct {
	Defaults configDefaults `toml:"defaults"`
}

type configDefaults struct {
	HomeAddress   string    `toml:"home_address"`
	TargetLatLon  []float64 `toml:"target_latlon"`
	MaxDistanceKm *float64  `toml:"max_distance_km"`
}

// Load reads and parses a TOML config file at path. A missing or
// malformed file is fatal (ConfigError); missing keys inside the
// [defaults] table fall back to built-in defaults. Load never geocodes.
func Load(ctx context.Context, path string) (*Settings, error) {

	abs_path, err := filepath.Abs(path)

	if err != nil {
		return nil, NewConfigError(fmt.Sprintf("Failed to resolve config path '%s'", path), err)
	}

	reader_uri := fmt.Sprintf("fs://%s", filepath.Dir(abs_path))

	r, err := common.NewReader(ctx, reader_uri)

	if err != nil {
		return nil, NewConfigError(fmt.Sprintf("Failed to create reader for '%s'", reader_uri), err)
	}

	fh, err := r.Read(ctx, filepath.Base(abs_path))

	if err != nil {
		return nil, NewConfigError(fmt.Sprintf("Failed to read config file '%s'", path), err)
	}

	defer fh.Close()

	return parse(fh, path)
}

func parse(fh io.Reader, path string) (*Settings, error) {

	body, err := io.ReadAll(fh)

	if err != nil {
		return nil, NewConfigError(fmt.Sprintf("Failed to read config file '%s'", path), err)
	}

	var doc configDoc

	err = toml.Unmarshal(body, &doc)

	if err != nil {
		return nil, NewConfigError(fmt.Sprintf("Failed to parse config file '%s'", path), err)
	}

	settings := &Settings{
		HomeAddress:   doc.Defaults.HomeAddress,
		MaxDistanceKm: DefaultMaxDistanceKm,
	}

	if doc.Defaults.MaxDistanceKm != nil {
		settings.MaxDistanceKm = *doc.Defaults.MaxDistanceKm
	}

	if doc.Defaults.TargetLatLon != nil {

		if len(doc.Defaults.TargetLatLon) != 2 {
			return nil, NewConfigError(fmt.Sprintf("Invalid target_latlon in '%s': expected [lat, lon]", path), nil)
		}

		pt := geo.NewCoordinate(doc.Defaults.TargetLatLon[0], doc.Defaults.TargetLatLon[1])
		settings.TargetLatLon = &pt
	}

	return settings, nil
}
