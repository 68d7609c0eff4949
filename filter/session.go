// Package filter filters a media catalog by capture date, distance to
// a target location and media type.
package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/sfomuseum/go-media-filter/catalog"
	"github.com/sfomuseum/go-media-filter/config"
	"github.com/sfomuseum/go-media-filter/geo"
	"github.com/sfomuseum/go-media-filter/geocode"
	"github.com/sfomuseum/go-media-filter/media"
)

// MediaType selects which kinds of records a FilterMedia call matches.
type MediaType string

const (
	MediaTypeAll   MediaType = "all"
	MediaTypePhoto MediaType = "photo"
	MediaTypeVideo MediaType = "video"
)

// SessionOptions configures a new Session. Source is required.
// Target resolution order is: TargetLocation, the config's
// target_latlon, a geocoded home_address. If none yields a coordinate
// the session cannot be constructed. Max distance resolution order is:
// MaxDistanceKm, the config value, 2.0km.
type SessionOptions struct {
	// The start of the date range, inclusive. Zero means the Unix epoch.
	StartDate time.Time
	// The end of the date range, inclusive. Zero means 24 hours before now.
	EndDate time.Time
	// An explicit target location. Wins over anything in the config.
	TargetLocation *orb.Point
	// An explicit filter radius in kilometers. Values <= 0 mean unset.
	MaxDistanceKm float64
	// The path of a TOML config file. Optional; when set, a missing or
	// malformed file is fatal.
	ConfigPath string
	// Pre-loaded settings. Wins over ConfigPath.
	Settings *config.Settings
	// The media catalog to filter.
	Source catalog.Source
	// Used to resolve the config's home_address. Only required when
	// target resolution falls through to the address.
	Geocoder geocode.Geocoder
	// Clock for "24 hours before now". Defaults to time.Now.
	Clock func() time.Time
}

// Session owns a set of filter criteria and the ordered result of the
// most recent FilterMedia call. Sessions are not safe for concurrent
// use: FilterMedia replaces the result set wholesale with no atomicity
// guarantee against a concurrent reader.
type Session struct {
	source   catalog.Source
	geocoder geocode.Geocoder
	clock    func() time.Time

	start_date time.Time
	end_date   time.Time
	target     orb.Point
	max_km     float64

	filtered []*catalog.MediaRecord
}

// NewSession resolves opts in to a ready-to-filter Session. Errors are
// config.ConfigError shaped: an unreadable config, or no resolvable
// target location (including a failed geocode of home_address).
func NewSession(ctx context.Context, opts *SessionOptions) (*Session, error) {

	if opts.Source == nil {
		return nil, config.NewConfigError("Missing media source", nil)
	}

	settings := opts.Settings

	if settings == nil && opts.ConfigPath != "" {

		s, err := config.Load(ctx, opts.ConfigPath)

		if err != nil {
			return nil, err
		}

		settings = s
	}

	if settings == nil {

		settings = &config.Settings{
			MaxDistanceKm: config.DefaultMaxDistanceKm,
		}
	}

	clock := opts.Clock

	if clock == nil {
		clock = time.Now
	}

	sess := &Session{
		source:   opts.Source,
		geocoder: opts.Geocoder,
		clock:    clock,
		filtered: make([]*catalog.MediaRecord, 0),
	}

	sess.SetDateRange(opts.StartDate, opts.EndDate)

	sess.max_km = settings.MaxDistanceKm

	if opts.MaxDistanceKm > 0 {
		sess.max_km = opts.MaxDistanceKm
	}

	target, err := resolveTarget(ctx, opts, settings)

	if err != nil {
		return nil, err
	}

	sess.target = target

	return sess, nil
}

// resolveTarget returns the first present value among the explicit
// target, the config's target_latlon and the geocoded home_address.
func resolveTarget(ctx context.Context, opts *SessionOptions, settings *config.Settings) (orb.Point, error) {

	if opts.TargetLocation != nil {
		return *opts.TargetLocation, nil
	}

	if settings.TargetLatLon != nil {
		return *settings.TargetLatLon, nil
	}

	if settings.HomeAddress != "" {

		if opts.Geocoder == nil {
			return orb.Point{}, config.NewConfigError("Resolving home_address requires a geocoder", nil)
		}

		target, ok := opts.Geocoder.Geocode(ctx, settings.HomeAddress)

		if !ok {
			return orb.Point{}, config.NewConfigError(fmt.Sprintf("Could not geocode home_address '%s'", settings.HomeAddress), nil)
		}

		return target, nil
	}

	return orb.Point{}, config.NewConfigError("No target location resolvable: specify a target location, or target_latlon or home_address in config", nil)
}

// SetDateRange updates the date range. A zero start means the Unix
// epoch; a zero end means 24 hours before now.
func (s *Session) SetDateRange(start_date time.Time, end_date time.Time) {

	if start_date.IsZero() {
		start_date = time.Unix(0, 0).UTC()
	}

	if end_date.IsZero() {
		end_date = s.clock().Add(-24 * time.Hour)
	}

	s.start_date = start_date
	s.end_date = end_date
}

// SetLocationByAddress geocodes address and, on success, makes the
// result the new target location. On a geocoding miss the previous
// target is left untouched and false is returned.
func (s *Session) SetLocationByAddress(ctx context.Context, address string) bool {

	if s.geocoder == nil {
		return false
	}

	target, ok := s.geocoder.Geocode(ctx, address)

	if !ok {
		return false
	}

	s.target = target
	return true
}

// SetLocationByGPS makes (lat, lon) the new target location.
func (s *Session) SetLocationByGPS(lat float64, lon float64) {
	s.target = geo.NewCoordinate(lat, lon)
}

// SetDistanceKm updates the filter radius.
func (s *Session) SetDistanceKm(km float64) {
	s.max_km = km
}

// Target returns the current target location.
func (s *Session) Target() orb.Point {
	return s.target
}

// MaxDistanceKm returns the current filter radius.
func (s *Session) MaxDistanceKm() float64 {
	return s.max_km
}

// FilterMedia enumerates every record in the catalog and retains those
// whose capture time lies within the date range (inclusive at both
// ends), whose kind matches media_type, and whose position is within
// MaxDistanceKm of the target (boundary inclusive). Records without a
// position never match. The result replaces the previous filtered set
// wholesale and is returned in catalog order.
func (s *Session) FilterMedia(ctx context.Context, media_type MediaType) ([]*catalog.MediaRecord, error) {

	switch media_type {
	case MediaTypeAll, MediaTypePhoto, MediaTypeVideo:
		// pass
	default:
		return nil, fmt.Errorf("Invalid media type '%s'", media_type)
	}

	records, err := s.source.Records(ctx)

	if err != nil {
		return nil, fmt.Errorf("Failed to enumerate media records, %w", err)
	}

	filtered := make([]*catalog.MediaRecord, 0)

	for _, rec := range records {

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			// pass
		}

		if rec.Taken.Before(s.start_date) || rec.Taken.After(s.end_date) {
			continue
		}

		switch media_type {
		case MediaTypePhoto:

			if !rec.IsPhoto() {
				continue
			}

		case MediaTypeVideo:

			if !rec.IsVideo() {
				continue
			}

		default:
			// pass
		}

		if rec.Location == nil {
			continue
		}

		if geo.DistanceKm(s.target, *rec.Location) > s.max_km {
			continue
		}

		filtered = append(filtered, rec)
	}

	s.filtered = filtered
	return s.filtered, nil
}

// FilteredMedia returns the result of the most recent FilterMedia call.
func (s *Session) FilteredMedia() []*catalog.MediaRecord {
	return s.filtered
}

// ClearFilters empties the filtered set. The filter criteria are left
// as they are.
func (s *Session) ClearFilters() {
	s.filtered = make([]*catalog.MediaRecord, 0)
}

// ListMediaInfo returns display projections for the filtered set, in
// stored order.
func (s *Session) ListMediaInfo() []*media.Info {

	info_list := make([]*media.Info, len(s.filtered))

	for i, rec := range s.filtered {
		info_list[i] = media.NewInfo(rec)
	}

	return info_list
}
