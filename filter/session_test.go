package filter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/sfomuseum/go-media-filter/catalog"
	"github.com/sfomuseum/go-media-filter/config"
	"github.com/sfomuseum/go-media-filter/geo"
)

type stubGeocoder struct {
	pt orb.Point
	ok bool
}

func (g *stubGeocoder) Geocode(ctx context.Context, address string) (orb.Point, bool) {
	return g.pt, g.ok
}

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func testClock() time.Time {
	return testNow
}

// three records: a photo and a video at the target, and a photo a
// little over 7km away and a day older
func testRecords() []*catalog.MediaRecord {

	loc_a := geo.NewCoordinate(-33.85, 151.15)
	loc_b := geo.NewCoordinate(-33.90, 151.20)
	loc_c := geo.NewCoordinate(-33.85, 151.15)

	return []*catalog.MediaRecord{
		{
			Filename: "a.jpg",
			Path:     "/photos/a.jpg",
			Taken:    testNow.Add(-24 * time.Hour),
			Location: &loc_a,
			Kind:     catalog.KindPhoto,
		},
		{
			Filename: "b.jpg",
			Path:     "/photos/b.jpg",
			Taken:    testNow.Add(-48 * time.Hour),
			Location: &loc_b,
			Kind:     catalog.KindPhoto,
		},
		{
			Filename: "c.mov",
			Path:     "/photos/c.mov",
			Taken:    testNow.Add(-24 * time.Hour),
			Location: &loc_c,
			Kind:     catalog.KindVideo,
		},
	}
}

func testSession(t *testing.T, max_km float64) *Session {
	t.Helper()

	ctx := context.Background()

	target := geo.NewCoordinate(-33.85, 151.15)

	opts := &SessionOptions{
		StartDate:      testNow.Add(-72 * time.Hour),
		EndDate:        testNow,
		TargetLocation: &target,
		MaxDistanceKm:  max_km,
		Source:         catalog.NewInMemorySource(testRecords()...),
		Clock:          testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	return sess
}

func TestFilterPhotos(t *testing.T) {

	ctx := context.Background()
	sess := testSession(t, 5.0)

	filtered, err := sess.FilterMedia(ctx, MediaTypePhoto)

	if err != nil {
		t.Fatal(err)
	}

	if len(filtered) != 1 {
		t.Fatalf("expected 1 photo, got %d", len(filtered))
	}

	if filtered[0].Filename != "a.jpg" {
		t.Fatalf("expected a.jpg, got %s", filtered[0].Filename)
	}
}

func TestFilterVideos(t *testing.T) {

	ctx := context.Background()
	sess := testSession(t, 5.0)

	filtered, err := sess.FilterMedia(ctx, MediaTypeVideo)

	if err != nil {
		t.Fatal(err)
	}

	if len(filtered) != 1 {
		t.Fatalf("expected 1 video, got %d", len(filtered))
	}

	if !filtered[0].IsVideo() {
		t.Fatalf("expected a video, got %s", filtered[0].Kind)
	}
}

func TestFilterAll(t *testing.T) {

	ctx := context.Background()
	sess := testSession(t, 5.0)

	filtered, err := sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	if len(filtered) != 2 {
		t.Fatalf("expected 2 records, got %d", len(filtered))
	}

	// catalog order is preserved
	if filtered[0].Filename != "a.jpg" || filtered[1].Filename != "c.mov" {
		t.Fatalf("bad order: %s, %s", filtered[0].Filename, filtered[1].Filename)
	}
}

func TestFilterWiderRadius(t *testing.T) {

	// b.jpg is a little over 7km from the target so it matches once
	// the radius is wide enough

	ctx := context.Background()
	sess := testSession(t, 10.0)

	filtered, err := sess.FilterMedia(ctx, MediaTypePhoto)

	if err != nil {
		t.Fatal(err)
	}

	if len(filtered) != 2 {
		t.Fatalf("expected 2 photos at 10km, got %d", len(filtered))
	}
}

func TestFilterNoMediaOutOfRange(t *testing.T) {

	ctx := context.Background()
	sess := testSession(t, 0.01)

	sess.SetLocationByGPS(0.0, 0.0)

	filtered, err := sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	if len(filtered) != 0 {
		t.Fatalf("expected no records, got %d", len(filtered))
	}
}

func TestFilterBoundaryInclusive(t *testing.T) {

	ctx := context.Background()

	target := geo.NewCoordinate(0.0, 0.0)
	loc := geo.NewCoordinate(0.0, 0.05)

	d := geo.DistanceKm(target, loc)

	rec := &catalog.MediaRecord{
		Filename: "edge.jpg",
		Path:     "/photos/edge.jpg",
		Taken:    testNow.Add(-24 * time.Hour),
		Location: &loc,
		Kind:     catalog.KindPhoto,
	}

	opts := &SessionOptions{
		StartDate:      testNow.Add(-72 * time.Hour),
		EndDate:        testNow,
		TargetLocation: &target,
		MaxDistanceKm:  d,
		Source:         catalog.NewInMemorySource(rec),
		Clock:          testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	filtered, err := sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	if len(filtered) != 1 {
		t.Fatal("expected a record exactly at the boundary to be included")
	}

	sess.SetDistanceKm(d - 1e-9)

	filtered, err = sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	if len(filtered) != 0 {
		t.Fatal("expected a record just past the boundary to be excluded")
	}
}

func TestFilterDateRangeInclusive(t *testing.T) {

	ctx := context.Background()

	loc := geo.NewCoordinate(0.0, 0.0)

	start := testNow.Add(-72 * time.Hour)
	end := testNow.Add(-24 * time.Hour)

	records := []*catalog.MediaRecord{
		{Filename: "at-start.jpg", Taken: start, Location: &loc, Kind: catalog.KindPhoto},
		{Filename: "at-end.jpg", Taken: end, Location: &loc, Kind: catalog.KindPhoto},
		{Filename: "before.jpg", Taken: start.Add(-time.Second), Location: &loc, Kind: catalog.KindPhoto},
		{Filename: "after.jpg", Taken: end.Add(time.Second), Location: &loc, Kind: catalog.KindPhoto},
	}

	target := geo.NewCoordinate(0.0, 0.0)

	opts := &SessionOptions{
		StartDate:      start,
		EndDate:        end,
		TargetLocation: &target,
		MaxDistanceKm:  1.0,
		Source:         catalog.NewInMemorySource(records...),
		Clock:          testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	filtered, err := sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	if len(filtered) != 2 {
		t.Fatalf("expected the two boundary records, got %d", len(filtered))
	}

	if filtered[0].Filename != "at-start.jpg" || filtered[1].Filename != "at-end.jpg" {
		t.Fatalf("bad records: %s, %s", filtered[0].Filename, filtered[1].Filename)
	}
}

func TestFilterSkipsRecordsWithoutLocation(t *testing.T) {

	ctx := context.Background()

	target := geo.NewCoordinate(0.0, 0.0)

	rec := &catalog.MediaRecord{
		Filename: "nowhere.jpg",
		Taken:    testNow.Add(-24 * time.Hour),
		Kind:     catalog.KindPhoto,
	}

	opts := &SessionOptions{
		StartDate:      testNow.Add(-72 * time.Hour),
		EndDate:        testNow,
		TargetLocation: &target,
		MaxDistanceKm:  100000.0,
		Source:         catalog.NewInMemorySource(rec),
		Clock:          testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	filtered, err := sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	if len(filtered) != 0 {
		t.Fatal("expected records without a location to be excluded")
	}
}

func TestFilterIdempotent(t *testing.T) {

	ctx := context.Background()
	sess := testSession(t, 5.0)

	first, err := sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	second, err := sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("result changed between calls: %d, %d", len(first), len(second))
	}

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("record %d changed between calls", i)
		}
	}
}

func TestFilterInvalidMediaType(t *testing.T) {

	ctx := context.Background()
	sess := testSession(t, 5.0)

	_, err := sess.FilterMedia(ctx, MediaType("audiobook"))

	if err == nil {
		t.Fatal("expected an error for an invalid media type")
	}
}

func TestClearFilters(t *testing.T) {

	ctx := context.Background()
	sess := testSession(t, 5.0)

	_, err := sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	if len(sess.FilteredMedia()) == 0 {
		t.Fatal("expected a non-empty filtered set")
	}

	sess.ClearFilters()

	if len(sess.FilteredMedia()) != 0 {
		t.Fatal("expected ClearFilters to empty the filtered set")
	}

	// criteria survive a clear

	filtered, err := sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	if len(filtered) != 2 {
		t.Fatalf("expected criteria to survive ClearFilters, got %d records", len(filtered))
	}
}

func TestSetLocationByAddress(t *testing.T) {

	ctx := context.Background()

	target := geo.NewCoordinate(-33.85, 151.15)

	opts := &SessionOptions{
		TargetLocation: &target,
		Source:         catalog.NewInMemorySource(),
		Geocoder:       &stubGeocoder{pt: geo.NewCoordinate(1.0, 2.0), ok: true},
		Clock:          testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	ok := sess.SetLocationByAddress(ctx, "test address")

	if !ok {
		t.Fatal("expected a successful geocode")
	}

	if sess.Target().Lat() != 1.0 || sess.Target().Lon() != 2.0 {
		t.Fatalf("bad target after geocode: %v", sess.Target())
	}
}

func TestSetLocationByAddressMiss(t *testing.T) {

	ctx := context.Background()

	target := geo.NewCoordinate(-33.85, 151.15)

	opts := &SessionOptions{
		TargetLocation: &target,
		Source:         catalog.NewInMemorySource(),
		Geocoder:       &stubGeocoder{ok: false},
		Clock:          testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	ok := sess.SetLocationByAddress(ctx, "test address")

	if ok {
		t.Fatal("expected a geocoding miss")
	}

	// the previous target is untouched
	if sess.Target().Lat() != -33.85 || sess.Target().Lon() != 151.15 {
		t.Fatalf("target changed on a geocoding miss: %v", sess.Target())
	}
}

func TestSetLocationByGPS(t *testing.T) {

	ctx := context.Background()

	target := geo.NewCoordinate(-33.85, 151.15)

	opts := &SessionOptions{
		TargetLocation: &target,
		Source:         catalog.NewInMemorySource(),
		Clock:          testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	sess.SetLocationByGPS(5.0, 6.0)

	if sess.Target().Lat() != 5.0 || sess.Target().Lon() != 6.0 {
		t.Fatalf("bad target: %v", sess.Target())
	}
}

func TestSetDistanceKm(t *testing.T) {

	ctx := context.Background()

	target := geo.NewCoordinate(-33.85, 151.15)

	opts := &SessionOptions{
		TargetLocation: &target,
		Source:         catalog.NewInMemorySource(),
		Clock:          testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	sess.SetDistanceKm(42.0)

	if sess.MaxDistanceKm() != 42.0 {
		t.Fatalf("bad max distance: %f", sess.MaxDistanceKm())
	}
}

func TestTargetResolutionOrder(t *testing.T) {

	ctx := context.Background()

	explicit := geo.NewCoordinate(1.0, 1.0)
	config_target := geo.NewCoordinate(2.0, 2.0)
	geocoded := geo.NewCoordinate(3.0, 3.0)

	settings := &config.Settings{
		HomeAddress:   "somewhere",
		TargetLatLon:  &config_target,
		MaxDistanceKm: 2.0,
	}

	// explicit wins over config

	opts := &SessionOptions{
		TargetLocation: &explicit,
		Settings:       settings,
		Source:         catalog.NewInMemorySource(),
		Geocoder:       &stubGeocoder{pt: geocoded, ok: true},
		Clock:          testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	if sess.Target().Lat() != 1.0 {
		t.Fatalf("expected the explicit target, got %v", sess.Target())
	}

	// config target wins over home_address

	opts.TargetLocation = nil

	sess, err = NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	if sess.Target().Lat() != 2.0 {
		t.Fatalf("expected the config target, got %v", sess.Target())
	}

	// home_address is the last resort

	settings.TargetLatLon = nil

	sess, err = NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	if sess.Target().Lat() != 3.0 {
		t.Fatalf("expected the geocoded target, got %v", sess.Target())
	}
}

func TestNewSessionGeocodeMissIsFatal(t *testing.T) {

	ctx := context.Background()

	opts := &SessionOptions{
		Settings: &config.Settings{
			HomeAddress:   "somewhere",
			MaxDistanceKm: 2.0,
		},
		Source:   catalog.NewInMemorySource(),
		Geocoder: &stubGeocoder{ok: false},
		Clock:    testClock,
	}

	_, err := NewSession(ctx, opts)

	if err == nil {
		t.Fatal("expected a geocoding miss on home_address to be fatal at construction")
	}

	if !config.IsConfigError(err) {
		t.Fatalf("expected a ConfigError, got %T", err)
	}
}

func TestNewSessionNoTarget(t *testing.T) {

	ctx := context.Background()

	opts := &SessionOptions{
		Source: catalog.NewInMemorySource(),
		Clock:  testClock,
	}

	_, err := NewSession(ctx, opts)

	if err == nil {
		t.Fatal("expected an error when no target location is resolvable")
	}

	if !config.IsConfigError(err) {
		t.Fatalf("expected a ConfigError, got %T", err)
	}
}

func TestNewSessionMaxDistanceResolution(t *testing.T) {

	ctx := context.Background()

	target := geo.NewCoordinate(0.0, 0.0)

	settings := &config.Settings{
		TargetLatLon:  &target,
		MaxDistanceKm: 10.0,
	}

	// explicit wins over config

	opts := &SessionOptions{
		MaxDistanceKm: 0.2,
		Settings:      settings,
		Source:        catalog.NewInMemorySource(),
		Clock:         testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	if sess.MaxDistanceKm() != 0.2 {
		t.Fatalf("expected 0.2, got %f", sess.MaxDistanceKm())
	}

	// config value when no explicit override

	opts.MaxDistanceKm = 0.0

	sess, err = NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	if sess.MaxDistanceKm() != 10.0 {
		t.Fatalf("expected 10.0, got %f", sess.MaxDistanceKm())
	}
}

func TestNewSessionWithConfigFile(t *testing.T) {

	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "config.toml")

	body := `
[defaults]
max_distance_km = 10.0
target_latlon = [-33.85, 151.15]
`

	err := os.WriteFile(path, []byte(body), 0o644)

	if err != nil {
		t.Fatal(err)
	}

	opts := &SessionOptions{
		ConfigPath: path,
		Source:     catalog.NewInMemorySource(testRecords()...),
		Clock:      testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	if sess.MaxDistanceKm() != 10.0 {
		t.Fatalf("expected 10.0 from config, got %f", sess.MaxDistanceKm())
	}

	if sess.Target().Lat() != -33.85 {
		t.Fatalf("expected the config target, got %v", sess.Target())
	}
}

func TestEndDateDefault(t *testing.T) {

	ctx := context.Background()

	loc := geo.NewCoordinate(0.0, 0.0)
	target := geo.NewCoordinate(0.0, 0.0)

	records := []*catalog.MediaRecord{
		{Filename: "recent.jpg", Taken: testNow.Add(-2 * time.Hour), Location: &loc, Kind: catalog.KindPhoto},
		{Filename: "older.jpg", Taken: testNow.Add(-30 * time.Hour), Location: &loc, Kind: catalog.KindPhoto},
	}

	opts := &SessionOptions{
		TargetLocation: &target,
		MaxDistanceKm:  1.0,
		Source:         catalog.NewInMemorySource(records...),
		Clock:          testClock,
	}

	sess, err := NewSession(ctx, opts)

	if err != nil {
		t.Fatal(err)
	}

	// the default window ends 24 hours ago, so only the older record
	// qualifies

	filtered, err := sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	if len(filtered) != 1 {
		t.Fatalf("expected 1 record, got %d", len(filtered))
	}

	if filtered[0].Filename != "older.jpg" {
		t.Fatalf("expected older.jpg, got %s", filtered[0].Filename)
	}
}

func TestListMediaInfo(t *testing.T) {

	ctx := context.Background()
	sess := testSession(t, 5.0)

	_, err := sess.FilterMedia(ctx, MediaTypeAll)

	if err != nil {
		t.Fatal(err)
	}

	info_list := sess.ListMediaInfo()

	if len(info_list) != 2 {
		t.Fatalf("expected 2 info records, got %d", len(info_list))
	}

	if info_list[0].Filename != "a.jpg" || info_list[0].Kind != "photo" {
		t.Fatalf("bad first info record: %+v", info_list[0])
	}

	if info_list[1].Kind != "video" {
		t.Fatalf("bad second info record: %+v", info_list[1])
	}

	if len(info_list[0].Location) != 2 || info_list[0].Location[0] != -33.85 {
		t.Fatalf("bad location projection: %v", info_list[0].Location)
	}
}
