// filter-media filters a media catalog stored in a gocloud.dev/blob
// bucket by date, location and media type, prints the matches and
// optionally exports them, generates thumbnails or saves a path list.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/sfomuseum/go-media-filter/catalog"
	"github.com/sfomuseum/go-media-filter/filter"
	"github.com/sfomuseum/go-media-filter/geo"
	"github.com/sfomuseum/go-media-filter/geocode"
	"github.com/sfomuseum/go-media-filter/operations/export"
	"github.com/sfomuseum/go-media-filter/operations/thumbnail"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
)

func main() {

	source_uri := flag.String("source-uri", "", "A valid gocloud.dev/blob URI where media files are stored.")
	config_path := flag.String("config", "", "The path to an optional TOML config file with a [defaults] table.")
	media_type := flag.String("media-type", "all", "The kind of media to match. Valid options are: all, photo, video.")
	str_start := flag.String("start", "", "The start of the date range (YYYY-MM-DD). Defaults to the epoch.")
	str_end := flag.String("end", "", "The end of the date range (YYYY-MM-DD). Defaults to 24 hours ago.")
	str_target := flag.String("target", "", "An explicit target location as 'lat,lon'.")
	address := flag.String("address", "", "An address to geocode in to the target location.")
	max_km := flag.Float64("max-distance", 0.0, "The filter radius in kilometers.")
	export_uri := flag.String("export-uri", "", "An optional gocloud.dev/blob URI to export matches to.")
	thumbs_uri := flag.String("thumbnails-uri", "", "An optional gocloud.dev/blob URI to write thumbnails to.")
	paths_list := flag.String("paths-list", "", "An optional local path to write the list of matching media paths to.")

	flag.Parse()

	ctx := context.Background()

	if *source_uri == "" {
		log.Fatal("Missing -source-uri")
	}

	source_bucket, err := blob.OpenBucket(ctx, *source_uri)

	if err != nil {
		log.Fatalf("Failed to open source bucket, %v", err)
	}

	defer source_bucket.Close()

	src := catalog.NewBucketSource(source_bucket)

	opts := &filter.SessionOptions{
		ConfigPath: *config_path,
		Source:     src,
		Geocoder:   geocode.NewNominatim(),
	}

	if *str_start != "" {

		t, err := time.Parse("2006-01-02", *str_start)

		if err != nil {
			log.Fatalf("Invalid -start date, %v", err)
		}

		opts.StartDate = t
	}

	if *str_end != "" {

		t, err := time.Parse("2006-01-02", *str_end)

		if err != nil {
			log.Fatalf("Invalid -end date, %v", err)
		}

		opts.EndDate = t
	}

	if *str_target != "" {

		pt, err := parseLatLon(*str_target)

		if err != nil {
			log.Fatalf("Invalid -target, %v", err)
		}

		opts.TargetLocation = pt
	}

	if *max_km > 0 {
		opts.MaxDistanceKm = *max_km
	}

	sess, err := filter.NewSession(ctx, opts)

	if err != nil {
		log.Fatalf("Failed to create session, %v", err)
	}

	if *address != "" {

		ok := sess.SetLocationByAddress(ctx, *address)

		if !ok {
			log.Fatalf("Failed to geocode '%s'", *address)
		}
	}

	_, err = sess.FilterMedia(ctx, filter.MediaType(*media_type))

	if err != nil {
		log.Fatalf("Failed to filter media, %v", err)
	}

	for _, info := range sess.ListMediaInfo() {

		enc, err := json.Marshal(info)

		if err != nil {
			log.Fatalf("Failed to marshal media info, %v", err)
		}

		fmt.Println(string(enc))
	}

	if *export_uri != "" {

		export_bucket, err := blob.OpenBucket(ctx, *export_uri)

		if err != nil {
			log.Fatalf("Failed to open export bucket, %v", err)
		}

		defer export_bucket.Close()

		export_opts := export.NewExportFilteredOptions()
		export_opts.Media = sess.FilteredMedia()
		export_opts.Source = src
		export_opts.MediaBucket = source_bucket
		export_opts.Bucket = export_bucket
		export_opts.Manifest = true

		err = export.ExportFiltered(ctx, export_opts)

		if err != nil {
			log.Fatalf("Failed to export media, %v", err)
		}
	}

	if *thumbs_uri != "" {

		thumbs_bucket, err := blob.OpenBucket(ctx, *thumbs_uri)

		if err != nil {
			log.Fatalf("Failed to open thumbnails bucket, %v", err)
		}

		defer thumbs_bucket.Close()

		thumb_opts := &thumbnail.SaveThumbnailsOptions{
			Media:  sess.FilteredMedia(),
			Source: source_bucket,
			Bucket: thumbs_bucket,
		}

		_, err = thumbnail.SaveThumbnails(ctx, thumb_opts)

		if err != nil {
			log.Fatalf("Failed to save thumbnails, %v", err)
		}
	}

	if *paths_list != "" {

		abs_path, err := filepath.Abs(*paths_list)

		if err != nil {
			log.Fatalf("Failed to resolve -paths-list, %v", err)
		}

		wr_uri := fmt.Sprintf("fs://%s", filepath.Dir(abs_path))

		err = export.SaveMediaPaths(ctx, sess.FilteredMedia(), wr_uri, filepath.Base(abs_path))

		if err != nil {
			log.Fatalf("Failed to save media paths, %v", err)
		}
	}
}

func parseLatLon(raw string) (*orb.Point, error) {

	parts := strings.Split(raw, ",")

	if len(parts) != 2 {
		return nil, fmt.Errorf("expected 'lat,lon'")
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)

	if err != nil {
		return nil, fmt.Errorf("invalid latitude, %w", err)
	}

	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)

	if err != nil {
		return nil, fmt.Errorf("invalid longitude, %w", err)
	}

	pt := geo.NewCoordinate(lat, lon)
	return &pt, nil
}
