package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"github.com/sfomuseum/go-media-filter/common"
	"github.com/sfomuseum/go-media-filter/geo"
	"gocloud.dev/blob"
)

// mime.TypeByExtension doesn't know about most video containers (and
// its answers vary with the host's mime.types) so the catalog carries
// its own table. Anything not listed here is not media.
var kindByExtension = map[string]MediaKind{
	".jpg":  KindPhoto,
	".jpeg": KindPhoto,
	".png":  KindPhoto,
	".gif":  KindPhoto,
	".tif":  KindPhoto,
	".tiff": KindPhoto,
	".webp": KindPhoto,
	".heic": KindPhoto,
	".mp4":  KindVideo,
	".m4v":  KindVideo,
	".mov":  KindVideo,
	".avi":  KindVideo,
	".mkv":  KindVideo,
}

// BucketSource is a Source over the contents of a gocloud.dev/blob
// bucket. Capture times and positions are read from EXIF data where
// the format carries it (JPEG); everything else gets the object's
// modification time and no position.
type BucketSource struct {
	bucket *blob.Bucket
	// Skip the per-object SHA-1 fingerprint. Fingerprinting reads every
	// object in full which is slow on remote buckets.
	SkipFingerprints bool
}

func init() {
	exif.RegisterParsers(mknote.All...)
}

func NewBucketSource(bucket *blob.Bucket) *BucketSource {

	s := &BucketSource{
		bucket: bucket,
	}

	return s
}

// Records walks the bucket recursively and returns a MediaRecord for
// every object whose extension names a known photo or video format.
// Listing order (and so record order) is the bucket's lexical key order.
func (s *BucketSource) Records(ctx context.Context) ([]*MediaRecord, error) {

	records := make([]*MediaRecord, 0)

	var list func(context.Context, *blob.Bucket, string) error

	list = func(ctx context.Context, b *blob.Bucket, prefix string) error {

		iter := b.List(&blob.ListOptions{
			Delimiter: "/",
			Prefix:    prefix,
		})

		for {

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				// pass
			}

			obj, err := iter.Next(ctx)

			if err == io.EOF {
				break
			}

			if err != nil {
				return err
			}

			if obj.IsDir {

				err := list(ctx, b, obj.Key)

				if err != nil {
					return err
				}

				continue
			}

			rec, err := s.recordForObject(ctx, obj)

			if err != nil {
				return err
			}

			if rec == nil {
				continue
			}

			records = append(records, rec)
		}

		return nil
	}

	err := list(ctx, s.bucket, "")

	if err != nil {
		return nil, fmt.Errorf("Failed to crawl bucket, %w", err)
	}

	return records, nil
}

func (s *BucketSource) recordForObject(ctx context.Context, obj *blob.ListObject) (*MediaRecord, error) {

	ext := strings.ToLower(filepath.Ext(obj.Key))

	kind, ok := kindByExtension[ext]

	if !ok {
		return nil, nil
	}

	rec := &MediaRecord{
		Filename: filepath.Base(obj.Key),
		Path:     obj.Key,
		Taken:    obj.ModTime,
		Kind:     kind,
	}

	switch ext {
	case ".jpg", ".jpeg":

		taken, loc := s.exifDetails(ctx, obj.Key)

		if !taken.IsZero() {
			rec.Taken = taken
		}

		rec.Location = loc

	default:
		// pass
	}

	if !s.SkipFingerprints {

		fp, err := common.FingerprintFile(ctx, s.bucket, obj.Key)

		if err != nil {
			return nil, fmt.Errorf("Failed to fingerprint %s, %w", obj.Key, err)
		}

		rec.Fingerprint = fp
	}

	return rec, nil
}

// exifDetails returns the EXIF capture time and GPS position for a
// JPEG object. Both are best-effort: media without EXIF data (or with
// EXIF data this code can't parse) simply has neither.
func (s *BucketSource) exifDetails(ctx context.Context, key string) (time.Time, *orb.Point) {

	fh, err := s.bucket.NewReader(ctx, key, nil)

	if err != nil {
		slog.Warn("Failed to open object for EXIF parsing", "key", key, "error", err)
		return time.Time{}, nil
	}

	defer fh.Close()

	exif_data, err := exif.Decode(fh)

	if err != nil {
		return time.Time{}, nil
	}

	var taken time.Time

	tag, err := exif_data.Get("DateTimeOriginal")

	if err == nil {

		str_dt := strings.Trim(tag.String(), "\"")

		// EXIF datetimes have no zone. Local is the least-wrong guess
		// for a personal library.
		t, err := time.ParseInLocation("2006:01:02 15:04:05", str_dt, time.Local)

		if err == nil {
			taken = t
		}
	}

	lat, lon, err := exif_data.LatLong()

	if err != nil {
		return taken, nil
	}

	pt := geo.NewCoordinate(lat, lon)
	return taken, &pt
}

// Export copies the record's object (and, when requested and present,
// its <name>_edited<ext> sibling) from the source bucket in to target.
func (s *BucketSource) Export(ctx context.Context, rec *MediaRecord, target *blob.Bucket, opts *ExportOptions) error {

	if opts.Original {

		err := copyBucketToBucket(ctx, s.bucket, rec.Path, target, rec.Filename)

		if err != nil {
			return fmt.Errorf("Failed to export %s, %w", rec.Filename, err)
		}
	}

	if opts.Edited {

		edited_key := EditedSibling(rec.Path)

		exists, err := s.bucket.Exists(ctx, edited_key)

		if err != nil {
			return fmt.Errorf("Failed to determine whether %s exists, %w", edited_key, err)
		}

		if exists {

			err := copyBucketToBucket(ctx, s.bucket, edited_key, target, filepath.Base(edited_key))

			if err != nil {
				return fmt.Errorf("Failed to export edited %s, %w", rec.Filename, err)
			}
		}
	}

	return nil
}

func copyBucketToBucket(ctx context.Context, source *blob.Bucket, key string, target *blob.Bucket, target_key string) error {

	fh, err := source.NewReader(ctx, key, nil)

	if err != nil {
		return err
	}

	defer fh.Close()

	wr, err := target.NewWriter(ctx, target_key, nil)

	if err != nil {
		return err
	}

	_, err = io.Copy(wr, fh)

	if err != nil {
		target.Delete(ctx, target_key)
		return err
	}

	return wr.Close()
}
