package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"gocloud.dev/blob"
)

// MediaKind distinguishes still images from movies. Everything else is
// invisible to the catalog.
type MediaKind uint8

const (
	KindPhoto MediaKind = iota
	KindVideo
)

func (k MediaKind) String() string {

	if k == KindVideo {
		return "video"
	}

	return "photo"
}

// MediaRecord describes a single item in a media catalog. Records are
// created and owned by their Source; nothing downstream mutates them.
type MediaRecord struct {
	// The basename of the media file.
	Filename string
	// The path (or bucket key) where the media file can be read.
	Path string
	// The capture time of the media file.
	Taken time.Time
	// The position where the media file was captured, or nil when the
	// catalog has no GPS fix for it.
	Location *orb.Point
	// Whether this is a photo or a video.
	Kind MediaKind
	// An optional SHA-1 fingerprint of the media file. Bucket-backed
	// sources populate this; other sources may leave it empty.
	Fingerprint string
}

func (rec *MediaRecord) IsPhoto() bool {
	return rec.Kind == KindPhoto
}

func (rec *MediaRecord) IsVideo() bool {
	return rec.Kind == KindVideo
}

// ExportOptions selects which variants of a media file an Export call
// materializes.
type ExportOptions struct {
	// Export the original media file.
	Original bool
	// Export the edited sibling of the media file, when one exists.
	Edited bool
}

// Source enumerates the records of a media catalog and knows how to
// materialize them somewhere else. Records are re-read on every
// Records call; sources do not cache across calls.
type Source interface {
	Records(context.Context) ([]*MediaRecord, error)
	Export(context.Context, *MediaRecord, *blob.Bucket, *ExportOptions) error
}

// ExportFunc is a custom export routine for an InMemorySource.
type ExportFunc func(context.Context, *MediaRecord, *blob.Bucket, *ExportOptions) error

// InMemorySource is a Source over a fixed set of records. It is what
// tests use and what you embed when records come from somewhere this
// package has never heard of.
type InMemorySource struct {
	records     []*MediaRecord
	export_func ExportFunc
}

func NewInMemorySource(records ...*MediaRecord) *InMemorySource {

	s := &InMemorySource{
		records: records,
	}

	return s
}

// NewInMemorySourceWithExportFunc returns an InMemorySource whose
// Export method defers to a custom ExportFunc.
func NewInMemorySourceWithExportFunc(export_func ExportFunc, records ...*MediaRecord) *InMemorySource {

	s := &InMemorySource{
		records:     records,
		export_func: export_func,
	}

	return s
}

func (s *InMemorySource) Records(ctx context.Context) ([]*MediaRecord, error) {

	records := make([]*MediaRecord, len(s.records))
	copy(records, s.records)

	return records, nil
}

// Export copies a record in to target. Absent a custom ExportFunc the
// record's Path is treated as a local file. Edited variants are
// expected at <name>_edited<ext> next to the original and are skipped
// silently when absent.
func (s *InMemorySource) Export(ctx context.Context, rec *MediaRecord, target *blob.Bucket, opts *ExportOptions) error {

	if s.export_func != nil {
		return s.export_func(ctx, rec, target, opts)
	}

	if opts.Original {

		err := copyFileToBucket(ctx, rec.Path, target, rec.Filename)

		if err != nil {
			return fmt.Errorf("Failed to export %s, %w", rec.Filename, err)
		}
	}

	if opts.Edited {

		edited_path := EditedSibling(rec.Path)

		_, err := os.Stat(edited_path)

		if err == nil {

			err := copyFileToBucket(ctx, edited_path, target, filepath.Base(edited_path))

			if err != nil {
				return fmt.Errorf("Failed to export edited %s, %w", rec.Filename, err)
			}
		}
	}

	return nil
}

// EditedSibling returns the path where an edited variant of path would
// live, following the <name>_edited<ext> convention.
func EditedSibling(path string) string {

	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_edited" + ext
}

func copyFileToBucket(ctx context.Context, path string, target *blob.Bucket, key string) error {

	fh, err := os.Open(path)

	if err != nil {
		return err
	}

	defer fh.Close()

	wr, err := target.NewWriter(ctx, key, nil)

	if err != nil {
		return err
	}

	_, err = io.Copy(wr, fh)

	if err != nil {
		target.Delete(ctx, key)
		return err
	}

	return wr.Close()
}
