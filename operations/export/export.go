// Package export materializes filtered media records: full exports in
// to a bucket, and path lists published through a go-writer URI.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaronland/go-image-tools/util"
	"github.com/corona10/goimagehash"
	"github.com/sfomuseum/go-media-filter/catalog"
	"github.com/sfomuseum/go-media-filter/common"
	"github.com/tidwall/sjson"
	"github.com/whosonfirst/go-ioutil"
	"gocloud.dev/blob"
)

// ManifestKey is the key the export manifest is written to in the
// destination bucket.
const ManifestKey = "manifest.json"

// ExportFilteredOptions configures an ExportFiltered call.
type ExportFilteredOptions struct {
	// The records to export, processed strictly in this order.
	Media []*catalog.MediaRecord
	// The catalog the records came from; its Export method does the
	// actual materializing.
	Source catalog.Source
	// The bucket where record paths resolve, used for dedupe hashing.
	// When nil, record paths are read from the local filesystem.
	MediaBucket *blob.Bucket
	// The destination bucket.
	Bucket *blob.Bucket
	// Export original media files.
	Original bool
	// Export edited variants where they exist.
	Edited bool
	// Skip records whose image (average) hash matches one already
	// exported in this call.
	Dedupe bool
	// Write a manifest.json describing the exported records.
	Manifest bool
}

// NewExportFilteredOptions returns options with the defaults for an
// export: originals only.
func NewExportFilteredOptions() *ExportFilteredOptions {

	opts := &ExportFilteredOptions{
		Original: true,
		Edited:   false,
	}

	return opts
}

// ExportFiltered exports each record in order through the catalog's
// export primitive. There is no per-record failure isolation: the
// first export error aborts the whole operation.
func ExportFiltered(ctx context.Context, opts *ExportFilteredOptions) error {

	export_opts := &catalog.ExportOptions{
		Original: opts.Original,
		Edited:   opts.Edited,
	}

	seen := make(map[string]string)

	manifest := []byte("{}")

	exported := 0

	for _, rec := range opts.Media {

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			// pass
		}

		if opts.Dedupe {

			hash, err := imageHash(ctx, opts.MediaBucket, rec.Path)

			if err != nil {
				// Not hashable (videos, broken files). Export it anyway;
				// dedupe is an optimization, not a gate.
				slog.Warn("Failed to hash media for dedupe", "filename", rec.Filename, "error", err)
			} else {

				prior, ok := seen[hash]

				if ok {
					slog.Info("Skipping duplicate media", "filename", rec.Filename, "duplicate_of", prior)
					continue
				}

				seen[hash] = rec.Filename
			}
		}

		err := opts.Source.Export(ctx, rec, opts.Bucket, export_opts)

		if err != nil {
			return fmt.Errorf("Failed to export %s, %w", rec.Filename, err)
		}

		if opts.Manifest {

			entry := map[string]interface{}{
				"filename": rec.Filename,
				"path":     rec.Path,
				"type":     rec.Kind.String(),
				"date":     rec.Taken.Format(time.RFC3339),
			}

			if rec.Fingerprint != "" {
				entry["fingerprint"] = rec.Fingerprint
			}

			manifest, err = sjson.SetBytes(manifest, "media.-1", entry)

			if err != nil {
				return fmt.Errorf("Failed to append manifest entry for %s, %w", rec.Filename, err)
			}
		}

		exported += 1
	}

	if opts.Manifest {

		var err error

		manifest, err = sjson.SetBytes(manifest, "count", exported)

		if err != nil {
			return fmt.Errorf("Failed to finalize manifest, %w", err)
		}

		err = opts.Bucket.WriteAll(ctx, ManifestKey, manifest, nil)

		if err != nil {
			return fmt.Errorf("Failed to write manifest, %w", err)
		}
	}

	return nil
}

func imageHash(ctx context.Context, bucket *blob.Bucket, path string) (string, error) {

	fh, err := common.OpenFile(ctx, bucket, path)

	if err != nil {
		return "", err
	}

	defer fh.Close()

	im, _, err := util.DecodeImageFromReader(fh)

	if err != nil {
		return "", err
	}

	h, err := goimagehash.AverageHash(im)

	if err != nil {
		return "", err
	}

	return h.ToString(), nil
}

// SaveMediaPaths writes one record path per line, newline-terminated
// and in record order, to fname under the whosonfirst/go-writer URI
// wr_uri. Any existing file is overwritten.
func SaveMediaPaths(ctx context.Context, media []*catalog.MediaRecord, wr_uri string, fname string) error {

	var buf bytes.Buffer

	for _, rec := range media {
		buf.WriteString(rec.Path)
		buf.WriteString("\n")
	}

	br := bytes.NewReader(buf.Bytes())
	out, err := ioutil.NewReadSeekCloser(br)

	if err != nil {
		return fmt.Errorf("Failed to create ReadSeekCloser, %w", err)
	}

	wr, err := common.NewWriter(ctx, wr_uri)

	if err != nil {
		return fmt.Errorf("Failed to create writer for '%s', %w", wr_uri, err)
	}

	_, err = wr.Write(ctx, fname, out)

	if err != nil {
		return fmt.Errorf("Failed to write '%s', %w", fname, err)
	}

	return nil
}
