// Package thumbnail materializes downscaled copies of filtered media
// records in to a gocloud.dev/blob bucket.
package thumbnail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aaronland/go-image-tools/util"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/nfnt/resize"
	"github.com/sfomuseum/go-media-filter/catalog"
	"github.com/sfomuseum/go-media-filter/common"
	"gocloud.dev/blob"
)

const DefaultThumbSize = 300

const DefaultMaxMedia = 10

// SaveThumbnailsOptions configures a SaveThumbnails call.
type SaveThumbnailsOptions struct {
	// The records to thumbnail, processed strictly in this order.
	Media []*catalog.MediaRecord
	// The bucket where record paths resolve. When nil, record paths are
	// read from the local filesystem.
	Source *blob.Bucket
	// The destination bucket for thumbnails.
	Bucket *blob.Bucket
	// Maximum thumbnail width in pixels. Zero means 300.
	ThumbWidth int
	// Maximum thumbnail height in pixels. Zero means 300.
	ThumbHeight int
	// Stop after this many successful thumbnails. Zero means 10.
	MaxMedia int
}

// ThumbnailResult records the outcome for a single media record. A
// record that fails to thumbnail carries the failure in Err and
// consumes neither a naming slot nor a success toward MaxMedia.
type ThumbnailResult struct {
	// The basename of the source media file.
	Filename string
	// The key the thumbnail was written to. Empty on failure.
	Path string
	// The record's position in the input set.
	LoopIndex int
	// The success counter value used in the thumbnail's name, or -1 on
	// failure.
	SuccessIndex int
	// The reason this record could not be thumbnailed.
	Err error
}

// SaveThumbnails decodes each record in order, scales it to fit within
// the thumbnail size preserving aspect ratio, and writes it to the
// destination bucket as thumb_<success index>_<filename>. Per-record
// failures are logged and recorded but never abort the batch; videos
// land here too and are expected to fail decoding gracefully. The loop
// stops after MaxMedia successes. Returns one result per record
// visited.
func SaveThumbnails(ctx context.Context, opts *SaveThumbnailsOptions) ([]*ThumbnailResult, error) {

	thumb_w := opts.ThumbWidth

	if thumb_w <= 0 {
		thumb_w = DefaultThumbSize
	}

	thumb_h := opts.ThumbHeight

	if thumb_h <= 0 {
		thumb_h = DefaultThumbSize
	}

	max_media := opts.MaxMedia

	if max_media <= 0 {
		max_media = DefaultMaxMedia
	}

	results := make([]*ThumbnailResult, 0)

	count := 0

	for i, rec := range opts.Media {

		if count >= max_media {
			break
		}

		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
			// pass
		}

		rsp := &ThumbnailResult{
			Filename:     rec.Filename,
			LoopIndex:    i,
			SuccessIndex: -1,
		}

		thumb_path, err := saveThumbnail(ctx, opts, rec, thumb_w, thumb_h, count)

		if err != nil {
			rsp.Err = err
			slog.Warn("Failed to create thumbnail", "filename", rec.Filename, "error", err)
		} else {
			rsp.Path = thumb_path
			rsp.SuccessIndex = count
			count += 1
		}

		results = append(results, rsp)
	}

	return results, nil
}

func saveThumbnail(ctx context.Context, opts *SaveThumbnailsOptions, rec *catalog.MediaRecord, thumb_w int, thumb_h int, count int) (string, error) {

	fh, err := common.OpenFile(ctx, opts.Source, rec.Path)

	if err != nil {
		return "", fmt.Errorf("Failed to open %s for reading, %w", rec.Path, err)
	}

	defer fh.Close()

	im, format, err := util.DecodeImageFromReader(fh)

	if err != nil {
		return "", fmt.Errorf("Failed to decode image from %s, %w", rec.Path, err)
	}

	thumb := resize.Thumbnail(uint(thumb_w), uint(thumb_h), im, resize.Lanczos3)

	thumb_path := fmt.Sprintf("thumb_%d_%s", count, rec.Filename)

	// make S3 thumbnails public, the same way published media sizes are

	before := func(asFunc func(interface{}) bool) error {

		s3_req := &s3manager.UploadInput{}
		ok := asFunc(&s3_req)

		if ok {
			s3_req.ACL = aws.String("public-read")
		}

		return nil
	}

	wr_opts := &blob.WriterOptions{
		BeforeWrite: before,
	}

	wr, err := opts.Bucket.NewWriter(ctx, thumb_path, wr_opts)

	if err != nil {
		return "", fmt.Errorf("Failed to create writer for %s, %w", thumb_path, err)
	}

	err = util.EncodeImage(thumb, format, wr)

	if err != nil {
		wr.Close()
		opts.Bucket.Delete(ctx, thumb_path)
		return "", fmt.Errorf("Failed to encode thumbnail for %s, %w", rec.Filename, err)
	}

	err = wr.Close()

	if err != nil {
		return "", fmt.Errorf("Failed to close writer for %s, %w", thumb_path, err)
	}

	return thumb_path, nil
}
