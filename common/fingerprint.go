package common

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"

	"gocloud.dev/blob"
)

// FingerprintFile generates a SHA-1 hash of a file stored in a
// blob.Bucket instance. When bucket is nil, path is read from the
// local filesystem instead.
func FingerprintFile(ctx context.Context, bucket *blob.Bucket, path string) (string, error) {

	fh, err := OpenFile(ctx, bucket, path)

	if err != nil {
		return "", err
	}

	defer fh.Close()

	h := sha1.New()

	_, err = io.Copy(h, fh)

	if err != nil {
		return "", err
	}

	hash := h.Sum(nil)
	str := hex.EncodeToString(hash[:])

	return str, nil
}

// OpenFile opens path for reading from a blob.Bucket instance, or from
// the local filesystem when bucket is nil. It exists so that code
// consuming media records doesn't have to care which kind of catalog
// produced them.
func OpenFile(ctx context.Context, bucket *blob.Bucket, path string) (io.ReadCloser, error) {

	if bucket != nil {
		return bucket.NewReader(ctx, path, nil)
	}

	return os.Open(path)
}
