// Package s3util provides the S3 helpers used for s3:// crop sources and for
// publishing finished archives.
package s3util

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// GetObjectAPI is the subset of *s3.Client used for downloads.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ErrObjectTooLarge is returned when an object exceeds the read limit.
var ErrObjectTooLarge = errors.New("object exceeds size limit")

// DownloadBytes reads an S3 object into memory, failing once more than limit
// bytes have been read. A limit of 0 means unlimited.
func DownloadBytes(ctx context.Context, client GetObjectAPI, bucket, key string, limit int64) ([]byte, error) {
	log.Debug().Str("bucket", bucket).Str("key", key).Msg("Downloading from S3")
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	})
	if err != nil {
		return nil, fmt.Errorf("S3 GetObject: %w", err)
	}
	defer result.Body.Close()

	if limit > 0 && result.ContentLength != nil && *result.ContentLength > limit {
		return nil, fmt.Errorf("s3://%s/%s is %d bytes: %w", bucket, key, *result.ContentLength, ErrObjectTooLarge)
	}

	var r io.Reader = result.Body
	if limit > 0 {
		r = io.LimitReader(result.Body, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrObjectTooLarge)
	}
	return data, nil
}
