package s3util

import (
	"context"
	"path/filepath"
	"time"
)

// DefaultPresignExpiry matches the lifetime of an async job.
const DefaultPresignExpiry = time.Hour

// ObjectAPI is the S3 client surface the Bucket needs.
type ObjectAPI interface {
	GetObjectAPI
	PutObjectAPI
}

// Bucket reads crop sources from S3 and publishes finished archives to a
// configured bucket.
type Bucket struct {
	Client    ObjectAPI
	Presigner PresignAPI
	Name      string
	Prefix    string
	Expiry    time.Duration
}

// ReadObject downloads bucket/key. It satisfies the fetcher's object reader.
func (b *Bucket) ReadObject(ctx context.Context, bucket, key string, limit int64) ([]byte, error) {
	return DownloadBytes(ctx, b.Client, bucket, key, limit)
}

// Publish uploads a job's archive and returns a presigned download URL.
func (b *Bucket) Publish(ctx context.Context, jobID, archivePath string) (string, error) {
	key := ArchiveKey(b.Prefix, jobID, filepath.Base(archivePath))
	if err := UploadFile(ctx, b.Client, b.Name, key, archivePath, "application/zip"); err != nil {
		return "", err
	}
	expiry := b.Expiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return GeneratePresignedURL(ctx, b.Presigner, b.Name, key, expiry)
}
