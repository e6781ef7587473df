package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"duck-loader/internal/config"
	"duck-loader/internal/domain"
)

// GCSTransfer uploads files to a Google Cloud Storage bucket.
type GCSTransfer struct {
	client *gcs.Client
	bucket string
}

// NewGCSTransfer creates a transfer authenticated with a service account key file.
func NewGCSTransfer(ctx context.Context, cfg config.GCSConfig, opts ...option.ClientOption) (*GCSTransfer, error) {
	if cfg.KeyFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.KeyFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSTransfer{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads localPath.
func (t *GCSTransfer) Put(ctx context.Context, localPath, remoteVolumePath string) (string, error) {
	return putFile(ctx, t, localPath, remoteVolumePath)
}

// PutReader streams r to an object and returns its gs:// URI.
func (t *GCSTransfer) PutReader(ctx context.Context, r io.Reader, remoteVolumePath string) (string, error) {
	key, err := cleanKey(remoteVolumePath)
	if err != nil {
		return "", err
	}
	uri := GCSURI(t.bucket, key)

	w := t.client.Bucket(t.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "text/csv"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", &domain.TransferError{Path: uri, Cause: err}
	}
	if err := w.Close(); err != nil {
		return "", &domain.TransferError{Path: uri, Cause: err}
	}
	return uri, nil
}

// Close releases the underlying client.
func (t *GCSTransfer) Close() error {
	return t.client.Close()
}

// Resolve returns the gs:// URI of key in the bucket.
func (t *GCSTransfer) Resolve(key string) (string, error) {
	k, err := volumeKey(key)
	if err != nil {
		return "", err
	}
	return GCSURI(t.bucket, k), nil
}

// GCSURI returns gs://bucket/key.
func GCSURI(bucket, key string) string {
	return "gs://" + bucket + "/" + key
}
