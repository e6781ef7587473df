package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"duck-loader/internal/config"
	"duck-loader/internal/domain"
)

// S3Transfer uploads files to an S3-compatible bucket.
type S3Transfer struct {
	client *s3.Client
	bucket string
}

// NewS3Transfer creates a transfer configured from static credentials. An
// empty endpoint targets AWS itself.
func NewS3Transfer(cfg config.S3Config) *S3Transfer {
	opts := s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.KeyID, cfg.Secret, "",
		),
		UsePathStyle: cfg.URLStyle != "vhost",
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if cfg.Endpoint != "" {
		scheme := "https"
		if !cfg.UseSSL {
			scheme = "http"
		}
		opts.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", scheme, cfg.Endpoint))
	}
	return &S3Transfer{client: s3.New(opts), bucket: cfg.Bucket}
}

// Put uploads localPath.
func (t *S3Transfer) Put(ctx context.Context, localPath, remoteVolumePath string) (string, error) {
	return putFile(ctx, t, localPath, remoteVolumePath)
}

// PutReader uploads r and returns its s3:// URI.
func (t *S3Transfer) PutReader(ctx context.Context, r io.Reader, remoteVolumePath string) (string, error) {
	key, err := cleanKey(remoteVolumePath)
	if err != nil {
		return "", err
	}
	uri := S3URI(t.bucket, key)

	body, size, err := spool(r)
	if err != nil {
		return "", &domain.TransferError{Path: uri, Cause: err}
	}
	defer closeSpool(body)

	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("text/csv"),
	})
	if err != nil {
		return "", &domain.TransferError{Path: uri, Cause: err}
	}
	return uri, nil
}

// Resolve returns the s3:// URI of key in the bucket.
func (t *S3Transfer) Resolve(key string) (string, error) {
	k, err := volumeKey(key)
	if err != nil {
		return "", err
	}
	return S3URI(t.bucket, k), nil
}

// S3URI returns s3://bucket/key.
func S3URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
