// Package storage places uploaded files on a volume the warehouse engine can
// read: a local directory, S3-compatible object storage, Azure Blob Storage,
// or Google Cloud Storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"duck-loader/internal/config"
	"duck-loader/internal/domain"
)

// Compile-time interface checks.
var (
	_ domain.FileTransfer = (*LocalVolume)(nil)
	_ domain.FileTransfer = (*S3Transfer)(nil)
	_ domain.FileTransfer = (*AzureTransfer)(nil)
	_ domain.FileTransfer = (*GCSTransfer)(nil)
)

// NewTransferFromConfig returns the FileTransfer for the configured backend.
func NewTransferFromConfig(ctx context.Context, cfg config.VolumeConfig) (domain.FileTransfer, error) {
	switch cfg.Backend {
	case config.BackendLocal, "":
		return NewLocalVolume(cfg.Path)
	case config.BackendS3:
		return NewS3Transfer(cfg.S3), nil
	case config.BackendAzure:
		return NewAzureTransfer(cfg.Azure)
	case config.BackendGCS:
		return NewGCSTransfer(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported volume backend %q", cfg.Backend)
	}
}

// cleanKey normalises a remote volume path into an object key and rejects
// paths that escape the volume.
func cleanKey(remoteVolumePath string) (string, error) {
	p := strings.ReplaceAll(remoteVolumePath, "\\", "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", domain.ErrValidation("remote path %q escapes the volume", remoteVolumePath)
		}
	}
	key := strings.TrimPrefix(path.Clean("/"+p), "/")
	if key == "" || key == "." {
		return "", domain.ErrValidation("remote path is required")
	}
	return key, nil
}

// volumeKey validates a caller-supplied key before it is resolved to a
// readable URI. Unlike cleanKey it rejects absolute paths, schemes, drive
// letters, and glob characters outright instead of normalising them.
func volumeKey(key string) (string, error) {
	k := strings.TrimSpace(key)
	switch {
	case k == "":
		return "", domain.ErrValidation("source key is required")
	case strings.ContainsAny(k, ":\x00"):
		return "", domain.ErrValidation("source key %q must be a volume key, not a URI or drive path", key)
	case strings.HasPrefix(k, "/") || strings.HasPrefix(k, "\\"):
		return "", domain.ErrValidation("source key %q must be relative to the volume", key)
	case strings.ContainsAny(k, "*?[]{}"):
		return "", domain.ErrValidation("source key %q must not contain glob characters", key)
	}
	return cleanKey(k)
}

// putFile opens localPath and streams it through put.
func putFile(ctx context.Context, t domain.FileTransfer, localPath, remoteVolumePath string) (string, error) {
	f, err := os.Open(localPath) //nolint:gosec // path is caller-controlled
	if err != nil {
		return "", &domain.TransferError{Path: localPath, Cause: err}
	}
	defer f.Close() //nolint:errcheck
	return t.PutReader(ctx, f, remoteVolumePath)
}

// spool copies r to a temporary file so that uploaders needing a seekable
// body with a known length can send it.
func spool(r io.Reader) (*os.File, int64, error) {
	f, err := os.CreateTemp("", "duckload-upload-*")
	if err != nil {
		return nil, 0, err
	}
	n, err := io.Copy(f, r)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, 0, err
	}
	return f, n, nil
}

func closeSpool(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}
