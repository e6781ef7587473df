package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"duck-loader/internal/domain"
)

// LocalVolume stores uploads under a root directory on the warehouse host.
type LocalVolume struct {
	root string
}

// NewLocalVolume creates the root directory if needed.
func NewLocalVolume(root string) (*LocalVolume, error) {
	if root == "" {
		return nil, fmt.Errorf("volume path is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve volume path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create volume directory: %w", err)
	}
	return &LocalVolume{root: abs}, nil
}

// Root returns the absolute volume directory.
func (v *LocalVolume) Root() string { return v.root }

// Put copies localPath into the volume.
func (v *LocalVolume) Put(ctx context.Context, localPath, remoteVolumePath string) (string, error) {
	return putFile(ctx, v, localPath, remoteVolumePath)
}

// PutReader writes r to remoteVolumePath under the root and returns the
// absolute file path. The file appears atomically once fully written.
func (v *LocalVolume) PutReader(ctx context.Context, r io.Reader, remoteVolumePath string) (string, error) {
	key, err := cleanKey(remoteVolumePath)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(v.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", &domain.TransferError{Path: dst, Cause: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", &domain.TransferError{Path: dst, Cause: err}
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		return "", &domain.TransferError{Path: dst, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &domain.TransferError{Path: dst, Cause: err}
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", &domain.TransferError{Path: dst, Cause: err}
	}
	return dst, nil
}

// Resolve returns the absolute path of key under the volume root.
func (v *LocalVolume) Resolve(key string) (string, error) {
	k, err := volumeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(v.root, filepath.FromSlash(k)), nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
