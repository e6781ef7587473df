package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"duck-loader/internal/config"
	"duck-loader/internal/domain"
)

// AzureTransfer uploads files to an Azure Blob Storage container.
type AzureTransfer struct {
	client    *azblob.Client
	container string
}

// NewAzureTransfer creates a transfer authenticated by connection string or
// shared account key.
func NewAzureTransfer(cfg config.AzureConfig) (*AzureTransfer, error) {
	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("create Azure blob client: %w", err)
		}
		return &AzureTransfer{client: client, container: cfg.Container}, nil
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureTransfer{client: client, container: cfg.Container}, nil
}

// Put uploads localPath.
func (t *AzureTransfer) Put(ctx context.Context, localPath, remoteVolumePath string) (string, error) {
	return putFile(ctx, t, localPath, remoteVolumePath)
}

// PutReader streams r to a block blob and returns its az:// URI.
func (t *AzureTransfer) PutReader(ctx context.Context, r io.Reader, remoteVolumePath string) (string, error) {
	key, err := cleanKey(remoteVolumePath)
	if err != nil {
		return "", err
	}
	uri := AzureURI(t.container, key)
	if _, err := t.client.UploadStream(ctx, t.container, key, r, nil); err != nil {
		return "", &domain.TransferError{Path: uri, Cause: err}
	}
	return uri, nil
}

// Resolve returns the az:// URI of key in the container.
func (t *AzureTransfer) Resolve(key string) (string, error) {
	k, err := volumeKey(key)
	if err != nil {
		return "", err
	}
	return AzureURI(t.container, k), nil
}

// AzureURI returns az://container/key.
func AzureURI(container, key string) string {
	return "az://" + container + "/" + key
}
