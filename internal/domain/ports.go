package domain

import (
	"context"
	"io"
)

// MetadataCatalog lists warehouse objects for display and selection.
// Implemented by catalog.MetadataService.
type MetadataCatalog interface {
	ListCatalogs(ctx context.Context) ([]string, error)
	ListSchemas(ctx context.Context, catalog string) ([]string, error)
	ListTables(ctx context.Context, catalog, schema string) ([]string, error)
	ListColumns(ctx context.Context, catalog, schema, table string) ([]string, error)
}

// FileTransfer moves uploaded bytes into a volume the warehouse engine can read.
// Implemented by storage.LocalVolume, storage.S3Transfer, storage.AzureTransfer,
// and storage.GCSTransfer.
type FileTransfer interface {
	// Put copies a local file to remoteVolumePath and returns the URI the
	// warehouse uses to read it.
	Put(ctx context.Context, localPath, remoteVolumePath string) (string, error)
	// PutReader streams r to remoteVolumePath.
	PutReader(ctx context.Context, r io.Reader, remoteVolumePath string) (string, error)
	// Resolve maps a caller-supplied volume key to the URI the warehouse
	// reads. Keys that are absolute, carry a scheme, or escape the volume
	// are rejected with a ValidationError.
	Resolve(key string) (string, error)
}

// WriteHistoryRepository persists one record per dispatched write.
// Implemented by repository.WriteHistoryRepo.
type WriteHistoryRepository interface {
	Insert(ctx context.Context, rec *WriteRecord) error
	List(ctx context.Context, filter HistoryFilter) ([]WriteRecord, int64, error)
}
