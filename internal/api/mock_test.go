package api

import (
	"context"
	"io"

	"duck-loader/internal/domain"
)

type mockCatalog struct {
	listCatalogsFn func(ctx context.Context) ([]string, error)
	listSchemasFn  func(ctx context.Context, catalog string) ([]string, error)
	listTablesFn   func(ctx context.Context, catalog, schema string) ([]string, error)
	listColumnsFn  func(ctx context.Context, catalog, schema, table string) ([]string, error)
}

func (m *mockCatalog) ListCatalogs(ctx context.Context) ([]string, error) {
	if m.listCatalogsFn == nil {
		panic("mockCatalog.ListCatalogs called but not configured")
	}
	return m.listCatalogsFn(ctx)
}

func (m *mockCatalog) ListSchemas(ctx context.Context, catalog string) ([]string, error) {
	if m.listSchemasFn == nil {
		panic("mockCatalog.ListSchemas called but not configured")
	}
	return m.listSchemasFn(ctx, catalog)
}

func (m *mockCatalog) ListTables(ctx context.Context, catalog, schema string) ([]string, error) {
	if m.listTablesFn == nil {
		panic("mockCatalog.ListTables called but not configured")
	}
	return m.listTablesFn(ctx, catalog, schema)
}

func (m *mockCatalog) ListColumns(ctx context.Context, catalog, schema, table string) ([]string, error) {
	if m.listColumnsFn == nil {
		panic("mockCatalog.ListColumns called but not configured")
	}
	return m.listColumnsFn(ctx, catalog, schema, table)
}

type mockIngestion struct {
	uploadFn  func(ctx context.Context, filename string, r io.Reader) (*domain.UploadedFile, error)
	previewFn func(ctx context.Context, key string, limit int) (*domain.PreviewResult, error)
	writeFn   func(ctx context.Context, req domain.WriteRequest) *domain.WriteResult
	historyFn func(ctx context.Context, filter domain.HistoryFilter) ([]domain.WriteRecord, int64, error)
}

func (m *mockIngestion) Upload(ctx context.Context, filename string, r io.Reader) (*domain.UploadedFile, error) {
	if m.uploadFn == nil {
		panic("mockIngestion.Upload called but not configured")
	}
	return m.uploadFn(ctx, filename, r)
}

func (m *mockIngestion) Preview(ctx context.Context, key string, limit int) (*domain.PreviewResult, error) {
	if m.previewFn == nil {
		panic("mockIngestion.Preview called but not configured")
	}
	return m.previewFn(ctx, key, limit)
}

func (m *mockIngestion) Write(ctx context.Context, req domain.WriteRequest) *domain.WriteResult {
	if m.writeFn == nil {
		panic("mockIngestion.Write called but not configured")
	}
	return m.writeFn(ctx, req)
}

func (m *mockIngestion) History(ctx context.Context, filter domain.HistoryFilter) ([]domain.WriteRecord, int64, error) {
	if m.historyFn == nil {
		panic("mockIngestion.History called but not configured")
	}
	return m.historyFn(ctx, filter)
}

type mockPinger struct{ err error }

func (m mockPinger) PingContext(context.Context) error { return m.err }
