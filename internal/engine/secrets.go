package engine

import (
	"context"
	"database/sql"
	"fmt"

	"duck-loader/internal/ddl"
)

// Execer is the subset of *sql.DB the secret manager needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SecretManager registers DuckDB secrets so that read_csv can reach files on
// remote volumes. Secrets are scoped to the database instance, so every pooled
// connection sees them.
type SecretManager struct {
	db Execer
}

// NewSecretManager creates a new SecretManager.
func NewSecretManager(db Execer) *SecretManager {
	return &SecretManager{db: db}
}

// CreateS3Secret creates a named secret for S3-compatible storage.
func (m *SecretManager) CreateS3Secret(ctx context.Context, name, keyID, secret, endpoint, region, urlStyle string) error {
	stmt, err := ddl.CreateS3Secret(name, keyID, secret, endpoint, region, urlStyle)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	return m.exec(ctx, "create S3 secret", name, stmt)
}

// CreateAzureSecret creates a named secret for Azure Blob Storage.
func (m *SecretManager) CreateAzureSecret(ctx context.Context, name, accountName, accountKey, connectionString string) error {
	stmt, err := ddl.CreateAzureSecret(name, accountName, accountKey, connectionString)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	return m.exec(ctx, "create Azure secret", name, stmt)
}

// CreateGCSSecret creates a named secret for Google Cloud Storage HMAC keys.
func (m *SecretManager) CreateGCSSecret(ctx context.Context, name, keyID, secret string) error {
	stmt, err := ddl.CreateGCSSecret(name, keyID, secret)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	return m.exec(ctx, "create GCS secret", name, stmt)
}

// DropSecret removes a named secret.
func (m *SecretManager) DropSecret(ctx context.Context, name string) error {
	stmt, err := ddl.DropSecret(name)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	return m.exec(ctx, "drop secret", name, stmt)
}

func (m *SecretManager) exec(ctx context.Context, op, name, stmt string) error {
	if _, err := m.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s %q: %w", op, name, err)
	}
	return nil
}
