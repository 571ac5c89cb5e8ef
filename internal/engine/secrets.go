package engine

import (
	"context"
	"database/sql"
	"fmt"

	"lakegov/internal/source"
)

// Secret names registered by ConfigureStorage.
const (
	S3SecretName    = "lakegov_s3"
	GCSSecretName   = "lakegov_gcs"
	AzureSecretName = "lakegov_azure"
)

// ConfigureStorage loads the extensions DuckDB needs for remote table
// locations and registers a secret for every configured object store, so
// samplers can read s3://, gs:// and az:// locations.
func ConfigureStorage(ctx context.Context, db *sql.DB, cfg source.Config) error {
	var stmts []string
	if cfg.S3KeyID != "" || cfg.GCSCredentialsFile != "" {
		stmts = append(stmts, "INSTALL httpfs", "LOAD httpfs")
	}
	if cfg.S3KeyID != "" {
		region := cfg.S3Region
		if region == "" {
			region = "us-east-1"
		}
		urlStyle := ""
		if cfg.S3Endpoint != "" {
			urlStyle = "path"
		}
		stmt, err := CreateS3Secret(S3SecretName, cfg.S3KeyID, cfg.S3Secret, cfg.S3Endpoint, region, urlStyle)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
	}
	if cfg.GCSCredentialsFile != "" {
		stmt, err := CreateGCSSecret(GCSSecretName, cfg.GCSCredentialsFile)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
	}
	if cfg.AzureAccountName != "" {
		stmt, err := CreateAzureSecret(AzureSecretName, cfg.AzureAccountName, cfg.AzureAccountKey)
		if err != nil {
			return err
		}
		stmts = append(stmts, "INSTALL azure", "LOAD azure", stmt)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("configure duckdb storage: %w", err)
		}
	}
	return nil
}
