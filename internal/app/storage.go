package app

import (
	"context"
	"database/sql"
	"log/slog"

	"lakegov/internal/config"
	"lakegov/internal/engine"
	"lakegov/internal/source"
)

func sourceConfig(s config.StorageConfig) source.Config {
	return source.Config{
		S3Region:           s.S3Region,
		S3Endpoint:         s.S3Endpoint,
		S3KeyID:            s.S3KeyID,
		S3Secret:           s.S3Secret,
		GCSCredentialsFile: s.GCSCredentialsFile,
		AzureAccountName:   s.AzureAccountName,
		AzureAccountKey:    s.AzureAccountKey,
	}
}

// configureStorage registers object-store secrets with DuckDB. Secrets live
// in the DuckDB session and are lost on restart, so this runs at every
// startup.
func configureStorage(ctx context.Context, duckDB *sql.DB, cfg source.Config, logger *slog.Logger) error {
	if cfg == (source.Config{}) {
		return nil
	}
	if err := engine.ConfigureStorage(ctx, duckDB, cfg); err != nil {
		return err
	}
	logger.Info("duckdb object-store secrets registered",
		"s3", cfg.S3KeyID != "",
		"gcs", cfg.GCSCredentialsFile != "",
		"azure", cfg.AzureAccountName != "",
	)
	return nil
}
