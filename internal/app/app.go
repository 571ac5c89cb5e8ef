// Package app provides application-level wiring and dependency injection
// for the lakegov server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"lakegov/internal/api"
	"lakegov/internal/config"
	internaldb "lakegov/internal/db"
	"lakegov/internal/db/repository"
	"lakegov/internal/engine"
	"lakegov/internal/middleware"
	"lakegov/internal/service/contract"
	"lakegov/internal/service/drift"
	"lakegov/internal/service/governance"
	"lakegov/internal/service/ingestion"
	"lakegov/internal/service/join"
	"lakegov/internal/service/registry"
	"lakegov/internal/service/security"
	"lakegov/internal/source"
)

// Deps holds the external dependencies that main() must provide.
// These are things the app package cannot (or should not) create itself:
// database handles, config, and the DuckDB connection.
type Deps struct {
	Cfg    *config.Config
	Store  *internaldb.Store
	DuckDB *sql.DB
	Logger *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Services      api.Services
	Authenticator *middleware.Authenticator
	Scheduler     *join.Scheduler

	sources *source.Opener
	logger  *slog.Logger
}

// New wires all repositories and services from the provided deps. The
// metastore must already be migrated.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	gov := cfg.Governance
	logger := deps.Logger

	// === Repositories (write-pool) ===
	tableRepo := repository.NewTableRepo(deps.Store.Write)
	contractRepo := repository.NewContractRepo(deps.Store.Write)
	driftRepo := repository.NewDriftReportRepo(deps.Store.Write)
	joinRepo := repository.NewJoinRepo(deps.Store.Write)
	rowRepo := repository.NewIngestedRowRepo(deps.Store.Write)
	auditRepo := repository.NewAuditRepo(deps.Store.Write)

	// === Authorization ===
	authz := security.NewRoleAuthorizer(auditRepo, logger)

	// === Storage ===
	storageCfg := sourceConfig(cfg.Storage)
	if err := configureStorage(ctx, deps.DuckDB, storageCfg, logger); err != nil {
		logger.Warn("duckdb storage setup failed; remote table locations will not be sampled", "error", err)
	}
	sources := source.NewOpener(storageCfg)

	// === Core services ===
	detector := drift.NewDetector(contractRepo, driftRepo, authz, gov.RenameSimilarity, logger)
	tableRegistry := registry.NewTableRegistry(tableRepo, contractRepo, detector, authz, gov.PromoteMaxRetries, logger)
	resolver := registry.NewResolver(tableRepo, authz, logger)
	contractSvc := contract.NewService(contractRepo, authz, logger)
	ingestionSvc := ingestion.NewService(contractRepo, tableRepo, rowRepo, sources, auditRepo, tableRegistry, detector, authz, logger)
	auditSvc := governance.NewAuditService(auditRepo, authz, logger)

	// === Joins ===
	sampler := engine.NewDuckDBSampler(deps.DuckDB, logger)
	joinEngine := join.NewEngine(joinRepo, contractRepo, resolver, sampler, authz, join.Config{
		KeyWeight:      gov.JoinKeyWeight,
		ProducerWeight: gov.JoinProducerWeight,
		SampleSize:     gov.JoinSampleSize,
	}, logger)

	// === Authentication ===
	validator, err := newValidator(ctx, cfg.Auth)
	if err != nil {
		_ = sources.Close()
		return nil, fmt.Errorf("auth: %w", err)
	}

	return &App{
		Services: api.Services{
			Registry:  tableRegistry,
			Resolver:  resolver,
			Contracts: contractSvc,
			Drift:     detector,
			Ingestion: ingestionSvc,
			Joins:     joinEngine,
			Audit:     auditSvc,
		},
		Authenticator: middleware.NewAuthenticator(validator, cfg.Auth.RoleClaim, logger),
		Scheduler:     join.NewScheduler(joinEngine, gov.JoinRevalidateSchedule, logger),
		sources:       sources,
		logger:        logger,
	}, nil
}

// Start starts background jobs.
func (a *App) Start() error {
	return a.Scheduler.Start()
}

// Close stops background jobs and releases object-store clients.
func (a *App) Close() error {
	a.Scheduler.Stop()
	return a.sources.Close()
}

// newValidator selects OIDC discovery, an explicit JWKS endpoint or the
// HS256 shared secret, in that order.
func newValidator(ctx context.Context, auth config.AuthConfig) (middleware.JWTValidator, error) {
	switch {
	case auth.JWKSURL != "":
		return middleware.NewOIDCValidatorFromJWKS(ctx, auth.JWKSURL, auth.IssuerURL, auth.Audience), nil
	case auth.IssuerURL != "":
		return middleware.NewOIDCValidator(ctx, auth.IssuerURL, auth.Audience)
	case auth.JWTSecret != "":
		return middleware.NewHS256Validator(auth.JWTSecret, auth.Audience)
	default:
		return nil, errors.New("no token validator configured")
	}
}
