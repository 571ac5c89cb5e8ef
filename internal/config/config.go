// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// DevJWTSecret is the HS256 secret used when no identity provider is
// configured outside production.
const DevJWTSecret = "dev-secret-change-in-production"

// AuthConfig holds bearer-token validation settings. Tokens are issued
// elsewhere; only their role claim is consumed.
type AuthConfig struct {
	IssuerURL string // OIDC issuer URL; enables discovery-based validation
	JWKSURL   string // JWKS URL when the issuer has no .well-known discovery
	JWTSecret string // HS256 shared secret for local/dev tokens
	Audience  string // required audience claim (optional for HS256)
	RoleClaim string // dotted claim path holding the role (default "role")
}

// OIDCEnabled returns true when an external identity provider is configured.
func (a *AuthConfig) OIDCEnabled() bool {
	return a.IssuerURL != "" || a.JWKSURL != ""
}

// Validate checks that the auth configuration is internally consistent.
func (a *AuthConfig) Validate() error {
	if !a.OIDCEnabled() && a.JWTSecret == "" {
		return fmt.Errorf("one of AUTH_ISSUER_URL, AUTH_JWKS_URL or JWT_SECRET must be set")
	}
	if a.JWKSURL != "" && a.IssuerURL == "" {
		return fmt.Errorf("AUTH_ISSUER_URL is required when AUTH_JWKS_URL is set")
	}
	if a.OIDCEnabled() && a.Audience == "" {
		return fmt.Errorf("AUTH_AUDIENCE is required when OIDC is configured")
	}
	return nil
}

// GovernanceConfig tunes the lifecycle and join services.
type GovernanceConfig struct {
	PromoteMaxRetries      int     // CAS attempts for promotions without an expected revision
	RenameSimilarity       float64 // name similarity above which remove+add is a rename
	JoinKeyWeight          float64 // confidence weight of key overlap
	JoinProducerWeight     float64 // confidence weight of shared producer origin
	JoinSampleSize         int     // rows sampled per join validation
	JoinRevalidateSchedule string  // cron spec; empty disables scheduled revalidation
}

// StorageConfig holds object-store credentials for ingestion sources and
// DuckDB table locations.
type StorageConfig struct {
	S3KeyID            string
	S3Secret           string
	S3Endpoint         string
	S3Region           string
	GCSCredentialsFile string
	AzureAccountName   string
	AzureAccountKey    string
}

// HasS3 returns true if static S3 credentials are set.
func (s *StorageConfig) HasS3() bool {
	return s.S3KeyID != "" && s.S3Secret != ""
}

// Config holds the configuration of the governance server.
type Config struct {
	MetaDBPath        string // path to the SQLite metastore
	DuckDBPath        string // DuckDB database for join sampling; empty means in-memory
	ListenAddr        string // HTTP listen address (default ":8080")
	TLSCertFile       string // TLS certificate file path (optional)
	TLSKeyFile        string // TLS private key file path (optional)
	AllowInsecureHTTP bool   // allow non-TLS listener in production (for trusted TLS termination)
	LogLevel          string // log level: debug, info, warn, error (default "info")
	Env               string // environment: "development" (default) or "production"

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	Auth       AuthConfig
	Governance GovernanceConfig
	Storage    StorageConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables. Malformed
// numeric values are errors; absent ones take their defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:  os.Getenv("META_DB_PATH"),
		DuckDBPath:  os.Getenv("DUCKDB_PATH"),
		ListenAddr:  os.Getenv("LISTEN_ADDR"),
		TLSCertFile: os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:  os.Getenv("TLS_KEY_FILE"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		Env:         os.Getenv("ENV"),
		Auth: AuthConfig{
			IssuerURL: os.Getenv("AUTH_ISSUER_URL"),
			JWKSURL:   os.Getenv("AUTH_JWKS_URL"),
			JWTSecret: os.Getenv("JWT_SECRET"),
			Audience:  os.Getenv("AUTH_AUDIENCE"),
			RoleClaim: os.Getenv("AUTH_ROLE_CLAIM"),
		},
		Storage: StorageConfig{
			S3KeyID:            os.Getenv("S3_KEY_ID"),
			S3Secret:           os.Getenv("S3_SECRET"),
			S3Endpoint:         os.Getenv("S3_ENDPOINT"),
			S3Region:           os.Getenv("S3_REGION"),
			GCSCredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
			AzureAccountName:   os.Getenv("AZURE_ACCOUNT_NAME"),
			AzureAccountKey:    os.Getenv("AZURE_ACCOUNT_KEY"),
		},
		AllowInsecureHTTP: parseBoolEnvDefault("ALLOW_INSECURE_HTTP", false),
	}

	var err error
	if cfg.RateLimitRPS, err = floatEnv("RATE_LIMIT_RPS", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 200); err != nil {
		return nil, err
	}

	gov := &cfg.Governance
	if gov.PromoteMaxRetries, err = intEnv("PROMOTE_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if gov.RenameSimilarity, err = floatEnv("RENAME_SIMILARITY", 0.8); err != nil {
		return nil, err
	}
	if gov.JoinKeyWeight, err = floatEnv("JOIN_WEIGHT_KEY", 0.7); err != nil {
		return nil, err
	}
	if gov.JoinProducerWeight, err = floatEnv("JOIN_WEIGHT_PRODUCER", 0.3); err != nil {
		return nil, err
	}
	if gov.JoinSampleSize, err = intEnv("JOIN_SAMPLE_SIZE", 10000); err != nil {
		return nil, err
	}
	gov.JoinRevalidateSchedule = "0 3 * * *"
	if v, ok := os.LookupEnv("JOIN_REVALIDATE_SCHEDULE"); ok {
		gov.JoinRevalidateSchedule = strings.TrimSpace(v)
	}
	if err := gov.validate(); err != nil {
		return nil, err
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "lakegov_meta.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Auth.RoleClaim == "" {
		cfg.Auth.RoleClaim = "role"
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("both TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if (cfg.Storage.S3KeyID == "") != (cfg.Storage.S3Secret == "") {
		return nil, fmt.Errorf("both S3_KEY_ID and S3_SECRET must be set together")
	}
	if !cfg.Auth.OIDCEnabled() && cfg.Auth.JWTSecret == "" && !cfg.IsProduction() {
		cfg.Auth.JWTSecret = DevJWTSecret
		cfg.Warnings = append(cfg.Warnings, "no identity provider configured: using the insecure development JWT secret")
	}

	if err := cfg.Auth.Validate(); err != nil {
		return nil, err
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.Auth.JWTSecret == DevJWTSecret {
			return nil, fmt.Errorf("JWT_SECRET must not be the development secret in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
		if cfg.TLSCertFile == "" && !cfg.AllowInsecureHTTP {
			return nil, fmt.Errorf("TLS_CERT_FILE/TLS_KEY_FILE must be set in production unless ALLOW_INSECURE_HTTP=true")
		}
	}

	return cfg, nil
}

func (g *GovernanceConfig) validate() error {
	if g.PromoteMaxRetries < 1 {
		return fmt.Errorf("PROMOTE_MAX_RETRIES must be at least 1, got %d", g.PromoteMaxRetries)
	}
	if g.RenameSimilarity <= 0 || g.RenameSimilarity > 1 {
		return fmt.Errorf("RENAME_SIMILARITY must be in (0, 1], got %g", g.RenameSimilarity)
	}
	if g.JoinKeyWeight < 0 || g.JoinProducerWeight < 0 || g.JoinKeyWeight+g.JoinProducerWeight <= 0 {
		return fmt.Errorf("JOIN_WEIGHT_KEY and JOIN_WEIGHT_PRODUCER must be non-negative with a positive sum")
	}
	if g.JoinSampleSize < 1 {
		return fmt.Errorf("JOIN_SAMPLE_SIZE must be positive, got %d", g.JoinSampleSize)
	}
	return nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
