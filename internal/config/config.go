// Package config loads the server configuration from the environment.
//
// An optional .env file in the working directory is read first (godotenv never
// overrides variables that are already set), then each setting is looked up with
// a default. Load is the only place the process environment is consulted; every
// other package receives plain values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends understood by STORAGE_BACKEND.
const (
	StorageDisk = "disk"
	StorageS3   = "s3"
)

// Config holds the application configuration.
type Config struct {
	Port     int
	LogLevel slog.Level

	DBPath      string
	TemplateDir string

	SessionSecret string
	SessionTTL    time.Duration
	SessionSweep  string // cron spec for deleting expired sessions
	CookieSecure  bool

	UploadDir       string
	UploadURLPrefix string
	MaxUploadBytes  int64

	StorageBackend string
	S3             S3Config

	CORSAllowedOrigins []string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// S3Config is only consulted when StorageBackend is "s3".
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
	Prefix          string // key prefix inside the bucket, e.g. "photoshare/uploads"
}

// GitHubEnabled reports whether the external identity provider is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load reads configuration from .env and environment variables, applying defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return fromLookup(os.LookupEnv)
}

// fromLookup builds a Config from any lookup function so tests can avoid the
// process environment.
func fromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return fallback
	}

	port, err := strconv.Atoi(get("PORT", "8080"))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("config: invalid PORT %q", get("PORT", ""))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("config: invalid LOG_LEVEL: %w", err)
	}

	ttl, err := time.ParseDuration(get("SESSION_TTL", "24h"))
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("config: invalid SESSION_TTL %q", get("SESSION_TTL", ""))
	}

	secure, err := strconv.ParseBool(get("COOKIE_SECURE", "false"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid COOKIE_SECURE: %w", err)
	}

	maxUpload, err := strconv.ParseInt(get("MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	if err != nil || maxUpload <= 0 {
		return nil, fmt.Errorf("config: invalid MAX_UPLOAD_BYTES %q", get("MAX_UPLOAD_BYTES", ""))
	}

	cfg := &Config{
		Port:     port,
		LogLevel: level,

		DBPath:      get("DB_PATH", "data/photoshare.db"),
		TemplateDir: get("TEMPLATE_DIR", "web/templates"),

		SessionSecret: get("SESSION_SECRET", ""),
		SessionTTL:    ttl,
		SessionSweep:  get("SESSION_SWEEP", "@every 15m"),
		CookieSecure:  secure,

		UploadDir:       get("UPLOAD_DIR", "public/uploads"),
		UploadURLPrefix: strings.TrimRight(get("UPLOAD_URL_PREFIX", "/uploads"), "/"),
		MaxUploadBytes:  maxUpload,

		StorageBackend: strings.ToLower(get("STORAGE_BACKEND", StorageDisk)),
		S3: S3Config{
			Bucket:          get("S3_BUCKET", ""),
			Region:          get("S3_REGION", "us-east-1"),
			Endpoint:        get("S3_ENDPOINT", ""),
			AccessKeyID:     get("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: get("S3_SECRET_ACCESS_KEY", ""),
			PublicURL:       strings.TrimRight(get("S3_PUBLIC_URL", ""), "/"),
			Prefix:          strings.Trim(get("S3_PREFIX", ""), "/"),
		},

		CORSAllowedOrigins: splitList(get("CORS_ALLOWED_ORIGINS", "")),

		GitHubClientID:     get("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: get("GITHUB_CLIENT_SECRET", ""),
		GitHubCallbackURL:  get("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
	}

	if !strings.HasPrefix(cfg.UploadURLPrefix, "/") {
		return nil, fmt.Errorf("config: UPLOAD_URL_PREFIX must be an absolute path below /, got %q", get("UPLOAD_URL_PREFIX", ""))
	}
	if len(cfg.SessionSecret) < 16 {
		return nil, errors.New("config: SESSION_SECRET must be set to at least 16 characters")
	}

	switch cfg.StorageBackend {
	case StorageDisk:
	case StorageS3:
		if cfg.S3.Bucket == "" {
			return nil, errors.New("config: S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
		if cfg.S3.PublicURL == "" {
			return nil, errors.New("config: S3_PUBLIC_URL is required when STORAGE_BACKEND=s3")
		}
	default:
		return nil, fmt.Errorf("config: unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
