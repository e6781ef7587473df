// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Volume backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendAzure = "azure"
	BackendGCS   = "gcs"
)

// AuthConfig holds authentication and identity provider configuration.
type AuthConfig struct {
	IssuerURL    string            // OIDC issuer URL
	JWTSecret    string            // HS256 shared secret for local/dev JWT auth
	Audience     string            // Required JWT audience claim
	NameClaim    string            // JWT claim for principal name (default: "email")
	APIKeyHeader string            // Header name for API keys (default: X-API-Key)
	APIKeys      map[string]string // key -> principal name
}

// Enabled reports whether any authentication method is configured.
func (a *AuthConfig) Enabled() bool {
	return a.IssuerURL != "" || a.JWTSecret != "" || len(a.APIKeys) > 0
}

// S3Config holds S3-compatible volume settings.
type S3Config struct {
	KeyID    string
	Secret   string
	Endpoint string // host[:port], without scheme
	Region   string
	Bucket   string
	URLStyle string // "path" (default) or "vhost"
	UseSSL   bool
}

// AzureConfig holds Azure Blob Storage volume settings.
type AzureConfig struct {
	AccountName      string
	AccountKey       string
	ConnectionString string
	Container        string
}

// GCSConfig holds Google Cloud Storage volume settings. The key file is used
// for uploads; the HMAC keys let the warehouse engine read the objects.
type GCSConfig struct {
	KeyFile    string
	Bucket     string
	HMACKeyID  string
	HMACSecret string
}

// VolumeConfig selects where uploaded files are placed.
type VolumeConfig struct {
	Backend string
	Path    string // root directory (local) or key prefix (object stores)
	S3      S3Config
	Azure   AzureConfig
	GCS     GCSConfig
}

// Config holds the configuration for the HTTP API, the warehouse engine, and
// the upload volume.
type Config struct {
	ListenAddr        string
	TLSCertFile       string
	TLSKeyFile        string
	AllowInsecureHTTP bool
	LogLevel          string // debug, info, warn, error (default "info")
	Env               string // "development" (default) or "production"
	ShutdownTimeout   time.Duration

	DuckDBPath    string   // warehouse database file, "" for in-memory
	Attach        []string // name=path databases attached as catalogs
	HistoryDBPath string   // SQLite write history

	Volume VolumeConfig

	OverwriteAtomic bool
	MaxUploadBytes  int64

	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string

	Auth AuthConfig

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("env", "development")
	v.SetDefault("shutdown_timeout", "15s")
	v.SetDefault("history_db_path", "duckload_history.sqlite")
	v.SetDefault("volume_backend", BackendLocal)
	v.SetDefault("url_style", "path")
	v.SetDefault("use_ssl", true)
	v.SetDefault("overwrite_atomic", true)
	v.SetDefault("max_upload_bytes", 100<<20)
	v.SetDefault("rate_limit_rps", 100)
	v.SetDefault("rate_limit_burst", 200)
	v.SetDefault("cors_allowed_origins", "*")
	v.SetDefault("auth_api_key_header", "X-API-Key")
	v.SetDefault("auth_name_claim", "email")
}

// Load reads configuration from defaults, an optional YAML file at path, and
// the environment, in increasing order of precedence. Keys are snake_case in
// the file and UPPER_SNAKE_CASE in the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		ListenAddr:         v.GetString("listen_addr"),
		TLSCertFile:        v.GetString("tls_cert_file"),
		TLSKeyFile:         v.GetString("tls_key_file"),
		AllowInsecureHTTP:  v.GetBool("allow_insecure_http"),
		LogLevel:           v.GetString("log_level"),
		Env:                v.GetString("env"),
		ShutdownTimeout:    v.GetDuration("shutdown_timeout"),
		DuckDBPath:         v.GetString("duckdb_path"),
		Attach:             stringList(v, "attach"),
		HistoryDBPath:      v.GetString("history_db_path"),
		OverwriteAtomic:    v.GetBool("overwrite_atomic"),
		MaxUploadBytes:     v.GetInt64("max_upload_bytes"),
		RateLimitRPS:       v.GetFloat64("rate_limit_rps"),
		RateLimitBurst:     v.GetInt("rate_limit_burst"),
		CORSAllowedOrigins: stringList(v, "cors_allowed_origins"),
		Volume: VolumeConfig{
			Backend: strings.ToLower(v.GetString("volume_backend")),
			Path:    v.GetString("volume_path"),
			S3: S3Config{
				KeyID:    v.GetString("key_id"),
				Secret:   v.GetString("secret"),
				Endpoint: v.GetString("endpoint"),
				Region:   v.GetString("region"),
				Bucket:   v.GetString("bucket"),
				URLStyle: v.GetString("url_style"),
				UseSSL:   v.GetBool("use_ssl"),
			},
			Azure: AzureConfig{
				AccountName:      v.GetString("azure_account_name"),
				AccountKey:       v.GetString("azure_account_key"),
				ConnectionString: v.GetString("azure_connection_string"),
				Container:        v.GetString("azure_container"),
			},
			GCS: GCSConfig{
				KeyFile:    v.GetString("gcs_key_file"),
				Bucket:     v.GetString("gcs_bucket"),
				HMACKeyID:  v.GetString("gcs_hmac_key_id"),
				HMACSecret: v.GetString("gcs_hmac_secret"),
			},
		},
		Auth: AuthConfig{
			IssuerURL:    v.GetString("auth_issuer_url"),
			JWTSecret:    v.GetString("jwt_secret"),
			Audience:     v.GetString("auth_audience"),
			NameClaim:    v.GetString("auth_name_claim"),
			APIKeyHeader: v.GetString("auth_api_key_header"),
		},
	}

	keys, err := parseAPIKeys(stringList(v, "api_keys"))
	if err != nil {
		return nil, err
	}
	cfg.Auth.APIKeys = keys

	if cfg.Volume.Path == "" {
		if cfg.Volume.Backend == BackendLocal {
			cfg.Volume.Path = "volumes/uploads"
		} else {
			cfg.Volume.Path = "uploads"
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("both TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must not be negative")
	}
	if err := c.Volume.validate(); err != nil {
		return err
	}
	if c.Auth.IssuerURL != "" && c.Auth.Audience == "" {
		return fmt.Errorf("AUTH_AUDIENCE is required when AUTH_ISSUER_URL is set")
	}
	if !c.Auth.Enabled() {
		c.Warnings = append(c.Warnings, "authentication is not configured: set AUTH_ISSUER_URL, JWT_SECRET, or API_KEYS")
	}
	if !c.OverwriteAtomic {
		c.Warnings = append(c.Warnings, "OVERWRITE_ATOMIC=false: a failed overwrite leaves the target table empty")
	}
	if c.DuckDBPath == "" {
		c.Warnings = append(c.Warnings, "DUCKDB_PATH not set: the warehouse is in-memory and is lost on exit")
	}

	// Production mode: insecure defaults are fatal errors.
	if c.IsProduction() {
		if !c.Auth.Enabled() {
			return fmt.Errorf("authentication must be configured in production (ENV=production)")
		}
		if len(c.CORSAllowedOrigins) == 1 && c.CORSAllowedOrigins[0] == "*" {
			return fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
		if c.TLSCertFile == "" && !c.AllowInsecureHTTP {
			return fmt.Errorf("TLS_CERT_FILE/TLS_KEY_FILE must be set in production unless ALLOW_INSECURE_HTTP=true")
		}
	}
	return nil
}

func (v *VolumeConfig) validate() error {
	switch v.Backend {
	case BackendLocal:
		return nil
	case BackendS3:
		if v.S3.KeyID == "" || v.S3.Secret == "" || v.S3.Bucket == "" {
			return fmt.Errorf("VOLUME_BACKEND=s3 requires KEY_ID, SECRET, and BUCKET")
		}
		if v.S3.URLStyle != "path" && v.S3.URLStyle != "vhost" {
			return fmt.Errorf("URL_STYLE must be path or vhost, got %q", v.S3.URLStyle)
		}
	case BackendAzure:
		if v.Azure.Container == "" {
			return fmt.Errorf("VOLUME_BACKEND=azure requires AZURE_CONTAINER")
		}
		if v.Azure.ConnectionString == "" && (v.Azure.AccountName == "" || v.Azure.AccountKey == "") {
			return fmt.Errorf("VOLUME_BACKEND=azure requires AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY or AZURE_CONNECTION_STRING")
		}
	case BackendGCS:
		if v.GCS.Bucket == "" || v.GCS.KeyFile == "" {
			return fmt.Errorf("VOLUME_BACKEND=gcs requires GCS_BUCKET and GCS_KEY_FILE")
		}
	default:
		return fmt.Errorf("unsupported VOLUME_BACKEND %q; supported: local, s3, azure, gcs", v.Backend)
	}
	return nil
}

// stringList reads a comma-separated string or a YAML list.
func stringList(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case nil:
		return nil
	case string:
		raw = strings.Split(val, ",")
	case []any:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	case []string:
		raw = val
	default:
		raw = strings.Split(fmt.Sprint(val), ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseAPIKeys parses "principal:key" entries.
func parseAPIKeys(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	keys := make(map[string]string, len(entries))
	for _, e := range entries {
		name, key, ok := strings.Cut(e, ":")
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("invalid API_KEYS entry: expected principal:key")
		}
		keys[key] = name
	}
	return keys, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
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
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if os.Getenv(key) == "" {
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
