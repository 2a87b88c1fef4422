// Package config loads and validates the Momofin backend configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the MOMOFIN_ prefix (e.g.
// MOMOFIN_DATABASE_HOST overrides database.host in the YAML).
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/momofin/momofin-backend/pkg/checksum"
)

// EnvPrefix is the prefix for every environment variable read by Load.
const EnvPrefix = "MOMOFIN"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Integrity IntegrityConfig `mapstructure:"integrity"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxUploadMB caps multipart document uploads.
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// AuthConfig holds token and password hashing configuration
type AuthConfig struct {
	JWT        JWTConfig `mapstructure:"jwt"`
	BcryptCost int       `mapstructure:"bcrypt_cost"`
}

// JWTConfig holds the token signing configuration
type JWTConfig struct {
	SigningSecret string        `mapstructure:"signing_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

// IntegrityConfig holds the keyed digest configuration used for documents
type IntegrityConfig struct {
	HMACSecret       string `mapstructure:"hmac_secret"`
	DefaultAlgorithm string `mapstructure:"default_algorithm"`
}

// StorageConfig holds storage backend configuration
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	GCS            GCSStorageConfig   `mapstructure:"gcs"`
	Azure          AzureStorageConfig `mapstructure:"azure"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is optional, for MinIO and other S3-compatible services
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// AuthMethod is one of "default", "static", "oidc", "assume_role"
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN              string `mapstructure:"role_arn"`
	RoleSessionName      string `mapstructure:"role_session_name"`
	ExternalID           string `mapstructure:"external_id"`
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
	// Endpoint points the client at an emulator such as fake-gcs-server
	Endpoint string `mapstructure:"endpoint"`

	// AuthMethod is one of "default", "service_account", "workload_identity".
	// Workload identity is served by Application Default Credentials.
	AuthMethod      string `mapstructure:"auth_method"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
	// Endpoint overrides https://<account>.blob.core.windows.net/, e.g. for Azurite
	Endpoint string `mapstructure:"endpoint"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// RedisConfig holds the Redis connection used by the distributed rate limiter
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend is "memory" or "redis"
	Backend           string `mapstructure:"backend"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds activity log configuration
type AuditConfig struct {
	// WriteTimeout bounds each background activity log write
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// Shippers configures external log shipping
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig holds configuration for a single activity log shipper
type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"` // webhook, file
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	TimeoutSecs   int               `mapstructure:"timeout_secs"`
	SigningSecret string            `mapstructure:"signing_secret"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval int               `mapstructure:"flush_interval_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// bindEnvVars binds every scalar config key to its MOMOFIN_ env var.
// AutomaticEnv() alone does not reach nested keys during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	for _, key := range EnvKeys() {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// EnvKeys lists the dotted config keys that can be set from the environment,
// derived from the mapstructure tags on Config. List and map valued settings
// (audit shippers, webhook headers) are YAML only, apart from string lists
// such as security.cors.allowed_origins.
func EnvKeys() []string {
	return collectKeys(reflect.TypeOf(Config{}), "")
}

func collectKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		switch ft := f.Type; {
		case ft.Kind() == reflect.Struct:
			keys = append(keys, collectKeys(ft, key)...)
		case ft.Kind() == reflect.Slice && ft.Elem().Kind() != reflect.String,
			ft.Kind() == reflect.Map, ft.Kind() == reflect.Pointer:
		default:
			keys = append(keys, key)
		}
	}
	return keys
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/momofin")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// A flat signingSecret key is accepted with the lowest precedence.
	if legacy := v.GetString("signingSecret"); legacy != "" {
		v.SetDefault("auth.jwt.signing_secret", legacy)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Auth.JWT.SigningSecret = expandEnv(cfg.Auth.JWT.SigningSecret)
	cfg.Integrity.HMACSecret = expandEnv(cfg.Integrity.HMACSecret)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Storage.GCS.CredentialsJSON = expandEnv(cfg.Storage.GCS.CredentialsJSON)
	cfg.Storage.Azure.AccountKey = expandEnv(cfg.Storage.Azure.AccountKey)
	cfg.Redis.URL = expandEnv(cfg.Redis.URL)
	for _, sh := range cfg.Audit.Shippers {
		if sh.Webhook != nil {
			sh.Webhook.SigningSecret = expandEnv(sh.Webhook.SigningSecret)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_upload_mb", 50)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "momofin")
	v.SetDefault("database.user", "momofin")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Auth defaults
	v.SetDefault("auth.jwt.token_ttl", "24h")
	v.SetDefault("auth.bcrypt_cost", 12)

	// Integrity defaults
	v.SetDefault("integrity.default_algorithm", checksum.DefaultAlgorithm)

	// Storage defaults
	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.local.base_path", "./storage")
	v.SetDefault("storage.s3.auth_method", "default")
	v.SetDefault("storage.gcs.auth_method", "default")

	// Redis defaults
	v.SetDefault("redis.enabled", false)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.backend", "memory")
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "momofin-backend")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.write_timeout", "5s")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Auth.JWT.SigningSecret == "" {
		return fmt.Errorf("auth.jwt.signing_secret is required")
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		return fmt.Errorf("invalid auth.bcrypt_cost: %d (must be between 4 and 31)", c.Auth.BcryptCost)
	}

	if c.Integrity.HMACSecret == "" {
		return fmt.Errorf("integrity.hmac_secret is required")
	}
	if !checksum.IsSupported(c.Integrity.DefaultAlgorithm) {
		return fmt.Errorf("unsupported integrity.default_algorithm: %s (supported: %s)",
			c.Integrity.DefaultAlgorithm, strings.Join(checksum.SupportedAlgorithms(), ", "))
	}

	switch c.Storage.DefaultBackend {
	case "local":
		if c.Storage.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when using local backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when using S3 backend")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using S3 backend")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required when using GCS backend")
		}
	case "azure":
		if c.Storage.Azure.AccountName == "" || c.Storage.Azure.ContainerName == "" {
			return fmt.Errorf("storage.azure.account_name and storage.azure.container_name are required when using Azure backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be local, s3, gcs or azure)", c.Storage.DefaultBackend)
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when redis is enabled")
	}

	switch c.Security.RateLimiting.Backend {
	case "", "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required when rate limiting uses the redis backend")
		}
	default:
		return fmt.Errorf("invalid security.rate_limiting.backend: %s (must be memory or redis)", c.Security.RateLimiting.Backend)
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	for i, s := range c.Audit.Shippers {
		if !s.Enabled {
			continue
		}
		switch s.Type {
		case "webhook":
			if s.Webhook == nil || s.Webhook.URL == "" {
				return fmt.Errorf("audit.shippers[%d]: webhook.url is required", i)
			}
		case "file":
			if s.File == nil || s.File.Path == "" {
				return fmt.Errorf("audit.shippers[%d]: file.path is required", i)
			}
		default:
			return fmt.Errorf("audit.shippers[%d]: unknown type %q (must be webhook or file)", i, s.Type)
		}
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *ServerConfig) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 50 << 20
	}
	return c.MaxUploadMB << 20
}
