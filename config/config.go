package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported identity providers
const (
	ProviderFirebase = "firebase"
	ProviderOIDC     = "oidc"
)

// Config represents the complete application configuration
type Config struct {
	Server ServerConfig
	// Database is nil when neither DATABASE_URL nor DB_HOST is set; token
	// revocation is disabled in that case.
	Database      *DatabaseConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig selects and configures the identity provider
type AuthConfig struct {
	Provider string
	// EagerInit builds the provider client at startup; otherwise it is built
	// on the first request carrying a bearer token.
	EagerInit bool
	Firebase  FirebaseConfig
	OIDC      OIDCConfig
}

// FirebaseConfig holds Firebase ID token verification settings
type FirebaseConfig struct {
	// Credentials is an inline service-account JSON document or a path to one.
	Credentials       string
	ProjectID         string
	StrictCredentials bool
	ClockSkew         time.Duration
	KeysCacheTTL      time.Duration
	HTTPTimeout       time.Duration
	// KeysURL overrides the Google signing-key endpoint.
	KeysURL string
}

// OIDCConfig holds generic OpenID Connect provider settings
type OIDCConfig struct {
	IssuerURL string
	ClientID  string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	ServiceName       string
	LogLevel          string
	LogFormat         string // json or text
	MetricsEnabled    bool
	MetricsEndpoint   string
	MetricsInterval   time.Duration
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
	// OTLPHeaders is a comma-separated key=value list sent with every export.
	OTLPHeaders string
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	environment := getEnv("ENVIRONMENT", "development")

	cfg := &Config{
		Environment: environment,
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			Provider:  strings.ToLower(getEnv("AUTH_PROVIDER", ProviderFirebase)),
			EagerInit: getEnvAsBool("AUTH_EAGER_INIT", getEnvAsBool("FIREBASE_EAGER_INIT", true)),
			Firebase: FirebaseConfig{
				Credentials:       getEnv("FIREBASE_CREDENTIALS", getEnv("FIREBASE_CREDENTIALS_PATH", "")),
				ProjectID:         getEnv("FIREBASE_PROJECT_ID", ""),
				StrictCredentials: getEnvAsBool("FIREBASE_STRICT_CREDENTIALS", isProductionEnv(environment)),
				ClockSkew:         getEnvAsDuration("FIREBASE_CLOCK_SKEW", 0),
				KeysCacheTTL:      getEnvAsDuration("FIREBASE_KEYS_CACHE_TTL", time.Hour),
				HTTPTimeout:       getEnvAsDuration("FIREBASE_HTTP_TIMEOUT", 10*time.Second),
				KeysURL:           getEnv("FIREBASE_KEYS_URL", ""),
			},
			OIDC: OIDCConfig{
				IssuerURL: getEnv("OIDC_ISSUER_URL", ""),
				ClientID:  getEnv("OIDC_CLIENT_ID", ""),
			},
		},
		Observability: ObservabilityConfig{
			ServiceName:       getEnv("SERVICE_NAME", "authn-gateway"),
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			LogFormat:         getEnv("LOG_FORMAT", "json"),
			MetricsEnabled:    getEnvAsBool("METRICS_ENABLED", false),
			MetricsEndpoint:   getEnv("METRICS_ENDPOINT", "localhost:4318"),
			MetricsInterval:   getEnvAsDuration("METRICS_INTERVAL", 30*time.Second),
			TracingEnabled:    getEnvAsBool("TRACING_ENABLED", false),
			TracingEndpoint:   getEnv("TRACING_ENDPOINT", "localhost:4318"),
			TracingSampleRate: getEnvAsFloat("TRACING_SAMPLE_RATE", 0.1),
			OTLPHeaders:       getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Auth.Provider {
	case ProviderFirebase:
	case ProviderOIDC:
		if c.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("OIDC_ISSUER_URL is required when AUTH_PROVIDER=oidc")
		}
		if c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID is required when AUTH_PROVIDER=oidc")
		}
	default:
		return fmt.Errorf("unsupported auth provider %q (want %s or %s)",
			c.Auth.Provider, ProviderFirebase, ProviderOIDC)
	}

	if c.Auth.Firebase.ClockSkew < 0 {
		return fmt.Errorf("FIREBASE_CLOCK_SKEW must not be negative")
	}

	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE are required when TLS is enabled")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return isProductionEnv(c.Environment)
}

// RevocationEnabled reports whether a database is configured for token revocation
func (c *Config) RevocationEnabled() bool {
	return c.Database != nil
}

func isProductionEnv(env string) bool {
	return env == "production" || env == "prod"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err != nil {
			return "host=<from DATABASE_URL>"
		}
		port := u.Port()
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither is set.
func loadDatabaseConfig() *DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return &pool
	}
	if getEnv("DB_HOST", "") == "" {
		return nil
	}

	pool.Host = getEnv("DB_HOST", "")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return &pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
