package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

var storageDrivers = []string{StorageMemory, StorageFile, StorageRedis, StoragePostgres}

// Config represents the complete client configuration
type Config struct {
	Server        ServerConfig
	API           APIConfig
	Cognito       CognitoConfig
	Session       SessionConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds the local portal / login callback server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// APIConfig holds the LMS REST backend configuration
type APIConfig struct {
	BaseURL    string
	HealthPath string
	Timeout    time.Duration
}

// CognitoConfig holds the hosted UI / user pool configuration
type CognitoConfig struct {
	Region       string
	UserPoolID   string
	ClientID     string
	ClientSecret string
	Domain       string // Hosted UI domain (e.g., https://ebsalem.auth.us-east-1.amazoncognito.com)
	RedirectURI  string // OAuth2 callback URL served by the portal
	FrontEndURL  string // Post-logout landing page (loaded from FRONT_END_URL)
	Scopes       []string
	// VerifySignatures switches ID token checks from decode-only to JWKS verification
	VerifySignatures bool
}

// SessionConfig tunes the session lifecycle
type SessionConfig struct {
	// RefreshThreshold is how close to expiry a profile may be before CheckAuth refreshes instead of committing it
	RefreshThreshold time.Duration
}

// StorageConfig selects the local-scope storage backend
type StorageConfig struct {
	Driver    string
	FilePath  string // empty means the per-user default
	Namespace string
	Redis     RedisConfig
	Database  DatabaseConfig
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
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

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "127.0.0.1"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
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
		API: APIConfig{
			BaseURL:    getEnv("API_BASE_URL", "http://localhost:8080/api"),
			HealthPath: getEnv("API_HEALTH_PATH", "/health"),
			Timeout:    getEnvAsDuration("API_TIMEOUT", 15*time.Second),
		},
		Cognito: CognitoConfig{
			Region:           getEnv("COGNITO_REGION", "us-east-1"),
			UserPoolID:       getEnv("COGNITO_USER_POOL_ID", ""),
			ClientID:         getEnv("COGNITO_CLIENT_ID", ""),
			ClientSecret:     getEnv("COGNITO_CLIENT_SECRET", ""),
			Domain:           getEnv("COGNITO_DOMAIN", ""),
			RedirectURI:      getEnv("COGNITO_REDIRECT_URI", "http://localhost:8765/auth/callback"),
			FrontEndURL:      getEnv("FRONT_END_URL", "http://localhost:8765/"),
			Scopes:           getEnvAsList("COGNITO_SCOPES", []string{"openid", "email", "profile"}),
			VerifySignatures: getEnvAsBool("COGNITO_VERIFY_SIGNATURES", false),
		},
		Session: SessionConfig{
			RefreshThreshold: getEnvAsDuration("SESSION_REFRESH_THRESHOLD", 60*time.Second),
		},
		Storage: StorageConfig{
			Driver:    getEnv("STORAGE_DRIVER", StorageFile),
			FilePath:  getEnv("STORAGE_FILE_PATH", ""),
			Namespace: getEnv("STORAGE_NAMESPACE", "default"),
			Redis: RedisConfig{
				Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
				Password:  getEnv("REDIS_PASSWORD", ""),
				DB:        getEnvAsInt("REDIS_DB", 0),
				KeyPrefix: getEnv("REDIS_KEY_PREFIX", "ebsalem:storage:"),
			},
			Database: loadDatabaseConfig(),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "console"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base URL is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api base URL must be absolute: %q", c.API.BaseURL)
	}

	if !slices.Contains(storageDrivers, c.Storage.Driver) {
		return fmt.Errorf("storage driver must be one of %s, got %q", strings.Join(storageDrivers, ", "), c.Storage.Driver)
	}
	switch c.Storage.Driver {
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis storage driver")
		}
	case StoragePostgres:
		db := c.Storage.Database
		if db.ConnectionString == "" && db.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if db.ConnectionString == "" {
			if db.User == "" {
				return fmt.Errorf("database user is required")
			}
			if db.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	}

	// Cognito validation (required in production)
	if c.IsProduction() {
		if c.Cognito.Domain == "" {
			return fmt.Errorf("cognito domain is required in production")
		}
		if c.Cognito.ClientID == "" {
			return fmt.Errorf("cognito client ID is required in production")
		}
	}
	if c.Cognito.VerifySignatures && c.Cognito.UserPoolID == "" {
		return fmt.Errorf("cognito user pool ID is required when signature verification is enabled")
	}

	if c.Session.RefreshThreshold <= 0 {
		return fmt.Errorf("session refresh threshold must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// CognitoConfigured reports whether the hosted UI can be used
func (c *CognitoConfig) CognitoConfigured() bool {
	return c.Domain != "" && c.ClientID != ""
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

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 5),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	pool.Host = getEnv("DB_HOST", "localhost")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "ebsalem")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "ebsalem_portal")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8765)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8765
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

// getEnvAsList splits a comma or space separated value
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	fields := strings.FieldsFunc(valueStr, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return defaultValue
	}
	return fields
}
