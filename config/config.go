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

// database/sql driver names accepted in DB_DRIVER
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// Store backends accepted in TOKEN_STORE and USER_STORE
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// minProductionSecretBytes is the shortest HMAC secret accepted in production
const minProductionSecretBytes = 32

// minTokenTTL matches the one second resolution of the exp claim
const minTokenTTL = time.Second

// DefaultPublicPaths are reachable without a bearer token
var DefaultPublicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/api/health",
	"/api/auth/register",
	"/api/auth/login",
	"/api/auth/token",
}

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Storage       StorageConfig
	JWT           JWTConfig
	Accounts      AccountsConfig
	Gate          GateConfig
	CORS          CORSConfig
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
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	Driver           string
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	AutoMigrate      bool
}

// RedisConfig holds the Redis connection used by the redis token store
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// StorageConfig selects the repository backends
type StorageConfig struct {
	TokenStore string
	UserStore  string
	// Retention is how long pairs are kept after their refresh token expires.
	// Zero keeps them forever.
	Retention time.Duration
}

// JWTConfig holds the signing secret and token lifetimes
type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// AccountsConfig holds account bootstrap settings
type AccountsConfig struct {
	// AdminUsernames are granted ADMIN in addition to USER when they register
	AdminUsernames []string
}

// GateConfig holds request gate settings
type GateConfig struct {
	PublicPaths []string
}

// CORSConfig holds allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables.
// Extra env files are loaded before the default .env; already set variables win.
func New(ctx context.Context, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
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
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "tp:"),
		},
		Storage: StorageConfig{
			TokenStore: strings.ToLower(getEnv("TOKEN_STORE", StorePostgres)),
			UserStore:  strings.ToLower(getEnv("USER_STORE", StorePostgres)),
			Retention:  getEnvAsDuration("TOKEN_RETENTION", 0),
		},
		JWT: JWTConfig{
			Secret:          os.Getenv("JWT_SECRET"),
			AccessTokenTTL:  getEnvAsMillis("JWT_ACCESS_TOKEN_TTL_MS", 15*time.Minute),
			RefreshTokenTTL: getEnvAsMillis("JWT_REFRESH_TOKEN_TTL_MS", 7*24*time.Hour),
		},
		Accounts: AccountsConfig{
			AdminUsernames: getEnvAsList("ADMIN_USERNAMES", nil),
		},
		Gate: GateConfig{
			PublicPaths: getEnvAsList("PUBLIC_PATHS", DefaultPublicPaths),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.JWT.Secret) < minProductionSecretBytes {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecretBytes)
	}
	if c.JWT.AccessTokenTTL < minTokenTTL {
		return fmt.Errorf("JWT_ACCESS_TOKEN_TTL_MS must be at least %d", minTokenTTL.Milliseconds())
	}
	if c.JWT.RefreshTokenTTL < minTokenTTL {
		return fmt.Errorf("JWT_REFRESH_TOKEN_TTL_MS must be at least %d", minTokenTTL.Milliseconds())
	}

	switch c.Storage.TokenStore {
	case StorePostgres, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown TOKEN_STORE %q", c.Storage.TokenStore)
	}
	switch c.Storage.UserStore {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown USER_STORE %q", c.Storage.UserStore)
	}
	// Register saves the pair after the user inside the user store's
	// transaction; a memory user would survive a failed postgres save
	if c.Storage.UserStore == StoreMemory && c.Storage.TokenStore == StorePostgres {
		return fmt.Errorf("USER_STORE=memory cannot be combined with TOKEN_STORE=postgres")
	}
	if c.Storage.Retention < 0 {
		return fmt.Errorf("TOKEN_RETENTION must not be negative")
	}

	if c.UsesPostgres() {
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
		switch c.Database.Driver {
		case DriverPQ, DriverPGX:
		default:
			return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
		}
	}

	if c.Storage.TokenStore == StoreRedis && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when TOKEN_STORE=redis")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// UsesPostgres reports whether any repository is backed by PostgreSQL
func (c *Config) UsesPostgres() bool {
	return c.Storage.TokenStore == StorePostgres || c.Storage.UserStore == StorePostgres
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
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
			return fmt.Sprintf("driver=%s host=%s port=%s database=%s",
				c.Driver, u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("driver=%s host=%s port=%d database=%s", c.Driver, c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverPQ)),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		cfg.ConnectionString = dbURL
		return cfg
	}

	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "auth")
	cfg.Password = getEnv("DB_PASSWORD", "")
	cfg.Database = getEnv("DB_NAME", "authentication")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
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

// getEnvAsMillis reads an integer count of milliseconds. Unparseable values
// yield -1 so Validate rejects them instead of silently using the default.
func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return -1
	}
	return time.Duration(value) * time.Millisecond
}

// getEnvAsList splits a comma separated variable, dropping empty entries
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
	return out
}
