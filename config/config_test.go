package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var configKeys = []string{
	"ENVIRONMENT", "PORT", "SERVER_PORT", "SERVER_HOST", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT",
	"SERVER_REQUEST_TIMEOUT", "SERVER_SHUTDOWN_TIMEOUT", "TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"DB_DRIVER", "DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_AUTO_MIGRATE",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_KEY_PREFIX",
	"TOKEN_STORE", "USER_STORE", "TOKEN_RETENTION",
	"JWT_SECRET", "JWT_ACCESS_TOKEN_TTL_MS", "JWT_REFRESH_TOKEN_TTL_MS",
	"ADMIN_USERNAMES", "PUBLIC_PATHS", "CORS_ALLOWED_ORIGINS", "LOG_LEVEL", "LOG_FORMAT",
}

// setEnv blanks every variable New reads, then applies vars
func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr string
		check   func(*testing.T, *Config)
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{"JWT_SECRET": "dev-secret"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.False(t, cfg.Server.TLS.Enabled)
				assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
				assert.Equal(t, DriverPQ, cfg.Database.Driver)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.True(t, cfg.Database.AutoMigrate)
				assert.Equal(t, StorePostgres, cfg.Storage.TokenStore)
				assert.Equal(t, StorePostgres, cfg.Storage.UserStore)
				assert.Zero(t, cfg.Storage.Retention)
				assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
				assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTokenTTL)
				assert.Equal(t, DefaultPublicPaths, cfg.Gate.PublicPaths)
				assert.Empty(t, cfg.Accounts.AdminUsernames)
				assert.Equal(t, "tp:", cfg.Redis.KeyPrefix)
				assert.Equal(t, "info", cfg.Observability.LogLevel)
			},
		},
		{
			name: "token lifetimes in milliseconds",
			envVars: map[string]string{
				"JWT_SECRET":               "dev-secret",
				"JWT_ACCESS_TOKEN_TTL_MS":  "60000",
				"JWT_REFRESH_TOKEN_TTL_MS": "3600000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, time.Minute, cfg.JWT.AccessTokenTTL)
				assert.Equal(t, time.Hour, cfg.JWT.RefreshTokenTTL)
			},
		},
		{
			name: "sub-second access lifetime",
			envVars: map[string]string{
				"JWT_SECRET":              "dev-secret",
				"JWT_ACCESS_TOKEN_TTL_MS": "500",
			},
			wantErr: "JWT_ACCESS_TOKEN_TTL_MS must be at least 1000",
		},
		{
			name: "one second lifetimes",
			envVars: map[string]string{
				"JWT_SECRET":               "dev-secret",
				"JWT_ACCESS_TOKEN_TTL_MS":  "1000",
				"JWT_REFRESH_TOKEN_TTL_MS": "1000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, time.Second, cfg.JWT.AccessTokenTTL)
				assert.Equal(t, time.Second, cfg.JWT.RefreshTokenTTL)
			},
		},
		{
			name: "admin usernames",
			envVars: map[string]string{
				"JWT_SECRET":      "dev-secret",
				"ADMIN_USERNAMES": "root, ops,,",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"root", "ops"}, cfg.Accounts.AdminUsernames)
			},
		},
		{
			name: "memory users with postgres tokens",
			envVars: map[string]string{
				"JWT_SECRET": "dev-secret",
				"USER_STORE": "memory",
			},
			wantErr: "USER_STORE=memory cannot be combined with TOKEN_STORE=postgres",
		},
		{
			name: "redis token store with memory users",
			envVars: map[string]string{
				"JWT_SECRET":       "dev-secret",
				"TOKEN_STORE":      "REDIS",
				"USER_STORE":       "memory",
				"REDIS_ADDR":       "localhost:6379",
				"REDIS_DB":         "2",
				"REDIS_KEY_PREFIX": "auth:",
				"TOKEN_RETENTION":  "720h",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, StoreRedis, cfg.Storage.TokenStore)
				assert.Equal(t, StoreMemory, cfg.Storage.UserStore)
				assert.False(t, cfg.UsesPostgres())
				assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
				assert.Equal(t, 2, cfg.Redis.DB)
				assert.Equal(t, "auth:", cfg.Redis.KeyPrefix)
				assert.Equal(t, 720*time.Hour, cfg.Storage.Retention)
			},
		},
		{
			name: "database url and pgx driver",
			envVars: map[string]string{
				"JWT_SECRET":   "dev-secret",
				"DATABASE_URL": "postgres://auth:pw@db.internal:5433/authentication?sslmode=require",
				"DB_DRIVER":    "pgx",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DriverPGX, cfg.Database.Driver)
				assert.Equal(t, "postgres://auth:pw@db.internal:5433/authentication?sslmode=require", cfg.Database.DSN())
				assert.Equal(t, "driver=pgx host=db.internal port=5433 database=authentication", cfg.Database.LogString())
			},
		},
		{
			name: "public paths and cors origins lists",
			envVars: map[string]string{
				"JWT_SECRET":           "dev-secret",
				"PUBLIC_PATHS":         "/healthz, /api/auth/login,,/docs/*",
				"CORS_ALLOWED_ORIGINS": "https://app.example.com",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"/healthz", "/api/auth/login", "/docs/*"}, cfg.Gate.PublicPaths)
				assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS.AllowedOrigins)
			},
		},
		{
			name: "PORT takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"JWT_SECRET":  "dev-secret",
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name:    "missing secret",
			envVars: map[string]string{},
			wantErr: "JWT_SECRET is required",
		},
		{
			name:    "short secret in production",
			envVars: map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": "short"},
			wantErr: "at least 32 bytes",
		},
		{
			name:    "non-numeric access lifetime",
			envVars: map[string]string{"JWT_SECRET": "dev-secret", "JWT_ACCESS_TOKEN_TTL_MS": "15m"},
			wantErr: "JWT_ACCESS_TOKEN_TTL_MS",
		},
		{
			name:    "zero refresh lifetime",
			envVars: map[string]string{"JWT_SECRET": "dev-secret", "JWT_REFRESH_TOKEN_TTL_MS": "0"},
			wantErr: "JWT_REFRESH_TOKEN_TTL_MS",
		},
		{
			name:    "unknown token store",
			envVars: map[string]string{"JWT_SECRET": "dev-secret", "TOKEN_STORE": "mongo"},
			wantErr: "unknown TOKEN_STORE",
		},
		{
			name:    "redis is not a user store",
			envVars: map[string]string{"JWT_SECRET": "dev-secret", "USER_STORE": "redis"},
			wantErr: "unknown USER_STORE",
		},
		{
			name:    "redis store without address",
			envVars: map[string]string{"JWT_SECRET": "dev-secret", "TOKEN_STORE": "redis", "USER_STORE": "memory"},
			wantErr: "REDIS_ADDR is required",
		},
		{
			name:    "unknown database driver",
			envVars: map[string]string{"JWT_SECRET": "dev-secret", "DB_DRIVER": "mysql"},
			wantErr: "unknown DB_DRIVER",
		},
		{
			name:    "production with strong secret",
			envVars: map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": testSecret},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.envVars)

			cfg, err := New(context.Background())

			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestNew_EnvFile(t *testing.T) {
	setEnv(t, map[string]string{"LOG_LEVEL": "warn"})
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("SERVER_PORT")

	path := filepath.Join(t.TempDir(), "auth.env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nSERVER_PORT=7000\nLOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("SERVER_PORT")
	})

	cfg, err := New(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, 7000, cfg.Server.Port)
	// variables already present in the environment win over the file
	assert.Equal(t, "warn", cfg.Observability.LogLevel)

	_, err = New(context.Background(), filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "failed to load env file")
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Database:    DatabaseConfig{Driver: DriverPQ, Host: "localhost", User: "auth", Database: "authentication"},
		Storage:     StorageConfig{TokenStore: StorePostgres, UserStore: StorePostgres},
		JWT:         JWTConfig{Secret: testSecret, AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "database url only", mutate: func(c *Config) {
			c.Database = DatabaseConfig{Driver: DriverPGX, ConnectionString: "postgres://x"}
		}},
		{name: "missing database host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: true},
		{name: "missing database user", mutate: func(c *Config) { c.Database.User = "" }, wantErr: true},
		{name: "missing database name", mutate: func(c *Config) { c.Database.Database = "" }, wantErr: true},
		{name: "memory stores skip database checks", mutate: func(c *Config) {
			c.Storage = StorageConfig{TokenStore: StoreMemory, UserStore: StoreMemory}
			c.Database = DatabaseConfig{}
		}},
		{name: "sub-second refresh lifetime", mutate: func(c *Config) { c.JWT.RefreshTokenTTL = 999 * time.Millisecond }, wantErr: true},
		{name: "one second lifetimes", mutate: func(c *Config) {
			c.JWT.AccessTokenTTL = time.Second
			c.JWT.RefreshTokenTTL = time.Second
		}},
		{name: "memory users with postgres tokens", mutate: func(c *Config) { c.Storage.UserStore = StoreMemory }, wantErr: true},
		{name: "postgres users with memory tokens", mutate: func(c *Config) { c.Storage.TokenStore = StoreMemory }},
		{name: "negative retention", mutate: func(c *Config) { c.Storage.Retention = -time.Hour }, wantErr: true},
		{name: "missing log level", mutate: func(c *Config) { c.Observability.LogLevel = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Environment(t *testing.T) {
	tests := []struct {
		env      string
		wantProd bool
	}{
		{"production", true},
		{"prod", true},
		{"development", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{Environment: tt.env}
			assert.Equal(t, tt.wantProd, cfg.IsProduction())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "auth", Password: "pw", Database: "authentication", SSLMode: "disable"}

	assert.Equal(t, "host=localhost port=5432 user=auth password=pw dbname=authentication sslmode=disable", cfg.DSN())
	assert.NotContains(t, cfg.LogString(), "pw")
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.Address())
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "x")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_MILLIS", "1500")
	t.Setenv("TEST_BAD_MILLIS", "1.5s")

	assert.Equal(t, 42, getEnvAsInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvAsInt("TEST_BAD_INT", 1))
	assert.Equal(t, 7, getEnvAsInt("TEST_UNSET_INT", 7))
	assert.True(t, getEnvAsBool("TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, getEnvAsDuration("TEST_DURATION", time.Second))
	assert.Equal(t, 1500*time.Millisecond, getEnvAsMillis("TEST_MILLIS", time.Second))
	assert.Equal(t, time.Duration(-1), getEnvAsMillis("TEST_BAD_MILLIS", time.Second))
	assert.Equal(t, time.Second, getEnvAsMillis("TEST_UNSET_MILLIS", time.Second))
	assert.Equal(t, []string{"a"}, getEnvAsList("TEST_UNSET_LIST", []string{"a"}))
}
