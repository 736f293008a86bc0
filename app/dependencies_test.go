package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/authentication-api/config"
	"github.com/upb/authentication-api/repositories/postgres"
	"github.com/upb/authentication-api/repositories/redisstore"
	"github.com/upb/authentication-api/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Host: "127.0.0.1", Port: 8080, RequestTimeout: time.Minute},
		Storage:     config.StorageConfig{TokenStore: config.StoreMemory, UserStore: config.StoreMemory},
		JWT: config.JWTConfig{
			Secret:          "0123456789abcdef0123456789abcdef",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
		},
		Gate:          config.GateConfig{PublicPaths: config.DefaultPublicPaths},
		Observability: config.ObservabilityConfig{LogLevel: "debug", LogFormat: "console"},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("memory stores", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.RepoFactory)
		assert.NotNil(t, deps.Users)
		assert.NotNil(t, deps.Tokens)
		assert.NotNil(t, deps.Signer)
		assert.NotNil(t, deps.Issuer)
		assert.NotNil(t, deps.TokenService)
		assert.NotNil(t, deps.AuthService)
		assert.NotNil(t, deps.Gate)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.AuthHandler)
		assert.NotNil(t, deps.HealthHandler)

		pair, err := deps.AuthService.Register(ctx, services.RegisterInput{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "secret1",
		})
		require.NoError(t, err)

		decision := deps.Gate.Authorize(ctx, pair.AccessToken)
		assert.True(t, decision.Allowed())

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("redis token store", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		cfg := testConfig(t)
		cfg.Storage.TokenStore = config.StoreRedis
		cfg.Redis = config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"}

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t), WithRedisClient(client))
		require.NoError(t, err)

		assert.IsType(t, &redisstore.TokenRepository{}, deps.Tokens)

		rec := httptest.NewRecorder()
		deps.HealthHandler.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"redis":"healthy"`)

		mr.Close()
		rec = httptest.NewRecorder()
		deps.HealthHandler.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		// the injected client stays open
		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
		t.Cleanup(func() { _ = client.Close() })
		mr.Close()

		cfg := testConfig(t)
		cfg.Storage.TokenStore = config.StoreRedis
		cfg.Redis.Addr = addr

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t), WithRedisClient(client))
		assert.Nil(t, deps)
		assert.ErrorContains(t, err, "failed to initialize repositories")
	})

	t.Run("postgres stores over an existing pool", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })

		logger := zaptest.NewLogger(t)
		factory := postgres.NewRepositoryFactoryFromDB(postgres.NewDBFromConn(conn, logger), logger)

		cfg := testConfig(t)
		cfg.Storage = config.StorageConfig{TokenStore: config.StorePostgres, UserStore: config.StorePostgres}
		cfg.Database = config.DatabaseConfig{Driver: config.DriverPQ, Host: "localhost", AutoMigrate: false}

		deps, err := NewDependencies(context.Background(), cfg, logger, WithRepositoryFactory(factory))
		require.NoError(t, err)

		assert.NotNil(t, deps.DB)
		assert.IsType(t, &postgres.TokenRepository{}, deps.Tokens)
		assert.IsType(t, &postgres.UserRepository{}, deps.Users)

		// the injected pool is not closed
		require.NoError(t, deps.Close(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty secret", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.JWT.Secret = ""

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Nil(t, deps)
		assert.ErrorContains(t, err, "failed to initialize token issuer")
	})
}

func TestDependencies_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = deps.AuthService.Register(ctx, services.RegisterInput{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "secret1",
	})
	require.NoError(t, err)

	// zero retention keeps every pair
	purged, err := deps.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)
}
