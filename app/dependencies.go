package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/authentication-api/config"
	"github.com/upb/authentication-api/handlers"
	"github.com/upb/authentication-api/middleware"
	"github.com/upb/authentication-api/repositories"
	"github.com/upb/authentication-api/repositories/memory"
	"github.com/upb/authentication-api/repositories/postgres"
	"github.com/upb/authentication-api/repositories/redisstore"
	"github.com/upb/authentication-api/services"
	"github.com/upb/authentication-api/tokens"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const redisPingTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Redis  redis.UniversalClient
	Logger *zap.Logger

	// Repository Factory, nil unless a postgres store is configured
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users   repositories.UserRepository
	Tokens  repositories.TokenRepository
	UserTx  repositories.TransactionManager
	TokenTx repositories.TransactionManager

	// Token primitives
	Signer *tokens.Signer
	Issuer *tokens.Issuer

	// Services
	TokenService *services.TokenService
	AuthService  *services.AuthService
	Gate         *services.Gate

	// HTTP
	AuthMiddleware *middleware.AuthMiddleware
	AuthHandler    *handlers.AuthHandler
	HealthHandler  *handlers.HealthHandler

	ownsRedis   bool
	ownsFactory bool
}

// Option customises NewDependencies, mostly for tests
type Option func(*Dependencies)

// WithRedisClient makes the redis token store use client instead of dialing REDIS_ADDR.
// The caller keeps ownership of the client.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(d *Dependencies) {
		d.Redis = client
	}
}

// WithRepositoryFactory supplies an already opened postgres factory.
// The caller keeps ownership of the pool.
func WithRepositoryFactory(factory *postgres.RepositoryFactory) Option {
	return func(d *Dependencies) {
		d.RepoFactory = factory
	}
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(deps)
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRepositories(ctx, cfg); err != nil {
		deps.closeStores()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := deps.initTokens(cfg); err != nil {
		deps.closeStores()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	deps.initServices(cfg)
	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("token_store", cfg.Storage.TokenStore),
		zap.String("user_store", cfg.Storage.UserStore))
	return deps, nil
}

// initDatabase opens the PostgreSQL pool when a postgres store is configured
// and applies migrations when DB_AUTO_MIGRATE is on
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.UsesPostgres() {
		return nil
	}

	if d.RepoFactory == nil {
		factory, err := postgres.NewRepositoryFactory(cfg.Database, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.RepoFactory = factory
		d.ownsFactory = true
	}
	d.DB = d.RepoFactory.GetDB()

	if cfg.Database.AutoMigrate {
		if err := d.RepoFactory.Migrate(ctx); err != nil {
			d.closeStores()
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	return nil
}

// initRepositories selects the user and token backends
func (d *Dependencies) initRepositories(ctx context.Context, cfg *config.Config) error {
	var pgRepos *repositories.Repositories
	if d.RepoFactory != nil {
		pgRepos = d.RepoFactory.NewRepositories()
	}

	switch cfg.Storage.UserStore {
	case config.StorePostgres:
		d.Users = pgRepos.Users
		d.UserTx = d.RepoFactory.GetTransactionManager()
	case config.StoreMemory:
		d.Users = memory.NewUserRepository(d.Logger)
		d.UserTx = repositories.NewNoopTransactionManager()
	default:
		return fmt.Errorf("unsupported user store %q", cfg.Storage.UserStore)
	}

	switch cfg.Storage.TokenStore {
	case config.StorePostgres:
		d.Tokens = pgRepos.Tokens
		d.TokenTx = d.RepoFactory.GetTransactionManager()
	case config.StoreRedis:
		store, err := d.initRedis(ctx, cfg)
		if err != nil {
			return err
		}
		d.Tokens = store
		d.TokenTx = repositories.NewNoopTransactionManager()
	case config.StoreMemory:
		d.Tokens = memory.NewTokenRepository(d.Logger)
		d.TokenTx = repositories.NewNoopTransactionManager()
	default:
		return fmt.Errorf("unsupported token store %q", cfg.Storage.TokenStore)
	}

	d.Logger.Info("repositories initialized")
	return nil
}

// initRedis connects the redis token store
func (d *Dependencies) initRedis(ctx context.Context, cfg *config.Config) (*redisstore.TokenRepository, error) {
	if d.Redis == nil {
		d.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.ownsRedis = true
	}

	store := redisstore.NewTokenRepository(d.Redis, redisstore.Options{
		Prefix:    cfg.Redis.KeyPrefix,
		Retention: cfg.Storage.Retention,
	}, d.Logger)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	d.Logger.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
	return store, nil
}

// initTokens builds the signer and issuer from the JWT section
func (d *Dependencies) initTokens(cfg *config.Config) error {
	signer, err := tokens.NewSigner([]byte(cfg.JWT.Secret))
	if err != nil {
		return err
	}
	issuer, err := tokens.NewIssuer(signer, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return err
	}

	d.Signer = signer
	d.Issuer = issuer
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.TokenService = services.NewTokenService(d.Signer, d.Issuer, d.Tokens, d.Users, d.TokenTx, d.Logger)
	d.AuthService = services.NewAuthService(d.Users, d.TokenService, services.NewBcryptHasher(bcrypt.DefaultCost), d.UserTx, d.Logger,
		services.WithAdminUsernames(cfg.Accounts.AdminUsernames...))
	d.Gate = services.NewGate(d.Signer, d.Tokens, d.Logger)
}

func (d *Dependencies) initHTTP(cfg *config.Config) {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Gate, cfg.Gate.PublicPaths, d.Logger)
	d.AuthHandler = handlers.NewAuthHandler(d.AuthService, d.TokenService, d.Logger)

	if d.DB != nil {
		d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.Logger)
	} else {
		d.HealthHandler = handlers.NewHealthHandler(nil, d.Logger)
	}
	if store, ok := d.Tokens.(*redisstore.TokenRepository); ok {
		d.HealthHandler.AddCheck("redis", store.Ping)
	}
}

// PurgeExpired removes pairs past the configured retention window
func (d *Dependencies) PurgeExpired(ctx context.Context) (int64, error) {
	return d.TokenService.PurgeExpired(ctx, d.Config.Storage.Retention)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	err := d.closeStores()

	// Sync logger
	_ = d.Logger.Sync()

	return err
}

// closeStores releases the connections this container opened itself
func (d *Dependencies) closeStores() error {
	var errs []error

	if d.ownsRedis && d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		} else {
			d.Logger.Info("redis connection closed")
		}
		d.ownsRedis = false
	}

	if d.ownsFactory && d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.ownsFactory = false
	}

	return errors.Join(errs...)
}
