package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/authentication-api/models"
)

// TransactionManager manages units of work that must commit or roll back together
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// TokenRepository is the durable record of issued token pairs.
// All methods are safe for concurrent use.
type TokenRepository interface {
	// Save persists a new pair and assigns pair.ID.
	// Returns ErrDuplicateToken if either token is already stored.
	Save(ctx context.Context, pair *models.TokenPair) error

	// FindByAccessToken returns ErrNotFound when no pair holds the token
	FindByAccessToken(ctx context.Context, accessToken string) (*models.TokenPair, error)

	// FindByRefreshToken returns ErrNotFound when no pair holds the token
	FindByRefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error)

	// TryRevoke atomically flips blacklisted from false to true.
	// Returns nil only for the single call that performed the transition,
	// ErrAlreadyRevoked if the pair was already blacklisted and ErrNotFound
	// if no pair has the id.
	TryRevoke(ctx context.Context, id int64) error

	// IsAccessTokenBlacklisted reports true for revoked pairs and for tokens
	// that were never stored
	IsAccessTokenBlacklisted(ctx context.Context, accessToken string) (bool, error)

	// PurgeExpired deletes pairs whose refresh token expired before the cutoff
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// UserRepository handles user account data operations
type UserRepository interface {
	// Create creates a new user. Returns ErrDuplicateUser when the username or email is taken.
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByEmail retrieves a user by email (case-insensitive)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ExistsByUsername reports whether the username is taken
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// ExistsByEmail reports whether the email is taken
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// List retrieves users ordered by creation time with pagination
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// Repositories aggregates all repositories for easy dependency injection
type Repositories struct {
	Users  UserRepository
	Tokens TokenRepository
}

// AccessTokenFinder is the lookup IsAccessTokenBlacklisted is built on
type AccessTokenFinder interface {
	FindByAccessToken(ctx context.Context, accessToken string) (*models.TokenPair, error)
}

// AccessTokenBlacklisted implements IsAccessTokenBlacklisted on top of a lookup.
// A token that was never stored counts as blacklisted.
func AccessTokenBlacklisted(ctx context.Context, finder AccessTokenFinder, accessToken string) (bool, error) {
	pair, err := finder.FindByAccessToken(ctx, accessToken)
	if err != nil {
		if IsNotFound(err) {
			return true, nil
		}
		return true, err
	}
	return pair.IsRevoked(), nil
}
