package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/upb/authentication-api/models"
	"github.com/upb/authentication-api/repositories"
	"go.uber.org/zap"
)

const tokenPairColumns = `id, subject_id, access_token, refresh_token, blacklisted, created_at, expires_at`

// TokenRepository implements the repositories.TokenRepository interface
type TokenRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTokenRepository creates a new token pair repository
func NewTokenRepository(db *DB, logger *zap.Logger) repositories.TokenRepository {
	return &TokenRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts a new token pair. A unique violation on either token yields
// no row instead of an error so the surrounding transaction stays usable.
func (r *TokenRepository) Save(ctx context.Context, pair *models.TokenPair) error {
	query := `
		INSERT INTO token_pairs (subject_id, access_token, refresh_token, blacklisted, created_at, expires_at)
		VALUES ($1, $2, $3, FALSE, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING id
	`

	executor := GetExecutor(ctx, r.db)
	var id int64
	err := executor.QueryRowContext(ctx, query,
		pair.SubjectID,
		pair.AccessToken,
		pair.RefreshToken,
		pair.CreatedAt,
		pair.ExpiresAt,
	).Scan(&id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repositories.ErrDuplicateToken
		}
		return repositories.StoreError("save token pair", err)
	}

	pair.ID = id
	pair.Blacklisted = false
	r.logger.Debug("token pair saved", zap.Int64("id", id), zap.String("subject_id", pair.SubjectID.String()))
	return nil
}

// FindByAccessToken retrieves a pair by its access token
func (r *TokenRepository) FindByAccessToken(ctx context.Context, accessToken string) (*models.TokenPair, error) {
	query := `SELECT ` + tokenPairColumns + ` FROM token_pairs WHERE access_token = $1`
	return r.findOne(ctx, query, accessToken)
}

// FindByRefreshToken retrieves a pair by its refresh token
func (r *TokenRepository) FindByRefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	query := `SELECT ` + tokenPairColumns + ` FROM token_pairs WHERE refresh_token = $1`
	return r.findOne(ctx, query, refreshToken)
}

// TryRevoke flips blacklisted with a conditional update. Under concurrent
// callers the row lock serializes the updates and only one sees a live row.
func (r *TokenRepository) TryRevoke(ctx context.Context, id int64) error {
	query := `UPDATE token_pairs SET blacklisted = TRUE WHERE id = $1 AND blacklisted = FALSE`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return repositories.StoreError("revoke token pair", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return repositories.StoreError("revoke token pair", err)
	}
	if rows == 1 {
		r.logger.Debug("token pair revoked", zap.Int64("id", id))
		return nil
	}

	var exists bool
	err = executor.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM token_pairs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return repositories.StoreError("check token pair", err)
	}
	if !exists {
		return repositories.ErrNotFound
	}
	return repositories.ErrAlreadyRevoked
}

// IsAccessTokenBlacklisted reports whether the access token may no longer be used
func (r *TokenRepository) IsAccessTokenBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	return repositories.AccessTokenBlacklisted(ctx, r, accessToken)
}

// PurgeExpired deletes pairs whose refresh token expired before the cutoff
func (r *TokenRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM token_pairs WHERE expires_at < $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, before)
	if err != nil {
		return 0, repositories.StoreError("purge token pairs", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, repositories.StoreError("purge token pairs", err)
	}

	r.logger.Info("expired token pairs purged", zap.Int64("count", rows), zap.Time("before", before))
	return rows, nil
}

func (r *TokenRepository) findOne(ctx context.Context, query string, arg string) (*models.TokenPair, error) {
	executor := GetExecutor(ctx, r.db)
	pair := &models.TokenPair{}

	err := executor.QueryRowContext(ctx, query, arg).Scan(
		&pair.ID,
		&pair.SubjectID,
		&pair.AccessToken,
		&pair.RefreshToken,
		&pair.Blacklisted,
		&pair.CreatedAt,
		&pair.ExpiresAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, repositories.StoreError("find token pair", err)
	}

	return pair, nil
}
