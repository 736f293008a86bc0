// Package memory provides process-local repository implementations for
// development and tests. Data does not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/upb/authentication-api/models"
	"github.com/upb/authentication-api/repositories"
	"go.uber.org/zap"
)

// TokenRepository implements repositories.TokenRepository with maps guarded by a mutex
type TokenRepository struct {
	mu        sync.RWMutex
	seq       int64
	byID      map[int64]*models.TokenPair
	byAccess  map[string]int64
	byRefresh map[string]int64
	logger    *zap.Logger
}

// NewTokenRepository creates a new in-memory token repository
func NewTokenRepository(logger *zap.Logger) *TokenRepository {
	return &TokenRepository{
		byID:      make(map[int64]*models.TokenPair),
		byAccess:  make(map[string]int64),
		byRefresh: make(map[string]int64),
		logger:    logger,
	}
}

// Save stores a new token pair
func (r *TokenRepository) Save(ctx context.Context, pair *models.TokenPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAccess[pair.AccessToken]; ok {
		return repositories.ErrDuplicateToken
	}
	if _, ok := r.byRefresh[pair.RefreshToken]; ok {
		return repositories.ErrDuplicateToken
	}

	r.seq++
	stored := pair.Clone()
	stored.ID = r.seq
	stored.Blacklisted = false
	r.byID[stored.ID] = stored
	r.byAccess[stored.AccessToken] = stored.ID
	r.byRefresh[stored.RefreshToken] = stored.ID
	pair.ID = stored.ID

	r.logger.Debug("token pair saved", zap.Int64("id", stored.ID))
	return nil
}

// FindByAccessToken retrieves a pair by its access token
func (r *TokenRepository) FindByAccessToken(ctx context.Context, accessToken string) (*models.TokenPair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byAccess[accessToken]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

// FindByRefreshToken retrieves a pair by its refresh token
func (r *TokenRepository) FindByRefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byRefresh[refreshToken]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

// TryRevoke blacklists the pair if it is not already blacklisted
func (r *TokenRepository) TryRevoke(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pair, ok := r.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if pair.IsRevoked() {
		return repositories.ErrAlreadyRevoked
	}
	pair.Blacklisted = true

	r.logger.Debug("token pair revoked", zap.Int64("id", id))
	return nil
}

// IsAccessTokenBlacklisted reports whether the access token may no longer be used
func (r *TokenRepository) IsAccessTokenBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	return repositories.AccessTokenBlacklisted(ctx, r, accessToken)
}

// PurgeExpired removes pairs that expired before the cutoff
func (r *TokenRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for id, pair := range r.byID {
		if pair.ExpiresAt.Before(before) {
			delete(r.byAccess, pair.AccessToken)
			delete(r.byRefresh, pair.RefreshToken)
			delete(r.byID, id)
			purged++
		}
	}
	return purged, nil
}
