package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/authentication-api/models"
	"github.com/upb/authentication-api/repositories"
	"github.com/upb/authentication-api/tokens"
)

// maxIssueAttempts bounds how often a colliding pair is reissued before giving up
const maxIssueAttempts = 3

// TokenVerifier checks a token's signature and expiry
type TokenVerifier interface {
	Verify(token string) (*tokens.Claims, error)
}

// TokenIssuer mints signed access/refresh pairs
type TokenIssuer interface {
	IssuePair(subject tokens.Subject, now time.Time) (*tokens.Pair, error)
}

// SubjectResolver loads the subject a stored pair belongs to
type SubjectResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenService owns the lifecycle of stored token pairs: issuance, single-use
// refresh rotation, logout and retention.
type TokenService struct {
	verifier TokenVerifier
	issuer   TokenIssuer
	tokens   repositories.TokenRepository
	subjects SubjectResolver
	txMgr    repositories.TransactionManager
	logger   *zap.Logger
	now      func() time.Time
}

// NewTokenService creates a new TokenService
func NewTokenService(
	verifier TokenVerifier,
	issuer TokenIssuer,
	tokenRepo repositories.TokenRepository,
	subjects SubjectResolver,
	txMgr repositories.TransactionManager,
	logger *zap.Logger,
) *TokenService {
	return &TokenService{
		verifier: verifier,
		issuer:   issuer,
		tokens:   tokenRepo,
		subjects: subjects,
		txMgr:    txMgr,
		logger:   logger,
		now:      time.Now,
	}
}

// IssuePair issues and stores a fresh pair for an enabled subject
func (s *TokenService) IssuePair(ctx context.Context, subject tokens.Subject) (*models.TokenPair, error) {
	if subject == nil || !subject.IsEnabled() {
		return nil, ErrSubjectDisabled
	}

	subjectID, err := uuid.Parse(subject.SubjectID())
	if err != nil {
		return nil, WrapInternal("subject id is not a uuid", err)
	}

	pair, err := s.issueAndSave(ctx, subject, subjectID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("token pair issued",
		zap.String("subject_id", subjectID.String()),
		zap.Int64("pair_id", pair.ID),
	)
	return pair, nil
}

// Refresh exchanges a stored, unrevoked pair for a new one. The presented pair
// is revoked first and only the caller whose revoke succeeds gets new tokens,
// so concurrent refreshes of one pair yield exactly one winner.
func (s *TokenService) Refresh(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.verifier.Verify(refreshToken)
	if err != nil {
		return nil, s.deny("refresh", verificationError(err), 0)
	}
	if !claims.IsRefresh() {
		return nil, s.deny("refresh", ErrTokenWrongUse, 0)
	}

	stored, err := s.tokens.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, s.deny("refresh", ErrTokenNotFound, 0)
		}
		return nil, ErrStoreUnavailable.Wrap(err)
	}

	if subtle.ConstantTimeCompare([]byte(stored.AccessToken), []byte(accessToken)) != 1 {
		return nil, s.deny("refresh", ErrTokenMismatch, stored.ID)
	}
	if claims.Subject != stored.SubjectID.String() {
		return nil, s.deny("refresh", ErrTokenMismatch, stored.ID)
	}
	if stored.IsRevoked() {
		return nil, s.deny("refresh", ErrTokenRevoked, stored.ID)
	}

	user, err := s.subjects.GetByID(ctx, stored.SubjectID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, s.deny("refresh", ErrSubjectDisabled, stored.ID)
		}
		return nil, ErrStoreUnavailable.Wrap(err)
	}
	if !user.IsEnabled() {
		return nil, s.deny("refresh", ErrSubjectDisabled, stored.ID)
	}

	next, err := WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.TokenPair, error) {
		if err := s.tokens.TryRevoke(ctx, stored.ID); err != nil {
			switch {
			case errors.Is(err, repositories.ErrAlreadyRevoked):
				return nil, ErrTokenRevoked.Wrap(err)
			case repositories.IsNotFound(err):
				return nil, ErrTokenNotFound.Wrap(err)
			default:
				return nil, ErrStoreUnavailable.Wrap(err)
			}
		}
		return s.issueAndSave(ctx, user, stored.SubjectID)
	})
	if err != nil {
		err = asDomainError(err)
		if IsUnauthorizedError(err) {
			return nil, s.deny("refresh", err, stored.ID)
		}
		s.logger.Error("token rotation failed", zap.Int64("pair_id", stored.ID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("token pair rotated",
		zap.String("subject_id", stored.SubjectID.String()),
		zap.Int64("revoked_pair_id", stored.ID),
		zap.Int64("pair_id", next.ID),
	)
	return next, nil
}

// RevokePair blacklists a pair. Revoking an already revoked pair succeeds.
func (s *TokenService) RevokePair(ctx context.Context, pairID int64) error {
	err := s.tokens.TryRevoke(ctx, pairID)
	switch {
	case err == nil:
		s.logger.Info("token pair revoked", zap.Int64("pair_id", pairID))
		return nil
	case errors.Is(err, repositories.ErrAlreadyRevoked):
		return nil
	case repositories.IsNotFound(err):
		return ErrTokenNotFound.Wrap(err)
	default:
		return ErrStoreUnavailable.Wrap(err)
	}
}

// IsAccessTokenBlacklisted reports whether an access token may no longer be used
func (s *TokenService) IsAccessTokenBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	blacklisted, err := s.tokens.IsAccessTokenBlacklisted(ctx, accessToken)
	if err != nil {
		return true, ErrStoreUnavailable.Wrap(err)
	}
	return blacklisted, nil
}

// PurgeExpired deletes pairs whose refresh token expired more than retention ago.
// A non-positive retention keeps every pair.
func (s *TokenService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-retention)
	n, err := s.tokens.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, ErrStoreUnavailable.Wrap(err)
	}

	s.logger.Info("expired token pairs purged", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	return n, nil
}

func (s *TokenService) issueAndSave(ctx context.Context, subject tokens.Subject, subjectID uuid.UUID) (*models.TokenPair, error) {
	var lastErr error
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		issued, err := s.issuer.IssuePair(subject, s.now())
		if err != nil {
			return nil, WrapInternal("failed to issue tokens", err)
		}

		pair := models.NewTokenPair(subjectID, issued.AccessToken, issued.RefreshToken, issued.RefreshExpiresAt)
		err = s.tokens.Save(ctx, pair)
		if err == nil {
			return pair, nil
		}
		if !errors.Is(err, repositories.ErrDuplicateToken) {
			return nil, ErrStoreUnavailable.Wrap(err)
		}

		lastErr = err
		s.logger.Warn("issued token collided with a stored token",
			zap.String("subject_id", subjectID.String()),
			zap.Int("attempt", attempt),
		)
	}
	return nil, ErrDuplicateToken.Wrap(lastErr)
}

// deny logs the rejection reason and returns err. Callers only see the type.
func (s *TokenService) deny(op string, err error, pairID int64) error {
	fields := []zap.Field{zap.String("op", op), zap.String("reason", reason(err))}
	if pairID != 0 {
		fields = append(fields, zap.Int64("pair_id", pairID))
	}
	s.logger.Warn("token rejected", fields...)
	return err
}

// verificationError maps signer failures onto domain errors
func verificationError(err error) *DomainError {
	switch {
	case errors.Is(err, tokens.ErrExpired):
		return ErrTokenExpired.Wrap(err)
	case errors.Is(err, tokens.ErrSignatureInvalid):
		return ErrTokenSignatureInvalid.Wrap(err)
	default:
		return ErrTokenMalformed.Wrap(err)
	}
}

// asDomainError classifies errors that escaped a transaction manager
func asDomainError(err error) error {
	if GetErrorType(err) != "" {
		return err
	}
	if errors.Is(err, repositories.ErrStoreUnavailable) {
		return ErrStoreUnavailable.Wrap(err)
	}
	return WrapInternal("transaction failed", err)
}

func reason(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
