package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/upb/authentication-api/models"
	"github.com/upb/authentication-api/repositories"
)

// PasswordHasher hashes and checks user passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher implements PasswordHasher with bcrypt
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher. A zero cost means bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of password
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare returns nil when password matches hash
func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// RegisterInput carries the fields of a new account
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// AuthService handles account registration, password login and user lookups
type AuthService struct {
	users  repositories.UserRepository
	tokens *TokenService
	hasher PasswordHasher
	txMgr  repositories.TransactionManager
	logger *zap.Logger
	admins map[string]struct{}

	dummyOnce sync.Once
	dummyHash string
}

// AuthServiceOption configures an AuthService
type AuthServiceOption func(*AuthService)

// WithAdminUsernames grants ADMIN to accounts registered under one of usernames
func WithAdminUsernames(usernames ...string) AuthServiceOption {
	return func(s *AuthService) {
		for _, name := range usernames {
			if name = strings.TrimSpace(name); name != "" {
				s.admins[name] = struct{}{}
			}
		}
	}
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users repositories.UserRepository,
	tokenService *TokenService,
	hasher PasswordHasher,
	txMgr repositories.TransactionManager,
	logger *zap.Logger,
	opts ...AuthServiceOption,
) *AuthService {
	s := &AuthService{
		users:  users,
		tokens: tokenService,
		hasher: hasher,
		txMgr:  txMgr,
		logger: logger,
		admins: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an enabled USER account and issues its first token pair.
// Configured admin usernames also get ADMIN.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.TokenPair, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}

	taken, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, ErrStoreUnavailable.Wrap(err)
	}
	if !taken {
		taken, err = s.users.ExistsByEmail(ctx, email)
		if err != nil {
			return nil, ErrStoreUnavailable.Wrap(err)
		}
	}
	if taken {
		return nil, ErrUserAlreadyExists
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, WrapInternal("failed to hash password", err)
	}
	roles := []models.Role{models.RoleUser}
	if _, ok := s.admins[username]; ok {
		roles = append(roles, models.RoleAdmin)
	}
	user := models.NewUser(username, email, hash, roles...)

	pair, err := WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.TokenPair, error) {
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicateUser) {
				return nil, ErrUserAlreadyExists.Wrap(err)
			}
			return nil, ErrStoreUnavailable.Wrap(err)
		}
		return s.tokens.IssuePair(ctx, user)
	})
	if err != nil {
		return nil, asDomainError(err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.String("roles", models.JoinRoles(user.Roles)),
	)
	return pair, nil
}

// Login authenticates by username, falling back to email, and issues a pair
func (s *AuthService) Login(ctx context.Context, usernameOrEmail, password string) (*models.TokenPair, error) {
	identifier := strings.TrimSpace(usernameOrEmail)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.findForLogin(ctx, identifier)
	if err != nil {
		if !repositories.IsNotFound(err) {
			return nil, ErrStoreUnavailable.Wrap(err)
		}
		// keep the response time of unknown users close to a failed compare
		_ = s.hasher.Compare(s.fallbackHash(), password)
		s.logger.Warn("login failed", zap.String("reason", "unknown user"))
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.logger.Warn("login failed",
			zap.String("reason", "password mismatch"),
			zap.String("user_id", user.ID.String()),
		)
		return nil, ErrInvalidCredentials
	}
	if !user.IsEnabled() {
		s.logger.Warn("login failed",
			zap.String("reason", "account disabled"),
			zap.String("user_id", user.ID.String()),
		)
		return nil, ErrSubjectDisabled
	}

	return s.tokens.IssuePair(ctx, user)
}

// GetUser retrieves a user by ID
func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, ErrStoreUnavailable.Wrap(err)
	}
	return user, nil
}

// ListUsers returns users ordered by creation time
func (s *AuthService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit < 0 || offset < 0 {
		return nil, ErrInvalidInput.WithDetail("reason", "limit and offset must not be negative")
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, ErrStoreUnavailable.Wrap(err)
	}
	return users, nil
}

func (s *AuthService) findForLogin(ctx context.Context, identifier string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, identifier)
	if err == nil || !repositories.IsNotFound(err) {
		return user, err
	}
	return s.users.GetByEmail(ctx, strings.ToLower(identifier))
}

func (s *AuthService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Error("failed to prepare fallback password hash", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
