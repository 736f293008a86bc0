package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/upb/authentication-api/models"
	"github.com/upb/authentication-api/repositories"
	"github.com/upb/authentication-api/repositories/memory"
	"github.com/upb/authentication-api/tokens"
)

const (
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 24 * time.Hour
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// tokenFixture wires the token service to in-memory stores and a controllable clock
type tokenFixture struct {
	clock   *fakeClock
	signer  *tokens.Signer
	issuer  *tokens.Issuer
	tokens  *memory.TokenRepository
	users   *memory.UserRepository
	service *TokenService
	gate    *Gate
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()

	clock := newFakeClock()
	signer, err := tokens.NewSigner(testSecret, tokens.WithClock(clock.Now))
	require.NoError(t, err)
	issuer, err := tokens.NewIssuer(signer, testAccessTTL, testRefreshTTL)
	require.NoError(t, err)

	logger := zap.NewNop()
	tokenRepo := memory.NewTokenRepository(logger)
	userRepo := memory.NewUserRepository(logger)

	service := NewTokenService(signer, issuer, tokenRepo, userRepo, repositories.NewNoopTransactionManager(), logger)
	service.now = clock.Now

	return &tokenFixture{
		clock:   clock,
		signer:  signer,
		issuer:  issuer,
		tokens:  tokenRepo,
		users:   userRepo,
		service: service,
		gate:    NewGate(signer, tokenRepo, logger),
	}
}

// createUser stores an account and returns an enabled view of it for issuing
func (f *tokenFixture) createUser(t *testing.T, username string, enabled bool) *models.User {
	t.Helper()

	user := models.NewUser(username, username+"@example.com", "hash", models.RoleUser)
	user.Enabled = enabled
	require.NoError(t, f.users.Create(context.Background(), user))

	issuing := *user
	issuing.Enabled = true
	return &issuing
}

func (f *tokenFixture) issue(t *testing.T, user *models.User) *models.TokenPair {
	t.Helper()
	pair, err := f.service.IssuePair(context.Background(), user)
	require.NoError(t, err)
	return pair
}

func (f *tokenFixture) stored(t *testing.T, refreshToken string) *models.TokenPair {
	t.Helper()
	pair, err := f.tokens.FindByRefreshToken(context.Background(), refreshToken)
	require.NoError(t, err)
	return pair
}

// scriptedIssuer returns the queued pairs in order, then delegates
type scriptedIssuer struct {
	mu     sync.Mutex
	queue  []*tokens.Pair
	next   TokenIssuer
	issued int
}

func (s *scriptedIssuer) IssuePair(subject tokens.Subject, now time.Time) (*tokens.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	if len(s.queue) > 0 {
		p := s.queue[0]
		s.queue = s.queue[1:]
		return p, nil
	}
	if s.next == nil {
		return nil, errors.New("no pair scripted")
	}
	return s.next.IssuePair(subject, now)
}

var errStoreDown = errors.New("connection refused")

// brokenTokenRepository fails every call like an unreachable backend
type brokenTokenRepository struct{}

func (brokenTokenRepository) Save(context.Context, *models.TokenPair) error {
	return repositories.StoreError("save token pair", errStoreDown)
}

func (brokenTokenRepository) FindByAccessToken(context.Context, string) (*models.TokenPair, error) {
	return nil, repositories.StoreError("find token pair", errStoreDown)
}

func (brokenTokenRepository) FindByRefreshToken(context.Context, string) (*models.TokenPair, error) {
	return nil, repositories.StoreError("find token pair", errStoreDown)
}

func (brokenTokenRepository) TryRevoke(context.Context, int64) error {
	return repositories.StoreError("revoke token pair", errStoreDown)
}

func (brokenTokenRepository) IsAccessTokenBlacklisted(context.Context, string) (bool, error) {
	return true, repositories.StoreError("find token pair", errStoreDown)
}

func (brokenTokenRepository) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, repositories.StoreError("purge token pairs", errStoreDown)
}

func newTestHasher() PasswordHasher {
	return NewBcryptHasher(bcrypt.MinCost)
}
