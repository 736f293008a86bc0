package tokens

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Subject is anything tokens can be issued for
type Subject interface {
	SubjectID() string
	RoleLabels() []string
	IsEnabled() bool
}

// Pair is a freshly issued access/refresh token pair
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// MinTTL is the shortest lifetime an Issuer accepts. exp is carried in whole
// seconds, so anything shorter could be expired the moment it is signed.
const MinTTL = time.Second

// Issuer builds and signs access and refresh tokens with fixed lifetimes
type Issuer struct {
	signer     *Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
	newID      func() string
}

// NewIssuer creates a new Issuer. Both lifetimes must be at least MinTTL.
func NewIssuer(signer *Signer, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if accessTTL < MinTTL {
		return nil, fmt.Errorf("access token lifetime must be at least %s, got %s", MinTTL, accessTTL)
	}
	if refreshTTL < MinTTL {
		return nil, fmt.Errorf("refresh token lifetime must be at least %s, got %s", MinTTL, refreshTTL)
	}

	return &Issuer{
		signer:     signer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		newID:      func() string { return uuid.NewString() },
	}, nil
}

// IssueAccessToken signs an access token carrying the subject's roles
func (i *Issuer) IssueAccessToken(subject Subject, now time.Time) (string, time.Time, error) {
	roles := append([]string{}, subject.RoleLabels()...)
	return i.issue(subject, UseAccess, roles, now, i.accessTTL)
}

// IssueRefreshToken signs a refresh token. Refresh tokens never carry roles.
func (i *Issuer) IssueRefreshToken(subject Subject, now time.Time) (string, time.Time, error) {
	return i.issue(subject, UseRefresh, nil, now, i.refreshTTL)
}

// IssuePair issues an access token and a refresh token with the same issue time
func (i *Issuer) IssuePair(subject Subject, now time.Time) (*Pair, error) {
	access, accessExp, err := i.IssueAccessToken(subject, now)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := i.IssueRefreshToken(subject, now)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *Issuer) issue(subject Subject, use Use, roles []string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if subject == nil || subject.SubjectID() == "" {
		return "", time.Time{}, fmt.Errorf("subject identifier is required")
	}

	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(expiryFor(now, ttl))

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.SubjectID(),
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
			ID:        i.newID(),
		},
		Roles:    roles,
		TokenUse: use,
	}

	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.Time, nil
}

// expiryFor rounds now+ttl up to the next whole second so the signed exp
// never falls before the configured lifetime ends
func expiryFor(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if whole := exp.Truncate(time.Second); whole.Before(exp) {
		return whole.Add(time.Second)
	}
	return exp
}
