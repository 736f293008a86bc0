package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned when the token cannot be decoded
	ErrMalformed = errors.New("token malformed")

	// ErrSignatureInvalid is returned when the signature does not match or the algorithm is not HS256
	ErrSignatureInvalid = errors.New("token signature invalid")

	// ErrExpired is returned when the exp claim is not after the current time
	ErrExpired = errors.New("token expired")

	// ErrEmptySecret is returned by NewSigner when no secret is configured
	ErrEmptySecret = errors.New("signing secret must not be empty")
)

// Signer produces and verifies HMAC-SHA256 signed tokens with a single shared secret.
// A Signer is safe for concurrent use.
type Signer struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// SignerOption configures a Signer
type SignerOption func(*Signer)

// WithClock overrides the time source used for expiry checks
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner creates a new Signer for the given secret
func NewSigner(secret []byte, opts ...SignerOption) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	s := &Signer{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		// a token is still valid at the instant of its exp
		jwt.WithLeeway(time.Nanosecond),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)

	return s, nil
}

// Sign serializes the claims and signs them with HS256
func (s *Signer) Sign(claims *Claims) (string, error) {
	if claims == nil {
		return "", errors.New("claims are required")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a token and returns its claims.
// The signature is checked before the expiry, so a tampered expired token
// reports ErrSignatureInvalid.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrMalformed
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
