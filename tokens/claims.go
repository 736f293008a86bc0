package tokens

import (
	"github.com/golang-jwt/jwt/v5"
)

// Use distinguishes access tokens from refresh tokens
type Use string

const (
	UseAccess  Use = "access"
	UseRefresh Use = "refresh"
)

// Claims represents the payload carried by every token this service signs.
// Roles is only populated on access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Roles    []string `json:"roles,omitempty"`
	TokenUse Use      `json:"token_use"`
}

// SubjectID returns the subject identifier (sub claim)
func (c *Claims) SubjectID() string {
	return c.Subject
}

// IsAccess reports whether the claims belong to an access token
func (c *Claims) IsAccess() bool {
	return c.TokenUse == UseAccess
}

// IsRefresh reports whether the claims belong to a refresh token
func (c *Claims) IsRefresh() bool {
	return c.TokenUse == UseRefresh
}
