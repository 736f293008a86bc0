package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents an authorization label granted to a user
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents a registered account that tokens are issued for
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Roles        []Role    `json:"roles" db:"roles"`
	Enabled      bool      `json:"enabled" db:"enabled"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// NewUser creates a new enabled User. Users without explicit roles get RoleUser.
func NewUser(username, email, passwordHash string, roles ...Role) *User {
	if len(roles) == 0 {
		roles = []Role{RoleUser}
	}
	return &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		Roles:        roles,
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
	}
}

// SubjectID returns the identifier used as the token subject
func (u *User) SubjectID() string {
	return u.ID.String()
}

// RoleLabels returns the user's roles as plain strings
func (u *User) RoleLabels() []string {
	labels := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		labels = append(labels, string(r))
	}
	return labels
}

// IsEnabled reports whether the user may receive tokens
func (u *User) IsEnabled() bool {
	return u.Enabled
}

// HasRole returns true if the user holds the given role
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRoles converts a comma separated role list into roles, skipping blanks
func ParseRoles(s string) []Role {
	var roles []Role
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			roles = append(roles, Role(part))
		}
	}
	return roles
}

// JoinRoles is the inverse of ParseRoles
func JoinRoles(roles []Role) string {
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ",")
}
