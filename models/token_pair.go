package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenPair is the server-side record of an issued access/refresh token pair.
// Blacklisted only ever moves from false to true.
type TokenPair struct {
	ID           int64     `json:"id" db:"id"`
	SubjectID    uuid.UUID `json:"subject_id" db:"subject_id"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	Blacklisted  bool      `json:"blacklisted" db:"blacklisted"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
}

// NewTokenPair creates an unsaved, non-revoked pair. ID is assigned by the store.
func NewTokenPair(subjectID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) *TokenPair {
	return &TokenPair{
		SubjectID:    subjectID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Blacklisted:  false,
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    expiresAt.UTC(),
	}
}

// IsRevoked reports whether the pair has been blacklisted
func (p *TokenPair) IsRevoked() bool {
	return p.Blacklisted
}

// Clone returns a copy that does not share memory with p
func (p *TokenPair) Clone() *TokenPair {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
