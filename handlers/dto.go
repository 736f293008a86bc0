package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/upb/authentication-api/models"
)

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Username string `json:"username" validate:"required,notblank,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=6,max=100"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required,notblank"`
	Password        string `json:"password" validate:"required"`
}

// TokenRefreshRequest is the body of POST /api/auth/token
type TokenRefreshRequest struct {
	AccessToken  string `json:"accessToken" validate:"required,notblank"`
	RefreshToken string `json:"refreshToken" validate:"required,notblank"`
}

// AuthenticationResponse carries a freshly issued token pair
type AuthenticationResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// UserResponse is the public view of an account
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
}

func newAuthenticationResponse(pair *models.TokenPair) AuthenticationResponse {
	return AuthenticationResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Roles:     u.RoleLabels(),
		Enabled:   u.Enabled,
		CreatedAt: u.CreatedAt,
	}
}
