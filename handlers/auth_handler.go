package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/authentication-api/middleware"
	"github.com/upb/authentication-api/models"
	"github.com/upb/authentication-api/services"
	"github.com/upb/authentication-api/tokens"
	"github.com/upb/authentication-api/utils"
)

// defaultUserPageSize applies when GET /api/auth/users has no limit
const defaultUserPageSize = 50

// Accounts registers users, checks passwords and looks accounts up
type Accounts interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.TokenPair, error)
	Login(ctx context.Context, usernameOrEmail, password string) (*models.TokenPair, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// TokenRotator rotates and revokes stored token pairs
type TokenRotator interface {
	Refresh(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, error)
	RevokePair(ctx context.Context, pairID int64) error
}

// AuthHandler serves the /api/auth endpoints
type AuthHandler struct {
	accounts Accounts
	tokens   TokenRotator
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(accounts Accounts, rotator TokenRotator, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		tokens:   rotator,
		logger:   logger,
	}
}

// HandleRegister handles POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		HandleServiceError(w, err, h.requestLogger(r))
		return
	}

	_ = utils.WriteJSON(w, http.StatusCreated, newAuthenticationResponse(pair))
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.accounts.Login(r.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.requestLogger(r))
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, newAuthenticationResponse(pair))
}

// HandleToken handles POST /api/auth/token, the refresh rotation endpoint
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRefreshRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	req.AccessToken = tokens.Clean(req.AccessToken)
	req.RefreshToken = tokens.Clean(req.RefreshToken)
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	pair, err := h.tokens.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		HandleServiceError(w, err, h.requestLogger(r))
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, newAuthenticationResponse(pair))
}

// HandleLogout handles POST /api/auth/logout by revoking the pair that
// authorized the request
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	if err := h.tokens.RevokePair(r.Context(), principal.PairID); err != nil {
		HandleServiceError(w, err, h.requestLogger(r))
		return
	}

	utils.WriteNoContent(w)
}

// HandleMe handles GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	user, err := h.accounts.GetUser(r.Context(), principal.SubjectID)
	if err != nil {
		HandleServiceError(w, err, h.requestLogger(r))
		return
	}

	_ = utils.WriteOK(w, newUserResponse(user))
}

// HandleListUsers handles GET /api/auth/users?limit=&offset=
func (h *AuthHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultUserPageSize)
	if err != nil {
		_ = utils.WriteBadRequest(w, "limit must be an integer", nil)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, "offset must be an integer", nil)
		return
	}

	users, err := h.accounts.ListUsers(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.requestLogger(r))
		return
	}

	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, newUserResponse(u))
	}
	_ = utils.WriteOK(w, out)
}

// decode reads and validates the body, writing a 400 on failure
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		HandleValidationError(w, err, h.logger)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		HandleValidationError(w, err, h.logger)
		return false
	}
	return true
}

func (h *AuthHandler) requestLogger(r *http.Request) *zap.Logger {
	return h.logger.With(zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
