package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/authentication-api/services"
	"github.com/upb/authentication-api/tokens"
	"github.com/upb/authentication-api/utils"
)

// Authorizer decides whether a bearer token grants access
type Authorizer interface {
	Authorize(ctx context.Context, token string) services.Decision
}

// AuthMiddleware guards every route except the configured public paths
type AuthMiddleware struct {
	authorizer  Authorizer
	publicPaths []string
	logger      *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. A public path ending in "*"
// matches every path with that prefix; any other entry must match exactly.
func NewAuthMiddleware(authorizer Authorizer, publicPaths []string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authorizer:  authorizer,
		publicPaths: publicPaths,
		logger:      logger,
	}
}

// RequireAuth rejects requests without a stored, unrevoked access token and
// attaches the Principal to the request context otherwise
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || m.IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token, ok := extractBearerToken(r)
		if !ok {
			m.logger.Warn("request denied",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.String("outcome", services.OutcomeMissing.String()))
			_ = utils.WriteUnauthorized(w, "")
			return
		}

		decision := m.authorizer.Authorize(ctx, token)
		if !decision.Allowed() {
			if decision.Outcome == services.OutcomeStoreUnavailable {
				m.logger.Error("token store unavailable",
					zap.String("request_id", requestID),
					zap.Error(decision.Err))
				_ = utils.WriteServiceUnavailable(w, "")
				return
			}
			m.logger.Warn("request denied",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.String("outcome", decision.Outcome.String()),
				zap.Error(decision.Err))
			_ = utils.WriteUnauthorized(w, "")
			return
		}

		subjectID, err := uuid.Parse(decision.Claims.Subject)
		if err != nil {
			m.logger.Warn("request denied",
				zap.String("request_id", requestID),
				zap.String("reason", "subject is not a uuid"))
			_ = utils.WriteUnauthorized(w, "")
			return
		}

		principal := &Principal{
			SubjectID: subjectID,
			Roles:     decision.Claims.Roles,
			TokenID:   decision.Claims.ID,
			PairID:    decision.PairID,
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", decision.Claims.Subject),
			zap.Int64("pair_id", decision.PairID))

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
	})
}

// RequireRole rejects authenticated principals lacking role. Use after RequireAuth.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipalFromContext(r.Context())
			if principal == nil {
				_ = utils.WriteUnauthorized(w, "")
				return
			}
			if !principal.HasRole(role) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.String("required_role", role),
					zap.Strings("roles", principal.Roles))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsPublic reports whether path bypasses authentication
func (m *AuthMiddleware) IsPublic(path string) bool {
	for _, p := range m.publicPaths {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	token := tokens.Clean(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
