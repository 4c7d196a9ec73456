// Package middleware provides the HTTP middleware chain.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/parcellink/backend/internal/auth"
	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/httputil"
	"github.com/parcellink/backend/internal/logging"
)

type claimsKeyType struct{}

var claimsKey claimsKeyType

// AuthMiddleware validates bearer tokens and attaches the caller identity
// to the request context. A missing header is unauthorized; a present but
// invalid token is forbidden.
type AuthMiddleware struct {
	issuer *auth.Issuer
	logger *logging.Logger
}

// NewAuthMiddleware creates an authentication middleware.
func NewAuthMiddleware(issuer *auth.Issuer, logger *logging.Logger) *AuthMiddleware {
	if logger == nil {
		logger = logging.NewDefault("middleware")
	}
	return &AuthMiddleware{issuer: issuer, logger: logger}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized(""))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.respondError(w, r, errors.Unauthorized("invalid authorization header format"))
			return
		}

		claims, err := m.issuer.Validate(parts[1])
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("token validation failed")
			m.respondError(w, r, errors.InvalidToken(err))
			return
		}

		ctx := logging.WithUser(r.Context(), claims.UserID, claims.Role)
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
	}).Warn("authentication failed")
	httputil.WriteServiceError(w, r, err)
}

// GetClaims returns the validated token claims from the context, or nil.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// GetUserID extracts the authenticated user id from the context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole extracts the authenticated role from the context.
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}

// RequireRole gates a route to callers holding one of the given roles.
// Runs after AuthMiddleware; an unauthenticated request is unauthorized,
// an authenticated one with the wrong role is forbidden.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				httputil.Unauthorized(w, "")
				return
			}
			if !allowed[claims.Role] {
				httputil.WriteServiceError(w, r, errors.Forbidden(""))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUserClass gates a route to user-class tokens, keeping dashboard
// tokens off the end-user surface.
func RequireUserClass(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims == nil {
			httputil.Unauthorized(w, "")
			return
		}
		if claims.Class != auth.ClassUser {
			httputil.WriteServiceError(w, r, errors.Forbidden("user token required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
