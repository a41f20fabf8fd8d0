package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vaihtoaktivaattori/portal/internal/auth"
	"github.com/vaihtoaktivaattori/portal/internal/config"
	"github.com/vaihtoaktivaattori/portal/pkg/httpext"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
)

// RequireAuth accepts requests with a valid bearer token. Browsers cannot
// set headers on websocket upgrades, so an access_token query parameter is
// accepted there.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := auth.ExtractToken(r)
			if tokenString == "" && r.Header.Get("Upgrade") == "websocket" {
				tokenString = r.URL.Query().Get("access_token")
			}
			if tokenString == "" {
				httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ValidateToken(tokenString, config.GetJWTSecret())
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected bearer token")
				httpext.JsonError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r)
			if claims == nil {
				log.Error().
					Str("path", r.URL.Path).
					Msg("Scope validation failed - missing token claims in context")
				httpext.JsonError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if !claims.HasScope(scope) {
				log.Warn().
					Str("required_scope", scope).
					Strs("token_scopes", claims.Scopes).
					Str("path", r.URL.Path).
					Msg("Access denied - token missing required scope")
				httpext.JsonError(w, "Missing required scope", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims retrieves the validated token claims from the request context
func GetClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// UserID returns the subject of the validated token, or "".
func UserID(r *http.Request) string {
	if claims := GetClaims(r); claims != nil {
		return claims.Subject
	}
	return ""
}
