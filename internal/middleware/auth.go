// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/unisew/reconciler/internal/auth"
)

// claimsKey is the context key for validated token claims.
type claimsKey struct{}

// GetClaims returns the validated claims from context, or nil when the
// request was not authenticated.
func GetClaims(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(claimsKey{}).(*auth.Claims); ok {
		return c
	}
	return nil
}

// Auth validates the Bearer token on every request and stores the claims
// and user ID in the context. Requests without a valid token are rejected
// with 401 before reaching any handler.
func Auth(jwtService *auth.JWTService, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				if metrics != nil {
					metrics.IncAuthFailure("missing_token")
				}
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := jwtService.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				reason := "invalid_token"
				if errors.Is(err, auth.ErrExpiredToken) {
					reason = "expired_token"
				}
				if metrics != nil {
					metrics.IncAuthFailure(reason)
				}
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			ctx = SetUserID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized emits the standard error envelope without depending on
// the api package, which sits above this one in the import graph.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"` + message + `"}}`))
}
