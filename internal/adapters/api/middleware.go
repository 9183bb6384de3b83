package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
	"github.com/poyrazK/dnsSentinel/internal/core/ports"
)

type contextKey string

const (
	// CtxKeyName is the name of the authenticated API key, used as the
	// actor identity on runs, approvals and change log entries.
	CtxKeyName contextKey = "key_name"
	CtxRole    contextKey = "role"
)

// AuthMiddleware authenticates requests by SHA-256 hash of the bearer token.
func AuthMiddleware(repo ports.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized: missing or invalid authorization header", http.StatusUnauthorized)
				return
			}

			key := strings.TrimPrefix(authHeader, "Bearer ")
			hash := sha256.Sum256([]byte(key))
			keyHash := hex.EncodeToString(hash[:])

			apiKey, err := repo.GetAPIKeyByHash(r.Context(), keyHash)
			if err != nil {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if apiKey == nil || !apiKey.Active {
				http.Error(w, "Unauthorized: invalid or inactive API key", http.StatusUnauthorized)
				return
			}

			if apiKey.ExpiresAt != nil && apiKey.ExpiresAt.Before(time.Now()) {
				http.Error(w, "Unauthorized: API key expired", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CtxKeyName, apiKey.Name)
			ctx = context.WithValue(ctx, CtxRole, apiKey.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a handler behind one of the given roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := r.Context().Value(CtxRole).(domain.Role)
			if !ok {
				http.Error(w, "Forbidden: role not found in context", http.StatusForbidden)
				return
			}

			allowed := false
			for _, want := range roles {
				if want == role {
					allowed = true
					break
				}
			}

			if !allowed {
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func actorName(ctx context.Context) string {
	if name, ok := ctx.Value(CtxKeyName).(string); ok && name != "" {
		return name
	}
	return "unknown"
}
