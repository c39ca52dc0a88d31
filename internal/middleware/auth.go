package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

const ownerKey contextKey = "owner-id"

// APIKeyAuth resolves the X-API-Key header (or a Bearer token) to an owner
// id using the configured key map. The pipeline behind this trusts the
// resolved owner id completely; this is the whole auth boundary.
func APIKeyAuth(keys map[string]string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if apiKey == "" {
				unauthorized(w, "missing api key")
				return
			}

			ownerID, ok := keys[apiKey]
			if !ok {
				logger.Warn("rejected unknown api key", zap.String("path", r.URL.Path))
				unauthorized(w, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), ownerKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext gets the owner id set by APIKeyAuth.
func OwnerFromContext(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerKey).(string)
	return ownerID, ok && ownerID != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
