package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/prudhvinik1/fieldsync/internal/services"
)

type contextKey string

const (
	tenantIDKey contextKey = "tenant_id"
	userIDKey   contextKey = "user_id"
	deviceIDKey contextKey = "device_id"
)

// TenantID extracts the authenticated tenant from the request context.
func TenantID(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantIDKey).(string)
	return tenantID, ok
}

// UserID extracts the authenticated user from the request context.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}

// DeviceID extracts the calling device from the request context. It is the
// clientId used for conflict tie-breaking.
func DeviceID(ctx context.Context) (uuid.UUID, bool) {
	deviceID, ok := ctx.Value(deviceIDKey).(uuid.UUID)
	return deviceID, ok
}

// AuthMiddleware validates the bearer token and injects tenant, user and
// device identity into the request context.
func AuthMiddleware(auth *services.AuthService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				logger.Warn("authentication failed", "error", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), tenantIDKey, claims.TenantID)
			ctx = context.WithValue(ctx, userIDKey, claims.UserID)
			ctx = context.WithValue(ctx, deviceIDKey, claims.DeviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
