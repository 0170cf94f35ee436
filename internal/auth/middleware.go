package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-boost/internal/apperror"
	"ms-boost/internal/logger"
	"ms-boost/internal/utils"
)

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	userNameKey contextKey = "user_name"
	adminKey    contextKey = "is_admin"
)

// Middleware rejects requests without a valid bearer token and stores the
// caller identity in the request context.
func Middleware(verifier Verifier, adminRole string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, log, "AUTH", apperror.New(apperror.KindUnauthorized, err.Error(), nil))
				return
			}

			id, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteError(w, log, "AUTH", apperror.Unauthorized("invalid token"))
				return
			}

			ctx := WithUser(r.Context(), id.UserID, id.Name, id.HasRole(adminRole))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after Middleware.
func RequireAdmin(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserID(r.Context()) == "" {
				utils.WriteError(w, log, "AUTH", apperror.Unauthorized("authentication required"))
				return
			}
			if !IsAdmin(r.Context()) {
				log.LogSecurity("ADMIN_REQUIRED", fmt.Sprintf("user %s denied %s %s", UserID(r.Context()), r.Method, r.URL.Path))
				utils.WriteError(w, log, "AUTH", apperror.Forbidden("admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithUser(ctx context.Context, userID, name string, admin bool) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, userNameKey, name)
	return context.WithValue(ctx, adminKey, admin)
}

func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}

func UserName(ctx context.Context) string {
	if name, ok := ctx.Value(userNameKey).(string); ok {
		return name
	}
	return ""
}

func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(adminKey).(bool)
	return admin
}
