package middleware

import (
	"net/http"

	"checkout-be/internal/auth"
	"checkout-be/internal/logger"

	"go.uber.org/zap"
)

// RequireAuth rejects requests without a valid access token and puts the
// caller identity into the request context.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				http.Error(w, "missing access token", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ParseJWT(secret, tokenStr)
			if err != nil {
				logger.FromCtx(r.Context()).Debug("access token rejected", zap.Error(err))
				http.Error(w, "invalid access token", http.StatusUnauthorized)
				return
			}

			ctx := auth.SetUserContext(r.Context(), claims.UserID, claims.Email, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
