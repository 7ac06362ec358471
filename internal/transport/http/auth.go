package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "sentra/pkg/domain"
)

type contextKeyUserID struct{}

// GetUserID retrieves the authenticated user id from the context. The zero
// value means the request never passed RequireAuth.
func GetUserID(ctx context.Context) id.UserID {
	userID, ok := ctx.Value(contextKeyUserID{}).(id.UserID)
	if !ok {
		return id.UserID{}
	}
	return userID
}

// RequireAuth validates the bearer token (HS256) and stores the caller's user
// id in the request context. Anything short of a valid token with a parseable
// user_id claim is a 401.
func RequireAuth(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	keyFunc := func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(signingKey), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeUnauthorized(w)
				return
			}

			var claims jwt.MapClaims
			token, err := jwt.ParseWithClaims(raw, &claims, keyFunc,
				jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				logger.WarnContext(ctx, "unauthorized request, invalid token", "error", err)
				writeUnauthorized(w)
				return
			}

			sub, _ := claims["user_id"].(string)
			userID, err := id.ParseUserID(sub)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized request, bad user_id claim", "error", err)
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, contextKeyUserID{}, userID)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or expired token"}`))
}
