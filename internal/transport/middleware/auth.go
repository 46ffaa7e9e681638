package middleware

import (
	"crypto/rsa"
	"net/http"
	"strings"

	errors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// AdminAuth verifies the dashboard bearer token before admin routes run.
// Tokens are issued by the auth service elsewhere; this side only holds the
// public key.
func AdminAuth(publicKey *rsa.PublicKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, errors.ErrInvalidCallbackToken
				}
				return publicKey, nil
			})
			if err != nil || !token.Valid {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := r.Context()
			if sub, err := claims.GetSubject(); err == nil && sub != "" {
				ctx = logger.With(ctx, "userID", sub)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"code": 401, "message": "` + message + `"}`))
}
