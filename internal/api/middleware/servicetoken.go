package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/classward/sessiond/internal/api/response"
)

// ServiceToken gates the collaborator-facing API with a shared token carried
// in X-Service-Token, checked against a bcrypt hash so the clear value never
// sits in configuration. An empty hash disables the gate (local setups).
func ServiceToken(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				next.ServeHTTP(w, r)
				return
			}

			requestID := GetRequestID(r.Context())

			token := r.Header.Get("X-Service-Token")
			if token == "" {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Service token is required", requestID)
				return
			}

			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid service token", requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
