package controllers

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthController guards the admin API with the shared API key. An empty key leaves the
// admin API open; the bootstrap warns about that at startup.
type AuthController struct {
	APIKey string
}

func NewBaseController(apiKey string) *AuthController {
	return &AuthController{APIKey: apiKey}
}

func (ac *AuthController) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ac.APIKey == "" {
			next(w, r)
			return
		}
		// Supported headers: X-API-Key: <key> or Authorization: Bearer <key>
		key := r.Header.Get("X-API-Key")
		if key == "" {
			if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				key = strings.TrimSpace(bearer)
			}
		}
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(ac.APIKey)) != 1 {
			writeErrorMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}
