package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/cronbox/core/pkg/models/api"
)

// APIKey enforces the X-API-Key header on mutating endpoints. An empty
// configured key disables the check, which is the local-development
// default.
func APIKey(key string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key != "" && r.Header.Get("X-API-Key") != key {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "invalid or missing API key"})
			return
		}
		next(w, r)
	}
}
