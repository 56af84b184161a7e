package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/JonMunkholm/refimport/internal/logging"
)

// APIKeyHeader carries the caller's key.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests whose X-API-Key is not one of keys. With no
// keys configured every request passes.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				logging.FromContext(r.Context()).Warn("auth: missing API key", "path", r.URL.Path)
				writeErrorJSON(w, http.StatusUnauthorized, errorBody{
					Error:   "missing API key",
					Message: "This endpoint requires an API key",
					Action:  "Send the key in the X-API-Key header",
					Code:    "AUTH001",
				})
				return
			}
			if !validKey(key, keys) {
				logging.FromContext(r.Context()).Warn("auth: invalid API key", "path", r.URL.Path)
				writeErrorJSON(w, http.StatusForbidden, errorBody{
					Error:   "invalid API key",
					Message: "The API key was not accepted",
					Action:  "Check the key and try again",
					Code:    "AUTH002",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// validKey compares against every key in constant time.
func validKey(key string, keys []string) bool {
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return match == 1
}
