package middlewares

import (
	"crypto/subtle"
	"net/http"

	"github.com/aurachat/empathy-crawler-service/common/utils"
)

// ApiKey guards a route group with a static API key carried in the
// X-API-KEY header. An empty configured key disables the check, which
// keeps local development friction-free.
func ApiKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-KEY")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				utils.WriteError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
