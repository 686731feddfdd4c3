package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS returns a middleware allowing the given origins. "*" or an empty list
// allows any origin.
func CORS(allowed []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		opts.AllowOriginFunc = func(string) bool { return true }
	} else {
		opts.AllowedOrigins = allowed
	}
	return cors.New(opts).Handler
}
