package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// DefaultCORSOrigin is the Vite dev server the front end runs on locally.
const DefaultCORSOrigin = "http://localhost:5173"

// ParseOrigins splits a comma-separated CORS_ORIGINS value. Blank entries are
// dropped; an empty result means DefaultCORSOrigin.
func ParseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{DefaultCORSOrigin}
	}
	return origins
}

// CORS allows the browser client on origins to call the API with a bearer
// token and, for the GitHub flow, the token cookie.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
