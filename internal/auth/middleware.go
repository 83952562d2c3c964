package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type for context keys in this package, so no
// other package can read or shadow the user ID stored here.
type contextKey string

const userIDKey contextKey = "userID"

// CookieName is the cookie the GitHub sign-in flow stores the access token in.
const CookieName = "token"

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// The token is taken from the "Authorization: Bearer <jwt>" header (what the
// browser client sends) or, failing that, from the "token" HttpOnly cookie set
// by GitHub sign-in. If neither yields a valid access token the request stops
// here with 401 Unauthorized and the handler never runs.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"Authentication credentials were not provided or are invalid."}` + "\n"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID. RequireAuth uses it, and
// handler tests use it to simulate an authenticated request.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
//
// Returns ("", false) if the request is anonymous.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// extractUserID finds the access token on the request and validates it.
// A malformed Authorization header is an error even when a cookie is present.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", errMalformedHeader
		}
		return tokens.Validate(strings.TrimSpace(token))
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		// http.ErrNoCookie: no credentials at all
		return "", err
	}

	return tokens.Validate(cookie.Value)
}

var errMalformedHeader = errors.New("auth: malformed Authorization header")
