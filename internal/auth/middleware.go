package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// errMissingToken means no bearer token was present at all — the request is
// simply anonymous, which OptionalAuth treats differently from a bad token.
var errMissingToken = errors.New("auth: missing bearer token")

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "userID", id), ANY package that knows the string
// "userID" can read or shadow your value. A package-private type prevents
// collisions: only this package can create a key of type contextKey.
type contextKey string

const userIDKey contextKey = "userID"

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the JWT from the `Authorization: Bearer <token>` header, validates
// it, and stores the userID in the request context. If the token is missing
// or invalid, it returns 401 Unauthorized and stops the request chain.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware is a function that takes an http.Handler and returns a new
// http.Handler wrapping the original. Chi applies middlewares in a chain:
// req → M1 → M2 → Handler → M2 → M1 → resp.
//
// WHY A HEADER AND NOT A COOKIE?
// The DevHub frontend is a separate SPA that talks to this API cross-origin
// and attaches the token itself. The Bearer scheme is the standard way for a
// JS client to present a token; cookies would drag in CSRF concerns for no
// benefit here.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			// Store userID in context so handlers can read it
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth extracts the user identity if a valid token is present, but
// does NOT block the request if it's missing or invalid.
//
// Use this on routes like GET /buildlogs/user/{userId} where anonymous users
// see only public logs but the owner also sees their private ones. Handlers
// check via UserIDFromContext — ("", false) means anonymous.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil && userID != "" {
				ctx := context.WithValue(r.Context(), userIDKey, userID)
				r = r.WithContext(ctx)
			}
			// Always continue — no 401 even without a token
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context.
//
// Returns ("", false) if the request is anonymous (no valid token present).
// Returns (id, true) if the user is authenticated.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// extractUserID reads and validates the bearer token.
// Private helper shared by RequireAuth and OptionalAuth.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return "", errMissingToken
	}

	return tokens.Validate(tokenStr)
}
