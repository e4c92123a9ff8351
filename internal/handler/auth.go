package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/rs/xid"

	"github.com/ireddy/devhub-backend/internal/auth"
	"github.com/ireddy/devhub-backend/internal/service"
)

// AuthHandler manages account signup and both login flows.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister       → create an account from name/email/password
//   - HandleLogin          → verify email/password, issue a JWT
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → receive the code, exchange it for a user, issue JWT
//   - HandleMe             → return the currently logged-in user's profile
//
// The frontend is a separate SPA, so tokens are returned in the JSON body
// (or, for the OAuth redirect, in the callback URL) rather than in a cookie.
// The SPA stores the token itself and sends it back as a Bearer header.
type AuthHandler struct {
	accounts *service.AuthService
	github   *auth.GitHubProvider
	appURL   string
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil when OAuth is not
// configured; the OAuth routes then respond 503.
func NewAuthHandler(accounts *service.AuthService, github *auth.GitHubProvider, appURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		github:   github,
		appURL:   appURL,
		logger:   logger,
	}
}

// HandleRegister creates a new account.
//
// HTTP: POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid JSON body"})
		return
	}

	user, token, err := h.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Account created successfully",
		"token":   token,
		"user":    user,
	})
}

// HandleLogin verifies credentials and issues a JWT.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid JSON body"})
		return
	}

	user, token, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Logged in successfully",
		"token":   token,
		"user":    user,
	})
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// We generate a random state string and store it in a short-lived cookie.
// When GitHub calls back, HandleGitHubCallback verifies the state matches.
// This proves the callback was initiated by this server, not a CSRF attacker.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Message: "GitHub login is not configured"})
		return
	}

	// Generate a random, unguessable state value
	state := xid.New().String()

	// Store it in a cookie so we can verify it on callback
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub user profile
//  3. Upsert the account and issue a JWT
//  4. Redirect back to the SPA with the token in the URL
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Message: "GitHub login is not configured"})
		return
	}

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid OAuth state"})
		return
	}

	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch",
			slog.String("expected", stateCookie.Value),
			slog.String("got", r.URL.Query().Get("state")),
		)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid OAuth state"})
		return
	}

	// Clear the state cookie — it's single-use
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	// Check if GitHub sent an error (user denied authorization)
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("error", errParam),
		)
		http.Redirect(w, r, h.appURL+"?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for GitHub user profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Missing OAuth code"})
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "Authentication failed"})
		return
	}

	// --- Step 3: Upsert the account and issue a JWT ---
	user, token, err := h.accounts.LoginGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)

	// --- Step 4: Hand the token to the SPA ---
	// The SPA's callback page reads the token from the query string and
	// stores it. A cookie would be simpler but the frontend may be served
	// from a different origin, so the URL is the only shared channel.
	http.Redirect(w, r, h.appURL+"?token="+url.QueryEscape(token), http.StatusSeeOther)
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/me
// Auth: Required (RequireAuth middleware sets userID in context)
//
// This is useful for the frontend to:
//   - Know who is logged in (to show the username/avatar)
//   - Check authentication state on app load
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	// Auth middleware has already validated the JWT and set userID in context.
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Should never happen on a RequireAuth-protected route, but be safe.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "valid authentication required"})
		return
	}

	user, err := h.accounts.GetUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("HandleMe: user lookup failed", slog.String("userID", userID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
