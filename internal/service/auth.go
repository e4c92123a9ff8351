// Package service — authentication business logic.
//
// AuthService sits between the HTTP handlers and the repository/auth
// utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT) / PasswordService (bcrypt)
//
// A NOTE ON FAILURE BEHAVIOR:
// When the user store is unreachable, every operation here FAILS — there are
// no built-in accounts, no auto-created identities, no demo fallbacks. A
// login that cannot verify credentials against the store is an error, full
// stop. Fabricating an identity to keep a demo alive would mean handing out
// authenticated sessions no one verified.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/ireddy/devhub-backend/internal/apperror"
	"github.com/ireddy/devhub-backend/internal/auth"
	"github.com/ireddy/devhub-backend/internal/model"
	"github.com/ireddy/devhub-backend/internal/repository"
)

const minPasswordLength = 8

// AuthService handles registration, login, and GitHub OAuth sign-in.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// Register creates a new email/password account and returns the user plus a
// signed access token, so the client is logged in immediately.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*model.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))

	if name == "" {
		return nil, "", apperror.ValidationFailed("name", "name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", apperror.ValidationFailed("email", "a valid email address is required")
	}
	if len(password) < minPasswordLength {
		return nil, "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, "", apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		BuildLogs:    []string{},
	}

	if err := s.users.Create(ctx, user); err != nil {
		// Conflict (email taken) passes through as-is for the handler to map.
		if errors.Is(err, apperror.ErrConflict) {
			return nil, "", err
		}
		s.logger.Error("failed to create user",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return nil, "", fmt.Errorf("registering user: %w", err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issuing token: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, token, nil
}

// Login verifies email/password credentials and returns the user plus a
// signed access token.
//
// WHY ONE ERROR FOR BOTH "no such user" AND "wrong password"?
// Distinguishing them would let an attacker enumerate which emails have
// accounts. Both cases return the same Unauthorized message.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, "", apperror.ValidationFailed("credentials", "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, "", apperror.Unauthorized("invalid email or password")
		}
		s.logger.Error("failed to look up user for login",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return nil, "", fmt.Errorf("logging in: %w", err)
	}

	if user.PasswordHash == "" {
		// OAuth-only account — there is no password to check.
		return nil, "", apperror.Unauthorized("invalid email or password")
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, "", apperror.Unauthorized("invalid email or password")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issuing token: %w", err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return user, token, nil
}

// LoginGitHub upserts the account matching a GitHub profile and returns the
// user plus a signed access token. Used by the OAuth callback handler after
// the code exchange succeeded.
func (s *AuthService) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*model.User, string, error) {
	name := gh.Name
	if name == "" {
		name = gh.Login // GitHub display name is optional; the login never is
	}

	// GitHub users may hide their email; synthesize a stable placeholder so
	// the NOT NULL UNIQUE email column holds. It is never mailed to.
	email := strings.ToLower(gh.Email)
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, gh.Login)
	}

	user := &model.User{
		Name:      name,
		Email:     email,
		GitHubID:  gh.ID,
		AvatarURL: gh.AvatarURL,
		BuildLogs: []string{},
	}

	if err := s.users.UpsertGitHub(ctx, user); err != nil {
		s.logger.Error("failed to upsert GitHub user",
			slog.Int64("githubID", gh.ID),
			slog.String("error", err.Error()),
		)
		return nil, "", fmt.Errorf("logging in with GitHub: %w", err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issuing token: %w", err)
	}

	s.logger.Info("user logged in via GitHub", slog.String("userID", user.ID))
	return user, token, nil
}

// GetUser returns a user's profile by id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}
