// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered DevHub account.
//
// Identity comes from either email/password registration or GitHub OAuth.
// We always generate our own internal string ID (xid) so our primary keys
// never depend on a third party's numbering scheme.
//
// WHY GitHubID int64?
// GitHub user IDs are integers (e.g. 1234567). Using int64 avoids overflow
// for large account numbers. Zero means "no GitHub account linked" — the
// UNIQUE index on github_id only applies to non-zero values.
//
// WHY PasswordHash IS NEVER SERIALIZED:
// The `json:"-"` tag excludes it from every JSON response. Password hashes
// must never leave the server, even accidentally via a debug endpoint.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`                   // bcrypt hash; empty for OAuth-only accounts
	GitHubID     int64     `json:"githubId,omitempty"`  // 0 when the account has no GitHub link
	AvatarURL    string    `json:"avatarUrl,omitempty"` // profile picture URL (may be empty)
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// BuildLogs is the denormalized list of build-log ids this user owns.
	// It is a fast-lookup index, NOT the source of truth — ownership lives on
	// BuildLog.UserID. Updates to it are best-effort (see service layer).
	BuildLogs []string `json:"buildLogs"`
}

// Summary returns the public subset of the user suitable for embedding in
// build-log responses (the "author" field). Mirrors what the frontend needs
// to render a log card: who wrote it and their avatar.
func (u *User) Summary() *UserSummary {
	return &UserSummary{
		ID:        u.ID,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}

// UserSummary is the public author projection attached to build logs.
type UserSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
