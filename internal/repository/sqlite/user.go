package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/ireddy/devhub-backend/internal/apperror"
	"github.com/ireddy/devhub-backend/internal/model"
	"github.com/ireddy/devhub-backend/internal/repository"
)

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

// UserStore implements repository.UserRepository on top of a shared DB
// handle.
type UserStore struct {
	db *DB
}

// NewUserStore creates a UserStore backed by db.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new user account.
// Emails are stored lowercased so lookups are case-insensitive.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	buildLogs, err := marshalColumn(user.BuildLogs)
	if err != nil {
		return fmt.Errorf("sqlite: encoding user build log refs: %w", err)
	}

	_, err = s.db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, github_id, avatar_url, build_logs, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.GitHubID,
		user.AvatarURL, buildLogs, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		// The UNIQUE constraint on email is the only one a valid insert can
		// trip over, so we translate that to a domain Conflict error.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict("user", "email already registered")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

// GetByEmail retrieves a user by email (case-insensitive).
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, `email = ?`, strings.ToLower(email))
}

func (s *UserStore) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var (
		u         model.User
		buildLogs string
	)

	err := s.db.conn.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, github_id, avatar_url, build_logs, created_at, updated_at
		 FROM users WHERE `+where,
		arg,
	).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.GitHubID,
		&u.AvatarURL, &buildLogs, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}

	if err := json.Unmarshal([]byte(buildLogs), &u.BuildLogs); err != nil {
		return nil, fmt.Errorf("sqlite: decoding user build log refs: %w", err)
	}

	return &u, nil
}

// UpsertGitHub inserts or updates a user keyed by GitHub ID.
//
// We look up by github_id first so a returning user KEEPS their internal ID
// (and all their build-log references). Only profile fields that GitHub may
// have changed — name, avatar — are refreshed on login.
func (s *UserStore) UpsertGitHub(ctx context.Context, user *model.User) error {
	var existingID string
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID != "" {
		user.ID = existingID
		user.UpdatedAt = time.Now().UTC()
		_, err = s.db.conn.ExecContext(ctx,
			`UPDATE users SET name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
			user.Name, user.AvatarURL, user.UpdatedAt, user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	return s.Create(ctx, user)
}

// AddBuildLogRef appends logID to the user's denormalized build-log index.
//
// The read-modify-write runs in a transaction for the same reason the
// build-log Mutate does: two logs created back-to-back must not lose one
// reference to a concurrent overwrite.
func (s *UserStore) AddBuildLogRef(ctx context.Context, userID, logID string) error {
	return s.mutateBuildLogRefs(ctx, userID, func(refs []string) []string {
		for _, id := range refs {
			if id == logID {
				return refs // already present — keep it a set
			}
		}
		return append(refs, logID)
	})
}

// RemoveBuildLogRef removes logID from the user's denormalized index.
func (s *UserStore) RemoveBuildLogRef(ctx context.Context, userID, logID string) error {
	return s.mutateBuildLogRefs(ctx, userID, func(refs []string) []string {
		out := refs[:0]
		for _, id := range refs {
			if id != logID {
				out = append(out, id)
			}
		}
		return out
	})
}

func (s *UserStore) mutateBuildLogRefs(ctx context.Context, userID string, fn func([]string) []string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT build_logs FROM users WHERE id = ?`, userID,
	).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return apperror.NotFound("user", userID)
		}
		return fmt.Errorf("sqlite: loading user %s: %w", userID, err)
	}

	var refs []string
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return fmt.Errorf("sqlite: decoding user build log refs: %w", err)
	}

	updated, err := marshalColumn(fn(refs))
	if err != nil {
		return fmt.Errorf("sqlite: encoding user build log refs: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET build_logs = ?, updated_at = ? WHERE id = ?`,
		updated, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving user %s: %w", userID, err)
	}

	return tx.Commit()
}
