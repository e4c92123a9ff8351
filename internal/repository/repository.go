// Package repository declares the storage interfaces the service layer
// depends on. Concrete implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/ireddy/devhub-backend/internal/model"
)

// ListOptions is page-based pagination translated to LIMIT/OFFSET by the
// implementation. Limit and Offset are already clamped by the service layer.
type ListOptions struct {
	Limit  int
	Offset int
}

// FeedOptions filters the public build-log feed.
// Phase == "" means "all phases".
type FeedOptions struct {
	Phase model.Phase
	ListOptions
}

// MutateFunc is applied to a freshly loaded aggregate inside a transaction.
// Returning an error aborts the write and is passed through to the caller.
type MutateFunc func(*model.BuildLog) error

// BuildLogRepository stores build-log aggregates.
//
// WHY Mutate INSTEAD OF A PLAIN Update?
// Every engagement operation (like, comment, vote, progress update, blocker
// change) is a read-modify-write of one aggregate. If two users like and
// comment on the same log at the same time and each does its own
// load-then-save, the last writer silently erases the other's change. Mutate
// pushes the whole sequence into a single storage transaction so concurrent
// mutations of one log serialize instead of clobbering each other.
type BuildLogRepository interface {
	Create(ctx context.Context, log *model.BuildLog) error
	GetByID(ctx context.Context, id string) (*model.BuildLog, error)

	// List returns public logs, newest first, plus the total count of public
	// logs matching the filter (for pagination metadata).
	List(ctx context.Context, opts FeedOptions) ([]model.BuildLog, int, error)

	// ListByUser returns logs owned by userID, newest first, plus the total.
	// Private logs are included only when includePrivate is true.
	ListByUser(ctx context.Context, userID string, includePrivate bool, opts ListOptions) ([]model.BuildLog, int, error)

	// Mutate loads the aggregate, applies fn, and persists the result
	// atomically. Returns the mutated aggregate.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*model.BuildLog, error)

	Delete(ctx context.Context, id string) error
}

// UserRepository stores user accounts and their denormalized build-log index.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// UpsertGitHub inserts or updates a user keyed by their GitHub ID,
	// refreshing name/email/avatar on every login.
	UpsertGitHub(ctx context.Context, user *model.User) error

	// AddBuildLogRef / RemoveBuildLogRef maintain the user's denormalized
	// list of owned build-log ids. Callers treat failures as best-effort:
	// the list is an index, not the source of truth for ownership.
	AddBuildLogRef(ctx context.Context, userID, logID string) error
	RemoveBuildLogRef(ctx context.Context, userID, logID string) error
}
