package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/ireddy/devhub-backend/internal/apperror"
	"github.com/ireddy/devhub-backend/internal/model"
	"github.com/ireddy/devhub-backend/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` assigns a nil *Y to a variable of interface type X.
// If *Y doesn't implement X, the compiler errors immediately instead of at
// the first call site that passes a *DB where the interface is expected.
var _ repository.BuildLogRepository = (*BuildLogStore)(nil)

// BuildLogStore implements repository.BuildLogRepository on top of a shared
// DB handle. Users get their own store type so the two repositories can both
// have natural method names (Create, GetByID, Delete) without colliding.
type BuildLogStore struct {
	db *DB
}

// NewBuildLogStore creates a BuildLogStore backed by db.
func NewBuildLogStore(db *DB) *BuildLogStore {
	return &BuildLogStore{db: db}
}

// buildLogColumns is the column list shared by every SELECT in this file.
// Keeping it in one constant means scanBuildLog can rely on the order.
const buildLogColumns = `id, user_id, title, description, day, phase, progress,
	tags, is_public, attachments, likes, comments, help_requests,
	progress_updates, blockers, created_at, updated_at`

// marshalColumn serializes one embedded collection for its TEXT column.
// A nil slice is stored as "[]" so the column never holds SQL NULL and
// reads never have to special-case it.
func marshalColumn(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return "[]", nil
	}
	return string(raw), nil
}

// scanner abstracts *sql.Row and *sql.Rows — both have the same Scan method.
type scanner interface {
	Scan(dest ...any) error
}

// scanBuildLog reads one row (in buildLogColumns order) into a BuildLog,
// deserializing the JSON columns back into their embedded collections.
func scanBuildLog(s scanner) (*model.BuildLog, error) {
	var (
		b                                       model.BuildLog
		tags, attachments, likes, comments      string
		helpRequests, progressUpdates, blockers string
	)

	err := s.Scan(
		&b.ID, &b.UserID, &b.Title, &b.Description, &b.Day, &b.Phase,
		&b.Progress, &tags, &b.IsPublic, &attachments, &likes, &comments,
		&helpRequests, &progressUpdates, &blockers, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	embedded := []struct {
		raw  string
		dest any
	}{
		{tags, &b.Tags},
		{attachments, &b.Attachments},
		{likes, &b.Likes},
		{comments, &b.Comments},
		{helpRequests, &b.HelpRequests},
		{progressUpdates, &b.ProgressUpdates},
		{blockers, &b.Blockers},
	}
	for _, col := range embedded {
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return nil, fmt.Errorf("decoding embedded column: %w", err)
		}
	}

	return &b, nil
}

// Create inserts a new build-log aggregate.
//
// ID GENERATION WITH xid:
// xid ids are 20 chars, URL-safe, and sortable by creation time. We take a
// pointer receiver argument so the caller's struct gets the generated ID and
// timestamps after Create returns.
func (s *BuildLogStore) Create(ctx context.Context, log *model.BuildLog) error {
	log.ID = xid.New().String()

	now := time.Now().UTC()
	log.CreatedAt = now
	log.UpdatedAt = now

	cols, err := buildLogColumnValues(log)
	if err != nil {
		return fmt.Errorf("sqlite: encoding build log: %w", err)
	}

	_, err = s.db.conn.ExecContext(ctx,
		`INSERT INTO build_logs (`+buildLogColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cols...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating build log: %w", err)
	}

	return nil
}

// buildLogColumnValues produces the INSERT/UPDATE arguments in
// buildLogColumns order, serializing the embedded collections.
func buildLogColumnValues(log *model.BuildLog) ([]any, error) {
	tags, err := marshalColumn(log.Tags)
	if err != nil {
		return nil, err
	}
	attachments, err := marshalColumn(log.Attachments)
	if err != nil {
		return nil, err
	}
	likes, err := marshalColumn(log.Likes)
	if err != nil {
		return nil, err
	}
	comments, err := marshalColumn(log.Comments)
	if err != nil {
		return nil, err
	}
	helpRequests, err := marshalColumn(log.HelpRequests)
	if err != nil {
		return nil, err
	}
	progressUpdates, err := marshalColumn(log.ProgressUpdates)
	if err != nil {
		return nil, err
	}
	blockers, err := marshalColumn(log.Blockers)
	if err != nil {
		return nil, err
	}

	return []any{
		log.ID, log.UserID, log.Title, log.Description, log.Day, log.Phase,
		log.Progress, tags, log.IsPublic, attachments, likes, comments,
		helpRequests, progressUpdates, blockers, log.CreatedAt, log.UpdatedAt,
	}, nil
}

// GetByID retrieves a single build-log aggregate by its ID.
// Returns apperror.ErrNotFound if no row exists.
func (s *BuildLogStore) GetByID(ctx context.Context, id string) (*model.BuildLog, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT `+buildLogColumns+` FROM build_logs WHERE id = ?`, id)

	log, err := scanBuildLog(row)
	if err != nil {
		// sql.ErrNoRows is a sentinel, not a real failure — translate it to
		// our domain's NotFound so the handler knows to return 404.
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("build log", id)
		}
		return nil, fmt.Errorf("sqlite: getting build log %s: %w", id, err)
	}

	return log, nil
}

// List returns public logs newest first, plus the total count for the filter.
func (s *BuildLogStore) List(ctx context.Context, opts repository.FeedOptions) ([]model.BuildLog, int, error) {
	where := `is_public = 1`
	args := []any{}
	if opts.Phase != "" {
		where += ` AND phase = ?`
		args = append(args, opts.Phase)
	}

	var total int
	if err := s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM build_logs WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting build logs: %w", err)
	}

	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+buildLogColumns+` FROM build_logs
		 WHERE `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing build logs: %w", err)
	}
	defer rows.Close()

	logs, err := collectBuildLogs(rows, opts.Limit)
	if err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// ListByUser returns one user's logs newest first, plus the total.
func (s *BuildLogStore) ListByUser(ctx context.Context, userID string, includePrivate bool, opts repository.ListOptions) ([]model.BuildLog, int, error) {
	where := `user_id = ?`
	if !includePrivate {
		where += ` AND is_public = 1`
	}

	var total int
	if err := s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM build_logs WHERE `+where, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting user build logs: %w", err)
	}

	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+buildLogColumns+` FROM build_logs
		 WHERE `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing user build logs: %w", err)
	}
	defer rows.Close()

	logs, err := collectBuildLogs(rows, opts.Limit)
	if err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// collectBuildLogs drains rows into a slice.
//
// defer rows.Close() runs at the CALLER — sql.Rows holds a pool connection,
// and forgetting to close it leaks the connection until the pool runs dry.
func collectBuildLogs(rows *sql.Rows, capacity int) ([]model.BuildLog, error) {
	if capacity < 0 {
		capacity = 0
	}
	logs := make([]model.BuildLog, 0, capacity)

	for rows.Next() {
		log, err := scanBuildLog(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning build log row: %w", err)
		}
		logs = append(logs, *log)
	}

	// rows.Err() catches errors that happened DURING iteration
	// (e.g. the connection dropping mid-scan).
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating build logs: %w", err)
	}

	return logs, nil
}

// Mutate applies fn to the aggregate inside a single transaction:
//
//	BEGIN → SELECT the row → fn(aggregate) → UPDATE the row → COMMIT
//
// The UPDATE takes SQLite's write lock, so two concurrent Mutate calls on
// the same log serialize (the second waits on busy_timeout) instead of the
// last writer erasing the first one's embedded-collection change. This is
// the storage-level answer to "two users like and comment simultaneously".
//
// fn returning an error rolls everything back and the error is returned
// as-is, so domain errors (validation, not-found inside the aggregate)
// propagate untouched.
func (s *BuildLogStore) Mutate(ctx context.Context, id string, fn repository.MutateFunc) (*model.BuildLog, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	// Rollback after a successful Commit is a documented no-op, so a single
	// deferred Rollback covers every early-return path below.
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+buildLogColumns+` FROM build_logs WHERE id = ?`, id)

	log, err := scanBuildLog(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("build log", id)
		}
		return nil, fmt.Errorf("sqlite: loading build log %s: %w", id, err)
	}

	if err := fn(log); err != nil {
		return nil, err
	}

	cols, err := buildLogColumnValues(log)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encoding build log: %w", err)
	}

	// Skip the immutable id/user_id/created_at columns; everything else is
	// rewritten from the mutated aggregate. Column order mirrors
	// buildLogColumnValues (index 2 onward, minus created_at at index 15).
	_, err = tx.ExecContext(ctx,
		`UPDATE build_logs SET
			title = ?, description = ?, day = ?, phase = ?, progress = ?,
			tags = ?, is_public = ?, attachments = ?, likes = ?, comments = ?,
			help_requests = ?, progress_updates = ?, blockers = ?, updated_at = ?
		 WHERE id = ?`,
		cols[2], cols[3], cols[4], cols[5], cols[6], cols[7], cols[8],
		cols[9], cols[10], cols[11], cols[12], cols[13], cols[14], cols[16],
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: saving build log %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing build log %s: %w", id, err)
	}

	return log, nil
}

// Delete removes a build-log aggregate.
//
// RowsAffected tells us whether the WHERE clause matched anything — zero
// rows affected means the log never existed, which is a NotFound.
func (s *BuildLogStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM build_logs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting build log %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("build log", id)
	}

	return nil
}
