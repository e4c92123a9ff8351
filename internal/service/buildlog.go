// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the database
//
// The service receives repository INTERFACES, not concrete types, so tests
// inject in-memory mocks and the sqlite package is never imported here.
// Handlers should only know about HTTP; services only about business rules;
// neither about SQL.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/ireddy/devhub-backend/internal/apperror"
	"github.com/ireddy/devhub-backend/internal/model"
	"github.com/ireddy/devhub-backend/internal/repository"
)

// Validation constants. Named constants (not magic numbers) are easy to find,
// self-documenting, and referenceable in error messages.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 10000
	MaxCommentLength     = 2000
	MaxTagCount          = 20
	DefaultPageSize      = 10
	MaxPageSize          = 100
)

// Pagination is the page metadata returned alongside every list of logs.
// totalPages == ceil(totalLogs / pageSize), so a client can render page
// controls without a second request.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalLogs   int `json:"totalLogs"`
}

// BuildLogService owns the build-log workflow: the journal lifecycle,
// engagement (likes, comments, help requests), progress tracking, and the
// blocker/solution state machine.
type BuildLogService struct {
	logs   repository.BuildLogRepository
	users  repository.UserRepository
	logger *slog.Logger
}

// NewBuildLogService creates a BuildLogService. The caller decides which
// repository implementations to use (sqlite in production, mocks in tests).
func NewBuildLogService(logs repository.BuildLogRepository, users repository.UserRepository, logger *slog.Logger) *BuildLogService {
	return &BuildLogService{
		logs:   logs,
		users:  users,
		logger: logger,
	}
}

// CreateInput carries the client-supplied fields for a new build log.
//
// WHY POINTER FIELDS FOR Progress AND IsPublic?
// Both have meaningful zero values (0, false) that differ from their
// defaults (0 is fine, but isPublic defaults to TRUE). A pointer lets us
// distinguish "client sent false" from "client sent nothing".
type CreateInput struct {
	Title       string
	Description string
	Day         int
	Phase       model.Phase
	Progress    *int
	Attachments []model.Attachment
	Tags        []string
	IsPublic    *bool
}

// Create validates and saves a new build log owned by ownerID.
//
// The new log starts with empty likes/comments/helpRequests/progressUpdates/
// blockers. After a successful save, the log's id is appended to the owner's
// denormalized build-log index — BEST-EFFORT: the index is a convenience
// lookup, not the source of truth for ownership, so a failure there is
// logged and the creation still succeeds.
func (s *BuildLogService) Create(ctx context.Context, ownerID string, in CreateInput) (*model.BuildLog, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)

	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if description == "" {
		return nil, apperror.ValidationFailed("description", "description is required")
	}
	if len(description) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if in.Day <= 0 {
		return nil, apperror.ValidationFailed("day", "day must be a positive integer")
	}
	if !model.ValidPhase(in.Phase) {
		return nil, apperror.ValidationFailed("phase",
			"phase must be one of: learning, building, testing, deployment, troubleshooting")
	}

	progress := 0
	if in.Progress != nil {
		progress = *in.Progress
		if progress < 0 || progress > 100 {
			return nil, apperror.ValidationFailed("progress", "progress must be between 0 and 100")
		}
	}

	for _, a := range in.Attachments {
		if !model.ValidAttachmentType(a.Type) {
			return nil, apperror.ValidationFailed("attachments",
				"attachment type must be one of: image, code, link, screenshot")
		}
	}

	tags := normalizeTags(in.Tags)
	if len(tags) > MaxTagCount {
		return nil, apperror.ValidationFailed("tags",
			fmt.Sprintf("at most %d tags are allowed", MaxTagCount))
	}

	isPublic := true // logs are public unless the client says otherwise
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	log := &model.BuildLog{
		UserID:          ownerID,
		Title:           title,
		Description:     description,
		Day:             in.Day,
		Phase:           in.Phase,
		Progress:        progress,
		Tags:            tags,
		IsPublic:        isPublic,
		Attachments:     in.Attachments,
		Likes:           []model.Like{},
		Comments:        []model.Comment{},
		HelpRequests:    []model.HelpRequest{},
		ProgressUpdates: []model.ProgressUpdate{},
		Blockers:        []model.Blocker{},
	}

	if err := s.logs.Create(ctx, log); err != nil {
		s.logger.Error("failed to create build log",
			slog.String("owner", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating build log: %w", err)
	}

	// Denormalized owner index, best-effort. The only tolerated failure in
	// this service.
	if err := s.users.AddBuildLogRef(ctx, ownerID, log.ID); err != nil {
		s.logger.Warn("failed to add build log to owner index",
			slog.String("logID", log.ID),
			slog.String("owner", ownerID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("build log created",
		slog.String("id", log.ID),
		slog.String("owner", ownerID),
		slog.String("phase", string(log.Phase)),
	)

	s.attachAuthors(ctx, log)
	return log, nil
}

// normalizeTags trims, drops empties, and deduplicates while preserving order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// List returns the public feed, newest first.
//
// An unrecognized phase value is treated as "no filter" rather than an
// error — the feed simply shows everything. Page/limit are clamped to sane
// bounds so a client can't request a million rows.
func (s *BuildLogService) List(ctx context.Context, phase string, page, limit int) ([]model.BuildLog, Pagination, error) {
	page, limit = clampPage(page, limit)

	filter := model.Phase("")
	if model.ValidPhase(model.Phase(phase)) {
		filter = model.Phase(phase)
	}

	logs, total, err := s.logs.List(ctx, repository.FeedOptions{
		Phase: filter,
		ListOptions: repository.ListOptions{
			Limit:  limit,
			Offset: (page - 1) * limit,
		},
	})
	if err != nil {
		s.logger.Error("failed to list build logs", slog.String("error", err.Error()))
		return nil, Pagination{}, fmt.Errorf("listing build logs: %w", err)
	}

	s.attachAuthors(ctx, asPointers(logs)...)
	return logs, paginate(page, limit, total), nil
}

// ListByUser returns userID's logs, newest first. Private logs are included
// only when the requester IS that user.
func (s *BuildLogService) ListByUser(ctx context.Context, userID, requesterID string, page, limit int) ([]model.BuildLog, Pagination, error) {
	page, limit = clampPage(page, limit)

	includePrivate := requesterID != "" && requesterID == userID

	logs, total, err := s.logs.ListByUser(ctx, userID, includePrivate, repository.ListOptions{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		s.logger.Error("failed to list user build logs",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, Pagination{}, fmt.Errorf("listing user build logs: %w", err)
	}

	s.attachAuthors(ctx, asPointers(logs)...)
	return logs, paginate(page, limit, total), nil
}

// GetByID returns one build log. Private logs are visible only to their
// owner; everyone else gets the same NotFound a nonexistent id would give,
// so private logs can't be probed for.
func (s *BuildLogService) GetByID(ctx context.Context, id, requesterID string) (*model.BuildLog, error) {
	log, err := s.logs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !log.IsPublic && log.UserID != requesterID {
		return nil, apperror.NotFound("build log", id)
	}

	s.attachAuthors(ctx, log)
	return log, nil
}

// UpdatePatch carries a partial update: nil fields are left untouched.
type UpdatePatch struct {
	Title       *string
	Description *string
	Day         *int
	Phase       *model.Phase
	Progress    *int // always rejected — see Update
	Attachments *[]model.Attachment
	Tags        *[]string
	IsPublic    *bool
}

// Update applies a partial patch to a build log. Only the owner may update;
// a non-owner (or a missing log) gets NotFound — deliberately the same
// error, so the response never reveals whether the id exists.
//
// WHY IS progress REJECTED HERE?
// The top-level progress field is a cached projection of the progress-update
// history: it must always equal the last appended update's percentage. If
// this endpoint could write it directly, the cache and the history would
// drift apart. AddProgressUpdate is the single write path for progress.
func (s *BuildLogService) Update(ctx context.Context, id, requesterID string, patch UpdatePatch) (*model.BuildLog, error) {
	if patch.Progress != nil {
		return nil, apperror.ValidationFailed("progress",
			"progress cannot be edited directly; add a progress update instead")
	}

	log, err := s.logs.Mutate(ctx, id, func(log *model.BuildLog) error {
		if log.UserID != requesterID {
			return apperror.NotFound("build log", id)
		}

		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return apperror.ValidationFailed("title", "title cannot be empty")
			}
			if len(title) > MaxTitleLength {
				return apperror.ValidationFailed("title",
					fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
			}
			log.Title = title
		}
		if patch.Description != nil {
			description := strings.TrimSpace(*patch.Description)
			if description == "" {
				return apperror.ValidationFailed("description", "description cannot be empty")
			}
			if len(description) > MaxDescriptionLength {
				return apperror.ValidationFailed("description",
					fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
			}
			log.Description = description
		}
		if patch.Day != nil {
			if *patch.Day <= 0 {
				return apperror.ValidationFailed("day", "day must be a positive integer")
			}
			log.Day = *patch.Day
		}
		if patch.Phase != nil {
			if !model.ValidPhase(*patch.Phase) {
				return apperror.ValidationFailed("phase",
					"phase must be one of: learning, building, testing, deployment, troubleshooting")
			}
			log.Phase = *patch.Phase
		}
		if patch.Attachments != nil {
			for _, a := range *patch.Attachments {
				if !model.ValidAttachmentType(a.Type) {
					return apperror.ValidationFailed("attachments",
						"attachment type must be one of: image, code, link, screenshot")
				}
			}
			log.Attachments = *patch.Attachments
		}
		if patch.Tags != nil {
			tags := normalizeTags(*patch.Tags)
			if len(tags) > MaxTagCount {
				return apperror.ValidationFailed("tags",
					fmt.Sprintf("at most %d tags are allowed", MaxTagCount))
			}
			log.Tags = tags
		}
		if patch.IsPublic != nil {
			log.IsPublic = *patch.IsPublic
		}

		log.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("build log updated", slog.String("id", id))
	s.attachAuthors(ctx, log)
	return log, nil
}

// Delete hard-deletes a build log. Owner only; missing and not-owned are the
// same NotFound. Also removes the id from the owner's denormalized index
// (best-effort, like the append on create).
func (s *BuildLogService) Delete(ctx context.Context, id, requesterID string) error {
	log, err := s.logs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if log.UserID != requesterID {
		return apperror.NotFound("build log", id)
	}

	if err := s.logs.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.users.RemoveBuildLogRef(ctx, requesterID, id); err != nil {
		s.logger.Warn("failed to remove build log from owner index",
			slog.String("logID", id),
			slog.String("owner", requesterID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("build log deleted", slog.String("id", id))
	return nil
}

// ToggleLike flips userID's membership in the log's like set: liking a log
// you already liked unlikes it. Calling it twice is a no-op pair — the
// operation is its own inverse. Any authenticated user may like any log.
//
// Returns the resulting like count and whether the user now likes the log.
func (s *BuildLogService) ToggleLike(ctx context.Context, id, userID string) (likesCount int, isLiked bool, err error) {
	_, err = s.logs.Mutate(ctx, id, func(log *model.BuildLog) error {
		if log.LikedBy(userID) {
			kept := log.Likes[:0]
			for _, l := range log.Likes {
				if l.UserID != userID {
					kept = append(kept, l)
				}
			}
			log.Likes = kept
			isLiked = false
		} else {
			log.Likes = append(log.Likes, model.Like{
				UserID:    userID,
				CreatedAt: time.Now().UTC(),
			})
			isLiked = true
		}
		likesCount = len(log.Likes)
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	return likesCount, isLiked, nil
}

// AddComment appends a comment to the log. Text must be non-empty after
// trimming; the server assigns the id and timestamp.
func (s *BuildLogService) AddComment(ctx context.Context, id, userID, text string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "comment text is required")
	}
	if len(text) > MaxCommentLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}

	comment := model.Comment{
		ID:        xid.New().String(),
		UserID:    userID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.logs.Mutate(ctx, id, func(log *model.BuildLog) error {
		log.Comments = append(log.Comments, comment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &comment, nil
}

// AddHelpRequest appends a help request to the log. Same rules as comments.
func (s *BuildLogService) AddHelpRequest(ctx context.Context, id, userID, message string) (*model.HelpRequest, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperror.ValidationFailed("message", "help request message is required")
	}
	if len(message) > MaxCommentLength {
		return nil, apperror.ValidationFailed("message",
			fmt.Sprintf("help request must be %d characters or less", MaxCommentLength))
	}

	helpRequest := model.HelpRequest{
		ID:        xid.New().String(),
		UserID:    userID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.logs.Mutate(ctx, id, func(log *model.BuildLog) error {
		log.HelpRequests = append(log.HelpRequests, helpRequest)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &helpRequest, nil
}

// AddProgressUpdate appends an entry to the progress history AND overwrites
// the cached top-level progress — always together, inside one Mutate, so the
// invariant `log.Progress == last update's percentage` can never be observed
// broken. This is the ONLY path that writes progress. Owner only.
func (s *BuildLogService) AddProgressUpdate(ctx context.Context, id, requesterID string, percentage int, note string, date *time.Time) (*model.BuildLog, error) {
	if percentage < 0 || percentage > 100 {
		return nil, apperror.ValidationFailed("percentage", "percentage must be between 0 and 100")
	}

	when := time.Now().UTC()
	if date != nil && !date.IsZero() {
		when = date.UTC()
	}

	log, err := s.logs.Mutate(ctx, id, func(log *model.BuildLog) error {
		if log.UserID != requesterID {
			return apperror.NotFound("build log", id)
		}

		log.ProgressUpdates = append(log.ProgressUpdates, model.ProgressUpdate{
			Percentage: percentage,
			Note:       strings.TrimSpace(note),
			Date:       when,
		})
		log.Progress = percentage
		log.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("progress update added",
		slog.String("logID", id),
		slog.Int("percentage", percentage),
	)

	s.attachAuthors(ctx, log)
	return log, nil
}

// AddBlocker reports a new obstacle on the log. Owner only — you can only
// be blocked on your own work. The blocker starts open with no solutions.
func (s *BuildLogService) AddBlocker(ctx context.Context, id, requesterID, title, description string) (*model.Blocker, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "blocker title is required")
	}
	if description == "" {
		return nil, apperror.ValidationFailed("description", "blocker description is required")
	}

	blocker := model.Blocker{
		ID:          xid.New().String(),
		Title:       title,
		Description: description,
		Status:      model.BlockerOpen,
		Solutions:   []model.Solution{},
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.logs.Mutate(ctx, id, func(log *model.BuildLog) error {
		if log.UserID != requesterID {
			return apperror.NotFound("build log", id)
		}
		log.Blockers = append(log.Blockers, blocker)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("blocker added",
		slog.String("logID", id),
		slog.String("blockerID", blocker.ID),
	)

	return &blocker, nil
}

// AddSolution proposes a fix for a blocker. Any authenticated user may
// answer, including on an already-resolved blocker — a late answer is still
// useful to the next reader with the same problem.
func (s *BuildLogService) AddSolution(ctx context.Context, logID, blockerID, userID, text string) (*model.Solution, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "solution text is required")
	}

	solution := model.Solution{
		ID:        xid.New().String(),
		UserID:    userID,
		Text:      text,
		Upvotes:   []string{},
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.logs.Mutate(ctx, logID, func(log *model.BuildLog) error {
		blocker := log.FindBlocker(blockerID)
		if blocker == nil {
			return apperror.NotFound("blocker", blockerID)
		}
		blocker.Solutions = append(blocker.Solutions, solution)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &solution, nil
}

// VoteSolution toggles userID's upvote on a solution (set semantics: voting
// again removes the prior vote). Returns the resulting upvote count.
func (s *BuildLogService) VoteSolution(ctx context.Context, logID, blockerID, solutionID, userID string) (int, error) {
	var upvotes int

	_, err := s.logs.Mutate(ctx, logID, func(log *model.BuildLog) error {
		blocker := log.FindBlocker(blockerID)
		if blocker == nil {
			return apperror.NotFound("blocker", blockerID)
		}
		solution := blocker.FindSolution(solutionID)
		if solution == nil {
			return apperror.NotFound("solution", solutionID)
		}

		if solution.UpvotedBy(userID) {
			kept := solution.Upvotes[:0]
			for _, id := range solution.Upvotes {
				if id != userID {
					kept = append(kept, id)
				}
			}
			solution.Upvotes = kept
		} else {
			solution.Upvotes = append(solution.Upvotes, userID)
		}
		upvotes = len(solution.Upvotes)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return upvotes, nil
}

// ResolveBlocker transitions a blocker open → resolved. Owner only.
//
// STATE MACHINE:
// resolved is terminal — nothing reopens a blocker, and resolvedAt keeps the
// timestamp of the FIRST resolution even if the owner resolves again.
// Re-resolving is allowed only as an acceptance change: an optionally
// supplied solutionId becomes the accepted answer, and any previously
// accepted solution is un-marked so at most one solution per blocker ever
// carries the mark.
func (s *BuildLogService) ResolveBlocker(ctx context.Context, logID, blockerID, requesterID, solutionID string) (*model.Blocker, error) {
	var resolved model.Blocker

	_, err := s.logs.Mutate(ctx, logID, func(log *model.BuildLog) error {
		if log.UserID != requesterID {
			return apperror.NotFound("build log", logID)
		}

		blocker := log.FindBlocker(blockerID)
		if blocker == nil {
			return apperror.NotFound("blocker", blockerID)
		}

		if blocker.Status != model.BlockerResolved {
			now := time.Now().UTC()
			blocker.Status = model.BlockerResolved
			blocker.ResolvedAt = &now
		}

		if solutionID != "" {
			solution := blocker.FindSolution(solutionID)
			if solution == nil {
				return apperror.NotFound("solution", solutionID)
			}
			for i := range blocker.Solutions {
				blocker.Solutions[i].IsAccepted = false
			}
			solution.IsAccepted = true
		}

		resolved = *blocker
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("blocker resolved",
		slog.String("logID", logID),
		slog.String("blockerID", blockerID),
	)

	return &resolved, nil
}

// clampPage normalizes page/limit to sane values: page >= 1, limit in
// [1, MaxPageSize] with DefaultPageSize when unset.
func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// paginate computes the page metadata. totalPages is a ceiling division;
// zero results means zero pages.
func paginate(page, limit, total int) Pagination {
	return Pagination{
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		TotalLogs:   total,
	}
}

// attachAuthors fills in the Author summary on each log, batching user
// lookups per distinct owner. Population is presentation sugar — a lookup
// failure leaves Author nil rather than failing the whole request.
func (s *BuildLogService) attachAuthors(ctx context.Context, logs ...*model.BuildLog) {
	cache := make(map[string]*model.UserSummary)

	for _, log := range logs {
		if log == nil {
			continue
		}
		summary, ok := cache[log.UserID]
		if !ok {
			user, err := s.users.GetByID(ctx, log.UserID)
			if err != nil {
				if !errors.Is(err, apperror.ErrNotFound) {
					s.logger.Warn("failed to load build log author",
						slog.String("userID", log.UserID),
						slog.String("error", err.Error()),
					)
				}
				cache[log.UserID] = nil
				continue
			}
			summary = user.Summary()
			cache[log.UserID] = summary
		}
		log.Author = summary
	}
}

// asPointers converts a slice of values into pointers to its elements so
// attachAuthors can mutate the originals.
func asPointers(logs []model.BuildLog) []*model.BuildLog {
	out := make([]*model.BuildLog, len(logs))
	for i := range logs {
		out[i] = &logs[i]
	}
	return out
}
