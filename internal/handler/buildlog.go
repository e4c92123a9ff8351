package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ireddy/devhub-backend/internal/auth"
	"github.com/ireddy/devhub-backend/internal/model"
	"github.com/ireddy/devhub-backend/internal/service"
)

// BuildLogHandler exposes the build-log workflow over HTTP.
//
// Each handler method does exactly three things: pull parameters out of the
// request, call one service method, and write the JSON response. All
// validation and business rules live in the service — if you find an `if`
// about domain state here, it's in the wrong layer.
type BuildLogHandler struct {
	buildLogs *service.BuildLogService
	logger    *slog.Logger
}

// NewBuildLogHandler creates a BuildLogHandler.
func NewBuildLogHandler(buildLogs *service.BuildLogService, logger *slog.Logger) *BuildLogHandler {
	return &BuildLogHandler{buildLogs: buildLogs, logger: logger}
}

// requesterID returns the authenticated user id, or "" for anonymous
// requests (possible on OptionalAuth routes).
func requesterID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// pageParams reads ?page= and ?limit= from the query string. Unparseable or
// missing values come back as 0 and are defaulted by the service.
func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

// createRequest mirrors the creation body.
//
// WHY POINTERS FOR progress AND isPublic?
// JSON has no way to tell "field absent" from "field zero" after decoding
// into plain int/bool. Pointers keep that distinction: nil means the client
// didn't send the field, so the default applies (0 / true).
type createRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Day         int                `json:"day"`
	Phase       model.Phase        `json:"phase"`
	Progress    *int               `json:"progress"`
	Attachments []model.Attachment `json:"attachments"`
	Tags        []string           `json:"tags"`
	IsPublic    *bool              `json:"isPublic"`
}

// HandleCreate creates a new build log.
//
// HTTP: POST /buildlogs/create (auth required)
func (h *BuildLogHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid JSON body"})
		return
	}

	log, err := h.buildLogs.Create(r.Context(), requesterID(r), service.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Day:         req.Day,
		Phase:       req.Phase,
		Progress:    req.Progress,
		Attachments: req.Attachments,
		Tags:        req.Tags,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "Build log created successfully",
		"buildLog": log,
	})
}

// HandleList returns the public feed.
//
// HTTP: GET /buildlogs?phase=&page=&limit= (no auth)
//
// An unknown phase value is not an error — the filter is simply skipped.
func (h *BuildLogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	logs, pagination, err := h.buildLogs.List(r.Context(), r.URL.Query().Get("phase"), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"buildLogs":  logs,
		"pagination": pagination,
	})
}

// HandleListByUser returns one user's logs. Anonymous callers and other
// users see public logs only; the owner also sees their private ones.
//
// HTTP: GET /buildlogs/user/{userId}?page=&limit= (auth optional)
func (h *BuildLogHandler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	logs, pagination, err := h.buildLogs.ListByUser(r.Context(), r.PathValue("userId"), requesterID(r), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"buildLogs":  logs,
		"pagination": pagination,
	})
}

// HandleGet returns a single build log.
//
// HTTP: GET /buildlogs/{id} (auth optional — private logs need the owner)
func (h *BuildLogHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	log, err := h.buildLogs.GetByID(r.Context(), r.PathValue("id"), requesterID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"buildLog": log})
}

// HandleToggleLike likes — or unlikes — a build log.
//
// HTTP: PUT /buildlogs/like/{id} (auth required)
func (h *BuildLogHandler) HandleToggleLike(w http.ResponseWriter, r *http.Request) {
	likesCount, isLiked, err := h.buildLogs.ToggleLike(r.Context(), r.PathValue("id"), requesterID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	message := "Like removed"
	if isLiked {
		message = "Build log liked"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    message,
		"likesCount": likesCount,
		"isLiked":    isLiked,
	})
}

// HandleAddComment appends a comment to a build log.
//
// HTTP: POST /buildlogs/comment/{id} (auth required)
func (h *BuildLogHandler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid JSON body"})
		return
	}

	comment, err := h.buildLogs.AddComment(r.Context(), r.PathValue("id"), requesterID(r), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Comment added successfully",
		"comment": comment,
	})
}

// HandleAddHelpRequest appends a help request to a build log.
//
// HTTP: POST /buildlogs/help/{id} (auth required)
func (h *BuildLogHandler) HandleAddHelpRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid JSON body"})
		return
	}

	helpRequest, err := h.buildLogs.AddHelpRequest(r.Context(), r.PathValue("id"), requesterID(r), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Help request sent successfully",
		"helpRequest": helpRequest,
	})
}

// updateRequest mirrors the partial-update body: every field is a pointer,
// and only non-nil fields are applied. Absent is NOT the same as zero — a
// missing title leaves the title alone, it doesn't blank it.
type updateRequest struct {
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	Day         *int                `json:"day"`
	Phase       *model.Phase        `json:"phase"`
	Progress    *int                `json:"progress"`
	Attachments *[]model.Attachment `json:"attachments"`
	Tags        *[]string           `json:"tags"`
	IsPublic    *bool               `json:"isPublic"`
}

// HandleUpdate applies a partial update to a build log.
//
// HTTP: PUT /buildlogs/{id} (owner only)
func (h *BuildLogHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid JSON body"})
		return
	}

	log, err := h.buildLogs.Update(r.Context(), r.PathValue("id"), requesterID(r), service.UpdatePatch{
		Title:       req.Title,
		Description: req.Description,
		Day:         req.Day,
		Phase:       req.Phase,
		Progress:    req.Progress,
		Attachments: req.Attachments,
		Tags:        req.Tags,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Build log updated successfully",
		"buildLog": log,
	})
}

// HandleDelete removes a build log.
//
// HTTP: DELETE /buildlogs/{id} (owner only)
func (h *BuildLogHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.buildLogs.Delete(r.Context(), r.PathValue("id"), requesterID(r)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Build log deleted successfully",
	})
}

// HandleAddProgress appends a progress update (and refreshes the log's
// top-level progress).
//
// HTTP: POST /buildlogs/{id}/progress (owner only)
func (h *BuildLogHandler) HandleAddProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Percentage *int       `json:"percentage"`
		Note       string     `json:"note"`
		Date       *time.Time `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid JSON body"})
		return
	}
	if req.Percentage == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "percentage is required"})
		return
	}

	log, err := h.buildLogs.AddProgressUpdate(r.Context(), r.PathValue("id"), requesterID(r), *req.Percentage, req.Note, req.Date)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Progress update added",
		"buildLog": log,
	})
}

// HandleAddBlocker reports a blocker on a build log.
//
// HTTP: POST /buildlogs/{id}/blocker (owner only)
func (h *BuildLogHandler) HandleAddBlocker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid JSON body"})
		return
	}

	blocker, err := h.buildLogs.AddBlocker(r.Context(), r.PathValue("id"), requesterID(r), req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Blocker added",
		"blocker": blocker,
	})
}

// HandleResolveBlocker marks a blocker resolved, optionally accepting one
// of its solutions.
//
// HTTP: PUT /buildlogs/{id}/blocker/{blockerId}/resolve (owner only)
func (h *BuildLogHandler) HandleResolveBlocker(w http.ResponseWriter, r *http.Request) {
	// The body is optional — resolving without accepting a solution is fine.
	var req struct {
		SolutionID string `json:"solutionId"`
	}
	if r.Body != nil {
		// Decode errors on an empty body are expected; ignore them.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	blocker, err := h.buildLogs.ResolveBlocker(r.Context(), r.PathValue("id"), r.PathValue("blockerId"), requesterID(r), req.SolutionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Blocker resolved",
		"blocker": blocker,
	})
}

// HandleAddSolution proposes a solution to a blocker.
//
// HTTP: POST /buildlogs/{id}/blocker/{blockerId}/solution (auth required)
func (h *BuildLogHandler) HandleAddSolution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid JSON body"})
		return
	}

	solution, err := h.buildLogs.AddSolution(r.Context(), r.PathValue("id"), r.PathValue("blockerId"), requesterID(r), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Solution added",
		"solution": solution,
	})
}

// HandleVoteSolution toggles the caller's upvote on a solution.
//
// HTTP: PUT /buildlogs/{id}/blocker/{blockerId}/solution/{solutionId}/vote (auth required)
func (h *BuildLogHandler) HandleVoteSolution(w http.ResponseWriter, r *http.Request) {
	upvotes, err := h.buildLogs.VoteSolution(r.Context(),
		r.PathValue("id"), r.PathValue("blockerId"), r.PathValue("solutionId"), requesterID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Vote updated",
		"upvotes": upvotes,
	})
}
