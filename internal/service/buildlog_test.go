package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ireddy/devhub-backend/internal/apperror"
	"github.com/ireddy/devhub-backend/internal/model"
	"github.com/ireddy/devhub-backend/internal/repository"
)

// =========================================================================
// MOCK REPOSITORIES
// =========================================================================
//
// WHAT IS A MOCK?
// A fake implementation of an interface used in tests. Instead of talking to
// SQLite, it stores data in memory. Tests run in microseconds, exercise only
// the service logic, and can simulate failures that are hard to trigger with
// a real database.
//
// mockBuildLogRepo implements repository.BuildLogRepository — the service
// doesn't know or care which implementation it gets. That's the point of
// depending on the interface.

type mockBuildLogRepo struct {
	logs   map[string]*model.BuildLog
	order  []string // insertion order; List returns the reverse (newest first)
	nextID int
}

func newMockBuildLogRepo() *mockBuildLogRepo {
	return &mockBuildLogRepo{logs: make(map[string]*model.BuildLog)}
}

func (m *mockBuildLogRepo) Create(_ context.Context, log *model.BuildLog) error {
	m.nextID++
	log.ID = fmt.Sprintf("log-%d", m.nextID)
	now := time.Now().UTC()
	log.CreatedAt = now
	log.UpdatedAt = now

	stored := *log
	m.logs[log.ID] = &stored
	m.order = append(m.order, log.ID)
	return nil
}

func (m *mockBuildLogRepo) GetByID(_ context.Context, id string) (*model.BuildLog, error) {
	log, ok := m.logs[id]
	if !ok {
		return nil, apperror.NotFound("build log", id)
	}
	result := *log
	return &result, nil
}

// newestFirst returns stored logs newest first, like the SQLite ORDER BY.
func (m *mockBuildLogRepo) newestFirst() []*model.BuildLog {
	out := make([]*model.BuildLog, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.logs[m.order[i]])
	}
	return out
}

func page(logs []model.BuildLog, opts repository.ListOptions) []model.BuildLog {
	if opts.Offset >= len(logs) {
		return []model.BuildLog{}
	}
	logs = logs[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(logs) {
		logs = logs[:opts.Limit]
	}
	return logs
}

func (m *mockBuildLogRepo) List(_ context.Context, opts repository.FeedOptions) ([]model.BuildLog, int, error) {
	matched := make([]model.BuildLog, 0, len(m.logs))
	for _, log := range m.newestFirst() {
		if !log.IsPublic {
			continue
		}
		if opts.Phase != "" && log.Phase != opts.Phase {
			continue
		}
		matched = append(matched, *log)
	}
	return page(matched, opts.ListOptions), len(matched), nil
}

func (m *mockBuildLogRepo) ListByUser(_ context.Context, userID string, includePrivate bool, opts repository.ListOptions) ([]model.BuildLog, int, error) {
	matched := make([]model.BuildLog, 0, len(m.logs))
	for _, log := range m.newestFirst() {
		if log.UserID != userID {
			continue
		}
		if !includePrivate && !log.IsPublic {
			continue
		}
		matched = append(matched, *log)
	}
	return page(matched, opts), len(matched), nil
}

func (m *mockBuildLogRepo) Mutate(_ context.Context, id string, fn repository.MutateFunc) (*model.BuildLog, error) {
	stored, ok := m.logs[id]
	if !ok {
		return nil, apperror.NotFound("build log", id)
	}

	// Work on a copy; only commit if fn succeeds — mirrors the transaction.
	working := *stored
	if err := fn(&working); err != nil {
		return nil, err
	}
	m.logs[id] = &working

	result := working
	return &result, nil
}

func (m *mockBuildLogRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.logs[id]; !ok {
		return apperror.NotFound("build log", id)
	}
	delete(m.logs, id)
	for i, stored := range m.order {
		if stored == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

type mockUserRepo struct {
	users  map[string]*model.User
	nextID int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.Email == strings.ToLower(user.Email) {
			return apperror.Conflict("user", "email already registered")
		}
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	user.Email = strings.ToLower(user.Email)

	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *user
	return &result, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *mockUserRepo) UpsertGitHub(_ context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.GitHubID == user.GitHubID {
			user.ID = u.ID
			u.Name = user.Name
			u.AvatarURL = user.AvatarURL
			return nil
		}
	}
	return m.Create(context.Background(), user)
}

func (m *mockUserRepo) AddBuildLogRef(_ context.Context, userID, logID string) error {
	user, ok := m.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	for _, id := range user.BuildLogs {
		if id == logID {
			return nil
		}
	}
	user.BuildLogs = append(user.BuildLogs, logID)
	return nil
}

func (m *mockUserRepo) RemoveBuildLogRef(_ context.Context, userID, logID string) error {
	user, ok := m.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	kept := user.BuildLogs[:0]
	for _, id := range user.BuildLogs {
		if id != logID {
			kept = append(kept, id)
		}
	}
	user.BuildLogs = kept
	return nil
}

// =========================================================================
// TEST HELPERS
// =========================================================================

func newTestService(t *testing.T) (*BuildLogService, *mockBuildLogRepo, *mockUserRepo) {
	t.Helper()
	logs := newMockBuildLogRepo()
	users := newMockUserRepo()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewBuildLogService(logs, users, logger)
	return svc, logs, users
}

// seedUser registers a user directly in the mock and returns their id.
func seedUser(t *testing.T, users *mockUserRepo, name string) string {
	t.Helper()
	user := &model.User{Name: name, Email: name + "@example.com"}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seeding user %s: %v", name, err)
	}
	return user.ID
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }
func strPtr(v string) *string {
	return &v
}

func validInput() CreateInput {
	return CreateInput{
		Title:       "Day 12: shipped auth",
		Description: "Wired up JWT auth end to end.",
		Day:         12,
		Phase:       model.PhaseBuilding,
	}
}

func mustCreate(t *testing.T, svc *BuildLogService, ownerID string, in CreateInput) *model.BuildLog {
	t.Helper()
	log, err := svc.Create(context.Background(), ownerID, in)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	return log
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate_Defaults(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")

	log := mustCreate(t, svc, owner, validInput())

	if log.ID == "" {
		t.Error("expected log to have an ID")
	}
	if !log.IsPublic {
		t.Error("isPublic should default to true")
	}
	if log.Progress != 0 {
		t.Errorf("Progress = %d, want 0", log.Progress)
	}
	if log.Likes == nil || len(log.Likes) != 0 {
		t.Error("Likes should be an empty, non-nil slice")
	}
	if log.Blockers == nil || len(log.Blockers) != 0 {
		t.Error("Blockers should be an empty, non-nil slice")
	}
}

func TestCreate_ExplicitPrivate(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")

	in := validInput()
	in.IsPublic = boolPtr(false)
	log := mustCreate(t, svc, owner, in)

	if log.IsPublic {
		t.Error("isPublic = true, want false when the client sends false")
	}
}

func TestCreate_AddsOwnerRef(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")

	log := mustCreate(t, svc, owner, validInput())

	user, _ := users.GetByID(context.Background(), owner)
	if len(user.BuildLogs) != 1 || user.BuildLogs[0] != log.ID {
		t.Errorf("owner index = %v, want [%s]", user.BuildLogs, log.ID)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")

	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"empty title", func(in *CreateInput) { in.Title = "  " }},
		{"title too long", func(in *CreateInput) { in.Title = strings.Repeat("a", MaxTitleLength+1) }},
		{"empty description", func(in *CreateInput) { in.Description = "" }},
		{"zero day", func(in *CreateInput) { in.Day = 0 }},
		{"negative day", func(in *CreateInput) { in.Day = -3 }},
		{"bad phase", func(in *CreateInput) { in.Phase = "shipping" }},
		{"progress over 100", func(in *CreateInput) { in.Progress = intPtr(150) }},
		{"negative progress", func(in *CreateInput) { in.Progress = intPtr(-1) }},
		{"bad attachment type", func(in *CreateInput) {
			in.Attachments = []model.Attachment{{Type: "video", URL: "https://x"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), owner, in)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreate_DeduplicatesTags(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")

	in := validInput()
	in.Tags = []string{"go", " go ", "sqlite", "", "go"}
	log := mustCreate(t, svc, owner, in)

	want := []string{"go", "sqlite"}
	if len(log.Tags) != len(want) {
		t.Fatalf("Tags = %v, want %v", log.Tags, want)
	}
	for i := range want {
		if log.Tags[i] != want[i] {
			t.Errorf("Tags[%d] = %q, want %q", i, log.Tags[i], want[i])
		}
	}
}

// =========================================================================
// LIST / VISIBILITY TESTS
// =========================================================================

func TestList_InvalidPhaseIsNoFilter(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")

	mustCreate(t, svc, owner, validInput())
	in := validInput()
	in.Phase = model.PhaseTesting
	mustCreate(t, svc, owner, in)

	logs, pagination, err := svc.List(context.Background(), "not-a-phase", 1, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("List() with invalid phase returned %d logs, want all 2", len(logs))
	}
	if pagination.TotalLogs != 2 {
		t.Errorf("TotalLogs = %d, want 2", pagination.TotalLogs)
	}
}

func TestList_PhaseFilter(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")

	mustCreate(t, svc, owner, validInput()) // building
	in := validInput()
	in.Phase = model.PhaseTesting
	mustCreate(t, svc, owner, in)

	logs, _, err := svc.List(context.Background(), "testing", 1, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Phase != model.PhaseTesting {
		t.Errorf("List(testing) = %d logs, want exactly the testing one", len(logs))
	}
}

func TestList_ExcludesPrivate(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")

	in := validInput()
	in.IsPublic = boolPtr(false)
	mustCreate(t, svc, owner, in)
	mustCreate(t, svc, owner, validInput())

	logs, pagination, err := svc.List(context.Background(), "", 1, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("List() returned %d logs, want 1 (private excluded)", len(logs))
	}
	if pagination.TotalLogs != 1 {
		t.Errorf("TotalLogs = %d, want 1 — private logs must not count either", pagination.TotalLogs)
	}
}

func TestList_PaginationMath(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")

	for i := 0; i < 25; i++ {
		mustCreate(t, svc, owner, validInput())
	}

	logs, pagination, err := svc.List(context.Background(), "", 3, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(logs) != 5 {
		t.Errorf("page 3 of 25 with limit 10 has %d logs, want 5", len(logs))
	}
	if pagination.CurrentPage != 3 {
		t.Errorf("CurrentPage = %d, want 3", pagination.CurrentPage)
	}
	if pagination.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", pagination.TotalPages)
	}
	if pagination.TotalLogs != 25 {
		t.Errorf("TotalLogs = %d, want 25", pagination.TotalLogs)
	}
}

func TestList_ClampsBadValues(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	mustCreate(t, svc, owner, validInput())

	_, pagination, err := svc.List(context.Background(), "", -2, 100000)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if pagination.CurrentPage != 1 {
		t.Errorf("CurrentPage = %d, want clamped to 1", pagination.CurrentPage)
	}
}

func TestListByUser_PrivateVisibility(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	other := seedUser(t, users, "bob")

	in := validInput()
	in.IsPublic = boolPtr(false)
	mustCreate(t, svc, owner, in)
	mustCreate(t, svc, owner, validInput())

	// The owner sees both.
	logs, _, err := svc.ListByUser(context.Background(), owner, owner, 1, 10)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("owner sees %d logs, want 2", len(logs))
	}

	// Another user sees only the public one.
	logs, _, err = svc.ListByUser(context.Background(), owner, other, 1, 10)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("non-owner sees %d logs, want 1", len(logs))
	}

	// Anonymous sees only the public one.
	logs, _, err = svc.ListByUser(context.Background(), owner, "", 1, 10)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("anonymous sees %d logs, want 1", len(logs))
	}
}

func TestGetByID_PrivateHiddenFromOthers(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	other := seedUser(t, users, "bob")

	in := validInput()
	in.IsPublic = boolPtr(false)
	log := mustCreate(t, svc, owner, in)

	if _, err := svc.GetByID(context.Background(), log.ID, owner); err != nil {
		t.Errorf("owner GetByID() error = %v", err)
	}

	_, err := svc.GetByID(context.Background(), log.ID, other)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("non-owner error = %v, want ErrNotFound — must look identical to a missing id", err)
	}
}

func TestGetByID_AttachesAuthor(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	log := mustCreate(t, svc, owner, validInput())

	found, err := svc.GetByID(context.Background(), log.ID, "")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Author == nil || found.Author.Name != "alice" {
		t.Errorf("Author = %+v, want alice's summary", found.Author)
	}
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUpdate_PartialPatch(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	log := mustCreate(t, svc, owner, validInput())

	updated, err := svc.Update(context.Background(), log.ID, owner, UpdatePatch{
		Title: strPtr("new title"),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.Title != "new title" {
		t.Errorf("Title = %q, want %q", updated.Title, "new title")
	}
	if updated.Description != log.Description {
		t.Errorf("Description changed on a title-only patch")
	}
	if updated.Day != log.Day {
		t.Errorf("Day changed on a title-only patch")
	}
}

func TestUpdate_RejectsDirectProgress(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	log := mustCreate(t, svc, owner, validInput())

	_, err := svc.Update(context.Background(), log.ID, owner, UpdatePatch{
		Progress: intPtr(50),
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation — progress has a single write path", err)
	}

	// The log must be untouched.
	after, _ := svc.GetByID(context.Background(), log.ID, owner)
	if after.Progress != 0 {
		t.Errorf("Progress = %d after rejected patch, want 0", after.Progress)
	}
}

func TestUpdate_NonOwnerGetsNotFound(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	other := seedUser(t, users, "bob")
	log := mustCreate(t, svc, owner, validInput())

	_, err := svc.Update(context.Background(), log.ID, other, UpdatePatch{Title: strPtr("hijack")})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for non-owner", err)
	}
}

func TestDelete_RemovesLogAndOwnerRef(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	log := mustCreate(t, svc, owner, validInput())

	if err := svc.Delete(context.Background(), log.ID, owner); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := svc.GetByID(context.Background(), log.ID, owner)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("after delete: error = %v, want ErrNotFound", err)
	}

	user, _ := users.GetByID(context.Background(), owner)
	if len(user.BuildLogs) != 0 {
		t.Errorf("owner index = %v after delete, want empty", user.BuildLogs)
	}
}

func TestDelete_NonOwnerGetsNotFound(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	other := seedUser(t, users, "bob")
	log := mustCreate(t, svc, owner, validInput())

	err := svc.Delete(context.Background(), log.ID, other)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for non-owner", err)
	}

	// Still there for the owner.
	if _, err := svc.GetByID(context.Background(), log.ID, owner); err != nil {
		t.Errorf("log vanished after a rejected delete: %v", err)
	}
}

// =========================================================================
// ENGAGEMENT TESTS
// =========================================================================

func TestToggleLike_IsItsOwnInverse(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	liker := seedUser(t, users, "bob")
	log := mustCreate(t, svc, owner, validInput())

	count, liked, err := svc.ToggleLike(context.Background(), log.ID, liker)
	if err != nil {
		t.Fatalf("ToggleLike() error = %v", err)
	}
	if count != 1 || !liked {
		t.Errorf("first toggle: count=%d liked=%v, want 1/true", count, liked)
	}

	count, liked, err = svc.ToggleLike(context.Background(), log.ID, liker)
	if err != nil {
		t.Fatalf("ToggleLike() error = %v", err)
	}
	if count != 0 || liked {
		t.Errorf("second toggle: count=%d liked=%v, want 0/false", count, liked)
	}
}

func TestToggleLike_OnePerUser(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	a := seedUser(t, users, "bob")
	b := seedUser(t, users, "carol")
	log := mustCreate(t, svc, owner, validInput())

	svc.ToggleLike(context.Background(), log.ID, a)
	count, _, err := svc.ToggleLike(context.Background(), log.ID, b)
	if err != nil {
		t.Fatalf("ToggleLike() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d after two distinct users, want 2", count)
	}
}

func TestAddComment_Success(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	commenter := seedUser(t, users, "bob")
	log := mustCreate(t, svc, owner, validInput())

	comment, err := svc.AddComment(context.Background(), log.ID, commenter, "  nice work  ")
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if comment.ID == "" {
		t.Error("comment should have a server-assigned id")
	}
	if comment.Text != "nice work" {
		t.Errorf("Text = %q, want trimmed %q", comment.Text, "nice work")
	}
	if comment.CreatedAt.IsZero() {
		t.Error("comment should have a server-assigned timestamp")
	}

	after, _ := svc.GetByID(context.Background(), log.ID, owner)
	if len(after.Comments) != 1 {
		t.Errorf("log has %d comments, want 1", len(after.Comments))
	}
}

func TestAddComment_EmptyText(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	log := mustCreate(t, svc, owner, validInput())

	_, err := svc.AddComment(context.Background(), log.ID, owner, "   ")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestAddHelpRequest_Success(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	helper := seedUser(t, users, "bob")
	log := mustCreate(t, svc, owner, validInput())

	hr, err := svc.AddHelpRequest(context.Background(), log.ID, helper, "stuck on CORS")
	if err != nil {
		t.Fatalf("AddHelpRequest() error = %v", err)
	}
	if hr.Message != "stuck on CORS" {
		t.Errorf("Message = %q", hr.Message)
	}
}

// =========================================================================
// PROGRESS TESTS
// =========================================================================

func TestAddProgressUpdate_UpdatesCachedProgress(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	log := mustCreate(t, svc, owner, validInput())

	updated, err := svc.AddProgressUpdate(context.Background(), log.ID, owner, 40, "auth done", nil)
	if err != nil {
		t.Fatalf("AddProgressUpdate() error = %v", err)
	}
	if updated.Progress != 40 {
		t.Errorf("Progress = %d, want 40", updated.Progress)
	}

	updated, err = svc.AddProgressUpdate(context.Background(), log.ID, owner, 65, "", nil)
	if err != nil {
		t.Fatalf("AddProgressUpdate() error = %v", err)
	}
	if updated.Progress != 65 {
		t.Errorf("Progress = %d, want the latest percentage 65", updated.Progress)
	}
	if len(updated.ProgressUpdates) != 2 {
		t.Errorf("history has %d entries, want 2 — the history is append-only", len(updated.ProgressUpdates))
	}
	if updated.ProgressUpdates[0].Percentage != 40 {
		t.Errorf("first history entry = %d, want 40 preserved", updated.ProgressUpdates[0].Percentage)
	}
}

func TestAddProgressUpdate_RangeValidation(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	log := mustCreate(t, svc, owner, validInput())

	for _, bad := range []int{-1, 101} {
		_, err := svc.AddProgressUpdate(context.Background(), log.ID, owner, bad, "", nil)
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("percentage %d: error = %v, want ErrValidation", bad, err)
		}
	}
}

func TestAddProgressUpdate_OwnerOnly(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	other := seedUser(t, users, "bob")
	log := mustCreate(t, svc, owner, validInput())

	_, err := svc.AddProgressUpdate(context.Background(), log.ID, other, 10, "", nil)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for non-owner", err)
	}
}

func TestAddProgressUpdate_ClientDate(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	log := mustCreate(t, svc, owner, validInput())

	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	updated, err := svc.AddProgressUpdate(context.Background(), log.ID, owner, 10, "", &when)
	if err != nil {
		t.Fatalf("AddProgressUpdate() error = %v", err)
	}
	if !updated.ProgressUpdates[0].Date.Equal(when) {
		t.Errorf("Date = %v, want the client-supplied %v", updated.ProgressUpdates[0].Date, when)
	}
}

// =========================================================================
// BLOCKER / SOLUTION TESTS
// =========================================================================

// blockerFixture creates a log with one open blocker and returns both ids.
func blockerFixture(t *testing.T, svc *BuildLogService, owner string) (logID, blockerID string) {
	t.Helper()
	log := mustCreate(t, svc, owner, validInput())
	blocker, err := svc.AddBlocker(context.Background(), log.ID, owner, "CORS errors", "preflight keeps failing")
	if err != nil {
		t.Fatalf("setup: AddBlocker() error = %v", err)
	}
	return log.ID, blocker.ID
}

func TestAddBlocker_StartsOpen(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	logID, blockerID := blockerFixture(t, svc, owner)

	log, _ := svc.GetByID(context.Background(), logID, owner)
	blocker := log.FindBlocker(blockerID)
	if blocker == nil {
		t.Fatal("blocker not stored on the log")
	}
	if blocker.Status != model.BlockerOpen {
		t.Errorf("Status = %q, want open", blocker.Status)
	}
	if blocker.ResolvedAt != nil {
		t.Error("ResolvedAt should be nil until resolution")
	}
	if blocker.Solutions == nil || len(blocker.Solutions) != 0 {
		t.Error("Solutions should start as an empty, non-nil slice")
	}
}

func TestAddBlocker_OwnerOnly(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	other := seedUser(t, users, "bob")
	log := mustCreate(t, svc, owner, validInput())

	_, err := svc.AddBlocker(context.Background(), log.ID, other, "t", "d")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for non-owner", err)
	}
}

func TestAddSolution_AnyUser(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	helper := seedUser(t, users, "bob")
	logID, blockerID := blockerFixture(t, svc, owner)

	solution, err := svc.AddSolution(context.Background(), logID, blockerID, helper, "add the cors middleware")
	if err != nil {
		t.Fatalf("AddSolution() error = %v", err)
	}
	if solution.ID == "" {
		t.Error("solution should have a server-assigned id")
	}
	if solution.IsAccepted {
		t.Error("new solution must not start accepted")
	}
}

func TestAddSolution_UnknownBlocker(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	log := mustCreate(t, svc, owner, validInput())

	_, err := svc.AddSolution(context.Background(), log.ID, "nope", owner, "text")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestAddSolution_AllowedOnResolvedBlocker(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	helper := seedUser(t, users, "bob")
	logID, blockerID := blockerFixture(t, svc, owner)

	if _, err := svc.ResolveBlocker(context.Background(), logID, blockerID, owner, ""); err != nil {
		t.Fatalf("setup: ResolveBlocker() error = %v", err)
	}

	// A late answer is still useful to the next reader.
	if _, err := svc.AddSolution(context.Background(), logID, blockerID, helper, "late but correct"); err != nil {
		t.Errorf("AddSolution() on resolved blocker error = %v, want nil", err)
	}
}

func TestVoteSolution_IsItsOwnInverse(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	voter := seedUser(t, users, "bob")
	logID, blockerID := blockerFixture(t, svc, owner)

	solution, _ := svc.AddSolution(context.Background(), logID, blockerID, owner, "fix")

	upvotes, err := svc.VoteSolution(context.Background(), logID, blockerID, solution.ID, voter)
	if err != nil {
		t.Fatalf("VoteSolution() error = %v", err)
	}
	if upvotes != 1 {
		t.Errorf("first vote: upvotes = %d, want 1", upvotes)
	}

	upvotes, err = svc.VoteSolution(context.Background(), logID, blockerID, solution.ID, voter)
	if err != nil {
		t.Fatalf("VoteSolution() error = %v", err)
	}
	if upvotes != 0 {
		t.Errorf("second vote: upvotes = %d, want 0 — voting again retracts", upvotes)
	}
}

func TestResolveBlocker_SetsStatusAndTimestamp(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	logID, blockerID := blockerFixture(t, svc, owner)

	blocker, err := svc.ResolveBlocker(context.Background(), logID, blockerID, owner, "")
	if err != nil {
		t.Fatalf("ResolveBlocker() error = %v", err)
	}
	if blocker.Status != model.BlockerResolved {
		t.Errorf("Status = %q, want resolved", blocker.Status)
	}
	if blocker.ResolvedAt == nil {
		t.Fatal("ResolvedAt should be set on resolution")
	}
}

func TestResolveBlocker_ResolutionIsTerminal(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	logID, blockerID := blockerFixture(t, svc, owner)

	first, err := svc.ResolveBlocker(context.Background(), logID, blockerID, owner, "")
	if err != nil {
		t.Fatalf("ResolveBlocker() error = %v", err)
	}

	// Resolving again must keep the ORIGINAL timestamp.
	second, err := svc.ResolveBlocker(context.Background(), logID, blockerID, owner, "")
	if err != nil {
		t.Fatalf("second ResolveBlocker() error = %v", err)
	}
	if !second.ResolvedAt.Equal(*first.ResolvedAt) {
		t.Errorf("ResolvedAt moved from %v to %v on re-resolve", first.ResolvedAt, second.ResolvedAt)
	}
}

func TestResolveBlocker_AcceptsSolution(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	helper := seedUser(t, users, "bob")
	logID, blockerID := blockerFixture(t, svc, owner)

	s1, _ := svc.AddSolution(context.Background(), logID, blockerID, helper, "first idea")
	s2, _ := svc.AddSolution(context.Background(), logID, blockerID, helper, "second idea")

	blocker, err := svc.ResolveBlocker(context.Background(), logID, blockerID, owner, s1.ID)
	if err != nil {
		t.Fatalf("ResolveBlocker() error = %v", err)
	}
	if !blocker.FindSolution(s1.ID).IsAccepted {
		t.Error("accepted solution not marked")
	}

	// Moving the acceptance un-marks the previous one.
	blocker, err = svc.ResolveBlocker(context.Background(), logID, blockerID, owner, s2.ID)
	if err != nil {
		t.Fatalf("re-accept ResolveBlocker() error = %v", err)
	}
	if blocker.FindSolution(s1.ID).IsAccepted {
		t.Error("previous accepted solution still marked — at most one may carry the mark")
	}
	if !blocker.FindSolution(s2.ID).IsAccepted {
		t.Error("new accepted solution not marked")
	}
}

func TestResolveBlocker_UnknownSolution(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	logID, blockerID := blockerFixture(t, svc, owner)

	_, err := svc.ResolveBlocker(context.Background(), logID, blockerID, owner, "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}

	// The failed acceptance must not have resolved the blocker either —
	// Mutate rolls the whole change back.
	log, _ := svc.GetByID(context.Background(), logID, owner)
	if log.FindBlocker(blockerID).Status != model.BlockerOpen {
		t.Error("blocker resolved despite the rejected solution id")
	}
}

func TestResolveBlocker_OwnerOnly(t *testing.T) {
	svc, _, users := newTestService(t)
	owner := seedUser(t, users, "alice")
	other := seedUser(t, users, "bob")
	logID, blockerID := blockerFixture(t, svc, owner)

	_, err := svc.ResolveBlocker(context.Background(), logID, blockerID, other, "")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for non-owner", err)
	}
}
