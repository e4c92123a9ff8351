// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Phase identifies which stage of work a build log entry belongs to.
//
// WHY A NAMED STRING TYPE?
// Using `type Phase string` instead of plain string gives us a place to hang
// the ValidPhase check and makes function signatures self-documenting:
// `phase Phase` says more than `phase string`.
type Phase string

const (
	PhaseLearning        Phase = "learning"
	PhaseBuilding        Phase = "building"
	PhaseTesting         Phase = "testing"
	PhaseDeployment      Phase = "deployment"
	PhaseTroubleshooting Phase = "troubleshooting"
)

// ValidPhase reports whether p is one of the five allowed phases.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseLearning, PhaseBuilding, PhaseTesting, PhaseDeployment, PhaseTroubleshooting:
		return true
	}
	return false
}

// BlockerStatus is the lifecycle state of a blocker: open → resolved.
// There is no way back — resolution is terminal.
type BlockerStatus string

const (
	BlockerOpen     BlockerStatus = "open"
	BlockerResolved BlockerStatus = "resolved"
)

// AttachmentType is the kind of media attached to a build log.
type AttachmentType string

const (
	AttachmentImage      AttachmentType = "image"
	AttachmentCode       AttachmentType = "code"
	AttachmentLink       AttachmentType = "link"
	AttachmentScreenshot AttachmentType = "screenshot"
)

// ValidAttachmentType reports whether t is one of the allowed attachment kinds.
func ValidAttachmentType(t AttachmentType) bool {
	switch t {
	case AttachmentImage, AttachmentCode, AttachmentLink, AttachmentScreenshot:
		return true
	}
	return false
}

// BuildLog is one dated entry in a developer's learning journal.
//
// AGGREGATE DESIGN:
// A BuildLog OWNS its likes, comments, help requests, progress updates and
// blockers — they are embedded value objects, not independent tables. A like
// or a solution only makes sense inside its parent log, so the log is the
// natural consistency boundary: every mutation loads the aggregate, changes
// it, and writes it back atomically (see repository/sqlite).
//
// The `json:"..."` struct tags drive both the HTTP responses and the JSON
// serialization of the embedded collections into their storage columns.
type BuildLog struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"` // owner; immutable after creation
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Day         int       `json:"day"` // user-supplied sequence number, e.g. "Day 12"
	Phase       Phase     `json:"phase"`
	Progress    int       `json:"progress"` // cached projection of the last progress update
	Tags        []string  `json:"tags"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Attachments     []Attachment     `json:"attachments"`
	Likes           []Like           `json:"likes"`
	Comments        []Comment        `json:"comments"`
	HelpRequests    []HelpRequest    `json:"helpRequests"`
	ProgressUpdates []ProgressUpdate `json:"progressUpdates"`
	Blockers        []Blocker        `json:"blockers"`

	// Author is the owner's public summary, filled in by the service layer
	// when composing responses. Never persisted with the aggregate.
	Author *UserSummary `json:"author,omitempty"`
}

// LikesCount returns the number of likes. Exposed as a method (not a stored
// field) so it can never drift from the likes set itself.
func (b *BuildLog) LikesCount() int { return len(b.Likes) }

// LikedBy reports whether userID has liked this log.
func (b *BuildLog) LikedBy(userID string) bool {
	for _, l := range b.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}

// OpenBlockerCount returns how many blockers are still open.
func (b *BuildLog) OpenBlockerCount() int {
	n := 0
	for _, bl := range b.Blockers {
		if bl.Status == BlockerOpen {
			n++
		}
	}
	return n
}

// FindBlocker returns the blocker with the given id, or nil.
//
// WHY RETURN A POINTER INTO THE SLICE?
// Callers mutate blockers in place while the aggregate is held inside a
// repository Mutate callback. Returning &b.Blockers[i] (not a copy) means the
// caller's changes land in the aggregate that gets written back.
func (b *BuildLog) FindBlocker(blockerID string) *Blocker {
	for i := range b.Blockers {
		if b.Blockers[i].ID == blockerID {
			return &b.Blockers[i]
		}
	}
	return nil
}

// Attachment is a piece of media attached to a build log entry.
type Attachment struct {
	Type    AttachmentType `json:"type"`
	URL     string         `json:"url"`
	Caption string         `json:"caption,omitempty"`
}

// Like records that one user liked a log. One entry per user — toggling a
// like removes the entry rather than adding a second one.
type Like struct {
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Comment is a reader's remark on a build log.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// HelpRequest is a "please help me with this" message on a build log.
type HelpRequest struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProgressUpdate is one entry in the append-only progress history.
//
// INVARIANT: BuildLog.Progress always equals the Percentage of the most
// recently appended update (when any exist). The service layer is the only
// writer of both, and always writes them together.
type ProgressUpdate struct {
	Percentage int       `json:"percentage"` // 0–100
	Note       string    `json:"note"`
	Date       time.Time `json:"date"`
}

// Blocker is an obstacle the author hit while building.
type Blocker struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      BlockerStatus `json:"status"`
	Solutions   []Solution    `json:"solutions"`
	CreatedAt   time.Time     `json:"createdAt"`
	// ResolvedAt is set exactly once, on the open → resolved transition.
	// A pointer so that "never resolved" serializes as null, not a zero date.
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// FindSolution returns the solution with the given id, or nil.
// Like FindBlocker, it returns a pointer into the slice for in-place mutation.
func (bl *Blocker) FindSolution(solutionID string) *Solution {
	for i := range bl.Solutions {
		if bl.Solutions[i].ID == solutionID {
			return &bl.Solutions[i]
		}
	}
	return nil
}

// Solution is a community-submitted fix proposal for a blocker.
//
// Upvotes is a set of user ids (toggle semantics, each user at most once).
// At most one solution per blocker has IsAccepted = true; accepting a new one
// un-marks the previous one (enforced in the service layer).
type Solution struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"` // the author of the solution
	Text       string    `json:"text"`
	Upvotes    []string  `json:"upvotes"`
	IsAccepted bool      `json:"isAccepted"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UpvotedBy reports whether userID has upvoted this solution.
func (s *Solution) UpvotedBy(userID string) bool {
	for _, id := range s.Upvotes {
		if id == userID {
			return true
		}
	}
	return false
}
