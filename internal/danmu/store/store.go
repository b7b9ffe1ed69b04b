package store

import (
	"context"
	"errors"
	"time"
)

// Status is a comment's moderation lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusHidden  Status = "hidden"
	StatusDeleted Status = "deleted"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusHidden, StatusDeleted:
		return true
	}
	return false
}

// StatusFilter selects which lifecycle states a query returns.
type StatusFilter string

const (
	FilterActive StatusFilter = "active"
	FilterAll    StatusFilter = "all"
)

// Size is a rendering size hint.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Mode is the lane a comment is rendered in.
type Mode string

const (
	ModeTop    Mode = "top"
	ModeBottom Mode = "bottom"
	ModeScroll Mode = "scroll"
)

// Style carries the rendering hints attached to a comment.
type Style struct {
	Color string  `json:"color"`
	Size  Size    `json:"size"`
	Mode  Mode    `json:"mode"`
	Speed float64 `json:"speed"`
}

// Comment is a single overlay comment pinned to a playback timestamp.
type Comment struct {
	ID        string  `json:"id"`
	VideoID   string  `json:"video_id"`
	AuthorID  string  `json:"author_id"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
	Style     Style   `json:"style"`
	Status    Status  `json:"status"`

	CreatedAt        time.Time  `json:"created_at"`
	ModeratedAt      *time.Time `json:"moderated_at,omitempty"`
	ModeratedBy      string     `json:"moderated_by,omitempty"`
	ModerationReason string     `json:"moderation_reason,omitempty"`
}

// Sentinel errors shared by all store backends.
var (
	ErrNotFound          = errors.New("comment not found")
	ErrInvalidTransition = errors.New("status transition not allowed from current state")
	ErrUnavailable       = errors.New("comment store unavailable")
)

// CommentStore is the persistence contract for overlay comments.
// Implementations must make Insert and UpdateStatus atomic per comment;
// UpdateStatus is a compare-and-set so concurrent transitions on the same
// comment linearize at the store.
type CommentStore interface {
	// Insert persists a new comment. ID and CreatedAt are assigned when unset.
	Insert(ctx context.Context, c Comment) (Comment, error)

	// Get returns one comment. ErrNotFound when absent.
	Get(ctx context.Context, videoID, id string) (Comment, error)

	// UpdateStatus transitions a comment to the target status iff its current
	// status is in allowedFrom. A comment already at the target status is an
	// idempotent success. ErrNotFound when absent, ErrInvalidTransition when
	// the current status is not permitted.
	UpdateStatus(ctx context.Context, videoID, id string, to Status, allowedFrom []Status, moderatedBy, reason string) (Comment, error)

	// QueryByVideoAndTimeRange returns comments with minTS <= timestamp <= maxTS
	// ordered by timestamp asc, ties by created_at asc then id asc.
	QueryByVideoAndTimeRange(ctx context.Context, videoID string, minTS, maxTS float64, filter StatusFilter) ([]Comment, error)

	// QueryByVideo returns every comment for the video in the same order.
	// Latency-tolerant; used by the analytics path.
	QueryByVideo(ctx context.Context, videoID string, filter StatusFilter) ([]Comment, error)
}
