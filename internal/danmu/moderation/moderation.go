// Package moderation governs the active/hidden/deleted lifecycle of overlay
// comments and who may trigger each transition.
package moderation

import (
	"errors"
	"strings"

	"github.com/example/danmu-platform/internal/danmu/store"
	"github.com/example/danmu-platform/internal/platform/auth"
)

// DefaultHideReason is stamped when a moderator hides a comment without
// giving a reason.
const DefaultHideReason = "violates community guidelines"

var (
	ErrForbidden         = errors.New("requester may not perform this transition")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// Actor is the already-verified identity attempting a transition.
type Actor struct {
	ID   string
	Role auth.Role
}

// Decision describes an authorized transition for the store to apply
// atomically.
type Decision struct {
	To          store.Status
	AllowedFrom []store.Status
	Reason      string
}

// Decide checks whether actor may move the comment to target and returns the
// compare-and-set inputs. It performs no mutation itself.
//
// Transition guards:
//   - active -> deleted: author or admin
//   - active -> hidden:  moderator or admin, reason required (defaulted)
//   - hidden -> deleted: moderator or admin
//
// A comment already at the target status is authorized under the same guards
// so that repeated requests stay idempotent.
func Decide(actor Actor, current store.Comment, target store.Status, reason string) (Decision, error) {
	if !target.Valid() || target == store.StatusActive {
		// No transition re-activates a comment; deleted is terminal and
		// hidden has no exposed unhide path.
		return Decision{}, ErrInvalidTransition
	}

	switch target {
	case store.StatusDeleted:
		isAuthor := actor.ID != "" && actor.ID == current.AuthorID
		switch {
		case current.Status == store.StatusActive && (isAuthor || actor.Role.IsAdmin()):
			return Decision{To: target, AllowedFrom: []store.Status{store.StatusActive}}, nil
		case current.Status != store.StatusActive && actor.Role.CanModerate():
			// hidden -> deleted, and deleted -> deleted idempotence.
			return Decision{To: target, AllowedFrom: []store.Status{store.StatusActive, store.StatusHidden}}, nil
		case current.Status == store.StatusDeleted && isAuthor:
			return Decision{To: target, AllowedFrom: []store.Status{store.StatusActive, store.StatusHidden}}, nil
		}
		return Decision{}, ErrForbidden

	case store.StatusHidden:
		if !actor.Role.CanModerate() {
			return Decision{}, ErrForbidden
		}
		if current.Status == store.StatusDeleted {
			return Decision{}, ErrInvalidTransition
		}
		r := strings.TrimSpace(reason)
		if r == "" {
			r = DefaultHideReason
		}
		return Decision{To: target, AllowedFrom: []store.Status{store.StatusActive}, Reason: r}, nil
	}

	return Decision{}, ErrInvalidTransition
}
