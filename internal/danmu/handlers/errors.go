package handlers

import (
	"errors"
	"net/http"

	"github.com/example/danmu-platform/internal/danmu/moderation"
	"github.com/example/danmu-platform/internal/danmu/service"
	"github.com/example/danmu-platform/internal/danmu/store"
	"github.com/example/danmu-platform/internal/danmu/video"
	"github.com/example/danmu-platform/internal/platform/api"
	"github.com/example/danmu-platform/internal/platform/auth"
	"github.com/example/danmu-platform/internal/platform/httpserver"
)

func moderationActor(r *http.Request, userID string) moderation.Actor {
	return moderation.Actor{ID: userID, Role: auth.RoleFromContext(r.Context())}
}

// writeServiceError maps the service error taxonomy onto the HTTP envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())

	switch {
	case errors.Is(err, service.ErrValidation):
		api.BadRequest(w, "VALIDATION", err.Error(), rid, nil)
	case errors.Is(err, moderation.ErrForbidden):
		api.Forbidden(w, "FORBIDDEN", "not allowed to perform this action", rid)
	case errors.Is(err, store.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "comment not found", rid)
	case errors.Is(err, video.ErrUnknownVideo):
		api.NotFound(w, "UNKNOWN_VIDEO", "video not found", rid)
	case errors.Is(err, moderation.ErrInvalidTransition), errors.Is(err, store.ErrInvalidTransition):
		api.Conflict(w, "INVALID_TRANSITION", "comment state does not allow this transition", rid, nil)
	case errors.Is(err, store.ErrUnavailable):
		api.Unavailable(w, "STORE_UNAVAILABLE", "comment store is unavailable", rid)
	default:
		api.Internal(w, rid)
	}
}
