// Package handlers is the HTTP binding of the danmu engine: JSON envelopes
// in, service calls through, the api error taxonomy out.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/danmu-platform/internal/danmu/service"
	"github.com/example/danmu-platform/internal/danmu/store"
	"github.com/example/danmu-platform/internal/platform/api"
	"github.com/example/danmu-platform/internal/platform/auth"
	"github.com/example/danmu-platform/internal/platform/httpserver"
)

type createCommentRequest struct {
	Content   string       `json:"content"`
	Timestamp float64      `json:"timestamp"`
	Style     *store.Style `json:"style,omitempty"`
}

type moderateRequest struct {
	Reason string `json:"reason,omitempty"`
}

type windowResponse struct {
	VideoID  string          `json:"video_id"`
	Comments []store.Comment `json:"comments"`
}

// CreateComment handles POST /v1/danmu/{video_id}
func CreateComment(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}

		videoID := strings.TrimSpace(chi.URLParam(r, "video_id"))
		if videoID == "" {
			api.BadRequest(w, "MISSING_ID", "video_id is required", rid, nil)
			return
		}

		var req createCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}

		create := service.CreateRequest{
			VideoID:   videoID,
			AuthorID:  userID,
			Content:   req.Content,
			Timestamp: req.Timestamp,
		}
		if req.Style != nil {
			create.Style = *req.Style
		}

		created, err := svc.CreateComment(r.Context(), create)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, created)
	}
}

// GetWindow handles GET /v1/danmu/{video_id}. Without a t parameter it
// returns the full timeline; with one it returns the clamped window around
// that playback position.
func GetWindow(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		videoID := strings.TrimSpace(chi.URLParam(r, "video_id"))
		if videoID == "" {
			api.BadRequest(w, "MISSING_ID", "video_id is required", rid, nil)
			return
		}

		var center *float64
		if t := strings.TrimSpace(r.URL.Query().Get("t")); t != "" {
			parsed, err := strconv.ParseFloat(t, 64)
			if err != nil || parsed < 0 {
				api.BadRequest(w, "INVALID_PARAM", "t must be a non-negative number", rid, nil)
				return
			}
			center = &parsed
		}

		width := svc.DefaultWindowSeconds()
		if ws := strings.TrimSpace(r.URL.Query().Get("width")); ws != "" {
			parsed, err := strconv.ParseFloat(ws, 64)
			if err != nil || parsed <= 0 {
				api.BadRequest(w, "INVALID_PARAM", "width must be a positive number", rid, nil)
				return
			}
			width = parsed
		}

		comments, err := svc.GetWindow(r.Context(), videoID, center, width)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, windowResponse{VideoID: videoID, Comments: comments})
	}
}

// DeleteComment handles DELETE /v1/danmu/{video_id}/{comment_id}
func DeleteComment(svc *service.Service) http.HandlerFunc {
	return moderate(svc, store.StatusDeleted)
}

// HideComment handles POST /v1/danmu/{video_id}/{comment_id}/hide
func HideComment(svc *service.Service) http.HandlerFunc {
	return moderate(svc, store.StatusHidden)
}

func moderate(svc *service.Service, target store.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}

		videoID := strings.TrimSpace(chi.URLParam(r, "video_id"))
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		if videoID == "" || commentID == "" {
			api.BadRequest(w, "MISSING_ID", "video_id and comment_id are required", rid, nil)
			return
		}

		var req moderateRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
				api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
				return
			}
		}

		actor := moderationActor(r, userID)
		updated, err := svc.Moderate(r.Context(), actor, videoID, commentID, target, req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, updated)
	}
}
