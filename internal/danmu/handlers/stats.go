package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/danmu-platform/internal/danmu/service"
	"github.com/example/danmu-platform/internal/platform/api"
	"github.com/example/danmu-platform/internal/platform/httpserver"
)

// GetStats handles GET /v1/danmu/{video_id}/stats
func GetStats(svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		videoID := strings.TrimSpace(chi.URLParam(r, "video_id"))
		if videoID == "" {
			api.BadRequest(w, "MISSING_ID", "video_id is required", rid, nil)
			return
		}

		stats, err := svc.GetStats(r.Context(), videoID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, stats)
	}
}
