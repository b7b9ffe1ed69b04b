package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/danmu/room"
	"github.com/example/danmu-platform/internal/danmu/service"
	"github.com/example/danmu-platform/internal/platform/api"
	"github.com/example/danmu-platform/internal/platform/httpserver"
)

// StreamComments handles GET /v1/danmu/{video_id}/stream as a server-sent
// event stream. Each room event is framed as one SSE event named after its
// kind; the connection closes when the client goes away.
func StreamComments(svc *service.Service, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		videoID := strings.TrimSpace(chi.URLParam(r, "video_id"))
		if videoID == "" {
			api.BadRequest(w, "MISSING_ID", "video_id is required", rid, nil)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			api.Internal(w, rid)
			return
		}

		sub := svc.Rooms().Subscribe(videoID)
		defer svc.Rooms().Unsubscribe(sub)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		log.Debug("stream opened",
			zap.String("video_id", videoID),
			zap.String("subscriber_id", sub.ID))

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, open := <-sub.Events():
				if !open {
					// Room torn down from the server side.
					return
				}
				if err := writeSSE(w, ev); err != nil {
					log.Debug("stream write failed",
						zap.String("video_id", videoID),
						zap.Error(err))
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev room.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
	return err
}
