package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/danmu/analytics"
	"github.com/example/danmu-platform/internal/danmu/cache"
	"github.com/example/danmu-platform/internal/danmu/events"
	"github.com/example/danmu-platform/internal/danmu/room"
	"github.com/example/danmu-platform/internal/danmu/service"
	"github.com/example/danmu-platform/internal/danmu/store"
	"github.com/example/danmu-platform/internal/danmu/video"
	"github.com/example/danmu-platform/internal/platform/auth"
	"github.com/example/danmu-platform/internal/platform/config"
)

func newTestService(t *testing.T) *service.Service {
	t.Helper()
	return service.New(service.Options{
		Store:     store.NewMemoryStore(),
		Cache:     cache.NewMemoryCache(),
		Rooms:     room.NewManager(room.Options{SubscriberBuffer: 8}),
		Videos:    video.NewStaticProvider(map[string]float64{"vid-1": 120}),
		Publisher: events.NewPublisher(nil, zap.NewNop()),
		Config: config.DanmuConfig{
			DefaultWindowSeconds: 10,
			WindowTTL:            time.Minute,
			StatsTTL:             time.Minute,
			MaxContentLen:        200,
			QueryTimeout:         time.Second,
		},
		Logger: zap.NewNop(),
	})
}

// setupReq builds a request with chi URL params and an optional
// authenticated user in context.
func setupReq(method, url, body string, params map[string]string, userID string, role auth.Role) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.WithUser(ctx, userID, role)
	}
	return req.WithContext(ctx)
}

func mustCreate(t *testing.T, svc *service.Service, authorID string, ts float64) store.Comment {
	t.Helper()
	created, err := svc.CreateComment(context.Background(), service.CreateRequest{
		VideoID:   "vid-1",
		AuthorID:  authorID,
		Content:   "hello",
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	return created
}

func TestCreateCommentHandler(t *testing.T) {
	svc := newTestService(t)
	handler := CreateComment(svc)

	body := `{"content":"first!","timestamp":12.5,"style":{"color":"#ff0000","size":"large","mode":"top","speed":1.5}}`
	req := setupReq(http.MethodPost, "/v1/danmu/vid-1", body,
		map[string]string{"video_id": "vid-1"}, "user-a", auth.RoleAuthor)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var c store.Comment
	if err := json.NewDecoder(rr.Body).Decode(&c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Content != "first!" || c.AuthorID != "user-a" {
		t.Fatalf("unexpected comment: %+v", c)
	}
	if c.Style.Color != "#FF0000" || c.Style.Size != store.SizeLarge {
		t.Fatalf("unexpected style: %+v", c.Style)
	}
}

func TestCreateCommentHandlerStatuses(t *testing.T) {
	svc := newTestService(t)
	handler := CreateComment(svc)

	cases := []struct {
		name   string
		body   string
		video  string
		userID string
		want   int
	}{
		{"unauthenticated", `{"content":"x","timestamp":1}`, "vid-1", "", http.StatusUnauthorized},
		{"invalid json", `{`, "vid-1", "user-a", http.StatusBadRequest},
		{"empty content", `{"content":"","timestamp":1}`, "vid-1", "user-a", http.StatusBadRequest},
		{"timestamp past duration", `{"content":"x","timestamp":121}`, "vid-1", "user-a", http.StatusBadRequest},
		{"unknown video", `{"content":"x","timestamp":1}`, "vid-missing", "user-a", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := setupReq(http.MethodPost, "/v1/danmu/"+tc.video, tc.body,
				map[string]string{"video_id": tc.video}, tc.userID, auth.RoleAuthor)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestGetWindowHandler(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "user-a", 3.0)
	mustCreate(t, svc, "user-b", 5.0)
	mustCreate(t, svc, "user-c", 50.0)

	handler := GetWindow(svc)
	req := setupReq(http.MethodGet, "/v1/danmu/vid-1?t=4&width=4", "",
		map[string]string{"video_id": "vid-1"}, "", "")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp windowResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Comments) != 2 {
		t.Fatalf("expected 2 comments in [2,6], got %d", len(resp.Comments))
	}
	if resp.Comments[0].Timestamp != 3.0 || resp.Comments[1].Timestamp != 5.0 {
		t.Fatalf("unexpected ordering: %+v", resp.Comments)
	}
}

func TestGetWindowHandlerFullTimeline(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "user-a", 3.0)
	mustCreate(t, svc, "user-b", 50.0)

	handler := GetWindow(svc)
	req := setupReq(http.MethodGet, "/v1/danmu/vid-1", "",
		map[string]string{"video_id": "vid-1"}, "", "")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp windowResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Comments) != 2 {
		t.Fatalf("expected full timeline, got %+v", resp.Comments)
	}
}

func TestGetWindowHandlerBadParams(t *testing.T) {
	svc := newTestService(t)
	handler := GetWindow(svc)

	for _, q := range []string{"?t=abc", "?t=-1", "?width=0", "?width=nope"} {
		req := setupReq(http.MethodGet, "/v1/danmu/vid-1"+q, "",
			map[string]string{"video_id": "vid-1"}, "", "")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rr.Code)
		}
	}
}

func TestGetWindowHandlerUnknownVideo(t *testing.T) {
	svc := newTestService(t)
	handler := GetWindow(svc)

	req := setupReq(http.MethodGet, "/v1/danmu/vid-missing", "",
		map[string]string{"video_id": "vid-missing"}, "", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDeleteCommentHandler(t *testing.T) {
	svc := newTestService(t)
	created := mustCreate(t, svc, "user-a", 10)

	handler := DeleteComment(svc)

	// A stranger cannot delete someone else's comment.
	req := setupReq(http.MethodDelete, "/v1/danmu/vid-1/"+created.ID, "",
		map[string]string{"video_id": "vid-1", "comment_id": created.ID}, "user-b", auth.RoleAuthor)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("stranger delete: expected 403, got %d", rr.Code)
	}

	// The author can.
	req = setupReq(http.MethodDelete, "/v1/danmu/vid-1/"+created.ID, "",
		map[string]string{"video_id": "vid-1", "comment_id": created.ID}, "user-a", auth.RoleAuthor)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("author delete: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var c store.Comment
	if err := json.NewDecoder(rr.Body).Decode(&c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Status != store.StatusDeleted {
		t.Fatalf("status = %q, want deleted", c.Status)
	}
}

func TestDeleteCommentHandlerNotFound(t *testing.T) {
	svc := newTestService(t)
	handler := DeleteComment(svc)

	req := setupReq(http.MethodDelete, "/v1/danmu/vid-1/missing", "",
		map[string]string{"video_id": "vid-1", "comment_id": "missing"}, "user-a", auth.RoleAuthor)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHideCommentHandler(t *testing.T) {
	svc := newTestService(t)
	created := mustCreate(t, svc, "user-a", 10)

	handler := HideComment(svc)

	// Plain authors cannot hide, not even their own comment.
	req := setupReq(http.MethodPost, "/v1/danmu/vid-1/"+created.ID+"/hide", "",
		map[string]string{"video_id": "vid-1", "comment_id": created.ID}, "user-a", auth.RoleAuthor)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("author hide: expected 403, got %d", rr.Code)
	}

	req = setupReq(http.MethodPost, "/v1/danmu/vid-1/"+created.ID+"/hide", `{"reason":"spoilers"}`,
		map[string]string{"video_id": "vid-1", "comment_id": created.ID}, "mod-1", auth.RoleModerator)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("moderator hide: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var c store.Comment
	if err := json.NewDecoder(rr.Body).Decode(&c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Status != store.StatusHidden || c.ModerationReason != "spoilers" {
		t.Fatalf("unexpected moderation result: %+v", c)
	}

	// Hidden comments disappear from reads.
	get := GetWindow(svc)
	req = setupReq(http.MethodGet, "/v1/danmu/vid-1", "",
		map[string]string{"video_id": "vid-1"}, "", "")
	rr = httptest.NewRecorder()
	get.ServeHTTP(rr, req)
	var resp windowResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Comments) != 0 {
		t.Fatalf("hidden comment still served: %+v", resp.Comments)
	}
}

func TestHideCommentHandlerConflict(t *testing.T) {
	svc := newTestService(t)
	created := mustCreate(t, svc, "user-a", 10)

	mod := setupReq(http.MethodDelete, "/v1/danmu/vid-1/"+created.ID, "",
		map[string]string{"video_id": "vid-1", "comment_id": created.ID}, "mod-1", auth.RoleModerator)
	rr := httptest.NewRecorder()
	DeleteComment(svc).ServeHTTP(rr, mod)
	if rr.Code != http.StatusOK {
		t.Fatalf("moderator delete: expected 200, got %d", rr.Code)
	}

	req := setupReq(http.MethodPost, "/v1/danmu/vid-1/"+created.ID+"/hide", "",
		map[string]string{"video_id": "vid-1", "comment_id": created.ID}, "mod-1", auth.RoleModerator)
	rr = httptest.NewRecorder()
	HideComment(svc).ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("hide after delete: expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetStatsHandler(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "user-a", 10)
	mustCreate(t, svc, "user-a", 70)
	mustCreate(t, svc, "user-b", 75)

	handler := GetStats(svc)
	req := setupReq(http.MethodGet, "/v1/danmu/vid-1/stats", "",
		map[string]string{"video_id": "vid-1"}, "", "")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var stats analytics.Stats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalComments != 3 || stats.UniqueAuthors != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.PeakMoments) == 0 || stats.PeakMoments[0].Bucket != 1 {
		t.Fatalf("expected minute 1 as peak, got %+v", stats.PeakMoments)
	}
}

func TestStreamCommentsHandler(t *testing.T) {
	svc := newTestService(t)
	handler := StreamComments(svc, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("video_id", "vid-1")
		handler.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx)))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/danmu/vid-1/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	// Wait for the subscriber to register before publishing.
	deadline := time.Now().Add(time.Second)
	for svc.Rooms().SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	created := mustCreate(t, svc, "user-a", 10)

	buf := make([]byte, 4096)
	var frame strings.Builder
	readDeadline := time.After(2 * time.Second)
	done := make(chan struct{})
	go func() {
		for !strings.Contains(frame.String(), "\n\n") {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				frame.Write(buf[:n])
			}
			if err != nil {
				break
			}
		}
		close(done)
	}()
	select {
	case <-done:
	case <-readDeadline:
		t.Fatal("timed out waiting for SSE frame")
	}

	got := frame.String()
	if !strings.Contains(got, fmt.Sprintf("event: %s", room.EventCommentAdded)) {
		t.Fatalf("missing event line in frame: %q", got)
	}
	if !strings.Contains(got, created.ID) {
		t.Fatalf("frame does not carry the comment: %q", got)
	}
}
