// Package room maintains one fan-out channel per actively-watched video and
// pushes newly created or moderated comments to every subscribed viewer.
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/danmu/store"
	"github.com/example/danmu-platform/internal/platform/metrics"
)

// EventKind discriminates room events.
type EventKind string

const (
	EventCommentAdded   EventKind = "comment_added"
	EventCommentRemoved EventKind = "comment_removed"
	EventHeartbeat      EventKind = "heartbeat"
)

// Event is one item on a subscriber's stream.
type Event struct {
	Kind      EventKind      `json:"kind"`
	VideoID   string         `json:"video_id"`
	Comment   *store.Comment `json:"comment,omitempty"`    // set for comment_added
	CommentID string         `json:"comment_id,omitempty"` // set for comment_removed
	At        time.Time      `json:"at"`
}

// CommentAdded builds the event emitted after a store-acknowledged insert.
func CommentAdded(c store.Comment) Event {
	return Event{Kind: EventCommentAdded, VideoID: c.VideoID, Comment: &c, At: time.Now().UTC()}
}

// CommentRemoved builds the event emitted after a hide or delete transition.
func CommentRemoved(videoID, commentID string) Event {
	return Event{Kind: EventCommentRemoved, VideoID: videoID, CommentID: commentID, At: time.Now().UTC()}
}

func heartbeat(videoID string) Event {
	return Event{Kind: EventHeartbeat, VideoID: videoID, At: time.Now().UTC()}
}

// Subscription is one viewer's membership in a room.
type Subscription struct {
	ID      string
	VideoID string

	events chan Event

	mu      sync.Mutex
	dropped uint64
	closed  bool
}

// Events is the subscriber's stream. The channel closes on unsubscribe or
// room teardown.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Dropped reports how many events were discarded because this subscriber's
// buffer overflowed. Overflow is counted, never fatal.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// push delivers without blocking. When the buffer is full the oldest buffered
// event is dropped so a slow subscriber only loses its own history.
func (s *Subscription) push(ev Event, m *metrics.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
			s.dropped++
			m.IncEventsDropped()
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// room is the per-video fan-out unit. Lifecycle: created on first subscriber,
// torn down when the last one leaves.
type room struct {
	videoID string

	mu   sync.Mutex
	subs map[string]*Subscription

	stopHeartbeat chan struct{}
}

func (r *room) broadcast(ev Event, m *metrics.Metrics) {
	r.mu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		s.push(ev, m)
	}
}

// heartbeatLoop periodically signals liveness so clients can detect silent
// disconnects.
func (r *room) heartbeatLoop(interval time.Duration, m *metrics.Metrics, log *zap.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-r.stopHeartbeat:
			return
		case <-t.C:
			r.broadcast(heartbeat(r.videoID), m)
		}
	}
}

// Manager owns the per-video room set. Rooms lock at per-room granularity;
// the manager lock only guards the room map itself.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*room

	buffer    int
	heartbeat time.Duration
	log       *zap.Logger
	metrics   *metrics.Metrics
}

type Options struct {
	// SubscriberBuffer is the per-subscriber event buffer; overflow drops
	// the oldest buffered event for that subscriber only.
	SubscriberBuffer int
	// Heartbeat is the per-room liveness interval. Zero disables heartbeats
	// (tests).
	Heartbeat time.Duration
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func NewManager(opts Options) *Manager {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 32
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		rooms:     make(map[string]*room),
		buffer:    opts.SubscriberBuffer,
		heartbeat: opts.Heartbeat,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Subscribe joins the room for videoID, creating it when absent. Creation is
// idempotent under the manager lock: concurrent first-subscribers converge on
// one room instance.
func (m *Manager) Subscribe(videoID string) *Subscription {
	sub := &Subscription{
		ID:      uuid.NewString(),
		VideoID: videoID,
		events:  make(chan Event, m.buffer),
	}

	m.mu.Lock()
	r, ok := m.rooms[videoID]
	if !ok {
		r = &room{
			videoID:       videoID,
			subs:          make(map[string]*Subscription),
			stopHeartbeat: make(chan struct{}),
		}
		m.rooms[videoID] = r
		if m.heartbeat > 0 {
			go r.heartbeatLoop(m.heartbeat, m.metrics, m.log)
		}
		m.log.Info("room created", zap.String("video_id", videoID))
	}
	// Registration happens under the manager lock so a concurrent teardown
	// of the same room cannot orphan this subscriber.
	r.mu.Lock()
	r.subs[sub.ID] = sub
	n := len(r.subs)
	r.mu.Unlock()
	m.mu.Unlock()

	m.log.Debug("subscriber joined",
		zap.String("video_id", videoID),
		zap.String("subscriber_id", sub.ID),
		zap.Int("room_size", n))
	return sub
}

// Unsubscribe removes one viewer and tears the room down when it was the
// last one. Safe to call twice.
func (m *Manager) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	m.mu.Lock()
	r, ok := m.rooms[sub.VideoID]
	if !ok {
		m.mu.Unlock()
		sub.close()
		return
	}
	r.mu.Lock()
	delete(r.subs, sub.ID)
	empty := len(r.subs) == 0
	r.mu.Unlock()
	if empty {
		delete(m.rooms, sub.VideoID)
		close(r.stopHeartbeat)
		m.log.Info("room torn down", zap.String("video_id", sub.VideoID))
	}
	m.mu.Unlock()

	sub.close()
}

// Publish fans ev out to every current subscriber of the video's room.
// Best-effort and non-blocking per subscriber; a missing room is a no-op.
// Callers invoke Publish only after the underlying store write has been
// acknowledged, so per-room delivery order matches store-ack order.
func (m *Manager) Publish(videoID string, ev Event) {
	m.mu.Lock()
	r, ok := m.rooms[videoID]
	m.mu.Unlock()
	if !ok {
		return
	}
	r.broadcast(ev, m.metrics)
}

// RoomCount reports the number of live rooms.
func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// SubscriberCount reports the number of subscribers across all rooms.
func (m *Manager) SubscriberCount() int {
	m.mu.Lock()
	rooms := make([]*room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	total := 0
	for _, r := range rooms {
		r.mu.Lock()
		total += len(r.subs)
		r.mu.Unlock()
	}
	return total
}
