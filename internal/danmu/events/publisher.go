// Package events bridges the danmu engine to NATS: comment events fan out to
// other service instances and cache invalidation notices follow writes.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/danmu/store"
)

// Subject constants for every danmu event type.
const (
	SubjectCommentCreated  = "danmu.comments.created"
	SubjectCommentRemoved  = "danmu.comments.removed"
	SubjectCacheInvalidate = "danmu.cache.invalidate"
)

// CommentEvent is the canonical envelope on the danmu.comments.* subjects.
type CommentEvent struct {
	EventID    string         `json:"event_id"`
	InstanceID string         `json:"instance_id"`
	VideoID    string         `json:"video_id"`
	CommentID  string         `json:"comment_id"`
	Comment    *store.Comment `json:"comment,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher publishes danmu events to NATS.
// The zero value and a nil pointer are both safe no-op stubs, so services
// without NATS keep working.
type Publisher struct {
	nc         *nats.Conn
	log        *zap.Logger
	instanceID string
}

// InstanceID identifies this process on the wire so the bridge can ignore
// its own events.
func (p *Publisher) InstanceID() string {
	if p == nil {
		return ""
	}
	return p.instanceID
}

// NewPublisher creates a Publisher over an existing connection.
// Pass nc=nil to get a no-op stub (tests, single-instance deployments).
func NewPublisher(nc *nats.Conn, log *zap.Logger) *Publisher {
	return &Publisher{nc: nc, log: log, instanceID: uuid.NewString()}
}

// CommentCreated announces a store-acknowledged insert. Fire-and-forget:
// failures are logged and never surface to the write path.
func (p *Publisher) CommentCreated(c store.Comment) {
	if p == nil {
		return
	}
	p.publish(SubjectCommentCreated, CommentEvent{
		EventID:    uuid.NewString(),
		InstanceID: p.instanceID,
		VideoID:    c.VideoID,
		CommentID:  c.ID,
		Comment:    &c,
		OccurredAt: time.Now().UTC(),
	})
}

// CommentRemoved announces a hide or delete transition.
func (p *Publisher) CommentRemoved(videoID, commentID string) {
	if p == nil {
		return
	}
	p.publish(SubjectCommentRemoved, CommentEvent{
		EventID:    uuid.NewString(),
		InstanceID: p.instanceID,
		VideoID:    videoID,
		CommentID:  commentID,
		OccurredAt: time.Now().UTC(),
	})
}

// CacheInvalidate tells other instances to drop a key prefix.
func (p *Publisher) CacheInvalidate(prefix string) {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Publish(SubjectCacheInvalidate, []byte(prefix)); err != nil && p.log != nil {
		p.log.Warn("cache invalidate publish failed", zap.Error(err))
	}
}

func (p *Publisher) publish(subject string, ev CommentEvent) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		if p.log != nil {
			p.log.Warn("event marshal failed", zap.String("subject", subject), zap.Error(err))
		}
		return
	}
	if err := p.nc.Publish(subject, data); err != nil && p.log != nil {
		p.log.Warn("event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
