package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a development and test implementation of CommentStore.
type MemoryStore struct {
	mu       sync.RWMutex
	comments map[string]Comment // id -> comment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{comments: make(map[string]Comment)}
}

func (s *MemoryStore) Insert(_ context.Context, c Comment) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	s.comments[c.ID] = c
	return c, nil
}

func (s *MemoryStore) Get(_ context.Context, videoID, id string) (Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok || c.VideoID != videoID {
		return Comment{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, videoID, id string, to Status, allowedFrom []Status, moderatedBy, reason string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok || c.VideoID != videoID {
		return Comment{}, ErrNotFound
	}
	if c.Status == to {
		// Idempotent: same target twice yields the same end state.
		return c, nil
	}
	if !statusIn(c.Status, allowedFrom) {
		return Comment{}, ErrInvalidTransition
	}

	now := time.Now().UTC()
	c.Status = to
	c.ModeratedAt = &now
	c.ModeratedBy = moderatedBy
	c.ModerationReason = reason
	s.comments[id] = c
	return c, nil
}

func (s *MemoryStore) QueryByVideoAndTimeRange(_ context.Context, videoID string, minTS, maxTS float64, filter StatusFilter) ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Comment
	for _, c := range s.comments {
		if c.VideoID != videoID {
			continue
		}
		if c.Timestamp < minTS || c.Timestamp > maxTS {
			continue
		}
		if filter == FilterActive && c.Status != StatusActive {
			continue
		}
		out = append(out, c)
	}
	sortComments(out)
	return out, nil
}

func (s *MemoryStore) QueryByVideo(_ context.Context, videoID string, filter StatusFilter) ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Comment
	for _, c := range s.comments {
		if c.VideoID != videoID {
			continue
		}
		if filter == FilterActive && c.Status != StatusActive {
			continue
		}
		out = append(out, c)
	}
	sortComments(out)
	return out, nil
}

// sortComments orders by timestamp asc, created_at asc, id asc so render
// order is deterministic.
func sortComments(cs []Comment) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Timestamp != cs[j].Timestamp {
			return cs[i].Timestamp < cs[j].Timestamp
		}
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}

func statusIn(s Status, set []Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
