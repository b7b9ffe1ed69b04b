// Package video exposes the metadata collaborator the danmu engine depends
// on: a duration lookup used to clamp timestamps and bound density maps.
package video

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnknownVideo = errors.New("unknown video")

// MetadataProvider supplies the duration in seconds for a video.
type MetadataProvider interface {
	Duration(ctx context.Context, videoID string) (float64, error)
}

// StaticProvider serves durations from a fixed map. Development and tests.
type StaticProvider struct {
	mu        sync.RWMutex
	durations map[string]float64
}

func NewStaticProvider(durations map[string]float64) *StaticProvider {
	if durations == nil {
		durations = make(map[string]float64)
	}
	return &StaticProvider{durations: durations}
}

func (p *StaticProvider) Duration(_ context.Context, videoID string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.durations[videoID]
	if !ok {
		return 0, ErrUnknownVideo
	}
	return d, nil
}

// SetDuration registers or replaces a video duration.
func (p *StaticProvider) SetDuration(videoID string, seconds float64) {
	p.mu.Lock()
	p.durations[videoID] = seconds
	p.mu.Unlock()
}

// PostgresProvider reads durations from the videos table owned by the video
// metadata collaborator.
type PostgresProvider struct {
	pool *pgxpool.Pool
}

func NewPostgresProvider(pool *pgxpool.Pool) *PostgresProvider {
	return &PostgresProvider{pool: pool}
}

func (p *PostgresProvider) Duration(ctx context.Context, videoID string) (float64, error) {
	const q = `SELECT duration_seconds FROM videos WHERE id = $1`
	var d float64
	err := p.pool.QueryRow(ctx, q, videoID).Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownVideo
	}
	if err != nil {
		return 0, err
	}
	return d, nil
}
