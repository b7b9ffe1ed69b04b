package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists comments in Postgres.
//
// Expected schema (composite index on (video_id, ts) for the windowed path):
//
//	CREATE TABLE danmu_comments (
//	    id                uuid PRIMARY KEY DEFAULT gen_random_uuid(),
//	    video_id          text NOT NULL,
//	    author_id         text NOT NULL,
//	    content           text NOT NULL,
//	    ts                double precision NOT NULL,
//	    color             text NOT NULL,
//	    size              text NOT NULL,
//	    mode              text NOT NULL,
//	    speed             double precision NOT NULL,
//	    status            text NOT NULL DEFAULT 'active',
//	    created_at        timestamptz NOT NULL DEFAULT now(),
//	    moderated_at      timestamptz,
//	    moderated_by      text,
//	    moderation_reason text
//	);
//	CREATE INDEX danmu_comments_video_ts ON danmu_comments (video_id, ts);
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const commentColumns = `id, video_id, author_id, content, ts, color, size, mode, speed,
	status, created_at, moderated_at, moderated_by, moderation_reason`

func (s *PostgresStore) Insert(ctx context.Context, c Comment) (Comment, error) {
	const q = `INSERT INTO danmu_comments (video_id, author_id, content, ts, color, size, mode, speed)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	           RETURNING ` + commentColumns
	row := s.pool.QueryRow(ctx, q, c.VideoID, c.AuthorID, c.Content, c.Timestamp,
		c.Style.Color, c.Style.Size, c.Style.Mode, c.Style.Speed)
	out, err := scanComment(row)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", wrapUnavailable(err))
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, videoID, id string) (Comment, error) {
	const q = `SELECT ` + commentColumns + ` FROM danmu_comments WHERE video_id = $1 AND id = $2`
	out, err := scanComment(s.pool.QueryRow(ctx, q, videoID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("get comment: %w", wrapUnavailable(err))
	}
	return out, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, videoID, id string, to Status, allowedFrom []Status, moderatedBy, reason string) (Comment, error) {
	from := make([]string, len(allowedFrom))
	for i, st := range allowedFrom {
		from[i] = string(st)
	}

	// Compare-and-set: also matches when already at the target status so the
	// update stays idempotent; moderation fields are only stamped on an actual
	// transition.
	const q = `UPDATE danmu_comments
	           SET status = $3,
	               moderated_at = CASE WHEN status = $3 THEN moderated_at ELSE now() END,
	               moderated_by = CASE WHEN status = $3 THEN moderated_by ELSE $5 END,
	               moderation_reason = CASE WHEN status = $3 THEN moderation_reason ELSE $6 END
	           WHERE video_id = $1 AND id = $2 AND (status = $3 OR status = ANY($4))
	           RETURNING ` + commentColumns
	out, err := scanComment(s.pool.QueryRow(ctx, q, videoID, id, string(to), from, moderatedBy, reason))
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish absent from not-transitionable.
		if _, gerr := s.Get(ctx, videoID, id); gerr != nil {
			return Comment{}, gerr
		}
		return Comment{}, ErrInvalidTransition
	}
	if err != nil {
		return Comment{}, fmt.Errorf("update status: %w", wrapUnavailable(err))
	}
	return out, nil
}

func (s *PostgresStore) QueryByVideoAndTimeRange(ctx context.Context, videoID string, minTS, maxTS float64, filter StatusFilter) ([]Comment, error) {
	q := `SELECT ` + commentColumns + `
	      FROM danmu_comments
	      WHERE video_id = $1 AND ts >= $2 AND ts <= $3`
	args := []any{videoID, minTS, maxTS}
	if filter == FilterActive {
		q += ` AND status = 'active'`
	}
	q += ` ORDER BY ts ASC, created_at ASC, id ASC`
	return s.scanComments(ctx, q, args...)
}

func (s *PostgresStore) QueryByVideo(ctx context.Context, videoID string, filter StatusFilter) ([]Comment, error) {
	q := `SELECT ` + commentColumns + ` FROM danmu_comments WHERE video_id = $1`
	args := []any{videoID}
	if filter == FilterActive {
		q += ` AND status = 'active'`
	}
	q += ` ORDER BY ts ASC, created_at ASC, id ASC`
	return s.scanComments(ctx, q, args...)
}

func (s *PostgresStore) scanComments(ctx context.Context, q string, args ...any) ([]Comment, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", wrapUnavailable(err))
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query comments: %w", wrapUnavailable(err))
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (Comment, error) {
	var c Comment
	var status, size, mode string
	var modBy, modReason *string
	err := row.Scan(&c.ID, &c.VideoID, &c.AuthorID, &c.Content, &c.Timestamp,
		&c.Style.Color, &size, &mode, &c.Style.Speed,
		&status, &c.CreatedAt, &c.ModeratedAt, &modBy, &modReason)
	if err != nil {
		return Comment{}, err
	}
	c.Status = Status(status)
	c.Style.Size = Size(size)
	c.Style.Mode = Mode(mode)
	if modBy != nil {
		c.ModeratedBy = *modBy
	}
	if modReason != nil {
		c.ModerationReason = *modReason
	}
	return c, nil
}

// wrapUnavailable tags non-row errors as ErrUnavailable so callers can treat
// persistence failures as retryable without inspecting driver errors.
func wrapUnavailable(err error) error {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
