package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/models"
)

const columns = `id, broadcaster_id, broadcaster_name, COALESCE(broadcaster_avatar, ''), title, description, category,
	privacy, chat_enabled, tips_enabled, COALESCE(thumbnail_url, ''), status, viewer_count, duration,
	started_at, ended_at, summary, created_at, updated_at`

// Repository handles live_streams persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a live streams repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertQuery = `INSERT INTO live_streams (id, broadcaster_id, broadcaster_name, broadcaster_avatar, title, description, category,
	privacy, chat_enabled, tips_enabled, thumbnail_url, status, viewer_count, duration, started_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14, $15)
	RETURNING id, created_at, updated_at`

// finalizeQuery keeps the last synced viewer_count on the ended record.
const finalizeQuery = `UPDATE live_streams SET status = 'ended', ended_at = $1, duration = $2, summary = $3, updated_at = NOW()
	WHERE id = $4`

// Create inserts a new live record. A record without an id gets a fresh one; the stored
// id and timestamps are read back into s.
func (r *Repository) Create(ctx context.Context, s *models.StreamSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, insertQuery, s.ID, s.BroadcasterID, s.BroadcasterName, s.BroadcasterAvatar, s.Title, s.Description, s.Category,
		s.Privacy, s.ChatEnabled, s.TipsEnabled, s.ThumbnailURL, s.Status, s.ViewerCount, s.Duration, s.StartedAt).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert live stream: %w", err)
	}
	return nil
}

// Get returns a stream by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.StreamSession, error) {
	q := `SELECT ` + columns + ` FROM live_streams WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, live.NotFound("stream not found")
		}
		return nil, fmt.Errorf("get live stream: %w", err)
	}
	return s, nil
}

// UpdateDuration stores the elapsed time of a live stream.
func (r *Repository) UpdateDuration(ctx context.Context, id uuid.UUID, duration string) error {
	const q = `UPDATE live_streams SET duration = $1, updated_at = NOW() WHERE id = $2 AND status = 'live'`
	return r.exec(ctx, "update duration", q, duration, id)
}

// UpdateViewerCount stores the current viewer count of a live stream.
func (r *Repository) UpdateViewerCount(ctx context.Context, id uuid.UUID, count int) error {
	const q = `UPDATE live_streams SET viewer_count = $1, updated_at = NOW() WHERE id = $2 AND status = 'live'`
	return r.exec(ctx, "update viewer count", q, count, id)
}

// Finalize marks a stream ended and stores its summary in one statement.
func (r *Repository) Finalize(ctx context.Context, id uuid.UUID, endedAt time.Time, summary models.StreamSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return r.exec(ctx, "finalize", finalizeQuery, endedAt, summary.Duration, body, id)
}

// ListLive returns live streams, most recently started first.
func (r *Repository) ListLive(ctx context.Context, limit int) ([]models.StreamSession, error) {
	q := `SELECT ` + columns + ` FROM live_streams WHERE status = 'live' ORDER BY started_at DESC LIMIT $1`
	return r.list(ctx, q, limit)
}

// ListEnded returns ended streams started before the cursor, newest first.
func (r *Repository) ListEnded(ctx context.Context, before *time.Time, limit int) ([]models.StreamSession, error) {
	if before == nil {
		q := `SELECT ` + columns + ` FROM live_streams WHERE status = 'ended' ORDER BY started_at DESC LIMIT $1`
		return r.list(ctx, q, limit)
	}
	q := `SELECT ` + columns + ` FROM live_streams WHERE status = 'ended' AND started_at < $2 ORDER BY started_at DESC LIMIT $1`
	return r.list(ctx, q, limit, *before)
}

func (r *Repository) list(ctx context.Context, q string, args ...interface{}) ([]models.StreamSession, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list live streams: %w", err)
	}
	defer rows.Close()
	var out []models.StreamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan live stream: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *Repository) exec(ctx context.Context, op, q string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return live.NotFound("stream not found")
	}
	return nil
}

func scanSession(row pgx.Row) (*models.StreamSession, error) {
	var s models.StreamSession
	var summary []byte
	err := row.Scan(&s.ID, &s.BroadcasterID, &s.BroadcasterName, &s.BroadcasterAvatar, &s.Title, &s.Description, &s.Category,
		&s.Privacy, &s.ChatEnabled, &s.TipsEnabled, &s.ThumbnailURL, &s.Status, &s.ViewerCount, &s.Duration,
		&s.StartedAt, &s.EndedAt, &summary, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(summary) > 0 {
		var sum models.StreamSummary
		if err := json.Unmarshal(summary, &sum); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		s.Summary = &sum
	}
	return &s, nil
}
