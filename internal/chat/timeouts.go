package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-live/backend/internal/models"
)

// TimeoutRepository handles live_chat_timeouts persistence. One row per (session, user).
type TimeoutRepository struct {
	pool *pgxpool.Pool
}

// NewTimeoutRepository creates a timeout repository.
func NewTimeoutRepository(pool *pgxpool.Pool) *TimeoutRepository {
	return &TimeoutRepository{pool: pool}
}

// Get returns the user's timeout in the session, or nil if none was issued.
func (r *TimeoutRepository) Get(ctx context.Context, sessionID, userID uuid.UUID) (*models.ChatTimeout, error) {
	const q = `SELECT session_id, user_id, timeout_until, issued_by FROM live_chat_timeouts WHERE session_id = $1 AND user_id = $2`
	var t models.ChatTimeout
	err := r.pool.QueryRow(ctx, q, sessionID, userID).Scan(&t.SessionID, &t.UserID, &t.TimeoutUntil, &t.IssuedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat timeout: %w", err)
	}
	return &t, nil
}

// Set inserts or replaces the user's timeout.
func (r *TimeoutRepository) Set(ctx context.Context, t models.ChatTimeout) error {
	const q = `INSERT INTO live_chat_timeouts (session_id, user_id, timeout_until, issued_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, user_id) DO UPDATE SET timeout_until = EXCLUDED.timeout_until, issued_by = EXCLUDED.issued_by`
	if _, err := r.pool.Exec(ctx, q, t.SessionID, t.UserID, t.TimeoutUntil, t.IssuedBy); err != nil {
		return fmt.Errorf("upsert chat timeout: %w", err)
	}
	return nil
}

// DeleteBySession drops every timeout of a session.
func (r *TimeoutRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM live_chat_timeouts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete chat timeouts: %w", err)
	}
	return nil
}

// PurgeExpired drops timeouts that ended at or before now and reports how many.
func (r *TimeoutRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM live_chat_timeouts WHERE timeout_until <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge chat timeouts: %w", err)
	}
	return tag.RowsAffected(), nil
}
