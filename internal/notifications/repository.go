package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-live/backend/internal/models"
)

// Repository handles followers lookups and notifications persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notifications repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FollowerIDs returns the ids of users following broadcasterID.
func (r *Repository) FollowerIDs(ctx context.Context, broadcasterID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT follower_id FROM followers WHERE broadcaster_id = $1`, broadcasterID)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follower: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertMany writes notifications in one batch. A user already notified for the same
// session and type is skipped, so a retried job never duplicates rows.
func (r *Repository) InsertMany(ctx context.Context, ns []models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	const q = `INSERT INTO notifications (user_id, type, actor_id, session_id, title, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, type, session_id) DO NOTHING`
	batch := &pgx.Batch{}
	for _, n := range ns {
		batch.Queue(q, n.UserID, n.Type, n.ActorID, n.SessionID, n.Title, n.Message)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range ns {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}
