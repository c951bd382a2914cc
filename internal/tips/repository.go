package tips

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sumBySessionQuery totals every tip attributed to the session.
const sumBySessionQuery = `SELECT COALESCE(SUM(amount_cents), 0) FROM tips WHERE session_id = $1`

// Repository reads tip totals.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tips repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SumBySession returns the total of the tips for a session, in cents.
func (r *Repository) SumBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, sumBySessionQuery, sessionID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum tips: %w", err)
	}
	return total, nil
}
