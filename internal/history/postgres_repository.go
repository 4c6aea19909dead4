package history

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/postgres.sql
var postgresSchema string

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the history table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

// Create stores a new item.
func (r *PostgresRepository) Create(ctx context.Context, item *Item) error {
	query := `
		INSERT INTO advisory_history (
			id, owner, kind, origin, destination,
			best_depart_at, eta_minutes, saving_vs_now, risk, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		item.ID,
		item.Owner,
		string(item.Kind),
		item.Origin,
		item.Destination,
		item.BestDepartAt,
		item.ETAMinutes,
		item.SavingVsNow,
		item.Risk,
		item.CreatedAt,
	)
	return err
}

// ListByOwner returns at most limit items, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]*Item, error) {
	if limit <= 0 {
		limit = MaxItemsPerOwner
	}

	query := `
		SELECT
			id, owner, kind, origin, destination,
			best_depart_at, eta_minutes, saving_vs_now, risk, created_at
		FROM advisory_history
		WHERE owner = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, owner, limit)
	if err != nil {
		return nil, err
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Item, error) {
		var item Item
		var kind string
		err := row.Scan(
			&item.ID,
			&item.Owner,
			&kind,
			&item.Origin,
			&item.Destination,
			&item.BestDepartAt,
			&item.ETAMinutes,
			&item.SavingVsNow,
			&item.Risk,
			&item.CreatedAt,
		)
		item.Kind = Kind(kind)
		return &item, err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes an item owned by owner.
func (r *PostgresRepository) Delete(ctx context.Context, owner, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM advisory_history WHERE id = $1 AND owner = $2`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Trim keeps the newest keep items of owner.
func (r *PostgresRepository) Trim(ctx context.Context, owner string, keep int) (int, error) {
	query := `
		DELETE FROM advisory_history
		WHERE owner = $1 AND id NOT IN (
			SELECT id FROM advisory_history
			WHERE owner = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)
	`

	tag, err := r.pool.Exec(ctx, query, owner, keep)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
