package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteRepository is a SQLite implementation of Repository for single-node
// deployments. Writes are serialized; SQLite allows one writer at a time.
type SQLiteRepository struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewSQLiteRepository creates a SQLite history repository and ensures its
// schema exists.
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Create stores a new item.
func (r *SQLiteRepository) Create(ctx context.Context, item *Item) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO advisory_history (
			id, owner, kind, origin, destination,
			best_depart_at_ms, eta_minutes, saving_vs_now, risk, created_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.Owner,
		string(item.Kind),
		item.Origin,
		item.Destination,
		item.BestDepartAt.UnixMilli(),
		item.ETAMinutes,
		item.SavingVsNow,
		item.Risk,
		item.CreatedAt.UnixMilli(),
	)
	return err
}

// ListByOwner returns at most limit items, newest first.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]*Item, error) {
	if limit <= 0 {
		limit = MaxItemsPerOwner
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, owner, kind, origin, destination,
			best_depart_at_ms, eta_minutes, saving_vs_now, risk, created_at_ms
		FROM advisory_history
		WHERE owner = ?
		ORDER BY created_at_ms DESC, id DESC
		LIMIT ?`, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var (
			item              Item
			kind              string
			departMs, created int64
		)
		if err := rows.Scan(
			&item.ID,
			&item.Owner,
			&kind,
			&item.Origin,
			&item.Destination,
			&departMs,
			&item.ETAMinutes,
			&item.SavingVsNow,
			&item.Risk,
			&created,
		); err != nil {
			return nil, err
		}
		item.Kind = Kind(kind)
		item.BestDepartAt = time.UnixMilli(departMs).UTC()
		item.CreatedAt = time.UnixMilli(created).UTC()
		items = append(items, &item)
	}

	return items, rows.Err()
}

// Delete removes an item owned by owner.
func (r *SQLiteRepository) Delete(ctx context.Context, owner, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM advisory_history WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Trim keeps the newest keep items of owner.
func (r *SQLiteRepository) Trim(ctx context.Context, owner string, keep int) (int, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM advisory_history
		WHERE owner = ? AND id NOT IN (
			SELECT id FROM advisory_history
			WHERE owner = ?
			ORDER BY created_at_ms DESC, id DESC
			LIMIT ?
		)`, owner, owner, keep)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Ensure SQLiteRepository implements Repository interface.
var _ Repository = (*SQLiteRepository)(nil)
