package storage

import (
	"context"
	"fmt"
)

// Next raises the counter to max(current, floor)+1 in a single statement and
// returns the new value.
func (r *SQLiteRepository) Next(ctx context.Context, key string, floor int64) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `INSERT INTO counters (name, value) VALUES (?, ? + 1)
		ON CONFLICT (name) DO UPDATE SET value = MAX(counters.value, excluded.value - 1) + 1
		RETURNING value`, key, floor).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("advance counter %s: %w", key, err)
	}
	return v, nil
}

func (r *SQLiteRepository) Release(ctx context.Context, key string, n int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE counters SET value = value - 1 WHERE name = ? AND value = ?`, key, n)
	if err != nil {
		return false, fmt.Errorf("release counter %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release counter %s: %w", key, err)
	}
	return affected == 1, nil
}
