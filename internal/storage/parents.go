package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vickym250/jnschool/internal/core"
)

func (r *SQLiteRepository) CreateParent(ctx context.Context, p core.Parent) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO parents (id, father_name, mother_name, phone, address, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`, p.ID, p.FatherName, p.MotherName, p.Phone, p.Address, p.CreatedAt.UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert parent %s: %w", p.ID, core.ErrConflict)
			}
			return fmt.Errorf("insert parent: %w", err)
		}
		for i, sid := range p.StudentIDs {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO parent_students (parent_id, student_id, position)
				VALUES (?, ?, ?)`, p.ID, sid, i); err != nil {
				return fmt.Errorf("link student %s: %w", sid, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) GetParent(ctx context.Context, id string) (core.Parent, error) {
	var p core.Parent
	err := r.db.QueryRowContext(ctx, `SELECT id, father_name, mother_name, phone, address, created_at
		FROM parents WHERE id = ?`, id).Scan(&p.ID, &p.FatherName, &p.MotherName, &p.Phone, &p.Address, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Parent{}, core.ErrParentNotFound
	}
	if err != nil {
		return core.Parent{}, fmt.Errorf("get parent %s: %w", id, err)
	}
	byID := map[string]*core.Parent{p.ID: &p}
	if err := r.loadChildren(ctx, `p.id = ?`, []any{id}, byID); err != nil {
		return core.Parent{}, err
	}
	return p, nil
}

func (r *SQLiteRepository) ListParents(ctx context.Context, search string) ([]core.Parent, error) {
	clause, args := "1 = 1", []any{}
	if q := strings.ToLower(strings.TrimSpace(search)); q != "" {
		clause, args = `LOWER(p.father_name) LIKE ?`, []any{"%" + q + "%"}
	}
	rows, err := r.db.QueryContext(ctx, `SELECT p.id, p.father_name, p.mother_name, p.phone, p.address, p.created_at
		FROM parents p WHERE `+clause+` ORDER BY LOWER(p.father_name)`, args...)
	if err != nil {
		return nil, fmt.Errorf("list parents: %w", err)
	}
	var out []core.Parent
	for rows.Next() {
		var p core.Parent
		if err := rows.Scan(&p.ID, &p.FatherName, &p.MotherName, &p.Phone, &p.Address, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan parent: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list parents: %w", err)
	}
	rows.Close()

	byID := make(map[string]*core.Parent, len(out))
	for i := range out {
		byID[out[i].ID] = &out[i]
	}
	if err := r.loadChildren(ctx, clause, args, byID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepository) loadChildren(ctx context.Context, clause string, args []any, byID map[string]*core.Parent) error {
	rows, err := r.db.QueryContext(ctx, `SELECT ps.parent_id, ps.student_id FROM parent_students ps
		JOIN parents p ON p.id = ps.parent_id WHERE `+clause+` ORDER BY ps.position`, args...)
	if err != nil {
		return fmt.Errorf("load parent students: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pid, sid string
		if err := rows.Scan(&pid, &sid); err != nil {
			return fmt.Errorf("scan parent student: %w", err)
		}
		if p, ok := byID[pid]; ok {
			p.StudentIDs = append(p.StudentIDs, sid)
		}
	}
	return rows.Err()
}

func (r *SQLiteRepository) LinkStudent(ctx context.Context, parentID, studentID string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM parents WHERE id = ?`, parentID).Scan(&n); err != nil {
			return fmt.Errorf("check parent %s: %w", parentID, err)
		}
		if n == 0 {
			return core.ErrParentNotFound
		}
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO parent_students (parent_id, student_id, position)
			VALUES (?, ?, (SELECT COUNT(*) FROM parent_students WHERE parent_id = ?))`, parentID, studentID, parentID)
		if err != nil {
			return fmt.Errorf("link student %s to parent %s: %w", studentID, parentID, err)
		}
		return nil
	})
}
