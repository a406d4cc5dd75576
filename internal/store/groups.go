package store

import (
	"context"
	"database/sql"
	"errors"

	"microblog/internal/models"
)

func (s *Store) CreateGroup(ctx context.Context, title, slug, description string) (*models.Group, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO groups(title,slug,description) VALUES(?,?,?)`,
		title, slug, description)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Group{ID: id, Title: title, Slug: slug, Description: description}, nil
}

func (s *Store) GroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	var g models.Group
	err := s.db.QueryRowContext(ctx,
		`SELECT id,title,slug,description FROM groups WHERE slug = ?`, slug).
		Scan(&g.ID, &g.Title, &g.Slug, &g.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) Groups(ctx context.Context) ([]models.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,title,slug,description FROM groups ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteGroup detaches the group's posts before removing the group itself.
// Posts survive with no group.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE posts SET group_id = NULL WHERE group_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
