package store

import (
	"context"
	"time"

	"microblog/internal/models"
)

func (s *Store) CreateComment(ctx context.Context, postID, authorID int64, text string) (*models.Comment, error) {
	// The post must still exist; comments reference it without cascade help.
	if _, err := s.PostByID(ctx, postID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO comments(post_id,user_id,text,created_at) VALUES(?,?,?,?)`,
		postID, authorID, text, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Comment{
		ID:        id,
		PostID:    postID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: now,
	}, nil
}

// CommentsByPost returns the post's comments in creation order.
func (s *Store) CommentsByPost(ctx context.Context, postID int64) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.post_id, c.user_id, u.username, c.text, c.created_at
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.post_id = ? ORDER BY c.created_at, c.id`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Author, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) CountComments(ctx context.Context, postID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE post_id = ?`, postID).Scan(&n)
	return n, err
}
