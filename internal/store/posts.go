package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"microblog/internal/models"
)

const postColumns = `p.id, p.user_id, u.username, p.group_id, IFNULL(g.title,''), IFNULL(g.slug,''),
	p.text, p.image, p.created_at,
	(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id)`

const postFrom = ` FROM posts p
	JOIN users u ON u.id = p.user_id
	LEFT JOIN groups g ON g.id = p.group_id`

// PostFilter narrows a listing. Zero fields are ignored.
type PostFilter struct {
	GroupID    int64
	AuthorID   int64
	FollowedBy int64 // only posts by authors this user follows
}

func (f PostFilter) clauses() (joins string, where string, args []any) {
	var wheres []string
	if f.GroupID != 0 {
		wheres = append(wheres, "p.group_id = ?")
		args = append(args, f.GroupID)
	}
	if f.AuthorID != 0 {
		wheres = append(wheres, "p.user_id = ?")
		args = append(args, f.AuthorID)
	}
	if f.FollowedBy != 0 {
		joins = " JOIN follows f ON f.author_id = p.user_id AND f.user_id = ?"
		args = append([]any{f.FollowedBy}, args...)
	}
	if len(wheres) > 0 {
		where = " WHERE " + strings.Join(wheres, " AND ")
	}
	return joins, where, args
}

func (s *Store) CreatePost(ctx context.Context, authorID, groupID int64, text, image string) (*models.Post, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts(user_id,group_id,text,image,created_at) VALUES(?,?,?,?,?)`,
		authorID, nullableID(groupID), text, image, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Post{
		ID:        id,
		AuthorID:  authorID,
		GroupID:   groupID,
		Text:      text,
		Image:     image,
		CreatedAt: now,
	}, nil
}

// UpdatePost rewrites text, group and image; created_at stays untouched.
func (s *Store) UpdatePost(ctx context.Context, id, groupID int64, text, image string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET text = ?, group_id = ?, image = ? WHERE id = ?`,
		text, nullableID(groupID), image, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) PostByID(ctx context.Context, id int64) (*models.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+postFrom+` WHERE p.id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPosts returns a window of the filtered feed in default order:
// newest first, ties broken by id descending.
func (s *Store) ListPosts(ctx context.Context, f PostFilter, limit, offset int) ([]models.Post, error) {
	joins, where, args := f.clauses()
	q := `SELECT ` + postColumns + postFrom + joins + where +
		` ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (s *Store) CountPosts(ctx context.Context, f PostFilter) (int, error) {
	joins, where, args := f.clauses()
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts p`+joins+where, args...).Scan(&n)
	return n, err
}

// DeletePost removes the post and its comments in one transaction.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var p models.Post
	var groupID sql.NullInt64
	err := row.Scan(&p.ID, &p.AuthorID, &p.Author, &groupID, &p.GroupTitle, &p.GroupSlug,
		&p.Text, &p.Image, &p.CreatedAt, &p.Comments)
	if err != nil {
		return nil, err
	}
	p.GroupID = groupID.Int64
	return &p, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
