package store

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Follow creates the user→author edge. Following yourself or someone you
// already follow is a no-op; concurrent duplicate attempts collapse on the
// UNIQUE(user_id, author_id) index, which INSERT OR IGNORE absorbs.
func (s *Store) Follow(ctx context.Context, userID, authorID int64) error {
	if userID == authorID {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO follows(user_id,author_id) VALUES(?,?)`,
		userID, authorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.WithFields(log.Fields{"user": userID, "author": authorID}).
			Debug("follow already exists")
	}
	return nil
}

// Unfollow deletes the edge; a missing edge is ErrNotFound.
func (s *Store) Unfollow(ctx context.Context, userID, authorID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM follows WHERE user_id = ? AND author_id = ?`,
		userID, authorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) IsFollowing(ctx context.Context, userID, authorID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follows WHERE user_id = ? AND author_id = ?`,
		userID, authorID).Scan(&n)
	return n > 0, err
}

func (s *Store) FollowedAuthorIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT author_id FROM follows WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
