package models

import "time"

type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Group struct {
	ID          int64
	Title       string
	Slug        string
	Description string
}

type Post struct {
	ID        int64
	AuthorID  int64
	GroupID   int64 // 0 when the post belongs to no group
	Text      string
	Image     string // stored filename, empty when none
	CreatedAt time.Time

	// Projections filled by list/detail queries, never written back.
	Author     string
	GroupTitle string
	GroupSlug  string
	Comments   int
}

func (p *Post) HasImage() bool { return p.Image != "" }

// Title is the short form used as the heading of the detail page.
func (p *Post) Title() string {
	const limit = 30
	runes := []rune(p.Text)
	if len(runes) <= limit {
		return p.Text
	}
	return string(runes[:limit])
}

type Comment struct {
	ID        int64
	PostID    int64
	AuthorID  int64
	Text      string
	CreatedAt time.Time

	Author string
}

type Follow struct {
	ID       int64
	UserID   int64 // the follower
	AuthorID int64 // the followed
}
