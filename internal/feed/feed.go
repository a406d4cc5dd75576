// Package feed builds the filtered, ordered, paginated post listings behind
// every read route: the global feed, a group's page, an author's profile and
// the followed-authors feed.
package feed

import (
	"context"

	"microblog/internal/models"
	"microblog/internal/store"
)

type scopeKind int

const (
	scopeAll scopeKind = iota
	scopeGroup
	scopeAuthor
	scopeFollowed
)

// Scope selects which subset of posts a listing covers.
type Scope struct {
	kind     scopeKind
	slug     string
	username string
	viewerID int64
}

func All() Scope                    { return Scope{kind: scopeAll} }
func ByGroup(slug string) Scope     { return Scope{kind: scopeGroup, slug: slug} }
func ByAuthor(username string) Scope {
	return Scope{kind: scopeAuthor, username: username}
}

// ByFollowed scopes the listing to authors the viewer follows. The caller is
// responsible for only passing authenticated viewer ids.
func ByFollowed(viewerID int64) Scope {
	return Scope{kind: scopeFollowed, viewerID: viewerID}
}

// Listing is one page of posts plus the extras a scope carries: the group
// for group listings, the author and their denormalized post total for
// profile listings.
type Listing struct {
	Page   Page
	Group  *models.Group
	Author *models.User

	// AuthorPostCount is the author's total across all pages, not the
	// count of items on this page.
	AuthorPostCount int
}

type Service struct {
	store *store.Store
}

func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Posts resolves a scope to a page of posts. Unknown slugs and usernames
// surface store.ErrNotFound. Out-of-range pages clamp instead of failing.
func (s *Service) Posts(ctx context.Context, scope Scope, page int) (*Listing, error) {
	listing := &Listing{}
	var filter store.PostFilter

	switch scope.kind {
	case scopeGroup:
		group, err := s.store.GroupBySlug(ctx, scope.slug)
		if err != nil {
			return nil, err
		}
		listing.Group = group
		filter.GroupID = group.ID
	case scopeAuthor:
		author, err := s.store.UserByUsername(ctx, scope.username)
		if err != nil {
			return nil, err
		}
		listing.Author = author
		filter.AuthorID = author.ID
	case scopeFollowed:
		filter.FollowedBy = scope.viewerID
	}

	total, err := s.store.CountPosts(ctx, filter)
	if err != nil {
		return nil, err
	}
	if scope.kind == scopeAuthor {
		listing.AuthorPostCount = total
	}

	totalPages := PageCount(total)
	page = ClampPage(page, totalPages)

	items, err := s.store.ListPosts(ctx, filter, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, err
	}

	listing.Page = Page{
		Items:      items,
		Number:     page,
		TotalPages: totalPages,
		TotalItems: total,
	}
	return listing, nil
}
