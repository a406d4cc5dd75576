package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microblog/internal/auth"
	"microblog/internal/cache"
	"microblog/internal/db"
	"microblog/internal/feed"
	"microblog/internal/models"
	"microblog/internal/store"
)

type env struct {
	store     *store.Store
	sessions  *auth.Manager
	pageCache *cache.PageCache
	mux       http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dbc, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbc.Close() })
	require.NoError(t, db.Migrate(dbc))

	st := store.New(dbc)
	sessions := auth.NewManager(dbc, time.Hour)
	pageCache := cache.New(64, 20*time.Second)
	h := New(st, feed.NewService(st), sessions, pageCache, "../../web/templates", t.TempDir())

	return &env{
		store:     st,
		sessions:  sessions,
		pageCache: pageCache,
		mux:       h.Routes(),
	}
}

func (e *env) user(t *testing.T, username string) *models.User {
	t.Helper()
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	u, err := e.store.CreateUser(context.Background(), username+"@example.com", username, hash)
	require.NoError(t, err)
	return u
}

func (e *env) login(t *testing.T, u *models.User) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, e.sessions.Create(rec, u.ID))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func (e *env) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		r.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, r)
	return rec
}

func (e *env) postForm(path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		r.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, r)
	return rec
}

func TestAnonymousCommentRedirectsToLogin(t *testing.T) {
	e := newEnv(t)
	author := e.user(t, "author")
	post, err := e.store.CreatePost(context.Background(), author.ID, 0, "hello", "")
	require.NoError(t, err)

	path := fmt.Sprintf("/posts/%d/comment", post.ID)
	rec := e.postForm(path, url.Values{"text": {"hi"}}, nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?next="+url.QueryEscape(path), rec.Header().Get("Location"))

	n, err := e.store.CountComments(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddComment(t *testing.T) {
	e := newEnv(t)
	author := e.user(t, "author")
	reader := e.user(t, "reader")
	post, err := e.store.CreatePost(context.Background(), author.ID, 0, "hello", "")
	require.NoError(t, err)
	cookie := e.login(t, reader)

	detail := fmt.Sprintf("/posts/%d", post.ID)

	rec := e.postForm(detail+"/comment", url.Values{"text": {"nice one"}}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, detail, rec.Header().Get("Location"))

	n, err := e.store.CountComments(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// whitespace-only text creates nothing but still lands on the post
	rec = e.postForm(detail+"/comment", url.Values{"text": {"   "}}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, detail, rec.Header().Get("Location"))

	n, err = e.store.CountComments(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCommentOnMissingPost(t *testing.T) {
	e := newEnv(t)
	reader := e.user(t, "reader")
	cookie := e.login(t, reader)

	rec := e.postForm("/posts/9999/comment", url.Values{"text": {"hi"}}, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePost(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "writer")
	cookie := e.login(t, u)

	rec := e.postForm("/posts/create", url.Values{"text": {"first post"}}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile/writer", rec.Header().Get("Location"))

	posts, err := e.store.ListPosts(context.Background(), store.PostFilter{AuthorID: u.ID}, 10, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "first post", posts[0].Text)

	// empty text re-renders the form instead of creating
	rec = e.postForm("/posts/create", url.Values{"text": {"  "}}, cookie)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "must not be empty")

	n, err := e.store.CountPosts(context.Background(), store.PostFilter{AuthorID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEditPostOwnership(t *testing.T) {
	e := newEnv(t)
	author := e.user(t, "author")
	intruder := e.user(t, "intruder")
	post, err := e.store.CreatePost(context.Background(), author.ID, 0, "original", "")
	require.NoError(t, err)

	detail := fmt.Sprintf("/posts/%d", post.ID)
	editPath := detail + "/edit"

	// a non-author is quietly sent back to the post, nothing changes
	rec := e.postForm(editPath, url.Values{"text": {"hijacked"}}, e.login(t, intruder))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, detail, rec.Header().Get("Location"))

	got, err := e.store.PostByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Text)

	// the author can edit
	rec = e.postForm(editPath, url.Values{"text": {"revised"}}, e.login(t, author))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, detail, rec.Header().Get("Location"))

	got, err = e.store.PostByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "revised", got.Text)
	assert.WithinDuration(t, post.CreatedAt, got.CreatedAt, time.Second)
}

func TestIndexIsCachedPerViewer(t *testing.T) {
	e := newEnv(t)
	author := e.user(t, "author")
	post, err := e.store.CreatePost(context.Background(), author.ID, 0, "soon gone", "")
	require.NoError(t, err)

	first := e.get("/", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), "soon gone")

	require.NoError(t, e.store.DeletePost(context.Background(), post.ID))

	// still within TTL: byte-identical despite the deletion
	second := e.get("/", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())

	// once the entry is gone the deletion shows through
	e.pageCache.Purge()
	third := e.get("/", nil)
	require.Equal(t, http.StatusOK, third.Code)
	assert.NotEqual(t, first.Body.Bytes(), third.Body.Bytes())
	assert.NotContains(t, third.Body.String(), "soon gone")
}

func TestFollowAndUnfollowRoutes(t *testing.T) {
	e := newEnv(t)
	author := e.user(t, "author")
	fan := e.user(t, "fan")
	cookie := e.login(t, fan)

	rec := e.get("/profile/author/follow", cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile/author", rec.Header().Get("Location"))

	following, err := e.store.IsFollowing(context.Background(), fan.ID, author.ID)
	require.NoError(t, err)
	assert.True(t, following)

	// following twice stays a single edge
	rec = e.get("/profile/author/follow", cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = e.get("/profile/author/unfollow", cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	// the edge is gone now
	rec = e.get("/profile/author/unfollow", cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFollowFeedRoute(t *testing.T) {
	e := newEnv(t)
	author := e.user(t, "author")
	fan := e.user(t, "fan")
	other := e.user(t, "other")

	require.NoError(t, e.store.Follow(context.Background(), fan.ID, author.ID))
	_, err := e.store.CreatePost(context.Background(), author.ID, 0, "for my fans", "")
	require.NoError(t, err)

	rec := e.get("/follow", e.login(t, fan))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "for my fans")

	rec = e.get("/follow", e.login(t, other))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "for my fans")

	// anonymous viewers are sent to login
	rec = e.get("/follow", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Ffollow", rec.Header().Get("Location"))
}

func TestUnknownTargetsAre404(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusNotFound, e.get("/group/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.get("/profile/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.get("/posts/9999", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.get("/posts/not-a-number", nil).Code)
}

func TestGroupAndProfilePages(t *testing.T) {
	e := newEnv(t)
	author := e.user(t, "author")
	group, err := e.store.CreateGroup(context.Background(), "Cats", "cats", "feline content")
	require.NoError(t, err)
	_, err = e.store.CreatePost(context.Background(), author.ID, group.ID, "meow", "")
	require.NoError(t, err)

	rec := e.get("/group/cats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cats")
	assert.Contains(t, rec.Body.String(), "meow")

	rec = e.get("/profile/author", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1 posts")
	assert.Contains(t, rec.Body.String(), "meow")
}

func TestSignupAndLogin(t *testing.T) {
	e := newEnv(t)

	rec := e.postForm("/auth/signup", url.Values{
		"email":    {"new@example.com"},
		"username": {"newbie"},
		"password": {"secret"},
	}, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?registered=1", rec.Header().Get("Location"))

	rec = e.postForm("/auth/login", url.Values{
		"username": {"newbie"},
		"password": {"secret"},
		"next":     {"/follow"},
	}, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/follow", rec.Header().Get("Location"))
	require.NotEmpty(t, rec.Result().Cookies())

	rec = e.postForm("/auth/login", url.Values{
		"username": {"newbie"},
		"password": {"wrong"},
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostDetailShowsComments(t *testing.T) {
	e := newEnv(t)
	author := e.user(t, "author")
	post, err := e.store.CreatePost(context.Background(), author.ID, 0, "a post worth discussing", "")
	require.NoError(t, err)
	_, err = e.store.CreateComment(context.Background(), post.ID, author.ID, "replying to myself")
	require.NoError(t, err)

	rec := e.get(fmt.Sprintf("/posts/%d", post.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a post worth discussing")
	assert.Contains(t, rec.Body.String(), "replying to myself")
}
