package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"microblog/internal/auth"
	"microblog/internal/cache"
	"microblog/internal/feed"
	"microblog/internal/models"
	"microblog/internal/store"
)

type Handler struct {
	store     *store.Store
	feed      *feed.Service
	sessions  *auth.Manager
	pageCache *cache.PageCache
	tpls      *template.Template
	mediaDir  string
}

func New(
	st *store.Store,
	feedService *feed.Service,
	sessions *auth.Manager,
	pageCache *cache.PageCache,
	templatesDir string,
	mediaDir string,
) *Handler {
	tpls := template.Must(template.ParseGlob(filepath.Join(templatesDir, "*.html")))
	return &Handler{
		store:     st,
		feed:      feedService,
		sessions:  sessions,
		pageCache: pageCache,
		tpls:      tpls,
		mediaDir:  mediaDir,
	}
}

// Routes builds the full route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /group/{slug}", h.GroupPosts)
	mux.HandleFunc("GET /profile/{username}", h.Profile)
	mux.HandleFunc("GET /posts/{id}", h.PostDetail)

	mux.HandleFunc("GET /follow", h.RequireAuth(h.FollowIndex))
	mux.HandleFunc("GET /posts/create", h.RequireAuth(h.CreatePost))
	mux.HandleFunc("POST /posts/create", h.RequireAuth(h.CreatePost))
	mux.HandleFunc("GET /posts/{id}/edit", h.RequireAuth(h.EditPost))
	mux.HandleFunc("POST /posts/{id}/edit", h.RequireAuth(h.EditPost))
	mux.HandleFunc("POST /posts/{id}/comment", h.RequireAuth(h.AddComment))
	mux.HandleFunc("GET /profile/{username}/follow", h.RequireAuth(h.ProfileFollow))
	mux.HandleFunc("GET /profile/{username}/unfollow", h.RequireAuth(h.ProfileUnfollow))

	mux.HandleFunc("/auth/signup", h.Signup)
	mux.HandleFunc("/auth/login", h.Login)
	mux.HandleFunc("GET /auth/logout", h.Logout)

	media := http.FileServer(http.Dir(h.mediaDir))
	mux.Handle("GET /media/", http.StripPrefix("/media/", media))

	mux.HandleFunc("/", h.NotFound)
	return mux
}

// RequireAuth gates a route, sending anonymous callers to the login page
// with the original path as the return target.
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.sessions.CurrentUserID(r); !ok {
			http.Redirect(w, r, "/auth/login?next="+url.QueryEscape(r.URL.Path), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (h *Handler) currentUser(r *http.Request) (*models.User, bool) {
	uid, ok := h.sessions.CurrentUserID(r)
	if !ok {
		return nil, false
	}
	user, err := h.store.UserByID(r.Context(), uid)
	if err != nil {
		return nil, false
	}
	return user, true
}

// render executes a page template into a buffer first so a failed render
// never leaves a half-written response.
func (h *Handler) render(w http.ResponseWriter, status int, name string, data map[string]any) {
	var buf bytes.Buffer
	if err := h.tpls.ExecuteTemplate(&buf, name, data); err != nil {
		log.WithError(err).WithField("template", name).Error("render failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderBytes is the cacheable variant: same execution, but the result is
// returned instead of written.
func (h *Handler) renderBytes(name string, data map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := h.tpls.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// -------- Read pages

// Index serves the global feed. Renderings are cached for the configured
// TTL, keyed by viewer session and page; a post written in between may stay
// invisible until the entry expires.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	page := feed.ParsePage(r.URL.Query().Get("page"))
	_, logged := h.sessions.CurrentUserID(r)

	key := cache.Key{
		Route:   "index",
		Session: h.sessions.SessionValue(r),
		Page:    page,
	}
	body, hit, err := h.pageCache.GetOrCompute(key, func() ([]byte, error) {
		listing, err := h.feed.Posts(r.Context(), feed.All(), page)
		if err != nil {
			return nil, err
		}
		return h.renderBytes("index", map[string]any{
			"Title":  "Latest posts",
			"Logged": logged,
			"Page":   listing.Page,
		})
	})
	if err != nil {
		log.WithError(err).Error("index render failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if hit {
		log.WithField("page", page).Debug("index served from cache")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(body)
}

func (h *Handler) GroupPosts(w http.ResponseWriter, r *http.Request) {
	page := feed.ParsePage(r.URL.Query().Get("page"))
	listing, err := h.feed.Posts(r.Context(), feed.ByGroup(r.PathValue("slug")), page)
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	} else if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	_, logged := h.sessions.CurrentUserID(r)
	h.render(w, http.StatusOK, "group", map[string]any{
		"Title":  listing.Group.Title,
		"Logged": logged,
		"Group":  listing.Group,
		"Page":   listing.Page,
	})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	page := feed.ParsePage(r.URL.Query().Get("page"))
	listing, err := h.feed.Posts(r.Context(), feed.ByAuthor(r.PathValue("username")), page)
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	} else if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	uid, logged := h.sessions.CurrentUserID(r)
	following := false
	if logged {
		following, _ = h.store.IsFollowing(r.Context(), uid, listing.Author.ID)
	}

	h.render(w, http.StatusOK, "profile", map[string]any{
		"Title":      "Posts by " + listing.Author.Username,
		"Logged":     logged,
		"Author":     listing.Author,
		"CountPosts": listing.AuthorPostCount,
		"Following":  following,
		"IsSelf":     logged && uid == listing.Author.ID,
		"Page":       listing.Page,
	})
}

func (h *Handler) PostDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.NotFound(w, r)
		return
	}
	post, err := h.store.PostByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	} else if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	comments, err := h.store.CommentsByPost(r.Context(), id)
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	countPosts, err := h.store.CountPosts(r.Context(), store.PostFilter{AuthorID: post.AuthorID})
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	uid, logged := h.sessions.CurrentUserID(r)
	h.render(w, http.StatusOK, "post", map[string]any{
		"Title":      post.Title(),
		"Logged":     logged,
		"Post":       post,
		"CountPosts": countPosts,
		"Comments":   comments,
		"IsAuthor":   logged && uid == post.AuthorID,
	})
}

// FollowIndex lists posts by the authors the viewer follows.
func (h *Handler) FollowIndex(w http.ResponseWriter, r *http.Request) {
	uid, _ := h.sessions.CurrentUserID(r)
	page := feed.ParsePage(r.URL.Query().Get("page"))
	listing, err := h.feed.Posts(r.Context(), feed.ByFollowed(uid), page)
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	h.render(w, http.StatusOK, "follow", map[string]any{
		"Title":  "Your feed",
		"Logged": true,
		"Page":   listing.Page,
	})
}

// -------- Write paths

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	user, _ := h.currentUser(r)
	if user == nil {
		h.sessions.Destroy(w, r)
		http.Redirect(w, r, "/auth/login", http.StatusFound)
		return
	}

	if r.Method != http.MethodPost {
		h.renderPostForm(w, http.StatusOK, r, nil, "")
		return
	}

	text, groupID, image, err := h.postForm(r)
	if err != nil {
		h.renderPostForm(w, http.StatusUnprocessableEntity, r, nil, err.Error())
		return
	}

	post, err := h.store.CreatePost(r.Context(), user.ID, groupID, text, image)
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	log.WithFields(log.Fields{"post": post.ID, "author": user.Username}).Info("post created")
	http.Redirect(w, r, "/profile/"+user.Username, http.StatusSeeOther)
}

func (h *Handler) EditPost(w http.ResponseWriter, r *http.Request) {
	uid, _ := h.sessions.CurrentUserID(r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.NotFound(w, r)
		return
	}
	post, err := h.store.PostByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	} else if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	detail := fmt.Sprintf("/posts/%d", post.ID)

	// Editing someone else's post quietly lands back on the post.
	if post.AuthorID != uid {
		http.Redirect(w, r, detail, http.StatusFound)
		return
	}

	if r.Method != http.MethodPost {
		h.renderPostForm(w, http.StatusOK, r, post, "")
		return
	}

	text, groupID, image, err := h.postForm(r)
	if err != nil {
		h.renderPostForm(w, http.StatusUnprocessableEntity, r, post, err.Error())
		return
	}
	if image == "" {
		image = post.Image
	}
	if err := h.store.UpdatePost(r.Context(), post.ID, groupID, text, image); err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, detail, http.StatusSeeOther)
}

// AddComment appends a comment and returns to the post either way; an empty
// text simply creates nothing.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	uid, _ := h.sessions.CurrentUserID(r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.NotFound(w, r)
		return
	}
	if _, err := h.store.PostByID(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	} else if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	text := strings.TrimSpace(r.FormValue("text"))
	if text != "" {
		if _, err := h.store.CreateComment(r.Context(), id, uid, text); err != nil {
			http.Error(w, "DB error", http.StatusInternalServerError)
			return
		}
	}
	http.Redirect(w, r, fmt.Sprintf("/posts/%d", id), http.StatusSeeOther)
}

func (h *Handler) ProfileFollow(w http.ResponseWriter, r *http.Request) {
	uid, _ := h.sessions.CurrentUserID(r)
	author, err := h.store.UserByUsername(r.Context(), r.PathValue("username"))
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	} else if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	if err := h.store.Follow(r.Context(), uid, author.ID); err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/profile/"+author.Username, http.StatusSeeOther)
}

func (h *Handler) ProfileUnfollow(w http.ResponseWriter, r *http.Request) {
	uid, _ := h.sessions.CurrentUserID(r)
	author, err := h.store.UserByUsername(r.Context(), r.PathValue("username"))
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	} else if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	err = h.store.Unfollow(r.Context(), uid, author.ID)
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	} else if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/profile/"+author.Username, http.StatusSeeOther)
}

// -------- Accounts

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.render(w, http.StatusOK, "signup", map[string]any{"Title": "Sign up"})
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	username := strings.TrimSpace(r.FormValue("username"))
	pass := r.FormValue("password")
	if email == "" || username == "" || pass == "" {
		h.render(w, http.StatusUnprocessableEntity, "signup", map[string]any{
			"Title": "Sign up",
			"Error": "All fields are required",
		})
		return
	}

	hash, err := HashPassword(pass)
	if err != nil {
		http.Error(w, "hash error", http.StatusInternalServerError)
		return
	}
	if _, err := h.store.CreateUser(r.Context(), email, username, hash); err != nil {
		h.render(w, http.StatusUnprocessableEntity, "signup", map[string]any{
			"Title": "Sign up",
			"Error": "Email or username already taken",
		})
		return
	}
	http.Redirect(w, r, "/auth/login?registered=1", http.StatusSeeOther)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.FormValue("next"))
	if next == "" {
		next = safeNext(r.URL.Query().Get("next"))
	}

	if r.Method != http.MethodPost {
		h.render(w, http.StatusOK, "login", map[string]any{
			"Title":      "Log in",
			"Registered": r.URL.Query().Get("registered") == "1",
			"Next":       next,
		})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	pass := r.FormValue("password")

	user, err := h.store.UserByUsername(r.Context(), username)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !CheckPassword(pass, user.PasswordHash)) {
		h.render(w, http.StatusUnauthorized, "login", map[string]any{
			"Title": "Log in",
			"Error": "Wrong username or password",
			"Next":  next,
		})
		return
	} else if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	h.sessions.DropUserSessions(user.ID)
	if err := h.sessions.Create(w, user.ID); err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	if next == "" {
		next = "/"
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	_, logged := h.sessions.CurrentUserID(r)
	h.render(w, http.StatusNotFound, "notfound", map[string]any{
		"Title":  "Not Found",
		"Logged": logged,
	})
}

// -------- Form helpers

// postForm extracts the shared create/edit fields. An uploaded image is
// stored under the media dir and its generated filename returned.
func (h *Handler) postForm(r *http.Request) (text string, groupID int64, image string, err error) {
	// multipart when an image upload is possible, urlencoded otherwise
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			return "", 0, "", errors.New("Invalid form")
		}
	}

	text = strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		return "", 0, "", errors.New("Post text must not be empty")
	}
	if raw := r.FormValue("group"); raw != "" {
		groupID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", 0, "", errors.New("Unknown group")
		}
	}

	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		image, err = h.saveImage(file, header.Filename)
		if err != nil {
			log.WithError(err).Error("image save failed")
			return "", 0, "", errors.New("Could not store image")
		}
	}
	return text, groupID, image, nil
}

func (h *Handler) saveImage(file io.Reader, original string) (string, error) {
	if err := os.MkdirAll(h.mediaDir, 0o755); err != nil {
		return "", err
	}
	name := uuid.New().String() + filepath.Ext(original)
	dst, err := os.Create(filepath.Join(h.mediaDir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		return "", err
	}
	return name, nil
}

func (h *Handler) renderPostForm(w http.ResponseWriter, status int, r *http.Request, post *models.Post, errMsg string) {
	groups, err := h.store.Groups(r.Context())
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	var selectedGroup int64
	data := map[string]any{
		"Title":         "New post",
		"Logged":        true,
		"Groups":        groups,
		"IsEdit":        post != nil,
		"Error":         errMsg,
		"SelectedGroup": selectedGroup,
	}
	if post != nil {
		data["Title"] = "Edit post"
		data["Post"] = post
		data["SelectedGroup"] = post.GroupID
	}
	h.render(w, status, "post_form", data)
}

// safeNext keeps redirects on-site.
func safeNext(next string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		return next
	}
	return ""
}

// --- password helpers (bcrypt) ---
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}
func CheckPassword(pw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
