package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userKey = contextKey("user")

// Server exposes a Store over the same REST surface as the real backend,
// mounted under /api.
type Server struct {
	store  *Store
	router chi.Router

	mu    sync.Mutex
	calls map[string]int
}

func NewServer(store *Store) *Server {
	s := &Server{store: store, calls: make(map[string]int)}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.count)
	r.Use(s.authenticate)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/token/", s.obtainToken)

		r.Post("/users/", s.register)
		r.With(requireUser).Get("/users/me/", s.me)
		r.With(requireUser).Patch("/users/{id}/", s.updateUser)

		r.Get("/posts/", s.listPosts)
		r.With(requireUser).Post("/posts/", s.createPost)
		r.With(requireUser).Get("/posts/my_posts/", s.myPosts)
		r.Get("/posts/{id}/", s.getPost)
		r.With(requireUser).Patch("/posts/{id}/", s.updatePost)
		r.Post("/posts/{id}/increment_view/", s.incrementView)

		r.Get("/categories/", s.listCategories)
		r.Get("/categories/{slug}/", s.getCategory)
		r.Get("/tags/", s.listTags)

		r.Get("/comments/for_post/", s.commentsForPost)
		r.With(requireUser).Post("/comments/", s.createComment)
		r.With(requireUser).Get("/comments/my_comments/", s.myComments)
		r.Post("/comments/{id}/like/", s.likeComment)

		r.With(requireUser).Post("/reactions/", s.react)
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Calls returns how many requests matched "METHOD /route/pattern/".
func (s *Server) Calls(method, pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+pattern]
}

// count records the matched route as soon as the response starts, so a
// client that has read the response always observes the call.
func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var once sync.Once
		record := func() {
			once.Do(func() {
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					s.mu.Lock()
					s.calls[r.Method+" "+rctx.RoutePattern()]++
					s.mu.Unlock()
				}
			})
		}
		next.ServeHTTP(&countingWriter{ResponseWriter: w, record: record}, r)
		record()
	})
}

type countingWriter struct {
	http.ResponseWriter
	record func()
}

func (c *countingWriter) WriteHeader(code int) {
	c.record()
	c.ResponseWriter.WriteHeader(code)
}

func (c *countingWriter) Write(b []byte) (int, error) {
	c.record()
	return c.ResponseWriter.Write(b)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		u, ok := s.store.UserByToken(token)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r) == nil {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) *domain.User {
	u, _ := r.Context().Value(userKey).(*domain.User)
	return u
}

// === Handlers ===

func (s *Server) obtainToken(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}
	tokens, err := s.store.Login(in.Email, in.Password)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Username == "" || in.Email == "" || in.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Username, email and password are required."}})
		return
	}
	u, err := s.store.CreateUser(domain.User{Username: in.Username, Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}, in.Password)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"email": {err.Error()}})
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))
	if currentUser(r).ID != id {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	var in map[string]string
	if !decode(w, r, &in) {
		return
	}
	u, err := s.store.UpdateUser(id, func(u *domain.User) {
		for k, v := range in {
			switch k {
			case "first_name":
				u.FirstName = v
			case "last_name":
				u.LastName = v
			case "email":
				u.Email = v
			case "bio":
				u.Bio = v
			case "website":
				u.Website = v
			case "location":
				u.Location = v
			}
		}
	})
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pq := PostQuery{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Author:   domain.ID(q.Get("author")),
		Search:   q.Get("search"),
		Ordering: q.Get("ordering"),
	}
	if u := currentUser(r); u != nil {
		pq.ViewerID = u.ID
	}
	writeJSON(w, http.StatusOK, envelope(s.store.Posts(pq)))
}

func (s *Server) myPosts(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	writeJSON(w, http.StatusOK, s.store.Posts(PostQuery{Author: u.ID, ViewerID: u.ID}))
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPost(chi.URLParam(r, "id"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	u := currentUser(r)
	if p.Status != domain.StatusPublished && (u == nil || u.ID != p.Author.ID) {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type postInput struct {
	Title      *string            `json:"title"`
	Content    *string            `json:"content"`
	Excerpt    *string            `json:"excerpt"`
	CategoryID *string            `json:"category_id"`
	TagIDs     []string           `json:"tag_ids"`
	Status     *domain.PostStatus `json:"status"`
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var in postInput
	if !decode(w, r, &in) {
		return
	}
	np := NewPost{AuthorID: currentUser(r).ID, TagIDs: in.TagIDs}
	if in.Title != nil {
		np.Title = *in.Title
	}
	if in.Content != nil {
		np.Content = *in.Content
	}
	if in.Excerpt != nil {
		np.Excerpt = *in.Excerpt
	}
	if in.CategoryID != nil {
		np.CategoryID = *in.CategoryID
	}
	if in.Status != nil {
		np.Status = *in.Status
	}
	p, err := s.store.CreatePost(np)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {err.Error()}})
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	var in postInput
	if !decode(w, r, &in) {
		return
	}
	var category *domain.Category
	if in.CategoryID != nil {
		c, ok := s.store.CategoryByID(*in.CategoryID)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"category_id": {"Category does not exist."}})
			return
		}
		category = c
	}
	var tags []domain.Tag
	for _, id := range in.TagIDs {
		if t, ok := s.store.TagByID(id); ok {
			tags = append(tags, *t)
		}
	}

	userID := currentUser(r).ID
	errForbidden := errors.New("forbidden")
	p, err := s.store.UpdatePost(chi.URLParam(r, "id"), func(p *domain.Post) error {
		if p.Author.ID != userID {
			return errForbidden
		}
		if in.Title != nil {
			p.Title = *in.Title
		}
		if in.Content != nil {
			p.Content = *in.Content
		}
		if in.Excerpt != nil {
			p.Excerpt = domain.Some(*in.Excerpt)
		}
		if category != nil {
			p.Category = *category
		}
		if in.TagIDs != nil {
			p.Tags = tags
		}
		if in.Status != nil {
			p.Status = *in.Status
		}
		return nil
	})
	switch {
	case errors.Is(err, errForbidden):
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
	case err != nil:
		writeDetail(w, http.StatusNotFound, "Not found.")
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) incrementView(w http.ResponseWriter, r *http.Request) {
	if err := s.store.IncrementView(chi.URLParam(r, "id")); err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "View count incremented"})
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope(s.store.Categories()))
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.CategoryBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope(s.store.Tags()))
}

func (s *Server) commentsForPost(w http.ResponseWriter, r *http.Request) {
	postID := r.URL.Query().Get("post_id")
	if postID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "post_id parameter is required"})
		return
	}
	writeJSON(w, http.StatusOK, s.store.ThreadForPost(postID))
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content  string     `json:"content"`
		PostID   string     `json:"post_id"`
		ParentID *domain.ID `json:"parent_id"`
	}
	if !decode(w, r, &in) {
		return
	}
	c, err := s.store.CreateComment(in.PostID, in.ParentID, currentUser(r).ID, in.Content)
	switch {
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrTooLong):
		writeJSON(w, http.StatusBadRequest, map[string][]string{"content": {err.Error()}})
	case err != nil:
		writeDetail(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusCreated, c)
	}
}

func (s *Server) myComments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.CommentsByAuthor(currentUser(r).ID))
}

func (s *Server) likeComment(w http.ResponseWriter, r *http.Request) {
	if err := s.store.LikeComment(domain.ID(chi.URLParam(r, "id"))); err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Comment liked"})
}

func (s *Server) react(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Post string              `json:"post"`
		Type domain.ReactionType `json:"type"`
	}
	if !decode(w, r, &in) {
		return
	}
	rc, err := s.store.React(in.Post, currentUser(r).ID, in.Type)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"post": {err.Error()}})
		return
	}
	writeJSON(w, http.StatusCreated, rc)
}

// === Encoding helpers ===

func envelope[T any](items []T) domain.Page[T] {
	if items == nil {
		items = []T{}
	}
	return domain.Page[T]{Count: len(items), Results: items}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return false
	}
	return true
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
