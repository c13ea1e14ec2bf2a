package web

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/UkralStul/blog-web/internal/api"
	"github.com/UkralStul/blog-web/internal/comments"
	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/UkralStul/blog-web/internal/query"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// newestFirst orders by publication, so a draft published late still leads.
const newestFirst = "-published_at"

var orderings = []string{newestFirst, "published_at", "-created_at", "-view_count", "title"}

type homeData struct {
	Recent     []domain.Post
	Categories []domain.Category
}

func (s *Server) home(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	ctx := r.Context()
	page, err := s.posts(ctx, api.PostFilter{Status: domain.StatusPublished, Ordering: newestFirst})
	if err != nil {
		s.failed(w, r, sess, err, "Failed to load posts")
		return
	}
	cats, err := s.categories(ctx)
	if err != nil {
		s.failed(w, r, sess, err, "Failed to load categories")
		return
	}
	recent := page.Results
	if len(recent) > 6 {
		recent = recent[:6]
	}
	s.render(w, r, sess, http.StatusOK, "home", "Home", homeData{Recent: recent, Categories: cats})
}

func (s *Server) about(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	s.render(w, r, sess, http.StatusOK, "about", "About", nil)
}

type blogData struct {
	Filter     api.PostFilter
	Posts      []domain.Post
	Count      int
	Categories []domain.Category
	Orderings  []string
}

// blogFilter reads the list filters from the query string. Only published
// posts are ever listed.
func blogFilter(r *http.Request) api.PostFilter {
	q := r.URL.Query()
	f := api.PostFilter{
		Status:   domain.StatusPublished,
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Ordering: q.Get("ordering"),
	}
	if !slices.Contains(orderings, f.Ordering) {
		f.Ordering = orderings[0]
	}
	return f
}

func (s *Server) blogList(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	ctx := r.Context()
	f := blogFilter(r)
	page, err := s.posts(ctx, f)
	if err != nil {
		s.failed(w, r, sess, err, "Failed to load posts")
		return
	}
	cats, err := s.categories(ctx)
	if err != nil {
		s.failed(w, r, sess, err, "Failed to load categories")
		return
	}
	s.render(w, r, sess, http.StatusOK, "blog", "Blog", blogData{
		Filter:     f,
		Posts:      page.Results,
		Count:      page.Count,
		Categories: cats,
		Orderings:  orderings,
	})
}

// blogResults is the live-search fragment. Only the newest request of a
// session is answered; an older one still in flight is cancelled and gets
// 204 so it can never overwrite fresher results.
func (s *Server) blogResults(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	f := blogFilter(r)
	page, ticket, err := query.Run(r.Context(), s.latest, sess.ID+"/blog", func(ctx context.Context) (*domain.Page[domain.Post], error) {
		return s.posts(ctx, f)
	})
	w.Header().Set("X-View-Epoch", strconv.FormatUint(ticket.Epoch, 10))
	switch {
	case errors.Is(err, query.ErrSuperseded), errors.Is(err, context.Canceled):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		loggerFrom(r.Context(), s.log).Warn("Search failed", zap.Error(err))
		http.Error(w, api.Message(err, "Failed to load posts"), http.StatusBadGateway)
		return
	}
	s.fragment(w, r, "post_list", blogData{Filter: f, Posts: page.Results, Count: page.Count})
}

type postData struct {
	Post          *domain.Post
	Nodes         []comments.Node
	CommentCount  int
	CommentsError string
	Authenticated bool
	MaxDepth      int
}

func (s *Server) postDetail(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	log := loggerFrom(ctx, s.log)

	key := postKey(id)
	if sess.Authenticated() && sess.User != nil {
		// Drafts are visible to their author only.
		key = authorPostKey(id, sess)
	}
	post, err := query.Get[*domain.Post](ctx, s.query, key)
	if api.IsNotFound(err) {
		s.render(w, r, sess, http.StatusNotFound, "not_found", "Post not found", notFoundData{
			What:     "post",
			BackURL:  "/blog",
			BackText: "Back to blog",
		})
		return
	}
	if err != nil {
		s.failed(w, r, sess, err, "Failed to load post")
		return
	}

	if err := s.api.IncrementView(ctx, id); err != nil {
		log.Debug("Failed to count view", zap.String("post_id", id), zap.Error(err))
	}

	data := postData{Post: post, Authenticated: sess.Authenticated(), MaxDepth: comments.MaxDepth}
	tree, err := s.comments.Thread(ctx, id)
	if err != nil {
		log.Warn("Failed to load comments", zap.String("post_id", id), zap.Error(err))
		data.CommentsError = api.Message(err, "Failed to load comments")
	} else {
		data.Nodes = slices.Collect(comments.Walk(tree))
		data.CommentCount = len(data.Nodes)
	}
	s.render(w, r, sess, http.StatusOK, "post", post.Title, data)
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	id := chi.URLParam(r, "id")
	_, err := s.comments.SubmitComment(r.Context(), sess.AccessToken, r.PostFormValue("content"), id)
	s.afterCommentMutation(w, r, sess, id, err, "Comment added!", "Failed to add comment")
}

func (s *Server) addReply(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	id, parent := chi.URLParam(r, "id"), domain.ID(chi.URLParam(r, "cid"))
	depth, err := strconv.Atoi(r.PostFormValue("depth"))
	if err != nil || depth < 0 {
		s.flash(r, sess, domain.FlashError, "Failed to add reply")
		http.Redirect(w, r, "/blog/"+id+"#comments", http.StatusSeeOther)
		return
	}
	_, err = s.comments.SubmitReply(r.Context(), sess.AccessToken, r.PostFormValue("content"), id, parent, depth)
	s.afterCommentMutation(w, r, sess, id, err, "Reply added!", "Failed to add reply")
}

func (s *Server) likeComment(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	id := chi.URLParam(r, "id")
	if _, err := s.comments.Like(r.Context(), sess.AccessToken, id, domain.ID(chi.URLParam(r, "cid"))); err != nil {
		loggerFrom(r.Context(), s.log).Warn("Failed to like comment", zap.String("post_id", id), zap.Error(err))
		s.flash(r, sess, domain.FlashError, "Failed to like comment")
	} else {
		s.flash(r, sess, domain.FlashSuccess, "Comment liked!")
	}
	http.Redirect(w, r, "/blog/"+id+"#comments", http.StatusSeeOther)
}

// afterCommentMutation reports the outcome as a notification and sends the
// browser back to the thread, which the composer has already refreshed.
func (s *Server) afterCommentMutation(w http.ResponseWriter, r *http.Request, sess *domain.Session, postID string, err error, ok, fallback string) {
	var verr *comments.ValidationError
	switch {
	case err == nil:
		s.flash(r, sess, domain.FlashSuccess, ok)
	case errors.As(err, &verr):
		s.flash(r, sess, domain.FlashError, verr.Message)
	case errors.Is(err, comments.ErrMaxDepth):
		s.flash(r, sess, domain.FlashError, "Replies are not allowed this deep")
	default:
		loggerFrom(r.Context(), s.log).Warn(fallback, zap.String("post_id", postID), zap.Error(err))
		s.flash(r, sess, domain.FlashError, api.Message(err, fallback))
	}
	http.Redirect(w, r, "/blog/"+postID+"#comments", http.StatusSeeOther)
}

func (s *Server) likePost(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := s.api.React(api.WithToken(ctx, sess.AccessToken), id, domain.ReactionLike); err != nil {
		loggerFrom(ctx, s.log).Warn("Failed to like post", zap.String("post_id", id), zap.Error(err))
		s.flash(r, sess, domain.FlashError, "Failed to like post")
	} else {
		s.query.Invalidate(ctx, resPost)
		s.flash(r, sess, domain.FlashSuccess, "Post liked!")
	}
	http.Redirect(w, r, "/blog/"+id, http.StatusSeeOther)
}

type categoryIndexData struct {
	Categories []domain.Category
}

func (s *Server) categoryIndex(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	cats, err := s.categories(r.Context())
	if err != nil {
		s.failed(w, r, sess, err, "Failed to load categories")
		return
	}
	s.render(w, r, sess, http.StatusOK, "categories", "Categories", categoryIndexData{Categories: cats})
}

type categoryData struct {
	Category *domain.Category
	Posts    []domain.Post
}

func (s *Server) categoryPage(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	ctx := r.Context()
	cat, err := query.Get[*domain.Category](ctx, s.query, categoryKey(chi.URLParam(r, "slug")))
	if api.IsNotFound(err) {
		s.render(w, r, sess, http.StatusNotFound, "not_found", "Category not found", notFoundData{
			What:     "category",
			BackURL:  "/categories",
			BackText: "Browse categories",
		})
		return
	}
	if err != nil {
		s.failed(w, r, sess, err, "Failed to load category")
		return
	}
	page, err := s.posts(ctx, api.PostFilter{Status: domain.StatusPublished, Category: cat.ID, Ordering: newestFirst})
	if err != nil {
		s.failed(w, r, sess, err, "Failed to load posts")
		return
	}
	s.render(w, r, sess, http.StatusOK, "category", cat.Name, categoryData{Category: cat, Posts: page.Results})
}
