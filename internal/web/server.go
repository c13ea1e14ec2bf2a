package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/UkralStul/blog-web/internal/api"
	"github.com/UkralStul/blog-web/internal/comments"
	"github.com/UkralStul/blog-web/internal/query"
	"github.com/UkralStul/blog-web/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Deps is everything the web layer needs; all fields except Metrics are
// required.
type Deps struct {
	API      *api.Client
	Query    *query.Client
	Comments *comments.Composer
	Sessions *session.Manager
	Latest   *query.Latest
	Metrics  http.Handler
	Cookie   CookieConfig
	Log      *zap.Logger
}

// Server renders the blog pages on top of the backend API.
type Server struct {
	api      *api.Client
	query    *query.Client
	comments *comments.Composer
	sessions *session.Manager
	latest   *query.Latest
	cookie   CookieConfig
	log      *zap.Logger

	views    *views
	upgrader websocket.Upgrader
	router   chi.Router
}

func NewServer(d Deps) (*Server, error) {
	if d.API == nil || d.Query == nil || d.Comments == nil || d.Sessions == nil {
		return nil, errors.New("web: api, query, comments and sessions are required")
	}
	if d.Latest == nil {
		d.Latest = query.NewLatest()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Cookie.Name == "" {
		d.Cookie.Name = "blog_session"
	}

	v, err := loadViews()
	if err != nil {
		return nil, err
	}

	s := &Server{
		api:      d.API,
		query:    d.Query,
		comments: d.Comments,
		sessions: d.Sessions,
		latest:   d.Latest,
		cookie:   d.Cookie,
		log:      d.Log.Named("web"),
		views:    v,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.registerResources()
	s.router = s.routes(d.Metrics)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Get("/", s.withSession(s.home))
	r.Get("/about", s.withSession(s.about))

	r.Route("/blog", func(r chi.Router) {
		r.Get("/", s.withSession(s.blogList))
		r.Get("/results", s.withSession(s.blogResults))
		r.Get("/category/{slug}", s.withSession(s.categoryPage))
		r.Get("/{id}", s.withSession(s.postDetail))
		r.Post("/{id}/like", s.withSession(s.requireAuth("Please login to like posts", s.likePost)))
		r.Post("/{id}/comments", s.withSession(s.requireAuth("Please login to comment", s.addComment)))
		r.Post("/{id}/comments/{cid}/replies", s.withSession(s.requireAuth("Please login to reply", s.addReply)))
		r.Post("/{id}/comments/{cid}/like", s.withSession(s.requireAuth("Please login to like comments", s.likeComment)))
	})
	r.Get("/categories", s.withSession(s.categoryIndex))

	r.Get("/login", s.withSession(s.loginPage))
	r.Post("/login", s.withSession(s.login))
	r.Get("/register", s.withSession(s.registerPage))
	r.Post("/register", s.withSession(s.register))
	r.Post("/logout", s.withSession(s.logout))

	r.Get("/dashboard", s.withSession(s.requireAuth("Please login to access the dashboard", s.dashboard)))
	r.Get("/profile", s.withSession(s.requireAuth("Please login to access your profile", s.profilePage)))
	r.Post("/profile", s.withSession(s.requireAuth("Please login to access your profile", s.updateProfile)))
	r.Get("/write", s.withSession(s.requireAuth("Please login to write a post", s.writePage)))
	r.Post("/write", s.withSession(s.requireAuth("Please login to write a post", s.createPost)))

	r.Get("/ws/session", s.withSession(s.sessionFeed))

	r.NotFound(s.withSession(s.notFound))
	return r
}
