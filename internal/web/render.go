package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/UkralStul/blog-web/internal/api"
	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

//go:embed templates
var templateFS embed.FS

const (
	layoutFile   = "templates/layout.html"
	partialsFile = "templates/partials.html"
)

type views struct {
	pages     map[string]*template.Template
	fragments *template.Template
}

var funcs = template.FuncMap{
	"ago":  func(t time.Time) string { return humanize.Time(t) },
	"date": func(t time.Time) string { return t.Format("January 2, 2006") },
	// Post bodies come from the backend as authored HTML and are shown as is.
	"html":    func(s string) template.HTML { return template.HTML(s) },
	"comma":   func(n int) string { return humanize.Comma(int64(n)) },
	"plural":  func(n int, one, many string) string { return humanize.PluralWord(n, one, many) },
	"summary": func(p domain.Post) string { return p.Summary(160) },
	"contains": func(list []string, s string) bool {
		for _, v := range list {
			if v == s {
				return true
			}
		}
		return false
	},
}

func loadViews() (*views, error) {
	files, err := fs.Glob(templateFS, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	v := &views{pages: make(map[string]*template.Template, len(files))}
	for _, f := range files {
		name := strings.TrimSuffix(path.Base(f), ".html")
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, layoutFile, partialsFile, f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		v.pages[name] = t
	}
	v.fragments, err = template.New("fragments").Funcs(funcs).ParseFS(templateFS, partialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragments: %w", err)
	}
	return v, nil
}

// page is the data every full page is rendered with.
type page struct {
	Title         string
	Path          string
	Authenticated bool
	User          *domain.User
	Flashes       []domain.Flash
	Data          any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, sess *domain.Session, status int, name, title string, data any) {
	log := loggerFrom(r.Context(), s.log)
	t, ok := s.views.pages[name]
	if !ok {
		log.Error("Unknown template", zap.String("template", name))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	flashes, err := s.sessions.PopFlashes(r.Context(), sess)
	if err != nil {
		log.Warn("Failed to pop notifications", zap.Error(err))
	}

	var buf bytes.Buffer
	err = t.ExecuteTemplate(&buf, "layout", page{
		Title:         title,
		Path:          r.URL.Path,
		Authenticated: sess.Authenticated(),
		User:          sess.User,
		Flashes:       flashes,
		Data:          data,
	})
	if err != nil {
		log.Error("Failed to render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// fragment renders one partial without the layout.
func (s *Server) fragment(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.views.fragments.ExecuteTemplate(&buf, name, data); err != nil {
		loggerFrom(r.Context(), s.log).Error("Failed to render fragment", zap.String("fragment", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// notFoundData drives the in-page not-found state.
type notFoundData struct {
	What     string
	BackURL  string
	BackText string
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	s.render(w, r, sess, http.StatusNotFound, "not_found", "Page not found", notFoundData{
		What:     "page",
		BackURL:  "/",
		BackText: "Go home",
	})
}

// failed renders a backend failure that left nothing to show.
func (s *Server) failed(w http.ResponseWriter, r *http.Request, sess *domain.Session, err error, fallback string) {
	loggerFrom(r.Context(), s.log).Error(fallback, zap.Error(err))
	s.render(w, r, sess, http.StatusBadGateway, "error", "Something went wrong", api.Message(err, fallback))
}
