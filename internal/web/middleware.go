package web

import (
	"context"
	"net/http"
	"time"

	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type loggerKey struct{}

// requestLogger logs one line per request and stores a request-scoped logger
// in the context.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), loggerKey{}, reqLog)))

			reqLog.Info("Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}

func loggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return fallback
}

// sessionHandler is a handler that receives the caller's session explicitly.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *domain.Session)

// withSession loads the session named by the cookie. A visitor without a
// stored session gets a new one, persisted at once so that its id is stable
// across requests.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := loggerFrom(ctx, s.log)

		var id string
		if c, err := r.Cookie(s.cookie.Name); err == nil {
			id = c.Value
		}
		sess, err := s.sessions.Load(ctx, id)
		if err != nil {
			log.Error("Failed to load session", zap.Error(err))
			http.Error(w, "Session unavailable", http.StatusServiceUnavailable)
			return
		}
		if sess.ID != id {
			if err := s.sessions.Save(ctx, sess); err != nil {
				log.Error("Failed to create session", zap.Error(err))
				http.Error(w, "Session unavailable", http.StatusServiceUnavailable)
				return
			}
			s.setCookie(w, sess.ID)
		}
		h(w, r, sess)
	}
}

func (s *Server) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cookie.MaxAge.Seconds()),
	})
}

// requireAuth gates h on the session holding an access token. Others are
// sent to the login page with msg shown there.
func (s *Server) requireAuth(msg string, h sessionHandler) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
		if !sess.Authenticated() {
			s.flash(r, sess, domain.FlashError, msg)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		h(w, r, sess)
	}
}

func (s *Server) flash(r *http.Request, sess *domain.Session, level domain.FlashLevel, msg string) {
	if err := s.sessions.AddFlash(r.Context(), sess, level, msg); err != nil {
		loggerFrom(r.Context(), s.log).Warn("Failed to store notification", zap.Error(err))
	}
}
