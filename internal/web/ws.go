package web

import (
	"context"
	"net/http"
	"time"

	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/UkralStul/blog-web/internal/session"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// sessionFeed pushes login and logout events of the caller's session, so
// that other open tabs can reload. The first message is the current state.
func (s *Server) sessionFeed(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	log := loggerFrom(r.Context(), s.log)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	feed := s.sessions.Subscribe(ctx, sess.ID)

	// Reader: only needed to notice the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(c session.Change) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(c)
	}
	if err := send(session.Change{SessionID: sess.ID, Kind: session.ChangeState, Authenticated: sess.Authenticated(), User: sess.User}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case c, ok := <-feed:
			if !ok {
				return
			}
			if err := send(c); err != nil {
				log.Debug("Websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
