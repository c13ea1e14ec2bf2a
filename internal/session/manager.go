package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/UkralStul/blog-web/internal/api"
	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/UkralStul/blog-web/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChangeKind names what happened to a session.
type ChangeKind string

const (
	// ChangeState is a snapshot rather than a change, sent to new subscribers.
	ChangeState   ChangeKind = "state"
	ChangeLogin   ChangeKind = "login"
	ChangeLogout  ChangeKind = "logout"
	ChangeUser    ChangeKind = "user"
	// ChangeRenewed goes to the feed of a session id that was replaced on
	// login. It carries neither the new id nor the user.
	ChangeRenewed ChangeKind = "renewed"
)

// Change is published after a session's authentication state or user
// changes.
type Change struct {
	SessionID     string       `json:"session_id"`
	Kind          ChangeKind   `json:"kind"`
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user,omitempty"`
}

// Recorder counts session events.
type Recorder interface {
	SessionEvent(kind string)
}

// Manager owns session persistence and authentication. Sessions are passed
// to it explicitly; it keeps no notion of a current session.
type Manager struct {
	store storage.Storage
	api   *api.Client
	log   *zap.Logger
	rec   Recorder

	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(Change)
	//   map[sessionID] map[subscriberID] channel
	subs map[string]map[string]chan Change
}

func NewManager(store storage.Storage, client *api.Client, log *zap.Logger, rec Recorder) *Manager {
	return &Manager{
		store:     store,
		api:       client,
		log:       log.Named("session"),
		rec:       rec,
		listeners: make(map[int]func(Change)),
		subs:      make(map[string]map[string]chan Change),
	}
}

// New returns a fresh anonymous session. It is not persisted until saved.
func (m *Manager) New() *domain.Session {
	return &domain.Session{ID: uuid.NewString()}
}

// Load returns the stored session with the given id, or a fresh anonymous
// one when id is empty, unknown, expired or no longer decodes.
func (m *Manager) Load(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return m.New(), nil
	}
	s, err := m.store.GetSession(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return m.New(), nil
	case errors.Is(err, storage.ErrCorrupt):
		m.log.Warn("Discarding unreadable session", zap.String("session_id", id), zap.Error(err))
		m.event("corrupt")
		m.forget(ctx, id)
		return m.New(), nil
	case err != nil:
		return nil, err
	}
	return s, nil
}

func (m *Manager) Save(ctx context.Context, s *domain.Session) error {
	return m.store.SaveSession(ctx, s)
}

// IsAuthenticated reports whether s holds an access token. The token is not
// checked against the backend.
func IsAuthenticated(s *domain.Session) bool {
	return s.Authenticated()
}

// Login exchanges credentials for tokens, loads the user and persists both
// into s under a new id; the old id is deleted. Callers must reissue the
// cookie from s.ID. On failure s is left unchanged.
func (m *Manager) Login(ctx context.Context, s *domain.Session, email, password string) error {
	tokens, err := m.api.ObtainToken(ctx, email, password)
	if err != nil {
		m.event("login_failed")
		return err
	}
	user, err := m.api.Me(api.WithToken(ctx, tokens.Access))
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	prev := *s
	s.ID = uuid.NewString()
	s.AccessToken = tokens.Access
	s.RefreshToken = tokens.Refresh
	s.User = user
	if err := m.store.SaveSession(ctx, s); err != nil {
		*s = prev
		return err
	}
	m.forget(ctx, prev.ID)

	m.event("login")
	m.log.Info("User logged in",
		zap.String("session_id", s.ID),
		zap.String("previous_session_id", prev.ID),
		zap.String("user_id", string(user.ID)),
	)
	m.publish(Change{SessionID: prev.ID, Kind: ChangeRenewed})
	m.publish(changeOf(s, ChangeLogin))
	return nil
}

// forget deletes a session that must not be loaded again. Failures are
// logged, not returned.
func (m *Manager) forget(ctx context.Context, id string) {
	if err := m.store.DeleteSession(ctx, id); err != nil {
		m.log.Warn("Failed to delete session", zap.String("session_id", id), zap.Error(err))
	}
}

// Register creates an account and logs it in.
func (m *Manager) Register(ctx context.Context, s *domain.Session, in api.RegisterInput) error {
	if _, err := m.api.Register(ctx, in); err != nil {
		m.event("register_failed")
		return err
	}
	m.event("register")
	return m.Login(ctx, s, in.Email, in.Password)
}

// Logout forgets the tokens and user of s. Flashes survive so the login page
// can show them.
func (m *Manager) Logout(ctx context.Context, s *domain.Session) error {
	s.AccessToken = ""
	s.RefreshToken = ""
	s.User = nil
	if err := m.store.SaveSession(ctx, s); err != nil {
		return err
	}
	m.event("logout")
	m.log.Info("User logged out", zap.String("session_id", s.ID))
	m.publish(changeOf(s, ChangeLogout))
	return nil
}

// SetUser stores an updated profile, e.g. after an edit.
func (m *Manager) SetUser(ctx context.Context, s *domain.Session, u *domain.User) error {
	s.User = u
	if err := m.store.SaveSession(ctx, s); err != nil {
		return err
	}
	m.publish(changeOf(s, ChangeUser))
	return nil
}

// AddFlash queues a notification for the next rendered page of s.
func (m *Manager) AddFlash(ctx context.Context, s *domain.Session, level domain.FlashLevel, msg string) error {
	s.Flashes = append(s.Flashes, domain.Flash{Level: level, Message: msg})
	return m.store.SaveSession(ctx, s)
}

// PopFlashes returns and clears the queued notifications of s.
func (m *Manager) PopFlashes(ctx context.Context, s *domain.Session) ([]domain.Flash, error) {
	if len(s.Flashes) == 0 {
		return nil, nil
	}
	out := s.Flashes
	s.Flashes = nil
	if err := m.store.SaveSession(ctx, s); err != nil {
		s.Flashes = out
		return nil, err
	}
	return out, nil
}

func (m *Manager) event(kind string) {
	if m.rec != nil {
		m.rec.SessionEvent(kind)
	}
}

func changeOf(s *domain.Session, kind ChangeKind) Change {
	c := Change{SessionID: s.ID, Kind: kind, Authenticated: s.Authenticated()}
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	return c
}
