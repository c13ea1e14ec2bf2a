package storage

import (
	"context"
	"errors"

	"github.com/UkralStul/blog-web/internal/domain"
)

var (
	// ErrNotFound is returned for unknown or expired sessions.
	ErrNotFound = errors.New("session not found")
	// ErrCorrupt is returned when a stored session no longer decodes, e.g.
	// after the session schema changed.
	ErrCorrupt = errors.New("session record is corrupt")
)

// Storage persists browser sessions keyed by the session cookie.
type Storage interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	// SaveSession inserts or replaces the session and refreshes its expiry.
	SaveSession(ctx context.Context, s *domain.Session) error
	DeleteSession(ctx context.Context, id string) error
}
