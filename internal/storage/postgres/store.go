package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/UkralStul/blog-web/internal/storage"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// sessionRow is the table layout. The user and flashes are kept as JSON text
// and decoded here so that a stale row maps to storage.ErrCorrupt.
type sessionRow struct {
	ID           string    `gorm:"type:varchar(64);primaryKey"`
	AccessToken  string    `gorm:"type:text"`
	RefreshToken string    `gorm:"type:text"`
	User         string    `gorm:"type:text"`
	Flashes      string    `gorm:"type:text"`
	UpdatedAt    time.Time `gorm:"not null;index"`
}

func (sessionRow) TableName() string { return "sessions" }

func toRow(sess *domain.Session) (*sessionRow, error) {
	row := &sessionRow{ID: sess.ID, AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken}
	if sess.User != nil {
		raw, err := json.Marshal(sess.User)
		if err != nil {
			return nil, fmt.Errorf("failed to encode session user: %w", err)
		}
		row.User = string(raw)
	}
	if len(sess.Flashes) > 0 {
		raw, err := json.Marshal(sess.Flashes)
		if err != nil {
			return nil, fmt.Errorf("failed to encode session flashes: %w", err)
		}
		row.Flashes = string(raw)
	}
	return row, nil
}

func (r *sessionRow) session() (*domain.Session, error) {
	sess := &domain.Session{ID: r.ID, AccessToken: r.AccessToken, RefreshToken: r.RefreshToken, UpdatedAt: r.UpdatedAt}
	if r.User != "" {
		var u domain.User
		if err := json.Unmarshal([]byte(r.User), &u); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, r.ID, err)
		}
		sess.User = &u
	}
	if r.Flashes != "" {
		if err := json.Unmarshal([]byte(r.Flashes), &sess.Flashes); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, r.ID, err)
		}
	}
	return sess, nil
}

// Store keeps sessions in a PostgreSQL table managed by gorm.
type Store struct {
	db  *gorm.DB
	ttl time.Duration
}

// New connects to dsn and migrates the sessions table.
func New(dsn string, ttl time.Duration) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewWithDB(db, ttl)
}

// NewWithDB uses an already opened connection.
func NewWithDB(db *gorm.DB, ttl time.Duration) (*Store, error) {
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var row sessionRow
	q := s.db.WithContext(ctx).Where("id = ?", id)
	if s.ttl > 0 {
		q = q.Where("updated_at > ?", time.Now().UTC().Add(-s.ttl))
	}
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return row.session()
}

// SaveSession upserts the row; UpdatedAt is set by gorm on every write.
func (s *Store) SaveSession(ctx context.Context, sess *domain.Session) error {
	row, err := toRow(sess)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	sess.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&sessionRow{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Purge removes expired rows in one statement.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("updated_at <= ?", time.Now().UTC().Add(-s.ttl)).
		Delete(&sessionRow{})
	return res.RowsAffected, res.Error
}
