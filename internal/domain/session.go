package domain

import "time"

// FlashLevel is the severity of a transient notification.
type FlashLevel string

const (
	FlashSuccess FlashLevel = "success"
	FlashError   FlashLevel = "error"
	FlashInfo    FlashLevel = "info"
)

// Flash is a transient notification shown once on the next rendered page.
type Flash struct {
	Level   FlashLevel `json:"level"`
	Message string     `json:"message"`
}

// Session is the per-browser state kept server-side and keyed by cookie.
type Session struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	User         *User     `json:"user,omitempty"`
	Flashes      []Flash   `json:"flashes,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Authenticated reports whether an access token is present. The token is not
// validated; an expired token passes here and fails on the next backend call.
func (s *Session) Authenticated() bool {
	return s != nil && s.AccessToken != ""
}

// Clone returns a deep copy safe to hand out of a store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	if s.Flashes != nil {
		c.Flashes = append([]Flash(nil), s.Flashes...)
	}
	return &c
}
