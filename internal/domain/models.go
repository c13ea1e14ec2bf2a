package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// PostStatus is the publication state of a post.
type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
	StatusArchived  PostStatus = "archived"
)

// CommentStatus is the moderation state of a comment.
type CommentStatus string

const (
	CommentPending  CommentStatus = "pending"
	CommentApproved CommentStatus = "approved"
	CommentRejected CommentStatus = "rejected"
)

// User is the public profile returned by the backend.
type User struct {
	ID          ID         `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Bio         string     `json:"bio,omitempty"`
	Avatar      *string    `json:"avatar,omitempty"`
	Website     string     `json:"website,omitempty"`
	Location    string     `json:"location,omitempty"`
	IsStaff     bool       `json:"is_staff,omitempty"`
	IsActive    bool       `json:"is_active,omitempty"`
	DateJoined  time.Time  `json:"date_joined,omitempty"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	IsVerified  bool       `json:"is_verified,omitempty"`
	DateOfBirth *string    `json:"date_of_birth,omitempty"`
}

// DisplayName returns "First Last" when both are known, the username otherwise.
func (u User) DisplayName() string {
	if u.FirstName != "" && u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.Username
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	PostCount   int       `json:"post_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Post is an immutable snapshot of a backend post, valid for one fetch.
type Post struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Content       string     `json:"content"`
	Excerpt       Optional   `json:"excerpt"`
	FeaturedImage string     `json:"featured_image,omitempty"`
	Status        PostStatus `json:"status"`
	Author        User       `json:"author"`
	Category      Category   `json:"category"`
	Tags          []Tag      `json:"tags"`
	ViewCount     int        `json:"view_count"`
	ReadTime      *int       `json:"read_time,omitempty"`
	ReadingTime   *int       `json:"reading_time,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
}

// Minutes is the estimated read time. The fallback order is reading_time,
// then the legacy read_time, then one minute per 200 characters of content.
func (p Post) Minutes() int {
	switch {
	case p.ReadingTime != nil && *p.ReadingTime > 0:
		return *p.ReadingTime
	case p.ReadTime != nil && *p.ReadTime > 0:
		return *p.ReadTime
	}
	return EstimateMinutes(p.Content)
}

// EstimateMinutes returns ceil(len/200), at least 1.
func EstimateMinutes(content string) int {
	n := int(math.Ceil(float64(utf8.RuneCountInString(content)) / 200))
	if n < 1 {
		return 1
	}
	return n
}

// Summary returns the excerpt, or the first n runes of the content.
func (p Post) Summary(n int) string {
	if s, ok := p.Excerpt.Get(); ok {
		return s
	}
	if utf8.RuneCountInString(p.Content) <= n {
		return p.Content
	}
	return string([]rune(p.Content)[:n])
}

// DisplayDate is published_at when set, created_at otherwise.
func (p Post) DisplayDate() time.Time {
	if p.PublishedAt != nil {
		return *p.PublishedAt
	}
	return p.CreatedAt
}

// Comment is a node of a post's comment thread. Replies is populated by the
// comments package, never trusted as-is from the wire.
type Comment struct {
	ID         ID            `json:"id"`
	Content    string        `json:"content"`
	Author     User          `json:"author"`
	PostID     string        `json:"post_id,omitempty"`
	ParentID   *ID           `json:"parent_id,omitempty"`
	Status     CommentStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	IsEdited   bool          `json:"is_edited"`
	LikesCount int           `json:"likes_count"`
	ReplyCount int           `json:"reply_count"`
	Replies    []*Comment    `json:"replies,omitempty"`
}

// UnmarshalJSON accepts both post_id/parent_id and the backend's post/parent.
func (c *Comment) UnmarshalJSON(data []byte) error {
	type plain Comment
	var aux struct {
		plain
		Post   *string `json:"post"`
		Parent *ID     `json:"parent"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Comment(aux.plain)
	if c.PostID == "" && aux.Post != nil {
		c.PostID = *aux.Post
	}
	if c.ParentID == nil && aux.Parent != nil {
		c.ParentID = aux.Parent
	}
	if c.ParentID != nil && *c.ParentID == "" {
		c.ParentID = nil
	}
	return nil
}

// IsRoot reports whether the comment has no parent.
func (c *Comment) IsRoot() bool { return c.ParentID == nil }

type ReactionType string

const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionLaugh ReactionType = "laugh"
	ReactionWow   ReactionType = "wow"
	ReactionSad   ReactionType = "sad"
	ReactionAngry ReactionType = "angry"
)

type Reaction struct {
	ID        string       `json:"id"`
	Type      ReactionType `json:"type"`
	User      User         `json:"user"`
	PostID    string       `json:"post"`
	CreatedAt time.Time    `json:"created_at"`
}

// Tokens is the pair issued by the backend on login.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Page is the backend pagination envelope.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// UnmarshalJSON accepts either the envelope or a bare array.
func (p *Page[T]) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*p = Page[T]{Count: len(items), Results: items}
		return nil
	}
	type envelope Page[T]
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*p = Page[T](env)
	return nil
}

// Optional is a string field the backend may omit, null or leave blank.
// All three collapse to "absent".
type Optional struct {
	value string
	set   bool
}

func Some(s string) Optional { return Optional{value: s, set: s != ""} }

func (o Optional) Get() (string, bool) { return o.value, o.set }

func (o Optional) OrElse(def string) string {
	if o.set {
		return o.value
	}
	return def
}

func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Optional{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Some(strings.TrimSpace(s))
	return nil
}
