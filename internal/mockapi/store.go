package mockapi

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidLogin = errors.New("no active account found with the given credentials")
	ErrEmptyContent = errors.New("this field may not be blank")
	ErrTooLong      = errors.New("ensure this field has no more than 2000 characters")
	ErrParentPost   = errors.New("parent comment belongs to another post")
)

const maxCommentLength = 2000

// Store is an in-memory stand-in for the blog backend's database.
type Store struct {
	mu               sync.RWMutex
	clock            time.Time
	seq              int64 // integer keys for users and comments
	users            map[domain.ID]*domain.User
	passwords        map[string]string    // email -> password
	tokens           map[string]domain.ID // access token -> user id
	categories       map[string]*domain.Category
	tags             map[string]*domain.Tag
	posts            map[string]*domain.Post
	comments         map[domain.ID]*domain.Comment
	commentsByPost   map[string][]domain.ID    // postID -> root comment ids
	commentsByParent map[domain.ID][]domain.ID // parentID -> reply ids
	reactions        []domain.Reaction
}

func NewStore() *Store {
	return &Store{
		clock:            time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		users:            make(map[domain.ID]*domain.User),
		passwords:        make(map[string]string),
		tokens:           make(map[string]domain.ID),
		categories:       make(map[string]*domain.Category),
		tags:             make(map[string]*domain.Tag),
		posts:            make(map[string]*domain.Post),
		comments:         make(map[domain.ID]*domain.Comment),
		commentsByPost:   make(map[string][]domain.ID),
		commentsByParent: make(map[domain.ID][]domain.ID),
	}
}

// tick advances the fake clock so that creation order is total.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

// nextID issues the next integer key, the way the backend's auto primary
// keys do for users and comments.
func (s *Store) nextID() domain.ID {
	s.seq++
	return domain.ID(strconv.FormatInt(s.seq, 10))
}

// === Users ===

func (s *Store) CreateUser(u domain.User, password string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, errors.New("user with this email already exists")
		}
		if existing.Username == u.Username {
			return nil, errors.New("user with this username already exists")
		}
	}
	u.ID = s.nextID()
	u.IsActive = true
	u.DateJoined = s.tick()
	s.users[u.ID] = &u
	s.passwords[strings.ToLower(u.Email)] = password
	out := u
	return &out, nil
}

func (s *Store) Login(email, password string) (*domain.Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pw, ok := s.passwords[strings.ToLower(email)]
	if !ok || pw != password {
		return nil, ErrInvalidLogin
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			tokens := &domain.Tokens{Access: "access-" + uuid.NewString(), Refresh: "refresh-" + uuid.NewString()}
			s.tokens[tokens.Access] = u.ID
			return tokens, nil
		}
	}
	return nil, ErrInvalidLogin
}

// UserByToken resolves an access token; ok is false for unknown tokens.
func (s *Store) UserByToken(token string) (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokens[token]
	if !ok {
		return nil, false
	}
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	out := *u
	return &out, true
}

// RevokeTokens forgets every issued token, simulating expiry.
func (s *Store) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]domain.ID)
}

func (s *Store) UpdateUser(id domain.ID, apply func(u *domain.User)) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	apply(u)
	out := *u
	return &out, nil
}

// === Taxonomy ===

func (s *Store) CreateCategory(name, slug, description string) *domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.tick()
	c := &domain.Category{ID: uuid.NewString(), Name: name, Slug: slug, Description: description, CreatedAt: now, UpdatedAt: now}
	s.categories[c.ID] = c
	out := *c
	return &out
}

func (s *Store) CreateTag(name, slug string) *domain.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.tick()
	t := &domain.Tag{ID: uuid.NewString(), Name: name, Slug: slug, CreatedAt: now, UpdatedAt: now}
	s.tags[t.ID] = t
	out := *t
	return &out
}

func (s *Store) Categories() []domain.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		cat := *c
		cat.PostCount = 0
		for _, p := range s.posts {
			if p.Category.ID == c.ID && p.Status == domain.StatusPublished {
				cat.PostCount++
			}
		}
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) CategoryBySlug(slug string) (*domain.Category, error) {
	for _, c := range s.Categories() {
		if c.Slug == slug {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Store) Tags() []domain.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// === Posts ===

type NewPost struct {
	Title      string
	Content    string
	Excerpt    string
	CategoryID string
	TagIDs     []string
	Status     domain.PostStatus
	AuthorID   domain.ID
}

func (s *Store) CreatePost(in NewPost) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	author, ok := s.users[in.AuthorID]
	if !ok {
		return nil, errors.New("author not found")
	}
	cat, ok := s.categories[in.CategoryID]
	if !ok {
		return nil, errors.New("category does not exist")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, errors.New("title may not be blank")
	}
	if in.Status == "" {
		in.Status = domain.StatusDraft
	}

	now := s.tick()
	p := &domain.Post{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Slug:      slugify(in.Title),
		Content:   in.Content,
		Excerpt:   domain.Some(in.Excerpt),
		Status:    in.Status,
		Author:    *author,
		Category:  *cat,
		Tags:      []domain.Tag{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	minutes := domain.EstimateMinutes(in.Content)
	p.ReadingTime = &minutes
	for _, id := range in.TagIDs {
		if t, ok := s.tags[id]; ok {
			p.Tags = append(p.Tags, *t)
		}
	}
	if p.Status == domain.StatusPublished {
		p.PublishedAt = &now
	}
	s.posts[p.ID] = p
	out := *p
	return &out, nil
}

func (s *Store) UpdatePost(id string, apply func(p *domain.Post) error) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	wasPublished := p.Status == domain.StatusPublished
	if err := apply(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.tick()
	if !wasPublished && p.Status == domain.StatusPublished {
		at := p.UpdatedAt
		p.PublishedAt = &at
	}
	out := *p
	return &out, nil
}

func (s *Store) CategoryByID(id string) (*domain.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, false
	}
	out := *c
	return &out, true
}

func (s *Store) TagByID(id string) (*domain.Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[id]
	if !ok {
		return nil, false
	}
	out := *t
	return &out, true
}

func (s *Store) GetPost(id string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *Store) IncrementView(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return ErrNotFound
	}
	p.ViewCount++
	return nil
}

// PostQuery is the subset of the backend's post filters the fake honours.
type PostQuery struct {
	Status   string
	Category string
	Author   domain.ID
	Search   string
	Ordering string
	ViewerID domain.ID
}

func (s *Store) Posts(q PostQuery) []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(q.Search)
	out := make([]domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		visible := p.Status == domain.StatusPublished || (q.ViewerID != "" && p.Author.ID == q.ViewerID)
		if !visible {
			continue
		}
		if q.Status != "" && string(p.Status) != q.Status {
			continue
		}
		if q.Category != "" && p.Category.ID != q.Category {
			continue
		}
		if q.Author != "" && p.Author.ID != q.Author {
			continue
		}
		if search != "" {
			haystack := strings.ToLower(p.Title + " " + p.Content + " " + p.Excerpt.OrElse(""))
			if !strings.Contains(haystack, search) {
				continue
			}
		}
		out = append(out, *p)
	}
	sortPosts(out, q.Ordering)
	return out
}

func sortPosts(posts []domain.Post, ordering string) {
	desc := strings.HasPrefix(ordering, "-")
	field := strings.TrimPrefix(ordering, "-")
	if field == "" {
		field, desc = "created_at", true
	}
	less := func(a, b domain.Post) bool {
		switch field {
		case "published_at":
			return a.DisplayDate().Before(b.DisplayDate())
		case "view_count":
			return a.ViewCount < b.ViewCount
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if desc {
			return less(posts[j], posts[i])
		}
		return less(posts[i], posts[j])
	})
}

// === Comments ===

func (s *Store) CreateComment(postID string, parentID *domain.ID, authorID domain.ID, content string) (*domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		return nil, errors.New("post does not exist")
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > maxCommentLength {
		return nil, ErrTooLong
	}
	author, ok := s.users[authorID]
	if !ok {
		return nil, errors.New("author not found")
	}
	if parentID != nil {
		parent, ok := s.comments[*parentID]
		if !ok {
			return nil, errors.New("parent comment does not exist")
		}
		if parent.PostID != postID {
			return nil, ErrParentPost
		}
	}

	now := s.tick()
	c := &domain.Comment{
		ID:        s.nextID(),
		Content:   content,
		Author:    *author,
		PostID:    postID,
		ParentID:  parentID,
		Status:    domain.CommentApproved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.comments[c.ID] = c
	if parentID == nil {
		s.commentsByPost[postID] = append(s.commentsByPost[postID], c.ID)
	} else {
		s.commentsByParent[*parentID] = append(s.commentsByParent[*parentID], c.ID)
	}
	out := *c
	return &out, nil
}

// ThreadForPost returns the root comments of a post with replies nested to
// any depth, each level ordered by creation time.
func (s *Store) ThreadForPost(postID string) []*domain.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nestLocked(s.commentsByPost[postID])
}

func (s *Store) nestLocked(ids []domain.ID) []*domain.Comment {
	out := make([]*domain.Comment, 0, len(ids))
	for _, id := range ids {
		c, ok := s.comments[id]
		if !ok {
			continue
		}
		node := *c
		node.Replies = s.nestLocked(s.commentsByParent[id])
		node.ReplyCount = len(node.Replies)
		out = append(out, &node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) CommentsByAuthor(authorID domain.ID) []*domain.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Comment
	for _, c := range s.comments {
		if c.Author.ID == authorID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) LikeComment(id domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return ErrNotFound
	}
	c.LikesCount++
	return nil
}

// === Reactions ===

func (s *Store) React(postID string, userID domain.ID, t domain.ReactionType) (*domain.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		return nil, errors.New("post does not exist")
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	r := domain.Reaction{ID: uuid.NewString(), Type: t, User: *u, PostID: postID, CreatedAt: s.tick()}
	s.reactions = append(s.reactions, r)
	return &r, nil
}

func (s *Store) Reactions(postID string) []domain.Reaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Reaction
	for _, r := range s.reactions {
		if r.PostID == postID {
			out = append(out, r)
		}
	}
	return out
}

func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
