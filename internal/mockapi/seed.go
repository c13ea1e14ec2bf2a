package mockapi

import (
	"fmt"

	"github.com/UkralStul/blog-web/internal/domain"
)

const (
	DemoEmail    = "demo@example.com"
	DemoPassword = "demo-password"
)

// Fixture holds the ids created by Seed.
type Fixture struct {
	Author     *domain.User
	Reader     *domain.User
	Go         *domain.Category
	Design     *domain.Category
	Posts      []*domain.Post // three published posts: two in Go, one in Design
	RootID     domain.ID      // root comment on Posts[0]
	ReplyID    domain.ID      // depth 1 under RootID
	DeepID     domain.ID      // depth 2 under ReplyID
	OtherRoots []domain.ID    // further roots on Posts[0]
}

// Seed fills s with a small blog: two users, two categories, three published
// posts and a three-level comment thread on the first post.
func Seed(s *Store) (*Fixture, error) {
	f := &Fixture{}
	var err error

	f.Author, err = s.CreateUser(domain.User{Username: "demo", Email: DemoEmail, FirstName: "Dana", LastName: "Demo"}, DemoPassword)
	if err != nil {
		return nil, fmt.Errorf("seed: failed to create author: %w", err)
	}
	f.Reader, err = s.CreateUser(domain.User{Username: "reader", Email: "reader@example.com"}, "reader-password")
	if err != nil {
		return nil, fmt.Errorf("seed: failed to create reader: %w", err)
	}

	f.Go = s.CreateCategory("Go", "go", "Articles about the Go programming language")
	f.Design = s.CreateCategory("Design", "design", "Interfaces and typography")
	tag := s.CreateTag("tutorial", "tutorial")

	posts := []NewPost{
		{Title: "Concurrency patterns", Content: "<p>Goroutines and channels.</p>", Excerpt: "Fan-in, fan-out and friends", CategoryID: f.Go.ID, TagIDs: []string{tag.ID}},
		{Title: "Error handling in practice", Content: "<p>Wrap errors with context.</p>", CategoryID: f.Go.ID},
		{Title: "Readable typography", Content: "<p>Line length matters.</p>", CategoryID: f.Design.ID},
	}
	for _, np := range posts {
		np.AuthorID = f.Author.ID
		np.Status = domain.StatusPublished
		p, err := s.CreatePost(np)
		if err != nil {
			return nil, fmt.Errorf("seed: failed to create post %q: %w", np.Title, err)
		}
		f.Posts = append(f.Posts, p)
	}

	postID := f.Posts[0].ID
	root, err := s.CreateComment(postID, nil, f.Reader.ID, "Great overview!")
	if err != nil {
		return nil, fmt.Errorf("seed: failed to create root comment: %w", err)
	}
	reply, err := s.CreateComment(postID, &root.ID, f.Author.ID, "Thanks, glad it helped.")
	if err != nil {
		return nil, fmt.Errorf("seed: failed to create reply: %w", err)
	}
	deep, err := s.CreateComment(postID, &reply.ID, f.Reader.ID, "Will there be a part two?")
	if err != nil {
		return nil, fmt.Errorf("seed: failed to create nested reply: %w", err)
	}
	other, err := s.CreateComment(postID, nil, f.Author.ID, "Questions welcome below.")
	if err != nil {
		return nil, fmt.Errorf("seed: failed to create second root: %w", err)
	}

	f.RootID, f.ReplyID, f.DeepID = root.ID, reply.ID, deep.ID
	f.OtherRoots = []domain.ID{other.ID}
	return f, nil
}
