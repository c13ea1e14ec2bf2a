package api

import (
	"context"
	"net/url"

	"github.com/UkralStul/blog-web/internal/domain"
)

// PostFilter mirrors the backend's post query parameters. Empty fields are
// not sent.
type PostFilter struct {
	Status   domain.PostStatus
	Category string
	Ordering string
	Search   string
	Author   string
}

func (f PostFilter) Values() url.Values {
	v := url.Values{}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	if f.Ordering != "" {
		v.Set("ordering", f.Ordering)
	}
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	if f.Author != "" {
		v.Set("author", f.Author)
	}
	return v
}

type CreatePostInput struct {
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Excerpt    string            `json:"excerpt,omitempty"`
	CategoryID string            `json:"category_id"`
	TagIDs     []string          `json:"tag_ids"`
	Status     domain.PostStatus `json:"status"`
}

// PostPatch holds the fields of a partial post update; nil fields are left
// untouched by the backend.
type PostPatch struct {
	Title      *string            `json:"title,omitempty"`
	Content    *string            `json:"content,omitempty"`
	Excerpt    *string            `json:"excerpt,omitempty"`
	CategoryID *string            `json:"category_id,omitempty"`
	TagIDs     *[]string          `json:"tag_ids,omitempty"`
	Status     *domain.PostStatus `json:"status,omitempty"`
}

func (c *Client) ListPosts(ctx context.Context, f PostFilter) (*domain.Page[domain.Post], error) {
	var page domain.Page[domain.Post]
	if err := c.get(ctx, "/posts/", "/posts/", f.Values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	var post domain.Post
	if err := c.get(ctx, "/posts/{id}/", "/posts/"+url.PathEscape(id)+"/", nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) CreatePost(ctx context.Context, in CreatePostInput) (*domain.Post, error) {
	if in.TagIDs == nil {
		in.TagIDs = []string{}
	}
	var post domain.Post
	if err := c.post(ctx, "/posts/", "/posts/", in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) UpdatePost(ctx context.Context, id string, p PostPatch) (*domain.Post, error) {
	var post domain.Post
	if err := c.patch(ctx, "/posts/{id}/", "/posts/"+url.PathEscape(id)+"/", p, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// MyPosts lists the posts of the user owning the context token.
func (c *Client) MyPosts(ctx context.Context) (*domain.Page[domain.Post], error) {
	var page domain.Page[domain.Post]
	if err := c.get(ctx, "/posts/my_posts/", "/posts/my_posts/", nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) IncrementView(ctx context.Context, id string) error {
	return c.post(ctx, "/posts/{id}/increment_view/", "/posts/"+url.PathEscape(id)+"/increment_view/", nil, nil)
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var page domain.Page[domain.Category]
	if err := c.get(ctx, "/categories/", "/categories/", nil, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) GetCategory(ctx context.Context, slug string) (*domain.Category, error) {
	var cat domain.Category
	if err := c.get(ctx, "/categories/{slug}/", "/categories/"+url.PathEscape(slug)+"/", nil, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Client) ListTags(ctx context.Context) ([]domain.Tag, error) {
	var page domain.Page[domain.Tag]
	if err := c.get(ctx, "/tags/", "/tags/", nil, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// React adds a reaction of type t to a post.
func (c *Client) React(ctx context.Context, postID string, t domain.ReactionType) error {
	in := map[string]string{"post": postID, "type": string(t)}
	return c.post(ctx, "/reactions/", "/reactions/", in, nil)
}
