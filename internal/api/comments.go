package api

import (
	"context"
	"net/url"

	"github.com/UkralStul/blog-web/internal/domain"
)

type CreateCommentInput struct {
	Content  string     `json:"content"`
	PostID   string     `json:"post_id"`
	ParentID *domain.ID `json:"parent_id,omitempty"`
}

// CommentsForPost returns the visible comments of a post as sent by the
// backend, top-level entries possibly carrying nested replies.
func (c *Client) CommentsForPost(ctx context.Context, postID string) ([]*domain.Comment, error) {
	var page domain.Page[*domain.Comment]
	q := url.Values{"post_id": {postID}}
	if err := c.get(ctx, "/comments/for_post/", "/comments/for_post/", q, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) CreateComment(ctx context.Context, in CreateCommentInput) (*domain.Comment, error) {
	var out domain.Comment
	if err := c.post(ctx, "/comments/", "/comments/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MyComments(ctx context.Context) (*domain.Page[*domain.Comment], error) {
	var page domain.Page[*domain.Comment]
	if err := c.get(ctx, "/comments/my_comments/", "/comments/my_comments/", nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) LikeComment(ctx context.Context, id domain.ID) error {
	return c.post(ctx, "/comments/{id}/like/", "/comments/"+url.PathEscape(string(id))+"/like/", nil, nil)
}
