package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/UkralStul/blog-web/internal/api"
	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/UkralStul/blog-web/internal/query"
	"go.uber.org/zap"
)

// Resource is the query resource holding one assembled thread per post.
const Resource = "comments"

// ValidationError is a rejected input caught before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrEmptyContent = &ValidationError{Field: "content", Message: "Comment cannot be empty"}
	ErrMaxDepth     = errors.New("comments: replies are not offered at this depth")
)

// Recorder counts submissions by kind ("comment", "reply", "like") and
// outcome ("ok", "invalid", "error").
type Recorder interface {
	CommentMutation(kind, outcome string)
}

// Composer reads post threads through the query cache and submits new
// comments. After a successful write it drops the post's cached thread and
// reads it back once; it never patches the tree locally.
type Composer struct {
	api *api.Client
	q   *query.Client
	log *zap.Logger
	rec Recorder
}

func NewComposer(client *api.Client, q *query.Client, log *zap.Logger, rec Recorder) *Composer {
	c := &Composer{api: client, q: q, log: log.Named("comments"), rec: rec}
	q.Register(Resource, c.fetch)
	return c
}

func (c *Composer) fetch(ctx context.Context, key query.Key) (any, error) {
	list, err := c.api.CommentsForPost(ctx, key.Param("post"))
	if err != nil {
		return nil, err
	}
	return BuildTree(list), nil
}

// Key is the cache key of a post's thread.
func Key(postID string) query.Key {
	return query.NewKey(Resource, "post", postID)
}

// Thread returns the assembled thread of a post. The result is shared with
// other readers and must not be modified.
func (c *Composer) Thread(ctx context.Context, postID string) ([]*domain.Comment, error) {
	return query.Get[[]*domain.Comment](ctx, c.q, Key(postID))
}

// SubmitComment posts a top-level comment and returns the refreshed thread.
func (c *Composer) SubmitComment(ctx context.Context, token, content, postID string) ([]*domain.Comment, error) {
	return c.submit(ctx, "comment", token, api.CreateCommentInput{Content: content, PostID: postID})
}

// SubmitReply posts a reply to parentID, which is rendered at depth. Replies
// to comments at MaxDepth or below are refused without a request; the backend
// itself accepts any depth.
func (c *Composer) SubmitReply(ctx context.Context, token, content, postID string, parentID domain.ID, depth int) ([]*domain.Comment, error) {
	if depth >= MaxDepth {
		c.record("reply", "invalid")
		return nil, ErrMaxDepth
	}
	return c.submit(ctx, "reply", token, api.CreateCommentInput{Content: content, PostID: postID, ParentID: &parentID})
}

func (c *Composer) submit(ctx context.Context, kind, token string, in api.CreateCommentInput) ([]*domain.Comment, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		c.record(kind, "invalid")
		return nil, ErrEmptyContent
	}

	created, err := c.api.CreateComment(api.WithToken(ctx, token), in)
	if err != nil {
		c.record(kind, "error")
		c.log.Warn("Failed to create comment", zap.String("post_id", in.PostID), zap.Error(err))
		return nil, err
	}
	c.record(kind, "ok")
	c.log.Info("Comment created",
		zap.String("post_id", in.PostID),
		zap.String("comment_id", string(created.ID)),
		zap.Bool("reply", in.ParentID != nil),
	)
	return c.refresh(ctx, in.PostID)
}

// Like likes a comment and returns the refreshed thread of its post.
func (c *Composer) Like(ctx context.Context, token, postID string, commentID domain.ID) ([]*domain.Comment, error) {
	if err := c.api.LikeComment(api.WithToken(ctx, token), commentID); err != nil {
		c.record("like", "error")
		return nil, err
	}
	c.record("like", "ok")
	return c.refresh(ctx, postID)
}

func (c *Composer) refresh(ctx context.Context, postID string) ([]*domain.Comment, error) {
	c.q.InvalidateKey(ctx, Key(postID))
	tree, err := c.Thread(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("comment saved but the thread could not be reloaded: %w", err)
	}
	return tree, nil
}

func (c *Composer) record(kind, outcome string) {
	if c.rec != nil {
		c.rec.CommentMutation(kind, outcome)
	}
}
