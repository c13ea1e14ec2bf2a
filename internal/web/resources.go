package web

import (
	"context"

	"github.com/UkralStul/blog-web/internal/api"
	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/UkralStul/blog-web/internal/query"
)

// Query resources. Per-user resources are scoped by user id so that two
// users never share a cached answer.
const (
	resPosts      = "posts"
	resPost       = "post"
	resCategories = "categories"
	resCategory   = "category"
	resTags       = "tags"
	resMyPosts    = "my_posts"
	resMyComments = "my_comments"
)

func (s *Server) registerResources() {
	q := s.query
	q.Register(resPosts, func(ctx context.Context, k query.Key) (any, error) {
		return s.api.ListPosts(ctx, api.PostFilter{
			Status:   domain.PostStatus(k.Param("status")),
			Category: k.Param("category"),
			Ordering: k.Param("ordering"),
			Search:   k.Param("search"),
			Author:   k.Param("author"),
		})
	})
	q.Register(resPost, func(ctx context.Context, k query.Key) (any, error) {
		return s.api.GetPost(ctx, k.Param("id"))
	})
	q.Register(resCategories, func(ctx context.Context, _ query.Key) (any, error) {
		return s.api.ListCategories(ctx)
	})
	q.Register(resCategory, func(ctx context.Context, k query.Key) (any, error) {
		return s.api.GetCategory(ctx, k.Param("slug"))
	})
	q.Register(resTags, func(ctx context.Context, _ query.Key) (any, error) {
		return s.api.ListTags(ctx)
	})
	q.Register(resMyPosts, func(ctx context.Context, _ query.Key) (any, error) {
		return s.api.MyPosts(ctx)
	})
	q.Register(resMyComments, func(ctx context.Context, _ query.Key) (any, error) {
		return s.api.MyComments(ctx)
	})
}

func postsKey(f api.PostFilter) query.Key {
	return query.NewKey(resPosts,
		"status", string(f.Status),
		"category", f.Category,
		"ordering", f.Ordering,
		"search", f.Search,
		"author", f.Author,
	)
}

func postKey(id string) query.Key { return query.NewKey(resPost, "id", id) }

// authorPostKey is the post as its author sees it, drafts included.
func authorPostKey(id string, sess *domain.Session) query.Key {
	return postKey(id).Scoped(string(sess.User.ID), sess.AccessToken)
}

func categoryKey(slug string) query.Key { return query.NewKey(resCategory, "slug", slug) }

// userKey scopes resource to the session's user and carries its token.
func userKey(resource string, sess *domain.Session) query.Key {
	return query.NewKey(resource).Scoped(string(sess.User.ID), sess.AccessToken)
}

func (s *Server) posts(ctx context.Context, f api.PostFilter) (*domain.Page[domain.Post], error) {
	return query.Get[*domain.Page[domain.Post]](ctx, s.query, postsKey(f))
}

func (s *Server) categories(ctx context.Context) ([]domain.Category, error) {
	return query.Get[[]domain.Category](ctx, s.query, query.NewKey(resCategories))
}
