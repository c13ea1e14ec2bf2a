package api

import (
	"context"
	"net/url"

	"github.com/UkralStul/blog-web/internal/domain"
)

type RegisterInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// UserPatch is the editable part of a profile.
type UserPatch struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Bio       string `json:"bio"`
	Website   string `json:"website"`
	Location  string `json:"location"`
}

// ObtainToken exchanges credentials for an access/refresh pair.
func (c *Client) ObtainToken(ctx context.Context, email, password string) (*domain.Tokens, error) {
	in := map[string]string{"email": email, "password": password}
	var tokens domain.Tokens
	if err := c.post(ctx, "/auth/token/", "/auth/token/", in, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	var u domain.User
	if err := c.post(ctx, "/users/", "/users/", in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Me returns the user owning the context token.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := c.get(ctx, "/users/me/", "/users/me/", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) UpdateUser(ctx context.Context, id domain.ID, p UserPatch) (*domain.User, error) {
	var u domain.User
	if err := c.patch(ctx, "/users/{id}/", "/users/"+url.PathEscape(string(id))+"/", p, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
