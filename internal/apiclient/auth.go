package apiclient

import (
	"context"
	"net/http"

	"github.com/jafarshop/storefront/internal/domain"
)

// LoginRequest represents the login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents the registration payload
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates and stores the session cookies
func (c *Client) Login(ctx context.Context, req LoginRequest) (*domain.User, error) {
	var user domain.User
	if _, err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Register creates an account and signs it in
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	var user domain.User
	if _, err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout clears the server session
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	return err
}

// Refresh exchanges the refresh cookie for a new access cookie
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, RefreshPath, nil, nil, nil)
	return err
}

// Me returns the signed-in user for the current session
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if _, err := c.do(ctx, http.MethodGet, MePath, nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
