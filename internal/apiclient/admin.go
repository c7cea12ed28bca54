package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jafarshop/storefront/internal/domain"
)

// Admin back-office endpoints. The server enforces the admin role.

// ProductInput is the admin create/update payload
type ProductInput struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Price        string   `json:"price"`
	Category     string   `json:"category"`
	Brand        string   `json:"brand,omitempty"`
	Images       []string `json:"images"`
	CountInStock int      `json:"countInStock"`
}

func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	var out domain.Product
	if _, err := c.do(ctx, http.MethodPost, "/products", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id string, in ProductInput) (*domain.Product, error) {
	var out domain.Product
	if _, err := c.do(ctx, http.MethodPut, "/products/"+url.PathEscape(id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/products/"+url.PathEscape(id), nil, nil, nil)
	return err
}

func (c *Client) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	var out []domain.Coupon
	if _, err := c.do(ctx, http.MethodGet, "/coupons", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateCoupon(ctx context.Context, coupon domain.Coupon) (*domain.Coupon, error) {
	var out domain.Coupon
	if _, err := c.do(ctx, http.MethodPost, "/coupons", nil, coupon, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateCoupon(ctx context.Context, id string, coupon domain.Coupon) (*domain.Coupon, error) {
	var out domain.Coupon
	if _, err := c.do(ctx, http.MethodPut, "/coupons/"+url.PathEscape(id), nil, coupon, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteCoupon(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/coupons/"+url.PathEscape(id), nil, nil, nil)
	return err
}

// ListRefunds lists all refund requests, optionally by status
func (c *Client) ListRefunds(ctx context.Context, status domain.RefundStatus) ([]domain.RefundRequest, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	var out []domain.RefundRequest
	if _, err := c.do(ctx, http.MethodGet, "/refunds", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRefundStatusRequest moves a refund request along its lifecycle
type UpdateRefundStatusRequest struct {
	Status    domain.RefundStatus `json:"status"`
	AdminNote string              `json:"adminNote,omitempty"`
}

func (c *Client) UpdateRefundStatus(ctx context.Context, id string, req UpdateRefundStatusRequest) (*domain.RefundRequest, error) {
	var out domain.RefundRequest
	path := "/refunds/" + url.PathEscape(id) + "/status"
	if _, err := c.do(ctx, http.MethodPut, path, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	if _, err := c.do(ctx, http.MethodGet, "/users", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var out domain.User
	if _, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUserRequest edits a user's profile fields
type UpdateUserRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (c *Client) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*domain.User, error) {
	var out domain.User
	if _, err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil, nil)
	return err
}

func (c *Client) UpdateUserRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	var out domain.User
	body := map[string]domain.Role{"role": role}
	if _, err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id)+"/role", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
