package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/jafarshop/storefront/internal/domain"
)

// CreateOrderRequest represents the checkout submission. Prices are the
// client quote; the server recomputes them and rejects a mismatch.
type CreateOrderRequest struct {
	OrderItems      []domain.OrderItem `json:"orderItems"`
	ShippingAddress domain.Address     `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	ItemsPrice      decimal.Decimal    `json:"itemsPrice"`
	DiscountPrice   decimal.Decimal    `json:"discountPrice"`
	TaxPrice        decimal.Decimal    `json:"taxPrice"`
	ShippingPrice   decimal.Decimal    `json:"shippingPrice"`
	TotalPrice      decimal.Decimal    `json:"totalPrice"`
	CouponCode      string             `json:"couponCode,omitempty"`
}

// CreateOrder submits an order
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	var order domain.Order
	if _, err := c.do(ctx, http.MethodPost, "/orders", nil, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder returns one order
func (c *Client) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	if _, err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// PayOrder marks an order paid with the provider's result
func (c *Client) PayOrder(ctx context.Context, id string, result domain.PaymentResult) (*domain.Order, error) {
	var order domain.Order
	path := "/orders/" + url.PathEscape(id) + "/pay"
	if _, err := c.do(ctx, http.MethodPut, path, nil, result, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// DeliverOrder marks an order delivered (admin)
func (c *Client) DeliverOrder(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	path := "/orders/" + url.PathEscape(id) + "/deliver"
	if _, err := c.do(ctx, http.MethodPut, path, nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// MyOrders lists the current user's orders
func (c *Client) MyOrders(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	if _, err := c.do(ctx, http.MethodGet, "/orders/mine", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOrders lists all orders (admin), optionally filtered by status
func (c *Client) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	var orders []domain.Order
	if _, err := c.do(ctx, http.MethodGet, "/orders", q, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
