package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/jafarshop/storefront/internal/domain"
)

// ValidateCouponRequest asks the server to price a coupon against a subtotal
type ValidateCouponRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ValidateCoupon validates a coupon code. An invalid coupon comes back as an
// APIError carrying the server's reason.
func (c *Client) ValidateCoupon(ctx context.Context, req ValidateCouponRequest) (*domain.CouponValidation, error) {
	var v domain.CouponValidation
	if _, err := c.do(ctx, http.MethodPost, "/coupons/validate", nil, req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListAddresses returns saved addresses
func (c *Client) ListAddresses(ctx context.Context) ([]domain.Address, error) {
	var addresses []domain.Address
	if _, err := c.do(ctx, http.MethodGet, "/addresses", nil, nil, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (c *Client) CreateAddress(ctx context.Context, addr domain.Address) (*domain.Address, error) {
	var out domain.Address
	if _, err := c.do(ctx, http.MethodPost, "/addresses", nil, addr, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAddress(ctx context.Context, id string, addr domain.Address) (*domain.Address, error) {
	var out domain.Address
	if _, err := c.do(ctx, http.MethodPut, "/addresses/"+url.PathEscape(id), nil, addr, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAddress(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/addresses/"+url.PathEscape(id), nil, nil, nil)
	return err
}

func (c *Client) SetDefaultAddress(ctx context.Context, id string) (*domain.Address, error) {
	var out domain.Address
	path := "/addresses/" + url.PathEscape(id) + "/default"
	if _, err := c.do(ctx, http.MethodPut, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePaymentMethodRequest registers a provider-tokenized card
type CreatePaymentMethodRequest struct {
	ProviderToken string `json:"providerToken"`
	Brand         string `json:"brand"`
	Last4         string `json:"last4"`
	ExpMonth      int    `json:"expMonth"`
	ExpYear       int    `json:"expYear"`
}

func (c *Client) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	var methods []domain.PaymentMethod
	if _, err := c.do(ctx, http.MethodGet, "/payment-methods", nil, nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

func (c *Client) CreatePaymentMethod(ctx context.Context, req CreatePaymentMethodRequest) (*domain.PaymentMethod, error) {
	var out domain.PaymentMethod
	if _, err := c.do(ctx, http.MethodPost, "/payment-methods", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePaymentMethod(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/payment-methods/"+url.PathEscape(id), nil, nil, nil)
	return err
}

func (c *Client) SetDefaultPaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	var out domain.PaymentMethod
	path := "/payment-methods/" + url.PathEscape(id) + "/default"
	if _, err := c.do(ctx, http.MethodPut, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRefundRequest asks for a refund of a paid order
type CreateRefundRequest struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

func (c *Client) CreateRefund(ctx context.Context, req CreateRefundRequest) (*domain.RefundRequest, error) {
	var out domain.RefundRequest
	if _, err := c.do(ctx, http.MethodPost, "/refunds", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MyRefunds(ctx context.Context) ([]domain.RefundRequest, error) {
	var out []domain.RefundRequest
	if _, err := c.do(ctx, http.MethodGet, "/refunds/mine", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PaymentConfig returns the provider configuration
func (c *Client) PaymentConfig(ctx context.Context) (*domain.PaymentConfig, error) {
	var out domain.PaymentConfig
	if _, err := c.do(ctx, http.MethodGet, "/payments/config", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePaymentIntent creates a provider intent for an order and returns its client secret
func (c *Client) CreatePaymentIntent(ctx context.Context, orderID string) (*domain.PaymentIntent, error) {
	var out domain.PaymentIntent
	body := map[string]string{"orderId": orderID}
	if _, err := c.do(ctx, http.MethodPost, "/payments/intents", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
