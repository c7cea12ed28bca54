package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlaceholderImage is used for order lines whose product has no image
const PlaceholderImage = "/images/placeholder.png"

// Product represents a catalog product as served by the API
type Product struct {
	ID           string          `json:"_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Category     string          `json:"category"`
	Brand        string          `json:"brand,omitempty"`
	Images       []string        `json:"images"`
	CountInStock int             `json:"countInStock"`
	Rating       float64         `json:"rating"`
	NumReviews   int             `json:"numReviews"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// CartItem is one product line in the local cart
type CartItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal returns price * quantity
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// WishlistItem is a saved product
type WishlistItem struct {
	Product Product   `json:"product"`
	AddedAt time.Time `json:"addedAt"`
}

// OrderItem is the order-submission shape of a cart line
type OrderItem struct {
	Product  string          `json:"product"`
	Name     string          `json:"name"`
	Quantity int             `json:"qty"`
	Image    string          `json:"image"`
	Price    decimal.Decimal `json:"price"`
}

// Address represents a shipping address, saved or entered at checkout
type Address struct {
	ID         string `json:"_id,omitempty"`
	FullName   string `json:"fullName" validate:"required,min=2"`
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode" validate:"required,min=3,max=12"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,e164"`
	IsDefault  bool   `json:"isDefault"`
}

// PaymentMethod is saved card metadata; card data never touches the client
type PaymentMethod struct {
	ID        string `json:"_id"`
	Brand     string `json:"brand"`
	Last4     string `json:"last4"`
	ExpMonth  int    `json:"expMonth"`
	ExpYear   int    `json:"expYear"`
	IsDefault bool   `json:"isDefault"`
}

// PaymentResult is what the provider reported for an order
type PaymentResult struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address,omitempty"`
}

// OrderUser is the user projection embedded in orders
type OrderUser struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Order is the client's read-only projection of a server order
type Order struct {
	ID              string          `json:"_id"`
	User            OrderUser       `json:"user"`
	OrderItems      []OrderItem     `json:"orderItems"`
	ShippingAddress Address         `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentResult   *PaymentResult  `json:"paymentResult,omitempty"`
	ItemsPrice      decimal.Decimal `json:"itemsPrice"`
	DiscountPrice   decimal.Decimal `json:"discountPrice"`
	TaxPrice        decimal.Decimal `json:"taxPrice"`
	ShippingPrice   decimal.Decimal `json:"shippingPrice"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	CouponCode      string          `json:"couponCode,omitempty"`
	Status          OrderStatus     `json:"status"`
	IsPaid          bool            `json:"isPaid"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	IsDelivered     bool            `json:"isDelivered"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Coupon represents a discount code as managed by admins
type Coupon struct {
	ID            string          `json:"_id,omitempty"`
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	MinPurchase   decimal.Decimal `json:"minPurchase"`
	MaxUses       int             `json:"maxUses"`
	UsedCount     int             `json:"usedCount"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
	IsActive      bool            `json:"isActive"`
}

// DiscountFor returns the discount this coupon grants on subtotal, capped at
// the subtotal itself.
func (c Coupon) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountTypePercentage:
		discount = subtotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountTypeFixed:
		discount = c.DiscountValue
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// CouponValidation is the last server answer for a coupon code
type CouponValidation struct {
	Code           string          `json:"code"`
	Valid          bool            `json:"valid"`
	DiscountType   DiscountType    `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Message        string          `json:"message,omitempty"`
}

// User represents an authenticated account
type User struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsAdmin reports whether the user holds the admin role
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Review represents a product review
type Review struct {
	ID        string    `json:"_id"`
	Product   string    `json:"product"`
	User      string    `json:"user"`
	Name      string    `json:"name"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReviewEligibility tells whether the current user may review a product
type ReviewEligibility struct {
	CanReview bool   `json:"canReview"`
	Reason    string `json:"reason,omitempty"`
}

// RefundRequest represents a customer refund request
type RefundRequest struct {
	ID        string          `json:"_id"`
	Order     string          `json:"order"`
	User      string          `json:"user"`
	Reason    string          `json:"reason"`
	Amount    decimal.Decimal `json:"amount"`
	Status    RefundStatus    `json:"status"`
	AdminNote string          `json:"adminNote,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// PaymentConfig is the provider configuration published by the API
type PaymentConfig struct {
	Provider       string `json:"provider"`
	PublishableKey string `json:"publishableKey"`
}

// PaymentIntent carries the server-issued client secret for one order
type PaymentIntent struct {
	ID           string          `json:"id"`
	ClientSecret string          `json:"clientSecret"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}
