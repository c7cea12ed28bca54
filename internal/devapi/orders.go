package devapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/internal/payment"
	"github.com/jafarshop/storefront/internal/pricing"
	"github.com/jafarshop/storefront/pkg/errors"
)

// CreateOrderRequest is the checkout submission. The prices are the client's
// quote and are checked against the server's own computation.
type CreateOrderRequest struct {
	OrderItems      []domain.OrderItem `json:"orderItems" binding:"required,min=1"`
	ShippingAddress domain.Address     `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod" binding:"required"`
	ItemsPrice      decimal.Decimal    `json:"itemsPrice"`
	DiscountPrice   decimal.Decimal    `json:"discountPrice"`
	TaxPrice        decimal.Decimal    `json:"taxPrice"`
	ShippingPrice   decimal.Decimal    `json:"shippingPrice"`
	TotalPrice      decimal.Decimal    `json:"totalPrice"`
	CouponCode      string             `json:"couponCode"`
}

type orderService struct {
	store    *Store
	validate *validator.Validate
	logger   *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store *Store, logger *zap.Logger) *orderService {
	return &orderService{
		store:    store,
		validate: validator.New(),
		logger:   logger,
	}
}

// ValidateCoupon checks a coupon against a subtotal and prices the discount
func (s *orderService) ValidateCoupon(code string, subtotal decimal.Decimal) (domain.CouponValidation, error) {
	coupon, err := s.store.CouponByCode(code)
	if err != nil {
		return domain.CouponValidation{}, &errors.ErrValidation{Field: "code", Message: "Invalid coupon code"}
	}

	switch {
	case !coupon.IsActive:
		return domain.CouponValidation{}, &errors.ErrValidation{Field: "code", Message: "Coupon is not active"}
	case coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(s.store.now()):
		return domain.CouponValidation{}, &errors.ErrValidation{Field: "code", Message: "Coupon has expired"}
	case coupon.MaxUses > 0 && coupon.UsedCount >= coupon.MaxUses:
		return domain.CouponValidation{}, &errors.ErrValidation{Field: "code", Message: "Coupon usage limit reached"}
	case subtotal.LessThan(coupon.MinPurchase):
		return domain.CouponValidation{}, &errors.ErrValidation{
			Field:   "code",
			Message: "Minimum purchase of " + coupon.MinPurchase.StringFixed(2) + " required",
		}
	}

	return domain.CouponValidation{
		Code:           coupon.Code,
		Valid:          true,
		DiscountType:   coupon.DiscountType,
		DiscountValue:  coupon.DiscountValue,
		DiscountAmount: coupon.DiscountFor(subtotal),
	}, nil
}

// CreateOrder prices the submission from the catalog, rejects a client quote
// that disagrees with a 422 and reserves stock.
func (s *orderService) CreateOrder(ctx context.Context, user domain.User, req CreateOrderRequest) (*domain.Order, error) {
	if err := s.validate.Struct(req.ShippingAddress); err != nil {
		return nil, &errors.ErrValidation{Field: "shippingAddress", Message: "shipping address is incomplete"}
	}

	// Merge duplicate lines and price them from the catalog
	var (
		items    []domain.OrderItem
		position = make(map[string]int)
	)
	for _, line := range req.OrderItems {
		if line.Product == "" || line.Quantity < 1 {
			return nil, &errors.ErrValidation{Field: "orderItems", Message: "each item needs a product and a positive quantity"}
		}
		product, err := s.store.Product(line.Product)
		if err != nil {
			return nil, &errors.ErrValidation{Field: "orderItems", Message: "unknown product " + line.Product}
		}

		if i, ok := position[product.ID]; ok {
			items[i].Quantity += line.Quantity
			continue
		}
		image := domain.PlaceholderImage
		if len(product.Images) > 0 {
			image = product.Images[0]
		}
		position[product.ID] = len(items)
		items = append(items, domain.OrderItem{
			Product:  product.ID,
			Name:     product.Name,
			Quantity: line.Quantity,
			Image:    image,
			Price:    product.Price,
		})
	}

	itemsPrice := decimal.Zero
	for _, item := range items {
		itemsPrice = itemsPrice.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	discount := decimal.Zero
	couponCode := strings.ToUpper(strings.TrimSpace(req.CouponCode))
	if couponCode != "" {
		v, err := s.ValidateCoupon(couponCode, itemsPrice)
		if err != nil {
			return nil, err
		}
		discount = v.DiscountAmount
	}

	server := pricing.Derive(itemsPrice, discount)
	client := pricing.Quote{
		ItemsPrice:    req.ItemsPrice,
		DiscountPrice: req.DiscountPrice,
		TaxPrice:      req.TaxPrice,
		ShippingPrice: req.ShippingPrice,
		TotalPrice:    req.TotalPrice,
	}
	if !server.Matches(client) {
		s.logger.Warn("Order price mismatch",
			zap.String("user_id", user.ID),
			zap.String("client_total", req.TotalPrice.StringFixed(2)),
			zap.String("server_total", server.TotalPrice.StringFixed(2)),
		)
		return nil, &errors.APIError{
			Status:  http.StatusUnprocessableEntity,
			Code:    "PRICE_MISMATCH",
			Message: "Order totals do not match current prices",
			Fields:  map[string]string{"totalPrice": server.TotalPrice.StringFixed(2)},
		}
	}

	order, err := s.store.PlaceOrder(domain.Order{
		User:            domain.OrderUser{ID: user.ID, Name: user.Name, Email: user.Email},
		OrderItems:      items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      server.ItemsPrice,
		DiscountPrice:   server.DiscountPrice,
		TaxPrice:        server.TaxPrice,
		ShippingPrice:   server.ShippingPrice,
		TotalPrice:      server.TotalPrice,
		CouponCode:      couponCode,
		Status:          domain.OrderStatusPending,
	}, couponCode)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", user.ID),
		zap.String("total", order.TotalPrice.StringFixed(2)),
	)
	return &order, nil
}

// PayOrder marks an order paid with the provider's result
func (s *orderService) PayOrder(ctx context.Context, orderID string, result domain.PaymentResult) (*domain.Order, error) {
	if result.Status != payment.StatusSucceeded {
		return nil, &errors.ErrValidation{Field: "status", Message: "payment did not succeed"}
	}
	if intentID, ok := s.store.OrderIntent(orderID); ok && intentID != result.ID {
		return nil, &errors.ErrValidation{Field: "id", Message: "payment does not belong to this order"}
	}

	order, err := s.store.UpdateOrder(orderID, func(o *domain.Order) error {
		// Validate state transition
		if !o.Status.CanTransitionTo(domain.OrderStatusPaid) {
			return &errors.ErrInvalidStateTransition{From: o.Status, To: domain.OrderStatusPaid}
		}
		now := s.store.now()
		o.Status = domain.OrderStatusPaid
		o.IsPaid = true
		o.PaidAt = &now
		o.PaymentResult = &result
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order paid", zap.String("order_id", orderID), zap.String("payment_id", result.ID))
	return &order, nil
}

// DeliverOrder marks a paid order delivered
func (s *orderService) DeliverOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.store.UpdateOrder(orderID, func(o *domain.Order) error {
		if !o.Status.CanTransitionTo(domain.OrderStatusDelivered) {
			return &errors.ErrInvalidStateTransition{From: o.Status, To: domain.OrderStatusDelivered}
		}
		now := s.store.now()
		o.Status = domain.OrderStatusDelivered
		o.IsDelivered = true
		o.DeliveredAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order delivered", zap.String("order_id", orderID))
	return &order, nil
}

// ownedOrder loads an order visible to the current user
func ownedOrder(c *gin.Context, store *Store) (domain.Order, error) {
	order, err := store.Order(c.Param("id"))
	if err != nil {
		return domain.Order{}, err
	}
	user := currentUser(c)
	if order.User.ID != user.ID && !user.IsAdmin() {
		return domain.Order{}, &errors.ErrNotFound{Resource: "order", ID: order.ID}
	}
	return order, nil
}

// handleCreateOrder handles POST /api/orders
func handleCreateOrder(orders *orderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrderRequest
		if !bindJSON(c, &req) {
			return
		}

		order, err := orders.CreateOrder(c.Request.Context(), currentUser(c), req)
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusCreated, order)
	}
}

// handleGetOrder handles GET /api/orders/:id
func handleGetOrder(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := ownedOrder(c, store)
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, order)
	}
}

// handlePayOrder handles PUT /api/orders/:id/pay
func handlePayOrder(store *Store, orders *orderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := ownedOrder(c, store)
		if err != nil {
			handleError(c, err, logger)
			return
		}

		var result domain.PaymentResult
		if !bindJSON(c, &result) {
			return
		}
		if result.UpdateTime == "" {
			result.UpdateTime = time.Now().UTC().Format(time.RFC3339)
		}

		paid, err := orders.PayOrder(c.Request.Context(), order.ID, result)
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, paid)
	}
}

// handleDeliverOrder handles PUT /api/orders/:id/deliver (admin)
func handleDeliverOrder(orders *orderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := orders.DeliverOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, order)
	}
}

// handleMyOrders handles GET /api/orders/mine
func handleMyOrders(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUser(c).ID
		respond(c, http.StatusOK, store.Orders(func(o domain.Order) bool {
			return o.User.ID == userID
		}))
	}
}

// handleListOrders handles GET /api/orders (admin)
func handleListOrders(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := domain.OrderStatus(c.Query("status"))
		if status != "" && !status.IsValid() {
			fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid status filter", map[string]string{"status": "invalid"})
			return
		}
		respond(c, http.StatusOK, store.Orders(func(o domain.Order) bool {
			return status == "" || o.Status == status
		}))
	}
}
