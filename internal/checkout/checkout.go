// Package checkout sequences the purchase of a cart: shipping, then payment,
// then confirmation. Each step only advances after the server (and for the
// payment step, the provider) has accepted it.
package checkout

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/apiclient"
	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/internal/payment"
	"github.com/jafarshop/storefront/internal/pricing"
	"github.com/jafarshop/storefront/pkg/errors"
)

// PaymentMethodCard is the payment method recorded on orders placed here
const PaymentMethodCard = "card"

// ErrPaymentDeclined is returned when the provider refuses the payment
var ErrPaymentDeclined = stderrors.New("payment declined")

// API is the subset of the API client checkout talks to
type API interface {
	ValidateCoupon(ctx context.Context, req apiclient.ValidateCouponRequest) (*domain.CouponValidation, error)
	CreateOrder(ctx context.Context, req apiclient.CreateOrderRequest) (*domain.Order, error)
	CreatePaymentIntent(ctx context.Context, orderID string) (*domain.PaymentIntent, error)
	PayOrder(ctx context.Context, id string, result domain.PaymentResult) (*domain.Order, error)
}

// Cart is the subset of the cart store checkout reads and clears
type Cart interface {
	IsEmpty() bool
	Total() decimal.Decimal
	OrderItems() []domain.OrderItem
	Clear(ctx context.Context) error
}

// State is a snapshot of the flow handed to listeners
type State struct {
	Step    domain.CheckoutStep
	Address *domain.Address
	Coupon  *domain.CouponValidation
	Quote   pricing.Quote
	Order   *domain.Order
	Payment *payment.Result
	Started bool
}

// Listener receives the state after every operation that changed it
type Listener func(State)

// Checkout is one run of the checkout flow. Operations are serialized; a
// failed operation leaves the step where it was.
type Checkout struct {
	api      API
	cart     Cart
	provider payment.Provider
	validate *validator.Validate
	logger   *zap.Logger

	op sync.Mutex // serializes operations, held across network calls

	mu        sync.Mutex // guards the fields below
	started   bool
	step      domain.CheckoutStep
	address   *domain.Address
	coupon    *domain.CouponValidation
	couponOn  decimal.Decimal // cart total the coupon was validated against
	order     *domain.Order
	result    *payment.Result
	changed   bool
	listeners map[int]Listener
	nextID    int
}

// New creates a checkout over cart. Call Start before any other operation.
func New(api API, cart Cart, provider payment.Provider, logger *zap.Logger) *Checkout {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Checkout{
		api:       api,
		cart:      cart,
		provider:  provider,
		validate:  validate,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// Start enters the shipping step. An empty cart is refused and the flow
// stays unstarted; callers send the user back to the cart.
func (c *Checkout) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer c.begin()()

	if c.cart.IsEmpty() {
		return errors.ErrEmptyCart
	}

	c.mu.Lock()
	c.started = true
	c.step = domain.CheckoutStepShipping
	c.address = nil
	c.coupon = nil
	c.order = nil
	c.result = nil
	c.mu.Unlock()

	c.markChanged()
	return nil
}

// SelectAddress uses a saved address for shipping
func (c *Checkout) SelectAddress(addr domain.Address) error {
	if addr.ID == "" {
		return &errors.ErrValidation{Field: "_id", Message: "saved address has no id"}
	}
	return c.SetShippingAddress(addr)
}

// SetShippingAddress validates and records the shipping address
func (c *Checkout) SetShippingAddress(addr domain.Address) error {
	defer c.begin()()

	if err := c.requireStep(domain.CheckoutStepShipping); err != nil {
		return err
	}
	if err := c.validateAddress(addr); err != nil {
		return err
	}

	c.mu.Lock()
	c.address = &addr
	c.mu.Unlock()

	c.markChanged()
	return nil
}

// ApplyCoupon asks the server to validate code against the current cart
// total. On rejection the previous coupon (if any) stays applied.
func (c *Checkout) ApplyCoupon(ctx context.Context, code string) (*domain.CouponValidation, error) {
	defer c.begin()()

	if err := c.requireStep(domain.CheckoutStepShipping); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &errors.ErrValidation{Field: "code", Message: "coupon code is required"}
	}

	subtotal := c.cart.Total()
	v, err := c.validateCoupon(ctx, code, subtotal)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.coupon = v
	c.couponOn = subtotal
	c.mu.Unlock()

	c.logger.Info("Coupon applied",
		zap.String("code", v.Code),
		zap.String("discount", v.DiscountAmount.StringFixed(2)),
	)
	c.markChanged()
	return v, nil
}

// RemoveCoupon drops the applied coupon. Only allowed before the order exists.
func (c *Checkout) RemoveCoupon() error {
	defer c.begin()()

	if err := c.requireStep(domain.CheckoutStepShipping); err != nil {
		return err
	}

	c.mu.Lock()
	c.coupon = nil
	c.mu.Unlock()

	c.markChanged()
	return nil
}

// Quote derives the totals from the live cart total and the applied coupon.
// After the order is created the server's figures are returned instead.
func (c *Checkout) Quote() pricing.Quote {
	c.mu.Lock()
	order := c.order
	coupon := c.coupon
	c.mu.Unlock()

	if order != nil {
		return quoteFromOrder(order)
	}
	return c.derive(coupon)
}

// SubmitShipping creates the order server-side and moves to payment
func (c *Checkout) SubmitShipping(ctx context.Context) (*domain.Order, error) {
	defer c.begin()()

	if err := c.requireTransition(domain.CheckoutStepPayment); err != nil {
		return nil, err
	}
	if c.cart.IsEmpty() {
		return nil, errors.ErrEmptyCart
	}

	c.mu.Lock()
	address := c.address
	coupon := c.coupon
	couponOn := c.couponOn
	c.mu.Unlock()

	if address == nil {
		return nil, &errors.ErrValidation{Field: "shippingAddress", Message: "shipping address is required"}
	}

	// The cart changed since the coupon was checked; its minimum or usage
	// limit may no longer hold.
	if total := c.cart.Total(); coupon != nil && !total.Equal(couponOn) {
		v, err := c.validateCoupon(ctx, coupon.Code, total)
		if err != nil {
			return nil, err
		}
		coupon = v
		c.mu.Lock()
		c.coupon = v
		c.couponOn = total
		c.changed = true
		c.mu.Unlock()
	}

	quote := c.derive(coupon)
	req := apiclient.CreateOrderRequest{
		OrderItems:      c.cart.OrderItems(),
		ShippingAddress: *address,
		PaymentMethod:   PaymentMethodCard,
		ItemsPrice:      quote.ItemsPrice,
		DiscountPrice:   quote.DiscountPrice,
		TaxPrice:        quote.TaxPrice,
		ShippingPrice:   quote.ShippingPrice,
		TotalPrice:      quote.TotalPrice,
	}
	if coupon != nil {
		req.CouponCode = coupon.Code
	}

	order, err := c.api.CreateOrder(ctx, req)
	if err != nil {
		c.logger.Error("Failed to create order", zap.Error(err))
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	c.mu.Lock()
	c.order = order
	c.step = domain.CheckoutStepPayment
	c.mu.Unlock()

	c.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("total", order.TotalPrice.StringFixed(2)),
	)
	c.markChanged()
	return order, nil
}

// Pay confirms the payment with the provider and records it on the order.
// Confirmation is only reached when the provider reports success and the
// server accepted the payment; the cart is cleared after that.
func (c *Checkout) Pay(ctx context.Context, paymentMethodID string) (*domain.Order, error) {
	defer c.begin()()

	if err := c.requireTransition(domain.CheckoutStepConfirmation); err != nil {
		return nil, err
	}
	if paymentMethodID == "" {
		return nil, &errors.ErrValidation{Field: "paymentMethod", Message: "payment method is required"}
	}

	c.mu.Lock()
	order := c.order
	c.mu.Unlock()

	intent, err := c.api.CreatePaymentIntent(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	result, err := c.provider.Confirm(ctx, payment.ConfirmRequest{
		ClientSecret:    intent.ClientSecret,
		PaymentMethodID: paymentMethodID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Email:           order.User.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}
	if !result.Succeeded() {
		c.logger.Warn("Payment declined",
			zap.String("order_id", order.ID),
			zap.String("reason", result.FailureReason),
		)
		return nil, fmt.Errorf("%w: %s", ErrPaymentDeclined, result.FailureReason)
	}

	paid, err := c.api.PayOrder(ctx, order.ID, domain.PaymentResult{
		ID:           result.ID,
		Status:       result.Status,
		UpdateTime:   result.ConfirmedAt.UTC().Format(time.RFC3339),
		EmailAddress: order.User.Email,
	})
	if err != nil {
		c.logger.Error("Failed to mark order paid", zap.String("order_id", order.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}

	// The order is paid; a cart that fails to persist its clearing is logged only.
	if err := c.cart.Clear(ctx); err != nil {
		c.logger.Warn("Failed to persist cleared cart", zap.Error(err))
	}

	c.mu.Lock()
	c.order = paid
	c.result = &result
	c.step = domain.CheckoutStepConfirmation
	c.mu.Unlock()

	c.logger.Info("Order paid", zap.String("order_id", paid.ID))
	c.markChanged()
	return paid, nil
}

// Step returns the current step, empty before Start
func (c *Checkout) Step() domain.CheckoutStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Order returns the server order once shipping was submitted
func (c *Checkout) Order() *domain.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order
}

// State returns a snapshot of the flow including the current quote
func (c *Checkout) State() State {
	c.mu.Lock()
	s := State{
		Step:    c.step,
		Address: c.address,
		Coupon:  c.coupon,
		Order:   c.order,
		Payment: c.result,
		Started: c.started,
	}
	c.mu.Unlock()

	s.Quote = c.Quote()
	return s
}

// Subscribe registers fn and returns a function that removes it. Listeners
// run synchronously once an operation has released the checkout, so they may
// call back into it.
func (c *Checkout) Subscribe(fn Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// begin serializes an operation. The returned func releases it and then
// notifies listeners if the operation changed the state.
func (c *Checkout) begin() func() {
	c.op.Lock()
	return func() {
		c.mu.Lock()
		changed := c.changed
		c.changed = false
		c.mu.Unlock()

		c.op.Unlock()
		if changed {
			c.notify()
		}
	}
}

func (c *Checkout) markChanged() {
	c.mu.Lock()
	c.changed = true
	c.mu.Unlock()
}

func (c *Checkout) notify() {
	state := c.State()

	c.mu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// derive prices the live cart. The coupon discount is recomputed from its
// rule so it follows cart changes made after the coupon was applied.
func (c *Checkout) derive(coupon *domain.CouponValidation) pricing.Quote {
	total := c.cart.Total()
	return pricing.Derive(total, couponDiscount(coupon, total))
}

func couponDiscount(v *domain.CouponValidation, subtotal decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	if !v.DiscountType.IsValid() {
		return v.DiscountAmount
	}
	rule := domain.Coupon{DiscountType: v.DiscountType, DiscountValue: v.DiscountValue}
	return rule.DiscountFor(subtotal)
}

func (c *Checkout) validateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*domain.CouponValidation, error) {
	v, err := c.api.ValidateCoupon(ctx, apiclient.ValidateCouponRequest{Code: code, Subtotal: subtotal})
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		msg := v.Message
		if msg == "" {
			msg = "coupon is not valid"
		}
		return nil, &errors.ErrValidation{Field: "code", Message: msg}
	}
	return v, nil
}

func (c *Checkout) requireStep(step domain.CheckoutStep) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return &errors.ErrInvalidStateTransition{From: "unstarted", To: step}
	}
	if c.step != step {
		return &errors.ErrInvalidStateTransition{From: c.step, To: step}
	}
	return nil
}

func (c *Checkout) requireTransition(next domain.CheckoutStep) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || !c.step.CanTransitionTo(next) {
		from := c.step
		if !c.started {
			from = "unstarted"
		}
		return &errors.ErrInvalidStateTransition{From: from, To: next}
	}
	return nil
}

func (c *Checkout) validateAddress(addr domain.Address) error {
	err := c.validate.Struct(addr)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &errors.ErrValidation{Field: fe.Field(), Message: describe(fe)}
	}
	return err
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "e164":
		return "must be an international phone number"
	default:
		return "is invalid"
	}
}

func quoteFromOrder(o *domain.Order) pricing.Quote {
	taxable := o.ItemsPrice.Sub(o.DiscountPrice)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	return pricing.Quote{
		ItemsPrice:    o.ItemsPrice,
		DiscountPrice: o.DiscountPrice,
		TaxablePrice:  taxable,
		TaxPrice:      o.TaxPrice,
		ShippingPrice: o.ShippingPrice,
		TotalPrice:    o.TotalPrice,
	}
}
