package checkout

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jafarshop/storefront/internal/apiclient"
	"github.com/jafarshop/storefront/internal/cart"
	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/internal/payment"
	"github.com/jafarshop/storefront/internal/storage"
	"github.com/jafarshop/storefront/pkg/errors"
)

type stubAPI struct {
	coupon      *domain.CouponValidation
	minPurchase decimal.Decimal
	couponErr   error
	validations int
	createErr   error
	intentErr   error
	payErr      error
	lastCreate  apiclient.CreateOrderRequest
	created     *domain.Order
	payCalls    int
}

func (s *stubAPI) ValidateCoupon(_ context.Context, req apiclient.ValidateCouponRequest) (*domain.CouponValidation, error) {
	s.validations++
	if s.couponErr != nil {
		return nil, s.couponErr
	}
	if req.Subtotal.LessThan(s.minPurchase) {
		return nil, &errors.APIError{Status: 400, Code: "VALIDATION_ERROR", Message: "Minimum purchase of " + s.minPurchase.StringFixed(2) + " required"}
	}
	// priced against the submitted subtotal, like the server
	v := *s.coupon
	rule := domain.Coupon{DiscountType: v.DiscountType, DiscountValue: v.DiscountValue}
	v.DiscountAmount = rule.DiscountFor(req.Subtotal)
	return &v, nil
}

func (s *stubAPI) CreateOrder(_ context.Context, req apiclient.CreateOrderRequest) (*domain.Order, error) {
	s.lastCreate = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = &domain.Order{
		ID:            "o1",
		OrderItems:    req.OrderItems,
		ItemsPrice:    req.ItemsPrice,
		DiscountPrice: req.DiscountPrice,
		TaxPrice:      req.TaxPrice,
		ShippingPrice: req.ShippingPrice,
		TotalPrice:    req.TotalPrice,
		Status:        domain.OrderStatusPending,
	}
	return s.created, nil
}

func (s *stubAPI) CreatePaymentIntent(_ context.Context, orderID string) (*domain.PaymentIntent, error) {
	if s.intentErr != nil {
		return nil, s.intentErr
	}
	id, secret := payment.NewSandboxSecret()
	return &domain.PaymentIntent{ID: id, ClientSecret: secret, Currency: "usd"}, nil
}

func (s *stubAPI) PayOrder(_ context.Context, id string, result domain.PaymentResult) (*domain.Order, error) {
	s.payCalls++
	if s.payErr != nil {
		return nil, s.payErr
	}
	paid := *s.created
	paid.Status = domain.OrderStatusPaid
	paid.IsPaid = true
	paid.PaymentResult = &result
	return &paid, nil
}

var validAddress = domain.Address{
	FullName:   "Ada Lovelace",
	Street:     "12 Analytical Way",
	City:       "London",
	PostalCode: "N1 9GU",
	Country:    "GB",
}

func setup(t *testing.T, api *stubAPI, prices ...string) (*Checkout, *cart.Store) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	repo := storage.NewJSONRepository[cart.State](storage.NewMemoryBackend(), storage.KeyCart, logger)
	store := cart.NewStore(repo, logger)
	for i, price := range prices {
		require.NoError(t, store.AddItem(context.Background(), domain.Product{
			ID:    string(rune('a' + i)),
			Name:  "Item",
			Price: decimal.RequireFromString(price),
		}))
	}
	return New(api, store, payment.NewSandbox(logger), logger), store
}

func TestStartRefusesEmptyCart(t *testing.T) {
	co, _ := setup(t, &stubAPI{})

	err := co.Start(context.Background())
	assert.ErrorIs(t, err, errors.ErrEmptyCart)
	assert.False(t, co.State().Started)

	_, err = co.SubmitShipping(context.Background())
	var transition *errors.ErrInvalidStateTransition
	assert.ErrorAs(t, err, &transition)
}

func TestHappyPath(t *testing.T) {
	api := &stubAPI{}
	co, store := setup(t, api, "30", "20")
	ctx := context.Background()

	var steps []domain.CheckoutStep
	co.Subscribe(func(s State) { steps = append(steps, s.Step) })

	require.NoError(t, co.Start(ctx))
	assert.Equal(t, domain.CheckoutStepShipping, co.Step())
	require.NoError(t, co.SetShippingAddress(validAddress))

	order, err := co.SubmitShipping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "o1", order.ID)
	assert.Equal(t, domain.CheckoutStepPayment, co.Step())

	// 50 → tax 4.00, shipping 10, total 64.00
	assert.Equal(t, "64.00", api.lastCreate.TotalPrice.StringFixed(2))
	assert.Equal(t, "4.00", api.lastCreate.TaxPrice.StringFixed(2))
	assert.Equal(t, "10.00", api.lastCreate.ShippingPrice.StringFixed(2))
	assert.Len(t, api.lastCreate.OrderItems, 2)
	assert.Equal(t, PaymentMethodCard, api.lastCreate.PaymentMethod)

	paid, err := co.Pay(ctx, payment.TestCardVisa)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	assert.Equal(t, domain.CheckoutStepConfirmation, co.Step())
	assert.True(t, store.IsEmpty())
	assert.Equal(t, "64.00", co.Quote().TotalPrice.StringFixed(2))

	assert.Equal(t, []domain.CheckoutStep{
		domain.CheckoutStepShipping,
		domain.CheckoutStepShipping,
		domain.CheckoutStepPayment,
		domain.CheckoutStepConfirmation,
	}, steps)
}

func TestDeclinedPaymentStaysInPayment(t *testing.T) {
	api := &stubAPI{}
	co, store := setup(t, api, "50")
	ctx := context.Background()

	require.NoError(t, co.Start(ctx))
	require.NoError(t, co.SetShippingAddress(validAddress))
	_, err := co.SubmitShipping(ctx)
	require.NoError(t, err)

	_, err = co.Pay(ctx, payment.TestCardDeclined)
	assert.ErrorIs(t, err, ErrPaymentDeclined)
	assert.Equal(t, domain.CheckoutStepPayment, co.Step())
	assert.Equal(t, 0, api.payCalls)
	assert.False(t, store.IsEmpty())

	// a retry with another card completes the same order
	paid, err := co.Pay(ctx, payment.TestCardVisa)
	require.NoError(t, err)
	assert.Equal(t, "o1", paid.ID)
}

func TestMarkPaidFailureDoesNotConfirm(t *testing.T) {
	api := &stubAPI{payErr: &errors.APIError{Status: 500, Message: "boom"}}
	co, store := setup(t, api, "50")
	ctx := context.Background()

	require.NoError(t, co.Start(ctx))
	require.NoError(t, co.SetShippingAddress(validAddress))
	_, err := co.SubmitShipping(ctx)
	require.NoError(t, err)

	_, err = co.Pay(ctx, payment.TestCardVisa)
	assert.Error(t, err)
	assert.Equal(t, domain.CheckoutStepPayment, co.Step())
	assert.False(t, store.IsEmpty())
}

func TestCreateOrderFailureStaysInShipping(t *testing.T) {
	api := &stubAPI{createErr: &errors.APIError{Status: 422, Message: "price mismatch"}}
	co, _ := setup(t, api, "50")
	ctx := context.Background()

	require.NoError(t, co.Start(ctx))
	require.NoError(t, co.SetShippingAddress(validAddress))

	_, err := co.SubmitShipping(ctx)
	assert.Equal(t, 422, errors.StatusCode(err))
	assert.Equal(t, domain.CheckoutStepShipping, co.Step())
	assert.Nil(t, co.Order())
}

func TestSubmitShippingRequiresAddress(t *testing.T) {
	co, _ := setup(t, &stubAPI{}, "10")
	require.NoError(t, co.Start(context.Background()))

	_, err := co.SubmitShipping(context.Background())
	var verr *errors.ErrValidation
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "shippingAddress", verr.Field)
}

func TestSubmitShippingRefusesCartEmptiedMidFlow(t *testing.T) {
	co, store := setup(t, &stubAPI{}, "10")
	ctx := context.Background()
	require.NoError(t, co.Start(ctx))
	require.NoError(t, co.SetShippingAddress(validAddress))
	require.NoError(t, store.Clear(ctx))

	_, err := co.SubmitShipping(ctx)
	assert.ErrorIs(t, err, errors.ErrEmptyCart)
	assert.Equal(t, domain.CheckoutStepShipping, co.Step())
}

func TestAddressValidation(t *testing.T) {
	co, _ := setup(t, &stubAPI{}, "10")
	require.NoError(t, co.Start(context.Background()))

	tests := []struct {
		name  string
		edit  func(*domain.Address)
		field string
	}{
		{"missing name", func(a *domain.Address) { a.FullName = "" }, "fullName"},
		{"short postal code", func(a *domain.Address) { a.PostalCode = "1" }, "postalCode"},
		{"bad phone", func(a *domain.Address) { a.Phone = "call me" }, "phone"},
		{"missing country", func(a *domain.Address) { a.Country = "" }, "country"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := validAddress
			tt.edit(&addr)

			err := co.SetShippingAddress(addr)
			var verr *errors.ErrValidation
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.Nil(t, co.State().Address)
}

func TestSelectAddressRequiresSavedID(t *testing.T) {
	co, _ := setup(t, &stubAPI{}, "10")
	require.NoError(t, co.Start(context.Background()))

	assert.Error(t, co.SelectAddress(validAddress))

	saved := validAddress
	saved.ID = "addr1"
	require.NoError(t, co.SelectAddress(saved))
	assert.Equal(t, "addr1", co.State().Address.ID)
}

func TestCouponAdjustsQuote(t *testing.T) {
	api := &stubAPI{coupon: &domain.CouponValidation{
		Code:           "SAVE20",
		Valid:          true,
		DiscountType:   domain.DiscountTypeFixed,
		DiscountValue:  decimal.NewFromInt(20),
		DiscountAmount: decimal.NewFromInt(20),
	}}
	co, _ := setup(t, api, "120")
	ctx := context.Background()
	require.NoError(t, co.Start(ctx))

	_, err := co.ApplyCoupon(ctx, " SAVE20 ")
	require.NoError(t, err)

	q := co.Quote()
	assert.Equal(t, "100.00", q.TaxablePrice.StringFixed(2))
	assert.Equal(t, "8.00", q.TaxPrice.StringFixed(2))
	assert.True(t, q.ShippingPrice.IsZero())
	assert.Equal(t, "108.00", q.TotalPrice.StringFixed(2))
	assert.Equal(t, domain.CheckoutStepShipping, co.Step())

	require.NoError(t, co.SetShippingAddress(validAddress))
	_, err = co.SubmitShipping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SAVE20", api.lastCreate.CouponCode)

	// coupons are frozen once the order exists
	var transition *errors.ErrInvalidStateTransition
	_, err = co.ApplyCoupon(ctx, "SAVE20")
	assert.ErrorAs(t, err, &transition)
	assert.ErrorAs(t, co.RemoveCoupon(), &transition)
}

func TestRejectedCouponKeepsPrevious(t *testing.T) {
	api := &stubAPI{coupon: &domain.CouponValidation{
		Code:          "TEN",
		Valid:         true,
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(10),
	}}
	co, _ := setup(t, api, "50")
	ctx := context.Background()
	require.NoError(t, co.Start(ctx))

	_, err := co.ApplyCoupon(ctx, "TEN")
	require.NoError(t, err)

	api.couponErr = &errors.APIError{Status: 400, Message: "Coupon has expired"}
	_, err = co.ApplyCoupon(ctx, "OLD")
	assert.Equal(t, "Coupon has expired", errors.Message(err))
	assert.Equal(t, "TEN", co.State().Coupon.Code)

	require.NoError(t, co.RemoveCoupon())
	assert.True(t, co.Quote().DiscountPrice.IsZero())
}

func TestCouponDiscountFollowsCartChanges(t *testing.T) {
	api := &stubAPI{coupon: &domain.CouponValidation{
		Code:          "WELCOME10",
		Valid:         true,
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
	}}
	co, store := setup(t, api, "90")
	ctx := context.Background()
	require.NoError(t, co.Start(ctx))
	require.NoError(t, co.SetShippingAddress(validAddress))

	v, err := co.ApplyCoupon(ctx, "WELCOME10")
	require.NoError(t, err)
	assert.Equal(t, "9.00", v.DiscountAmount.StringFixed(2))

	require.NoError(t, store.AddItem(ctx, domain.Product{ID: "lamp", Name: "Lamp", Price: decimal.RequireFromString("19.98")}))

	// 10% of 109.98, then tax on 98.98 and free shipping
	q := co.Quote()
	assert.Equal(t, "11.00", q.DiscountPrice.StringFixed(2))
	assert.Equal(t, "106.90", q.TotalPrice.StringFixed(2))

	order, err := co.SubmitShipping(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, api.validations)
	assert.Equal(t, "11.00", api.lastCreate.DiscountPrice.StringFixed(2))
	assert.Equal(t, "106.90", order.TotalPrice.StringFixed(2))
	assert.Equal(t, "11.00", co.State().Coupon.DiscountAmount.StringFixed(2))
}

func TestCouponRecheckedWhenCartDropsBelowMinimum(t *testing.T) {
	api := &stubAPI{
		coupon: &domain.CouponValidation{
			Code:          "SAVE20",
			Valid:         true,
			DiscountType:  domain.DiscountTypeFixed,
			DiscountValue: decimal.NewFromInt(20),
		},
		minPurchase: decimal.NewFromInt(100),
	}
	co, store := setup(t, api, "60", "60")
	ctx := context.Background()
	require.NoError(t, co.Start(ctx))
	require.NoError(t, co.SetShippingAddress(validAddress))
	_, err := co.ApplyCoupon(ctx, "SAVE20")
	require.NoError(t, err)

	require.NoError(t, store.RemoveItem(ctx, "b"))

	_, err = co.SubmitShipping(ctx)
	assert.Equal(t, "Minimum purchase of 100.00 required", errors.Message(err))
	assert.Equal(t, domain.CheckoutStepShipping, co.Step())
	assert.Nil(t, co.Order())
	assert.Empty(t, api.lastCreate.OrderItems)

	require.NoError(t, co.RemoveCoupon())
	_, err = co.SubmitShipping(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStepPayment, co.Step())
}

func TestListenerMayCallBackIntoCheckout(t *testing.T) {
	api := &stubAPI{coupon: &domain.CouponValidation{
		Code:          "TEN",
		Valid:         true,
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(10),
	}}
	co, _ := setup(t, api, "50")
	ctx := context.Background()
	require.NoError(t, co.Start(ctx))

	removed := false
	co.Subscribe(func(s State) {
		if s.Coupon != nil && !removed {
			removed = true
			assert.NoError(t, co.RemoveCoupon())
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := co.ApplyCoupon(ctx, "TEN")
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener calling RemoveCoupon deadlocked")
	}
	assert.True(t, removed)
	assert.Nil(t, co.State().Coupon)
}

func TestPayBeforeOrderIsRejected(t *testing.T) {
	co, _ := setup(t, &stubAPI{}, "10")
	require.NoError(t, co.Start(context.Background()))

	_, err := co.Pay(context.Background(), payment.TestCardVisa)
	var transition *errors.ErrInvalidStateTransition
	assert.ErrorAs(t, err, &transition)
}

func TestIntentFailureStaysInPayment(t *testing.T) {
	api := &stubAPI{intentErr: stderrors.New("provider unavailable")}
	co, _ := setup(t, api, "10")
	ctx := context.Background()
	require.NoError(t, co.Start(ctx))
	require.NoError(t, co.SetShippingAddress(validAddress))
	_, err := co.SubmitShipping(ctx)
	require.NoError(t, err)

	_, err = co.Pay(ctx, payment.TestCardVisa)
	assert.Error(t, err)
	assert.Equal(t, domain.CheckoutStepPayment, co.Step())
}
