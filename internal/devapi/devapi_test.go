package devapi

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jafarshop/storefront/internal/apiclient"
	"github.com/jafarshop/storefront/internal/cart"
	"github.com/jafarshop/storefront/internal/checkout"
	"github.com/jafarshop/storefront/internal/config"
	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/internal/payment"
	"github.com/jafarshop/storefront/internal/storage"
	"github.com/jafarshop/storefront/pkg/errors"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type redirectCounter struct {
	mu    sync.Mutex
	count int
}

func (r *redirectCounter) RedirectToLogin() {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

type testEnv struct {
	server *Server
	clock  *fakeClock
	url    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Environment: "test",
		DevAPI:      config.DevAPIConfig{JWTSecret: "test-secret"},
	}
	srv := NewServer(cfg, zaptest.NewLogger(t))
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	srv.SetClock(clock.Now)
	require.NoError(t, Seed(srv.Store))

	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, clock: clock, url: ts.URL + "/api"}
}

func (e *testEnv) client(t *testing.T, nav apiclient.Navigator) *apiclient.Client {
	t.Helper()
	c, err := apiclient.NewClient(config.APIConfig{BaseURL: e.url, Timeout: 5 * time.Second}, nav, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func (e *testEnv) login(t *testing.T, email string) *apiclient.Client {
	t.Helper()
	c := e.client(t, nil)
	_, err := c.Login(context.Background(), apiclient.LoginRequest{Email: email, Password: SeedPassword})
	require.NoError(t, err)
	return c
}

func (e *testEnv) product(t *testing.T, name string) domain.Product {
	t.Helper()
	found := e.server.Store.Products(func(p domain.Product) bool { return p.Name == name })
	require.Len(t, found, 1)
	return found[0]
}

// placeOrder creates a priced order for one unit of each product
func (e *testEnv) placeOrder(t *testing.T, c *apiclient.Client, products ...domain.Product) *domain.Order {
	t.Helper()
	itemsPrice := decimal.Zero
	var items []domain.OrderItem
	for _, p := range products {
		items = append(items, domain.OrderItem{Product: p.ID, Name: p.Name, Quantity: 1, Price: p.Price})
		itemsPrice = itemsPrice.Add(p.Price)
	}
	tax := itemsPrice.Mul(decimal.RequireFromString("0.08")).Round(2)
	shipping := decimal.NewFromInt(10)
	if itemsPrice.GreaterThan(decimal.NewFromInt(100)) {
		shipping = decimal.Zero
	}

	order, err := c.CreateOrder(context.Background(), apiclient.CreateOrderRequest{
		OrderItems:      items,
		ShippingAddress: testAddress,
		PaymentMethod:   "card",
		ItemsPrice:      itemsPrice,
		TaxPrice:        tax,
		ShippingPrice:   shipping,
		TotalPrice:      itemsPrice.Add(tax).Add(shipping),
	})
	require.NoError(t, err)
	return order
}

var testAddress = domain.Address{
	FullName:   "Jane Doe",
	Street:     "1 Main St",
	City:       "Springfield",
	PostalCode: "12345",
	Country:    "US",
}

func TestCheckoutEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	client := env.login(t, SeedCustomerEmail)

	headphones := env.product(t, "Wireless Headphones")
	lamp := env.product(t, "Desk Lamp")

	repo := storage.NewJSONRepository[cart.State](storage.NewMemoryBackend(), storage.KeyCart, logger)
	cartStore := cart.NewStore(repo, logger)
	require.NoError(t, cartStore.AddItem(ctx, headphones))
	require.NoError(t, cartStore.AddItem(ctx, lamp))
	assert.Equal(t, "109.98", cartStore.Total().StringFixed(2))

	co := checkout.New(client, cartStore, payment.NewSandbox(logger), logger)
	require.NoError(t, co.Start(ctx))
	require.NoError(t, co.SetShippingAddress(testAddress))

	v, err := co.ApplyCoupon(ctx, "welcome10")
	require.NoError(t, err)
	assert.Equal(t, "11.00", v.DiscountAmount.StringFixed(2))

	// 109.98 - 11.00 = 98.98, tax 7.92, free shipping on the pre-discount total
	order, err := co.SubmitShipping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "106.90", order.TotalPrice.StringFixed(2))
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "WELCOME10", order.CouponCode)

	paid, err := co.Pay(ctx, payment.TestCardVisa)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, paid.Status)
	assert.True(t, paid.IsPaid)
	assert.Equal(t, domain.CheckoutStepConfirmation, co.Step())
	assert.True(t, cartStore.IsEmpty())

	assert.Equal(t, headphones.CountInStock-1, env.product(t, "Wireless Headphones").CountInStock)

	// buying the product makes it reviewable, once
	eligibility, err := client.CanReview(ctx, headphones.ID)
	require.NoError(t, err)
	assert.True(t, eligibility.CanReview)

	_, err = client.CreateReview(ctx, headphones.ID, apiclient.CreateReviewRequest{Rating: 4, Comment: "Great sound"})
	require.NoError(t, err)

	eligibility, err = client.CanReview(ctx, headphones.ID)
	require.NoError(t, err)
	assert.False(t, eligibility.CanReview)

	reviewed, err := client.GetProduct(ctx, headphones.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reviewed.NumReviews)
	assert.Equal(t, 4.0, reviewed.Rating)
}

func TestDeclinedPaymentLeavesOrderPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	client := env.login(t, SeedCustomerEmail)

	repo := storage.NewJSONRepository[cart.State](storage.NewMemoryBackend(), storage.KeyCart, logger)
	cartStore := cart.NewStore(repo, logger)
	require.NoError(t, cartStore.AddItem(ctx, env.product(t, "Desk Lamp")))

	co := checkout.New(client, cartStore, payment.NewSandbox(logger), logger)
	require.NoError(t, co.Start(ctx))
	require.NoError(t, co.SetShippingAddress(testAddress))
	order, err := co.SubmitShipping(ctx)
	require.NoError(t, err)

	_, err = co.Pay(ctx, payment.TestCardDeclined)
	assert.ErrorIs(t, err, checkout.ErrPaymentDeclined)

	stored, err := client.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.False(t, cartStore.IsEmpty())
}

func TestProductPagination(t *testing.T) {
	env := newTestEnv(t)
	client := env.client(t, nil)

	var (
		seen   = map[string]bool{}
		cursor string
		pages  int
	)
	for {
		page, err := client.ListProducts(context.Background(), apiclient.ListProductsParams{
			Cursor: cursor,
			Limit:  5,
			Sort:   apiclient.SortPriceAsc,
		})
		require.NoError(t, err)
		pages++
		for i, p := range page.Items {
			assert.False(t, seen[p.ID], "product %s returned twice", p.ID)
			seen[p.ID] = true
			if i > 0 {
				assert.False(t, p.Price.LessThan(page.Items[i-1].Price))
			}
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, seen, len(seedProducts))
}

func TestProductFilters(t *testing.T) {
	env := newTestEnv(t)
	client := env.client(t, nil)
	ctx := context.Background()

	page, err := client.ListProducts(ctx, apiclient.ListProductsParams{Category: "kitchen"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)

	page, err = client.ListProducts(ctx, apiclient.ListProductsParams{Search: "inkwell"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	categories, err := client.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"electronics", "home", "kitchen", "outdoors", "stationery"}, categories)

	_, err = client.ListProducts(ctx, apiclient.ListProductsParams{Cursor: "nope"})
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))
}

func TestExpiredAccessTokenIsRefreshed(t *testing.T) {
	env := newTestEnv(t)
	nav := &redirectCounter{}
	client := env.client(t, nav)
	ctx := context.Background()

	_, err := client.Login(ctx, apiclient.LoginRequest{Email: SeedCustomerEmail, Password: SeedPassword})
	require.NoError(t, err)

	env.clock.Advance(20 * time.Minute)
	_, err = client.MyOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, nav.count)

	env.clock.Advance(8 * 24 * time.Hour)
	_, err = client.MyOrders(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSessionExpired)
	assert.Equal(t, 1, nav.count)
}

func TestSessionCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	anon := env.client(t, nil)
	_, err := anon.Me(ctx)
	assert.Equal(t, http.StatusUnauthorized, errors.StatusCode(err))

	client := env.login(t, SeedCustomerEmail)
	me, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedCustomerEmail, me.Email)

	require.NoError(t, client.Logout(ctx))
	_, err = client.Me(ctx)
	assert.Equal(t, http.StatusUnauthorized, errors.StatusCode(err))
}

func TestLoginAndRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.client(t, nil)

	_, err := client.Login(ctx, apiclient.LoginRequest{Email: SeedCustomerEmail, Password: "wrong-password"})
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))
	assert.False(t, stderrors.Is(err, errors.ErrSessionExpired))

	_, err = client.Register(ctx, apiclient.RegisterRequest{Name: "Dup", Email: SeedCustomerEmail, Password: "secret1"})
	var apiErr *errors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Fields, "email")

	user, err := client.Register(ctx, apiclient.RegisterRequest{Name: "New Person", Email: "New@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, domain.RoleUser, user.Role)

	me, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
}

func TestOrderPriceMismatchIsRejected(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, SeedCustomerEmail)
	lamp := env.product(t, "Desk Lamp")

	_, err := client.CreateOrder(context.Background(), apiclient.CreateOrderRequest{
		OrderItems:      []domain.OrderItem{{Product: lamp.ID, Quantity: 1, Price: decimal.NewFromInt(1)}},
		ShippingAddress: testAddress,
		PaymentMethod:   "card",
		ItemsPrice:      decimal.NewFromInt(1),
		TaxPrice:        decimal.RequireFromString("0.08"),
		ShippingPrice:   decimal.NewFromInt(10),
		TotalPrice:      decimal.RequireFromString("11.08"),
	})

	var apiErr *errors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "PRICE_MISMATCH", apiErr.Code)
	assert.Equal(t, lamp.CountInStock, env.product(t, "Desk Lamp").CountInStock)
}

func TestOutOfStockIsRejected(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, SeedCustomerEmail)
	pen := env.product(t, "Fountain Pen")

	_, err := client.CreateOrder(context.Background(), apiclient.CreateOrderRequest{
		OrderItems:      []domain.OrderItem{{Product: pen.ID, Quantity: 1}},
		ShippingAddress: testAddress,
		PaymentMethod:   "card",
		ItemsPrice:      decimal.NewFromInt(38),
		TaxPrice:        decimal.RequireFromString("3.04"),
		ShippingPrice:   decimal.NewFromInt(10),
		TotalPrice:      decimal.RequireFromString("51.04"),
	})
	assert.Equal(t, http.StatusConflict, errors.StatusCode(err))
}

func TestCouponRules(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, SeedCustomerEmail)
	ctx := context.Background()

	v, err := client.ValidateCoupon(ctx, apiclient.ValidateCouponRequest{Code: "SAVE20", Subtotal: decimal.NewFromInt(120)})
	require.NoError(t, err)
	assert.Equal(t, "20.00", v.DiscountAmount.StringFixed(2))

	_, err = client.ValidateCoupon(ctx, apiclient.ValidateCouponRequest{Code: "SAVE20", Subtotal: decimal.NewFromInt(50)})
	assert.Equal(t, "Minimum purchase of 100.00 required", errors.Message(err))

	_, err = client.ValidateCoupon(ctx, apiclient.ValidateCouponRequest{Code: "RETIRED", Subtotal: decimal.NewFromInt(50)})
	assert.Equal(t, "Coupon is not active", errors.Message(err))

	_, err = client.ValidateCoupon(ctx, apiclient.ValidateCouponRequest{Code: "NOPE", Subtotal: decimal.NewFromInt(50)})
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := env.login(t, SeedCustomerEmail)
	_, err := customer.ListUsers(ctx)
	assert.Equal(t, http.StatusForbidden, errors.StatusCode(err))

	admin := env.login(t, SeedAdminEmail)
	users, err := admin.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	var jane domain.User
	for _, u := range users {
		if u.Email == SeedCustomerEmail {
			jane = u
		}
	}
	promoted, err := admin.UpdateUserRole(ctx, jane.ID, domain.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin())

	created, err := admin.CreateProduct(ctx, apiclient.ProductInput{
		Name: "Gift Card", Price: "25", Category: "gifts", CountInStock: 999,
	})
	require.NoError(t, err)
	assert.Equal(t, "25.00", created.Price.StringFixed(2))

	_, err = admin.CreateProduct(ctx, apiclient.ProductInput{Name: "Bad", Price: "free", Category: "gifts"})
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))
}

func TestOrderLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := env.login(t, SeedCustomerEmail)
	admin := env.login(t, SeedAdminEmail)

	order := env.placeOrder(t, customer, env.product(t, "Desk Lamp"))

	// deliver before paid
	_, err := admin.DeliverOrder(ctx, order.ID)
	assert.Equal(t, http.StatusConflict, errors.StatusCode(err))

	// a refund needs a paid order
	_, err = customer.CreateRefund(ctx, apiclient.CreateRefundRequest{OrderID: order.ID, Reason: "Changed my mind"})
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))

	intent, err := customer.CreatePaymentIntent(ctx, order.ID)
	require.NoError(t, err)
	result, err := payment.NewSandbox(zaptest.NewLogger(t)).Confirm(ctx, payment.ConfirmRequest{
		ClientSecret:    intent.ClientSecret,
		PaymentMethodID: payment.TestCardVisa,
	})
	require.NoError(t, err)

	// a result for another intent is refused
	_, err = customer.PayOrder(ctx, order.ID, domain.PaymentResult{ID: "pi_other", Status: result.Status})
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))

	_, err = customer.PayOrder(ctx, order.ID, domain.PaymentResult{ID: result.ID, Status: result.Status})
	require.NoError(t, err)

	_, err = customer.PayOrder(ctx, order.ID, domain.PaymentResult{ID: result.ID, Status: result.Status})
	assert.Equal(t, http.StatusConflict, errors.StatusCode(err))

	refund, err := customer.CreateRefund(ctx, apiclient.CreateRefundRequest{OrderID: order.ID, Reason: "Arrived broken"})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusPending, refund.Status)

	// pending cannot jump to refunded
	_, err = admin.UpdateRefundStatus(ctx, refund.ID, apiclient.UpdateRefundStatusRequest{Status: domain.RefundStatusRefunded})
	assert.Equal(t, http.StatusConflict, errors.StatusCode(err))

	_, err = admin.UpdateRefundStatus(ctx, refund.ID, apiclient.UpdateRefundStatusRequest{Status: domain.RefundStatusApproved})
	require.NoError(t, err)
	_, err = admin.UpdateRefundStatus(ctx, refund.ID, apiclient.UpdateRefundStatusRequest{Status: domain.RefundStatusRefunded, AdminNote: "done"})
	require.NoError(t, err)

	refunded, err := customer.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, refunded.Status)

	mine, err := customer.MyRefunds(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "done", mine[0].AdminNote)
}

func TestOrdersAreScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jane := env.login(t, SeedCustomerEmail)
	order := env.placeOrder(t, jane, env.product(t, "Desk Lamp"))

	other := env.client(t, nil)
	_, err := other.Register(ctx, apiclient.RegisterRequest{Name: "Other", Email: "other@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = other.GetOrder(ctx, order.ID)
	assert.Equal(t, http.StatusNotFound, errors.StatusCode(err))

	orders, err := other.MyOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestAddressesAndPaymentMethods(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.login(t, SeedCustomerEmail)

	first, err := client.CreateAddress(ctx, testAddress)
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second := testAddress
	second.City = "Shelbyville"
	created, err := client.CreateAddress(ctx, second)
	require.NoError(t, err)
	assert.False(t, created.IsDefault)

	_, err = client.SetDefaultAddress(ctx, created.ID)
	require.NoError(t, err)
	addresses, err := client.ListAddresses(ctx)
	require.NoError(t, err)
	require.Len(t, addresses, 2)
	assert.False(t, addresses[0].IsDefault)
	assert.True(t, addresses[1].IsDefault)

	bad := testAddress
	bad.PostalCode = ""
	_, err = client.CreateAddress(ctx, bad)
	var apiErr *errors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Fields, "postalCode")

	m, err := client.CreatePaymentMethod(ctx, apiclient.CreatePaymentMethodRequest{
		ProviderToken: payment.TestCardVisa, Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030,
	})
	require.NoError(t, err)
	assert.True(t, m.IsDefault)

	_, err = client.CreatePaymentMethod(ctx, apiclient.CreatePaymentMethodRequest{
		ProviderToken: "tok", Brand: "visa", Last4: "42", ExpMonth: 12, ExpYear: 2030,
	})
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))

	require.NoError(t, client.DeletePaymentMethod(ctx, m.ID))
	methods, err := client.ListPaymentMethods(ctx)
	require.NoError(t, err)
	assert.Empty(t, methods)
}
