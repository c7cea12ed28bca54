package devapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/config"
	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/internal/payment"
)

// IntentCreator opens a provider payment intent for an order
type IntentCreator interface {
	Provider() string
	PublishableKey() string
	CreateIntent(ctx context.Context, order domain.Order) (*domain.PaymentIntent, error)
}

// NewIntentCreator returns the Stripe creator when a secret key is configured
// and the sandbox otherwise.
func NewIntentCreator(cfg config.StripeConfig, logger *zap.Logger) IntentCreator {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
		return &stripeIntents{publishableKey: cfg.PublishableKey, logger: logger}
	}
	return &sandboxIntents{}
}

type stripeIntents struct {
	publishableKey string
	logger         *zap.Logger
}

func (s *stripeIntents) Provider() string       { return "stripe" }
func (s *stripeIntents) PublishableKey() string { return s.publishableKey }

func (s *stripeIntents) CreateIntent(ctx context.Context, order domain.Order) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toCents(order.TotalPrice)),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
	}
	params.AddMetadata("order_id", order.ID)
	params.AddMetadata("user_id", order.User.ID)

	pi, err := paymentintent.New(params)
	if err != nil {
		s.logger.Error("Failed to create stripe payment intent",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       order.TotalPrice,
		Currency:     string(pi.Currency),
	}, nil
}

type sandboxIntents struct{}

func (sandboxIntents) Provider() string       { return "sandbox" }
func (sandboxIntents) PublishableKey() string { return "pk_test_sandbox" }

func (sandboxIntents) CreateIntent(_ context.Context, order domain.Order) (*domain.PaymentIntent, error) {
	id, secret := payment.NewSandboxSecret()
	return &domain.PaymentIntent{
		ID:           id,
		ClientSecret: secret,
		Amount:       order.TotalPrice,
		Currency:     string(stripe.CurrencyUSD),
	}, nil
}

func toCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// handlePaymentConfig handles GET /api/payments/config
func handlePaymentConfig(intents IntentCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, http.StatusOK, domain.PaymentConfig{
			Provider:       intents.Provider(),
			PublishableKey: intents.PublishableKey(),
		})
	}
}

type intentRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

// handleCreateIntent handles POST /api/payments/intents
func handleCreateIntent(store *Store, intents IntentCreator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req intentRequest
		if !bindJSON(c, &req) {
			return
		}

		order, err := store.Order(req.OrderID)
		if err != nil || order.User.ID != currentUser(c).ID {
			fail(c, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		if order.Status != domain.OrderStatusPending {
			fail(c, http.StatusConflict, "INVALID_STATE", "order is not awaiting payment", nil)
			return
		}

		intent, err := intents.CreateIntent(c.Request.Context(), order)
		if err != nil {
			handleError(c, err, logger)
			return
		}
		store.SetOrderIntent(order.ID, intent.ID)
		respond(c, http.StatusCreated, intent)
	}
}
