// Package devapi is a self-contained development upstream for the storefront
// client. It speaks the same envelope, cookie auth and cursor pagination as
// the production API and keeps everything in memory.
package devapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/config"
)

// Server bundles the router with its state
type Server struct {
	Router *gin.Engine
	Store  *Store

	tokens *tokens
}

// NewServer creates the store and the router
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	store := NewStore()
	t := newTokens(cfg.DevAPI.JWTSecret, cfg.Environment == "production")
	intents := NewIntentCreator(cfg.Stripe, logger)

	return &Server{
		Router: newRouter(cfg, store, t, intents, logger),
		Store:  store,
		tokens: t,
	}
}

// SetClock replaces the clock used for token expiry and timestamps. Call it
// before serving.
func (s *Server) SetClock(now func() time.Time) {
	s.tokens.now = now
	s.Store.now = now
}

// newRouter creates and configures the Gin router
func newRouter(cfg *config.Config, store *Store, t *tokens, intents IntentCreator, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	orders := NewOrderService(store, logger)
	requireAuth := authMiddleware(store, t)
	requireAdmin := adminMiddleware()

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", handleRegister(store, t, logger))
			auth.POST("/login", handleLogin(store, t, logger))
			auth.POST("/refresh", handleRefresh(store, t, logger))
			auth.POST("/logout", handleLogout(t))
			auth.GET("/me", requireAuth, handleMe())
		}

		// Public catalog
		api.GET("/products", handleListProducts(store))
		api.GET("/products/categories", handleListCategories(store))
		api.GET("/products/:id", handleGetProduct(store, logger))
		api.GET("/products/:id/reviews", handleListReviews(store, logger))
		api.GET("/payments/config", handlePaymentConfig(intents))

		// Customer routes (require authentication)
		customer := api.Group("")
		customer.Use(requireAuth)
		{
			customer.GET("/products/:id/reviews/eligibility", handleReviewEligibility(store, logger))
			customer.POST("/products/:id/reviews", handleCreateReview(store, logger))

			customer.POST("/orders", handleCreateOrder(orders, logger))
			customer.GET("/orders/mine", handleMyOrders(store))
			customer.GET("/orders/:id", handleGetOrder(store, logger))
			customer.PUT("/orders/:id/pay", handlePayOrder(store, orders, logger))

			customer.POST("/coupons/validate", handleValidateCoupon(orders, logger))
			customer.POST("/payments/intents", handleCreateIntent(store, intents, logger))

			customer.GET("/addresses", handleListAddresses(store))
			customer.POST("/addresses", handleSaveAddress(store, logger))
			customer.PUT("/addresses/:id", handleSaveAddress(store, logger))
			customer.DELETE("/addresses/:id", handleDeleteAddress(store, logger))
			customer.PUT("/addresses/:id/default", handleDefaultAddress(store, logger))

			customer.GET("/payment-methods", handleListPaymentMethods(store))
			customer.POST("/payment-methods", handleCreatePaymentMethod(store))
			customer.DELETE("/payment-methods/:id", handleDeletePaymentMethod(store, logger))
			customer.PUT("/payment-methods/:id/default", handleDefaultPaymentMethod(store, logger))

			customer.POST("/refunds", handleCreateRefund(store, logger))
			customer.GET("/refunds/mine", handleMyRefunds(store))
		}

		// Admin routes
		admin := api.Group("")
		admin.Use(requireAuth, requireAdmin)
		{
			admin.POST("/products", handleCreateProduct(store, logger))
			admin.PUT("/products/:id", handleUpdateProduct(store, logger))
			admin.DELETE("/products/:id", handleDeleteProduct(store, logger))

			admin.GET("/orders", handleListOrders(store))
			admin.PUT("/orders/:id/deliver", handleDeliverOrder(orders, logger))

			admin.GET("/coupons", handleListCoupons(store))
			admin.POST("/coupons", handleSaveCoupon(store, logger))
			admin.PUT("/coupons/:id", handleSaveCoupon(store, logger))
			admin.DELETE("/coupons/:id", handleDeleteCoupon(store, logger))

			admin.GET("/refunds", handleListRefunds(store))
			admin.PUT("/refunds/:id/status", handleUpdateRefundStatus(store, logger))

			admin.GET("/users", handleListUsers(store))
			admin.GET("/users/:id", handleGetUser(store, logger))
			admin.PUT("/users/:id", handleUpdateUser(store, logger))
			admin.PUT("/users/:id/role", handleUpdateUserRole(store, logger))
			admin.DELETE("/users/:id", handleDeleteUser(store, logger))
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.String("request_id", c.GetHeader("X-Request-ID")),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
