package devapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/pkg/errors"
)

// Coupons

type validateCouponRequest struct {
	Code     string          `json:"code" binding:"required"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// handleValidateCoupon handles POST /api/coupons/validate
func handleValidateCoupon(orders *orderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validateCouponRequest
		if !bindJSON(c, &req) {
			return
		}
		v, err := orders.ValidateCoupon(req.Code, req.Subtotal)
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, v)
	}
}

func checkCoupon(coupon domain.Coupon) error {
	switch {
	case coupon.Code == "":
		return &errors.ErrValidation{Field: "code", Message: "code is required"}
	case !coupon.DiscountType.IsValid():
		return &errors.ErrValidation{Field: "discountType", Message: "must be percentage or fixed"}
	case !coupon.DiscountValue.IsPositive():
		return &errors.ErrValidation{Field: "discountValue", Message: "must be positive"}
	case coupon.DiscountType == domain.DiscountTypePercentage && coupon.DiscountValue.GreaterThan(decimal.NewFromInt(100)):
		return &errors.ErrValidation{Field: "discountValue", Message: "percentage cannot exceed 100"}
	}
	return nil
}

// handleListCoupons handles GET /api/coupons (admin)
func handleListCoupons(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, http.StatusOK, store.Coupons())
	}
}

// handleSaveCoupon handles POST /api/coupons and PUT /api/coupons/:id (admin)
func handleSaveCoupon(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var coupon domain.Coupon
		if !bindJSON(c, &coupon) {
			return
		}
		coupon.ID = c.Param("id")
		if err := checkCoupon(coupon); err != nil {
			handleError(c, err, logger)
			return
		}

		status := http.StatusOK
		if coupon.ID == "" {
			status = http.StatusCreated
		}
		saved, err := store.PutCoupon(coupon)
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, status, saved)
	}
}

// handleDeleteCoupon handles DELETE /api/coupons/:id (admin)
func handleDeleteCoupon(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.DeleteCoupon(c.Param("id")); err != nil {
			handleError(c, err, logger)
			return
		}
		respondMessage(c, "Coupon removed")
	}
}

// Addresses

func handleListAddresses(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, http.StatusOK, store.Addresses(currentUser(c).ID))
	}
}

// handleSaveAddress handles POST /api/addresses and PUT /api/addresses/:id
func handleSaveAddress(store *Store, logger *zap.Logger) gin.HandlerFunc {
	validate := validator.New()
	return func(c *gin.Context) {
		var addr domain.Address
		if !bindJSON(c, &addr) {
			return
		}
		if err := validate.Struct(addr); err != nil {
			fields := map[string]string{}
			if verrs, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range verrs {
					fields[lowerFirst(fe.Field())] = fe.Tag()
				}
			}
			fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid address", fields)
			return
		}

		addr.ID = c.Param("id")
		status := http.StatusOK
		if addr.ID == "" {
			status = http.StatusCreated
		}
		saved, err := store.SaveAddress(currentUser(c).ID, addr)
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, status, saved)
	}
}

func handleDeleteAddress(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.DeleteAddress(currentUser(c).ID, c.Param("id")); err != nil {
			handleError(c, err, logger)
			return
		}
		respondMessage(c, "Address removed")
	}
}

func handleDefaultAddress(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, err := store.SetDefaultAddress(currentUser(c).ID, c.Param("id"))
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, addr)
	}
}

// Payment methods. Only provider tokens and display metadata are stored.

type paymentMethodRequest struct {
	ProviderToken string `json:"providerToken" binding:"required"`
	Brand         string `json:"brand" binding:"required"`
	Last4         string `json:"last4" binding:"required,len=4,numeric"`
	ExpMonth      int    `json:"expMonth" binding:"required,min=1,max=12"`
	ExpYear       int    `json:"expYear" binding:"required,min=2000"`
}

func handleListPaymentMethods(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, http.StatusOK, store.PaymentMethods(currentUser(c).ID))
	}
}

func handleCreatePaymentMethod(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentMethodRequest
		if !bindJSON(c, &req) {
			return
		}
		m := store.AddPaymentMethod(currentUser(c).ID, domain.PaymentMethod{
			Brand:    req.Brand,
			Last4:    req.Last4,
			ExpMonth: req.ExpMonth,
			ExpYear:  req.ExpYear,
		}, req.ProviderToken)
		respond(c, http.StatusCreated, m)
	}
}

func handleDeletePaymentMethod(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.DeletePaymentMethod(currentUser(c).ID, c.Param("id")); err != nil {
			handleError(c, err, logger)
			return
		}
		respondMessage(c, "Payment method removed")
	}
}

func handleDefaultPaymentMethod(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := store.SetDefaultPaymentMethod(currentUser(c).ID, c.Param("id"))
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, m)
	}
}

// Refunds

type refundRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Reason  string `json:"reason" binding:"required,min=5"`
}

// handleCreateRefund handles POST /api/refunds
func handleCreateRefund(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refundRequest
		if !bindJSON(c, &req) {
			return
		}

		user := currentUser(c)
		order, err := store.Order(req.OrderID)
		if err != nil || order.User.ID != user.ID {
			fail(c, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		if !order.IsPaid || order.Status == domain.OrderStatusRefunded {
			fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "only paid orders can be refunded",
				map[string]string{"orderId": "order is not refundable"})
			return
		}

		refund, err := store.CreateRefund(domain.RefundRequest{
			Order:  order.ID,
			User:   user.ID,
			Reason: req.Reason,
			Amount: order.TotalPrice,
		})
		if err != nil {
			handleError(c, err, logger)
			return
		}
		logger.Info("Refund requested", zap.String("refund_id", refund.ID), zap.String("order_id", order.ID))
		respond(c, http.StatusCreated, refund)
	}
}

func handleMyRefunds(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUser(c).ID
		respond(c, http.StatusOK, store.Refunds(func(r domain.RefundRequest) bool {
			return r.User == userID
		}))
	}
}

// handleListRefunds handles GET /api/refunds (admin)
func handleListRefunds(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := domain.RefundStatus(c.Query("status"))
		respond(c, http.StatusOK, store.Refunds(func(r domain.RefundRequest) bool {
			return status == "" || r.Status == status
		}))
	}
}

type refundStatusRequest struct {
	Status    domain.RefundStatus `json:"status" binding:"required"`
	AdminNote string              `json:"adminNote"`
}

// handleUpdateRefundStatus handles PUT /api/refunds/:id/status (admin).
// Completing a refund also moves the order to REFUNDED.
func handleUpdateRefundStatus(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refundStatusRequest
		if !bindJSON(c, &req) {
			return
		}
		if !req.Status.IsValid() {
			fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid status", map[string]string{"status": "invalid"})
			return
		}

		refund, err := store.UpdateRefund(c.Param("id"), func(r *domain.RefundRequest) error {
			if !r.Status.CanTransitionTo(req.Status) {
				return &errors.ErrInvalidStateTransition{From: r.Status, To: req.Status}
			}
			r.Status = req.Status
			if req.AdminNote != "" {
				r.AdminNote = req.AdminNote
			}
			return nil
		})
		if err != nil {
			handleError(c, err, logger)
			return
		}

		if refund.Status == domain.RefundStatusRefunded {
			_, err := store.UpdateOrder(refund.Order, func(o *domain.Order) error {
				if !o.Status.CanTransitionTo(domain.OrderStatusRefunded) {
					return &errors.ErrInvalidStateTransition{From: o.Status, To: domain.OrderStatusRefunded}
				}
				o.Status = domain.OrderStatusRefunded
				return nil
			})
			if err != nil {
				logger.Warn("Refund completed but order status unchanged",
					zap.String("order_id", refund.Order),
					zap.Error(err),
				)
			}
		}
		respond(c, http.StatusOK, refund)
	}
}

// Users (admin)

func handleListUsers(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, http.StatusOK, store.ListUsers())
	}
}

func handleGetUser(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := store.User(c.Param("id"))
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, user)
	}
}

type updateUserRequest struct {
	Name  string `json:"name" binding:"omitempty,min=2"`
	Email string `json:"email" binding:"omitempty,email"`
}

func handleUpdateUser(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateUserRequest
		if !bindJSON(c, &req) {
			return
		}
		user, err := store.UpdateUser(c.Param("id"), func(u *domain.User) error {
			if req.Name != "" {
				u.Name = req.Name
			}
			if req.Email != "" {
				u.Email = req.Email
			}
			return nil
		})
		if err != nil {
			handleError(c, err, logger)
			return
		}
		respond(c, http.StatusOK, user)
	}
}

type roleRequest struct {
	Role domain.Role `json:"role" binding:"required"`
}

// handleUpdateUserRole handles PUT /api/users/:id/role. Admins cannot demote
// themselves.
func handleUpdateUserRole(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req roleRequest
		if !bindJSON(c, &req) {
			return
		}
		if !req.Role.IsValid() {
			fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid role", map[string]string{"role": "must be user or admin"})
			return
		}
		if c.Param("id") == currentUser(c).ID && req.Role != domain.RoleAdmin {
			fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "you cannot remove your own admin role", nil)
			return
		}

		user, err := store.UpdateUser(c.Param("id"), func(u *domain.User) error {
			u.Role = req.Role
			return nil
		})
		if err != nil {
			handleError(c, err, logger)
			return
		}
		logger.Info("User role changed", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
		respond(c, http.StatusOK, user)
	}
}

func handleDeleteUser(store *Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("id") == currentUser(c).ID {
			fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "you cannot delete your own account", nil)
			return
		}
		if err := store.DeleteUser(c.Param("id")); err != nil {
			handleError(c, err, logger)
			return
		}
		respondMessage(c, "User removed")
	}
}
