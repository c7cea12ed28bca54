package domain

// Role represents a user role
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is valid
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// DiscountType represents how a coupon discount is computed
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// IsValid checks if the discount type is valid
func (d DiscountType) IsValid() bool {
	return d == DiscountTypePercentage || d == DiscountTypeFixed
}

// OrderStatus represents the server-side lifecycle of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending,
		OrderStatusPaid,
		OrderStatusDelivered,
		OrderStatusRefunded,
		OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a status transition is valid
func (s OrderStatus) CanTransitionTo(newStatus OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return newStatus == OrderStatusPaid ||
			newStatus == OrderStatusCancelled
	case OrderStatusPaid:
		return newStatus == OrderStatusDelivered ||
			newStatus == OrderStatusRefunded
	case OrderStatusDelivered:
		return newStatus == OrderStatusRefunded
	case OrderStatusRefunded, OrderStatusCancelled:
		return false // Terminal states
	default:
		return false
	}
}

// RefundStatus represents the status of a refund request
type RefundStatus string

const (
	RefundStatusPending  RefundStatus = "pending"
	RefundStatusApproved RefundStatus = "approved"
	RefundStatusRejected RefundStatus = "rejected"
	RefundStatusRefunded RefundStatus = "refunded"
)

// IsValid checks if the refund status is valid
func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundStatusPending, RefundStatusApproved, RefundStatusRejected, RefundStatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a refund status transition is valid
func (s RefundStatus) CanTransitionTo(newStatus RefundStatus) bool {
	switch s {
	case RefundStatusPending:
		return newStatus == RefundStatusApproved || newStatus == RefundStatusRejected
	case RefundStatusApproved:
		return newStatus == RefundStatusRefunded
	default:
		return false
	}
}

// CheckoutStep represents a step of the checkout flow
type CheckoutStep string

const (
	CheckoutStepShipping     CheckoutStep = "shipping"
	CheckoutStepPayment      CheckoutStep = "payment"
	CheckoutStepConfirmation CheckoutStep = "confirmation"
)

// CanTransitionTo checks if a checkout step transition is valid.
// The flow only moves forward; shipping may be re-entered while in shipping.
func (s CheckoutStep) CanTransitionTo(next CheckoutStep) bool {
	switch s {
	case CheckoutStepShipping:
		return next == CheckoutStepShipping || next == CheckoutStepPayment
	case CheckoutStepPayment:
		return next == CheckoutStepConfirmation
	case CheckoutStepConfirmation:
		return false // Terminal state
	default:
		return false
	}
}
