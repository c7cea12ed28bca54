// Package payment is the client side of the payment provider: it takes the
// server-issued client secret for an order and reports the provider outcome.
package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Result statuses
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ConfirmRequest is what the provider needs to confirm one payment
type ConfirmRequest struct {
	ClientSecret    string
	PaymentMethodID string
	Amount          decimal.Decimal
	Currency        string
	Email           string
}

// Result is the provider's verdict
type Result struct {
	ID            string
	Status        string
	FailureReason string
	ConfirmedAt   time.Time
}

// Succeeded reports whether the payment went through
func (r Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Provider confirms a payment intent with a payment method
type Provider interface {
	Confirm(ctx context.Context, req ConfirmRequest) (Result, error)
}

// Test payment methods understood by the sandbox, named after the
// provider's published test cards.
const (
	TestCardVisa         = "pm_card_visa"
	TestCardMastercard   = "pm_card_mastercard"
	TestCardDeclined     = "pm_card_chargeDeclined"
	TestCardInsufficient = "pm_card_chargeDeclinedInsufficientFunds"
)

// Sandbox is a deterministic provider for development and tests. Declines
// come back as a failed Result, not an error; errors are reserved for
// malformed requests.
type Sandbox struct {
	now    func() time.Time
	logger *zap.Logger
}

func NewSandbox(logger *zap.Logger) *Sandbox {
	return &Sandbox{now: time.Now, logger: logger}
}

func (s *Sandbox) Confirm(ctx context.Context, req ConfirmRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if req.ClientSecret == "" || !strings.Contains(req.ClientSecret, "_secret_") {
		return Result{}, fmt.Errorf("invalid client secret")
	}
	if req.PaymentMethodID == "" {
		return Result{}, fmt.Errorf("payment method is required")
	}

	intentID := req.ClientSecret[:strings.Index(req.ClientSecret, "_secret_")]
	result := Result{
		ID:          intentID,
		ConfirmedAt: s.now(),
	}

	switch req.PaymentMethodID {
	case TestCardDeclined:
		result.Status = StatusFailed
		result.FailureReason = "card_declined"
	case TestCardInsufficient:
		result.Status = StatusFailed
		result.FailureReason = "insufficient_funds"
	default:
		result.Status = StatusSucceeded
	}

	s.logger.Info("Sandbox payment confirmed",
		zap.String("intent_id", intentID),
		zap.String("status", result.Status),
		zap.String("amount", req.Amount.StringFixed(2)),
	)
	return result, nil
}

// NewSandboxSecret builds a client secret in the shape the sandbox accepts
func NewSandboxSecret() (intentID, clientSecret string) {
	intentID = "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return intentID, intentID + "_secret_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
