package repositories

import (
	"context"
	"fmt"

	"github.com/asg-shop/api/internal/domain"
	"github.com/asg-shop/api/internal/shipping"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	// Next atomically increments the counter and returns the new value.
	// Two concurrent calls never observe the same value.
	Next(ctx context.Context, counterID string) (int64, error)
}

// InventoryApplyResult reports what an inventory application actually touched.
type InventoryApplyResult struct {
	Applied int
	// Skipped lists collection/document/field paths that were missing and
	// therefore left untouched.
	Skipped []string
}

// InventoryRepository applies stock decrements against nested counter fields.
type InventoryRepository interface {
	// Apply performs every adjustment in a single transaction. Adjustments
	// whose target document or field is missing are skipped, not failed.
	Apply(ctx context.Context, adjustments []domain.InventoryAdjustment) (InventoryApplyResult, error)
}

// OrderRepository persists settled orders and their per-user mirrors.
type OrderRepository interface {
	// Create persists the order under its allocated id. Creating the same id
	// twice is a conflict.
	Create(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	// Mirror copies the order into the owning user's subcollection together
	// with any purchased label transactions.
	Mirror(ctx context.Context, userID string, order domain.Order, labels []shipping.LabelTransaction) error
	// ClaimFulfillment atomically marks the order as picked up by a
	// fulfillment worker. Returns false when another delivery already
	// claimed it, making at-least-once event delivery safe.
	ClaimFulfillment(ctx context.Context, orderID string) (bool, error)
}

// CreditRepository manages per-user store credit balances in integer cents.
type CreditRepository interface {
	// Balance returns the user's current credit; missing balance documents
	// read as zero.
	Balance(ctx context.Context, userID string) (int64, error)
	// Debit atomically reduces the balance by the order's pre-credit value,
	// flooring at zero, and returns the new balance.
	Debit(ctx context.Context, userID string, amountCents int64) (int64, error)
}

// CounterErrorCode categorises counter failures.
type CounterErrorCode string

const (
	CounterErrorInvalidInput CounterErrorCode = "invalid_input"
	CounterErrorExhausted    CounterErrorCode = "exhausted"
)

// CounterError describes a counter-specific failure.
type CounterError struct {
	Code    CounterErrorCode
	Message string
	Err     error
}

// NewCounterError constructs a CounterError.
func NewCounterError(code CounterErrorCode, message string, err error) *CounterError {
	return &CounterError{Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("counter %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("counter %s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
