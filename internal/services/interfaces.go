package services

import (
	"context"

	"github.com/asg-shop/api/internal/domain"
	"github.com/asg-shop/api/internal/shipping"
)

// LoggerFunc records service events with structured fields.
type LoggerFunc func(ctx context.Context, event string, fields map[string]any)

// OrderCreatedMessage is the event body published when an order has been
// persisted. Fulfillment consumes it with at-least-once semantics.
type OrderCreatedMessage struct {
	EventID string `json:"eventId"`
	OrderID string `json:"orderId"`
	UserID  string `json:"userId,omitempty"`
}

// OrderEventPublisher fans a persisted order out to asynchronous fulfillment.
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, message OrderCreatedMessage) (string, error)
}

// OrderIDSource allocates order identifiers. Two concurrent allocations never
// return the same id.
type OrderIDSource interface {
	NextOrderID(ctx context.Context) (string, error)
}

// OrderStore is the slice of order persistence checkout and fulfillment need.
type OrderStore interface {
	Create(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	Mirror(ctx context.Context, userID string, order domain.Order, labels []shipping.LabelTransaction) error
	ClaimFulfillment(ctx context.Context, orderID string) (bool, error)
}

// CreditStore manages per-user store credit balances in integer cents.
type CreditStore interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Debit(ctx context.Context, userID string, amountCents int64) (int64, error)
}

// LabelPurchaser buys shipping labels for the rates chosen at checkout.
type LabelPurchaser interface {
	PurchaseLabels(ctx context.Context, rateIDs []string, orderID string) ([]shipping.LabelTransaction, error)
}

// LabelArchiver stores a durable copy of each purchased label transaction.
type LabelArchiver interface {
	ArchiveLabel(ctx context.Context, orderID string, transactionID string, label any) error
}

// ReceiptSender emails the customer a receipt for a settled order.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, order domain.Order) error
}

// PickTicketSender emails the operator a pick ticket for an in-store pickup.
type PickTicketSender interface {
	SendPickTicket(ctx context.Context, order domain.Order) error
}
