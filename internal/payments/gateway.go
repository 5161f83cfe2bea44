package payments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCharge indicates the charge request was malformed.
	ErrInvalidCharge = errors.New("payments: invalid charge request")
	// ErrGateway indicates a transport or provider failure that is neither an
	// approval nor a decline.
	ErrGateway = errors.New("payments: gateway error")
)

// ChargeRequest describes a single synchronous card charge.
type ChargeRequest struct {
	AmountCents     int64
	Currency        string
	PaymentMethodID string
	Description     string
	Email           string
	IdempotencyKey  string
	Metadata        map[string]string
}

// Transaction captures the provider's record of a captured payment.
type Transaction struct {
	ID          string    `firestore:"id" json:"id"`
	Status      string    `firestore:"status" json:"status"`
	AmountCents int64     `firestore:"amountCents" json:"amountCents"`
	Currency    string    `firestore:"currency" json:"currency"`
	Created     time.Time `firestore:"created" json:"created"`
}

// ChargeResult is the outcome of a charge attempt. A decline is a normal
// result, not an error: Success is false and the decline fields are set.
type ChargeResult struct {
	Success        bool
	Transaction    *Transaction
	DeclineCode    string
	DeclineMessage string
}

// Gateway is the payment provider abstraction used by checkout.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}
