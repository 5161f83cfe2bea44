package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Intents  stripePaymentIntentAPI
}

// StripeGateway implements Gateway using Stripe PaymentIntents.
type StripeGateway struct {
	intents stripePaymentIntentAPI
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeGateway constructs a Stripe-backed Gateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	intents := cfg.Intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		intents: intents,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Charge creates and confirms a PaymentIntent synchronously. Card declines
// come back as a ChargeResult with Success false; only malformed input and
// transport failures return an error.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if g == nil || g.intents == nil {
		return ChargeResult{}, errors.New("stripe: gateway is not initialised")
	}
	if req.AmountCents <= 0 {
		return ChargeResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidCharge)
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		return ChargeResult{}, fmt.Errorf("%w: payment method is required", ErrInvalidCharge)
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := g.intents.New(params)
	if err != nil {
		if declined, result := declineResult(err); declined {
			g.logger(ctx, "payments.charge.declined", map[string]any{
				"decline_code": result.DeclineCode,
				"amount":       req.AmountCents,
			})
			return result, nil
		}
		return ChargeResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		g.logger(ctx, "payments.charge.not_captured", map[string]any{
			"intent_id": intent.ID,
			"status":    string(intent.Status),
		})
		return ChargeResult{
			DeclineCode:    string(intent.Status),
			DeclineMessage: "payment was not captured",
		}, nil
	}

	g.logger(ctx, "payments.charge.captured", map[string]any{
		"intent_id": intent.ID,
		"amount":    intent.Amount,
	})

	return ChargeResult{
		Success: true,
		Transaction: &Transaction{
			ID:          intent.ID,
			Status:      string(intent.Status),
			AmountCents: intent.Amount,
			Currency:    string(intent.Currency),
			Created:     g.clock(),
		},
	}, nil
}

// declineResult maps Stripe card errors onto decline-as-data results.
func declineResult(err error) (bool, ChargeResult) {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false, ChargeResult{}
	}
	if stripeErr.Type != stripe.ErrorTypeCard {
		return false, ChargeResult{}
	}

	code := string(stripeErr.DeclineCode)
	if code == "" {
		code = string(stripeErr.Code)
	}
	return true, ChargeResult{
		DeclineCode:    code,
		DeclineMessage: stripeErr.Msg,
	}
}
