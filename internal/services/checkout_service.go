package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/asg-shop/api/internal/domain"
	"github.com/asg-shop/api/internal/payments"
)

var (
	// ErrInvalidOrder indicates the checkout request failed schema validation.
	ErrInvalidOrder = errors.New("checkout: invalid order")
)

// CheckoutRequest is a shipped-order settlement request. Monetary fields are
// currency units with two decimals, as sent by the storefront; they are
// converted to integer cents before any arithmetic.
type CheckoutRequest struct {
	UserID          string
	Email           string
	PaymentMethodID string
	Items           []domain.Item
	Subtotal        float64
	Tax             float64
	Shipping        float64
	Credit          float64
	Address         *domain.Address
	RateObjectIDs   []string
}

// PickupOrderRequest is an in-store pickup order. Payment and stock changes
// happen at physical handover, so there is no payment method and the item
// adjustments are recorded as deferred.
type PickupOrderRequest struct {
	UserID   string
	Email    string
	Items    []domain.Item
	Subtotal float64
	Tax      float64
	Credit   float64
}

// CheckoutResult is the outcome of a settlement attempt. A card decline is a
// normal result: Approved is false and the decline fields are populated, and
// nothing has been persisted.
type CheckoutResult struct {
	Approved             bool   `json:"approved"`
	OrderID              string `json:"orderId,omitempty"`
	TransactionRef       string `json:"transactionRef,omitempty"`
	PaidInFullWithCredit bool   `json:"paidInFullWithCredit,omitempty"`
	DeclineCode          string `json:"declineCode,omitempty"`
	DeclineMessage       string `json:"declineMessage,omitempty"`
}

// CheckoutServiceDeps bundles collaborators required to construct a CheckoutService.
type CheckoutServiceDeps struct {
	OrderIDs  OrderIDSource
	Orders    OrderStore
	Credit    CreditStore
	Gateway   payments.Gateway
	Publisher OrderEventPublisher
	Logger    LoggerFunc
	Clock     func() time.Time
	// NewID generates event and idempotency identifiers. Defaults to ULIDs.
	NewID func() string
}

// CheckoutService settles checkout requests: it charges the payment gateway,
// consumes store credit, allocates the order id, and persists and announces
// the order.
type CheckoutService struct {
	orderIDs  OrderIDSource
	orders    OrderStore
	credit    CreditStore
	gateway   payments.Gateway
	publisher OrderEventPublisher
	logger    LoggerFunc
	clock     func() time.Time
	newID     func() string
}

// NewCheckoutService constructs a CheckoutService from its dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (*CheckoutService, error) {
	if deps.OrderIDs == nil {
		return nil, errors.New("checkout service: order id source is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order store is required")
	}
	if deps.Credit == nil {
		return nil, errors.New("checkout service: credit store is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}

	return &CheckoutService{
		orderIDs:  deps.OrderIDs,
		orders:    deps.Orders,
		credit:    deps.Credit,
		gateway:   deps.Gateway,
		publisher: deps.Publisher,
		logger:    logger,
		clock:     clock,
		newID:     newID,
	}, nil
}

// Pay settles a shipped order. Claimed store credit is checked against the
// stored balance before any total is computed. When store credit covers the whole total the
// gateway is never contacted and the order settles as paid-in-full-with-credit.
// Otherwise the card is charged first; credit is consumed only after a
// successful capture, and a decline persists nothing.
func (s *CheckoutService) Pay(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	if err := validateOrderItems(req.Items); err != nil {
		return CheckoutResult{}, err
	}

	subtotal := domain.Cents(req.Subtotal)
	tax := domain.Cents(req.Tax)
	shippingCost := domain.Cents(req.Shipping)
	credit, err := s.claimableCredit(ctx, strings.TrimSpace(req.UserID), domain.Cents(req.Credit))
	if err != nil {
		return CheckoutResult{}, err
	}
	total := domain.OrderTotal(subtotal, tax, shippingCost, credit)

	order := domain.Order{
		UserID:               strings.TrimSpace(req.UserID),
		Email:                strings.TrimSpace(req.Email),
		Items:                req.Items,
		Subtotal:             subtotal,
		Tax:                  tax,
		ShippingCost:         shippingCost,
		Credit:               credit,
		Total:                total,
		Address:              req.Address,
		RateObjectIDs:        req.RateObjectIDs,
		InventoryAdjustments: collectAdjustments(req.Items),
	}

	if total == 0 {
		if err := s.consumeCredit(ctx, order, true); err != nil {
			return CheckoutResult{}, err
		}
		order.PaidInFullWithCredit = true
		order.TransactionRef = "credit-" + s.newID()

		saved := s.saveAndAnnounce(ctx, order)
		return CheckoutResult{
			Approved:             true,
			OrderID:              saved.OrderID,
			TransactionRef:       saved.TransactionRef,
			PaidInFullWithCredit: true,
		}, nil
	}

	if strings.TrimSpace(req.PaymentMethodID) == "" {
		return CheckoutResult{}, fmt.Errorf("%w: payment method is required", ErrInvalidOrder)
	}

	charge, err := s.gateway.Charge(ctx, payments.ChargeRequest{
		AmountCents:     total,
		Currency:        "usd",
		PaymentMethodID: req.PaymentMethodID,
		Description:     "Online order",
		Email:           order.Email,
		IdempotencyKey:  s.newID(),
		Metadata:        chargeMetadata(order),
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("checkout: charge: %w", err)
	}
	if !charge.Success {
		s.logger(ctx, "checkout.declined", map[string]any{
			"userId":      order.UserID,
			"declineCode": charge.DeclineCode,
			"total":       total,
		})
		return CheckoutResult{
			DeclineCode:    charge.DeclineCode,
			DeclineMessage: charge.DeclineMessage,
		}, nil
	}

	// Credit is consumed strictly after the capture succeeds. A debit failure
	// at this point must not lose the charged order, so it is logged instead.
	if err := s.consumeCredit(ctx, order, false); err != nil {
		s.logger(ctx, "checkout.credit_debit_failed", map[string]any{
			"userId": order.UserID,
			"credit": credit,
			"error":  err.Error(),
		})
	}
	if charge.Transaction != nil {
		order.TransactionRef = charge.Transaction.ID
	}

	saved := s.saveAndAnnounce(ctx, order)
	return CheckoutResult{
		Approved:       true,
		OrderID:        saved.OrderID,
		TransactionRef: saved.TransactionRef,
	}, nil
}

// SavePickupOrder records an in-store pickup order without charging. The item
// adjustments are stored as deferred so asynchronous fulfillment leaves stock
// untouched until handover.
func (s *CheckoutService) SavePickupOrder(ctx context.Context, req PickupOrderRequest) (CheckoutResult, error) {
	if err := validateOrderItems(req.Items); err != nil {
		return CheckoutResult{}, err
	}

	subtotal := domain.Cents(req.Subtotal)
	tax := domain.Cents(req.Tax)
	credit, err := s.claimableCredit(ctx, strings.TrimSpace(req.UserID), domain.Cents(req.Credit))
	if err != nil {
		return CheckoutResult{}, err
	}

	order := domain.Order{
		UserID:                     strings.TrimSpace(req.UserID),
		Email:                      strings.TrimSpace(req.Email),
		Items:                      req.Items,
		Subtotal:                   subtotal,
		Tax:                        tax,
		Credit:                     credit,
		Total:                      domain.OrderTotal(subtotal, tax, 0, credit),
		PickupInventoryAdjustments: collectAdjustments(req.Items),
		Pickup:                     true,
	}

	// Nothing has been charged yet, so a persistence failure is safe to
	// surface and retry.
	saved, err := s.saveOrder(ctx, order)
	if err != nil {
		return CheckoutResult{}, err
	}
	s.announce(ctx, saved)

	return CheckoutResult{Approved: true, OrderID: saved.OrderID}, nil
}

// claimableCredit validates claimed store credit against the stored balance.
// Credit balances exist only for known users, so anonymous claims are dropped;
// a claim above the balance is clamped to it. Nothing has been charged at this
// point, so a balance read failure is safe to surface.
func (s *CheckoutService) claimableCredit(ctx context.Context, userID string, claimed int64) (int64, error) {
	if claimed <= 0 {
		return 0, nil
	}
	if userID == "" {
		s.logger(ctx, "checkout.credit_rejected", map[string]any{
			"claimed": claimed,
		})
		return 0, nil
	}

	balance, err := s.credit.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("checkout: read credit balance: %w", err)
	}
	if balance < claimed {
		s.logger(ctx, "checkout.credit_clamped", map[string]any{
			"userId":  userID,
			"claimed": claimed,
			"balance": balance,
		})
		return balance, nil
	}
	return claimed, nil
}

// consumeCredit debits the pre-credit order value from the user's balance.
// Anonymous checkouts and zero-credit orders are no-ops.
func (s *CheckoutService) consumeCredit(ctx context.Context, order domain.Order, beforeCharge bool) error {
	if order.UserID == "" || order.Credit <= 0 {
		return nil
	}

	remaining, err := s.credit.Debit(ctx, order.UserID, order.Subtotal+order.Tax+order.ShippingCost)
	if err != nil {
		if beforeCharge {
			return fmt.Errorf("checkout: debit credit: %w", err)
		}
		return err
	}

	s.logger(ctx, "checkout.credit_consumed", map[string]any{
		"userId":    order.UserID,
		"credit":    order.Credit,
		"remaining": remaining,
	})
	return nil
}

// saveAndAnnounce persists the order after money has already moved. Failures
// are logged with the full order payload for manual reconciliation and never
// surface to the caller; the payment succeeded, so the checkout did too.
func (s *CheckoutService) saveAndAnnounce(ctx context.Context, order domain.Order) domain.Order {
	saved, err := s.saveOrder(ctx, order)
	if err != nil {
		s.logger(ctx, "checkout.save_order_failed", map[string]any{
			"error": err.Error(),
			"order": order,
		})
		return order
	}
	s.announce(ctx, saved)
	return saved
}

// saveOrder allocates the next order id and persists the order under it.
func (s *CheckoutService) saveOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	id, err := s.orderIDs.NextOrderID(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("checkout: allocate order id: %w", err)
	}

	order.OrderID = id
	order.CreatedAt = s.clock().UTC()

	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("checkout: save order %s: %w", id, err)
	}

	s.logger(ctx, "checkout.order_saved", map[string]any{
		"orderId": id,
		"userId":  order.UserID,
		"total":   order.Total,
		"pickup":  order.Pickup,
	})
	return order, nil
}

// announce publishes the order-created event. Fulfillment is asynchronous and
// replayable, so a publish failure is logged rather than failing the checkout.
func (s *CheckoutService) announce(ctx context.Context, order domain.Order) {
	if s.publisher == nil {
		return
	}

	message := OrderCreatedMessage{
		EventID: s.newID(),
		OrderID: order.OrderID,
		UserID:  order.UserID,
	}
	if _, err := s.publisher.PublishOrderCreated(ctx, message); err != nil {
		s.logger(ctx, "checkout.publish_failed", map[string]any{
			"orderId": order.OrderID,
			"error":   err.Error(),
		})
	}
}

func chargeMetadata(order domain.Order) map[string]string {
	metadata := make(map[string]string)
	if order.UserID != "" {
		metadata["userId"] = order.UserID
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

// collectAdjustments gathers the tracked-stock adjustments carried by items.
func collectAdjustments(items []domain.Item) []domain.InventoryAdjustment {
	var adjustments []domain.InventoryAdjustment
	for _, item := range items {
		if item.InventoryAdjust == nil {
			continue
		}
		adjustments = append(adjustments, *item.InventoryAdjust)
	}
	return adjustments
}

// validateOrderItems rejects items missing the fields every order line needs.
func validateOrderItems(items []domain.Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	for _, item := range items {
		if item.Amount == 0 {
			return fmt.Errorf("%w: %q is missing an amount", ErrInvalidOrder, item.DisplayName)
		}
		if strings.TrimSpace(item.DisplayName) == "" {
			return fmt.Errorf("%w: item %q is missing a display name", ErrInvalidOrder, item.ID)
		}
	}
	return nil
}
