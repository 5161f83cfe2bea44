package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/asg-shop/api/internal/domain"
	"github.com/asg-shop/api/internal/repositories"
	"github.com/asg-shop/api/internal/shipping"
)

// ErrOrderNotFound indicates the referenced order does not exist.
var ErrOrderNotFound = errors.New("fulfillment: order not found")

// InventoryApplier applies an order's stock adjustments.
type InventoryApplier interface {
	ApplyOrder(ctx context.Context, order domain.Order) (repositories.InventoryApplyResult, error)
	ApplyPickup(ctx context.Context, order domain.Order) (repositories.InventoryApplyResult, error)
}

// FulfillmentServiceDeps bundles collaborators required to construct a
// FulfillmentService. Archiver, Receipts and PickTickets are optional; a nil
// collaborator skips that side effect.
type FulfillmentServiceDeps struct {
	Orders      OrderStore
	Inventory   InventoryApplier
	Labels      LabelPurchaser
	Archiver    LabelArchiver
	Receipts    ReceiptSender
	PickTickets PickTicketSender
	Logger      LoggerFunc
}

// FulfillmentService runs the asynchronous side effects of a created order:
// stock adjustment, label purchase with the per-user order mirror, and
// customer email. The tasks are independent and each fails gracefully so one
// failure never starves the others.
type FulfillmentService struct {
	orders      OrderStore
	inventory   InventoryApplier
	labels      LabelPurchaser
	archiver    LabelArchiver
	receipts    ReceiptSender
	pickTickets PickTicketSender
	logger      LoggerFunc
}

// NewFulfillmentService constructs a FulfillmentService from its dependencies.
func NewFulfillmentService(deps FulfillmentServiceDeps) (*FulfillmentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("fulfillment service: order store is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("fulfillment service: inventory applier is required")
	}
	if deps.Labels == nil {
		return nil, errors.New("fulfillment service: label purchaser is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &FulfillmentService{
		orders:      deps.Orders,
		inventory:   deps.Inventory,
		labels:      deps.Labels,
		archiver:    deps.Archiver,
		receipts:    deps.Receipts,
		pickTickets: deps.PickTickets,
		logger:      logger,
	}, nil
}

// HandleOrderCreated processes one order-created delivery. The order is
// claimed first so redeliveries are acknowledged without repeating side
// effects. A missing order is acknowledged too; transient failures surface as
// errors so the message is redelivered.
func (s *FulfillmentService) HandleOrderCreated(ctx context.Context, orderID string) error {
	if s == nil || s.orders == nil {
		return errors.New("fulfillment service not initialised")
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			s.logger(ctx, "fulfillment.order_missing", map[string]any{"orderId": orderID})
			return nil
		}
		return fmt.Errorf("fulfillment: load order %s: %w", orderID, err)
	}

	claimed, err := s.orders.ClaimFulfillment(ctx, orderID)
	if err != nil {
		return fmt.Errorf("fulfillment: claim order %s: %w", orderID, err)
	}
	if !claimed {
		s.logger(ctx, "fulfillment.already_claimed", map[string]any{"orderId": orderID})
		return nil
	}

	// Each task logs its own failure and reports success to the group, so
	// Wait always drains all three.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.adjustStock(groupCtx, order)
		return nil
	})
	group.Go(func() error {
		s.shipAndMirror(groupCtx, order)
		return nil
	})
	group.Go(func() error {
		s.sendEmails(groupCtx, order)
		return nil
	})
	return group.Wait()
}

// CompletePickup applies a pickup order's deferred stock adjustments at
// physical handover.
func (s *FulfillmentService) CompletePickup(ctx context.Context, orderID string) (repositories.InventoryApplyResult, error) {
	if s == nil || s.orders == nil {
		return repositories.InventoryApplyResult{}, errors.New("fulfillment service not initialised")
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return repositories.InventoryApplyResult{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return repositories.InventoryApplyResult{}, fmt.Errorf("fulfillment: load order %s: %w", orderID, err)
	}

	result, err := s.inventory.ApplyPickup(ctx, order)
	if err != nil {
		return repositories.InventoryApplyResult{}, err
	}

	s.logger(ctx, "fulfillment.pickup_completed", map[string]any{
		"orderId": order.OrderID,
		"applied": result.Applied,
	})
	return result, nil
}

func (s *FulfillmentService) adjustStock(ctx context.Context, order domain.Order) {
	if _, err := s.inventory.ApplyOrder(ctx, order); err != nil {
		s.logger(ctx, "fulfillment.inventory_failed", map[string]any{
			"orderId": order.OrderID,
			"error":   err.Error(),
		})
	}
}

// shipAndMirror buys the labels the customer paid for and mirrors the order
// into the owner's subcollection. Service-only orders carry no rate ids and
// purchase nothing; anonymous orders have no subcollection to mirror into.
func (s *FulfillmentService) shipAndMirror(ctx context.Context, order domain.Order) {
	labels, err := s.labels.PurchaseLabels(ctx, order.RateObjectIDs, order.OrderID)
	if err != nil {
		s.logger(ctx, "fulfillment.labels_failed", map[string]any{
			"orderId": order.OrderID,
			"error":   err.Error(),
		})
		labels = nil
	}

	if s.archiver != nil {
		for _, label := range labels {
			if err := s.archiver.ArchiveLabel(ctx, order.OrderID, label.ObjectID, label); err != nil {
				s.logger(ctx, "fulfillment.label_archive_failed", map[string]any{
					"orderId":       order.OrderID,
					"transactionId": label.ObjectID,
					"error":         err.Error(),
				})
			}
		}
	}

	if order.Anonymous() {
		return
	}
	if err := s.orders.Mirror(ctx, order.UserID, order, labels); err != nil {
		s.logger(ctx, "fulfillment.mirror_failed", map[string]any{
			"orderId": order.OrderID,
			"userId":  order.UserID,
			"error":   err.Error(),
		})
	}
}

func (s *FulfillmentService) sendEmails(ctx context.Context, order domain.Order) {
	if order.Pickup && s.pickTickets != nil {
		if err := s.pickTickets.SendPickTicket(ctx, order); err != nil {
			s.logger(ctx, "fulfillment.pick_ticket_failed", map[string]any{
				"orderId": order.OrderID,
				"error":   err.Error(),
			})
		}
	}

	if order.Email == "" || s.receipts == nil {
		return
	}
	if err := s.receipts.SendReceipt(ctx, order); err != nil {
		s.logger(ctx, "fulfillment.receipt_failed", map[string]any{
			"orderId": order.OrderID,
			"error":   err.Error(),
		})
	}
}

var _ LabelPurchaser = (*shipping.RateAggregator)(nil)
