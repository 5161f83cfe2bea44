package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/asg-shop/api/internal/domain"
	"github.com/asg-shop/api/internal/repositories"
)

// InventoryServiceDeps bundles collaborators required to construct an InventoryService.
type InventoryServiceDeps struct {
	Repository repositories.InventoryRepository
	Logger     LoggerFunc
}

// InventoryService applies the stock decrements an order carries.
type InventoryService struct {
	repository repositories.InventoryRepository
	logger     LoggerFunc
}

// NewInventoryService constructs an InventoryService from its dependencies.
func NewInventoryService(deps InventoryServiceDeps) (*InventoryService, error) {
	if deps.Repository == nil {
		return nil, errors.New("inventory service: repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &InventoryService{repository: deps.Repository, logger: logger}, nil
}

// ApplyOrder decrements stock for a shipped order. Pickup orders defer their
// adjustments until handover, and orders without tracked stock are a no-op.
func (s *InventoryService) ApplyOrder(ctx context.Context, order domain.Order) (repositories.InventoryApplyResult, error) {
	if s == nil || s.repository == nil {
		return repositories.InventoryApplyResult{}, errors.New("inventory service not initialised")
	}
	if order.Pickup || len(order.InventoryAdjustments) == 0 {
		return repositories.InventoryApplyResult{}, nil
	}
	return s.apply(ctx, order.OrderID, order.InventoryAdjustments)
}

// ApplyPickup decrements the deferred stock of a pickup order at handover.
func (s *InventoryService) ApplyPickup(ctx context.Context, order domain.Order) (repositories.InventoryApplyResult, error) {
	if s == nil || s.repository == nil {
		return repositories.InventoryApplyResult{}, errors.New("inventory service not initialised")
	}
	if len(order.PickupInventoryAdjustments) == 0 {
		return repositories.InventoryApplyResult{}, nil
	}
	return s.apply(ctx, order.OrderID, order.PickupInventoryAdjustments)
}

func (s *InventoryService) apply(ctx context.Context, orderID string, adjustments []domain.InventoryAdjustment) (repositories.InventoryApplyResult, error) {
	result, err := s.repository.Apply(ctx, adjustments)
	if err != nil {
		return repositories.InventoryApplyResult{}, fmt.Errorf("inventory service: apply for order %s: %w", orderID, err)
	}

	s.logger(ctx, "inventory.applied", map[string]any{
		"orderId": orderID,
		"applied": result.Applied,
		"skipped": len(result.Skipped),
	})
	return result, nil
}
