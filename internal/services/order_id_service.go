package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/asg-shop/api/internal/repositories"
)

// orderCounterID is the counter document backing order id allocation.
const orderCounterID = "orderId"

// OrderIDAllocatorDeps bundles collaborators required to construct an OrderIDAllocator.
type OrderIDAllocatorDeps struct {
	Counters repositories.CounterRepository
}

// OrderIDAllocator hands out sequential, human-readable order ids backed by a
// transactional counter.
type OrderIDAllocator struct {
	counters repositories.CounterRepository
}

// NewOrderIDAllocator constructs an OrderIDAllocator from its dependencies.
func NewOrderIDAllocator(deps OrderIDAllocatorDeps) (*OrderIDAllocator, error) {
	if deps.Counters == nil {
		return nil, errors.New("order id allocator: counter repository is required")
	}
	return &OrderIDAllocator{counters: deps.Counters}, nil
}

// NextOrderID allocates the next order id as a decimal string.
func (a *OrderIDAllocator) NextOrderID(ctx context.Context) (string, error) {
	if a == nil || a.counters == nil {
		return "", errors.New("order id allocator not initialised")
	}

	value, err := a.counters.Next(ctx, orderCounterID)
	if err != nil {
		return "", fmt.Errorf("order id allocator: %w", err)
	}
	return strconv.FormatInt(value, 10), nil
}
