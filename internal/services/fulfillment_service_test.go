package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/asg-shop/api/internal/domain"
	"github.com/asg-shop/api/internal/repositories"
	"github.com/asg-shop/api/internal/shipping"
)

type stubInventoryApplier struct {
	mu           sync.Mutex
	orderCalls   []string
	pickupCalls  []string
	orderErr     error
	pickupResult repositories.InventoryApplyResult
}

func (s *stubInventoryApplier) ApplyOrder(_ context.Context, order domain.Order) (repositories.InventoryApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderCalls = append(s.orderCalls, order.OrderID)
	if s.orderErr != nil {
		return repositories.InventoryApplyResult{}, s.orderErr
	}
	return repositories.InventoryApplyResult{Applied: len(order.InventoryAdjustments)}, nil
}

func (s *stubInventoryApplier) ApplyPickup(_ context.Context, order domain.Order) (repositories.InventoryApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pickupCalls = append(s.pickupCalls, order.OrderID)
	return s.pickupResult, nil
}

type stubLabelPurchaser struct {
	mu      sync.Mutex
	rateIDs [][]string
	labels  []shipping.LabelTransaction
	err     error
}

func (s *stubLabelPurchaser) PurchaseLabels(_ context.Context, rateIDs []string, _ string) ([]shipping.LabelTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateIDs = append(s.rateIDs, rateIDs)
	if s.err != nil {
		return nil, s.err
	}
	if len(rateIDs) == 0 {
		return nil, nil
	}
	return s.labels, nil
}

type stubLabelArchiver struct {
	mu       sync.Mutex
	archived []string
	err      error
}

func (s *stubLabelArchiver) ArchiveLabel(_ context.Context, orderID string, transactionID string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.archived = append(s.archived, orderID+"/"+transactionID)
	return nil
}

type stubMailer struct {
	mu          sync.Mutex
	receipts    []string
	pickTickets []string
	receiptErr  error
}

func (s *stubMailer) SendReceipt(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.receiptErr != nil {
		return s.receiptErr
	}
	s.receipts = append(s.receipts, order.OrderID)
	return nil
}

func (s *stubMailer) SendPickTicket(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pickTickets = append(s.pickTickets, order.OrderID)
	return nil
}

type fulfillmentFixture struct {
	service   *FulfillmentService
	orders    *stubOrderStore
	inventory *stubInventoryApplier
	labels    *stubLabelPurchaser
	archiver  *stubLabelArchiver
	mailer    *stubMailer
	recorder  *eventRecorder
}

func newFulfillmentFixture(t *testing.T, order domain.Order) *fulfillmentFixture {
	t.Helper()

	orders := newStubOrderStore()
	orders.log = &callLog{}
	if order.OrderID != "" {
		orders.orders[order.OrderID] = order
	}

	inventory := &stubInventoryApplier{}
	labels := &stubLabelPurchaser{
		labels: []shipping.LabelTransaction{
			{ObjectID: "txn-1", Status: "SUCCESS", TrackingNumber: "9400110"},
		},
	}
	archiver := &stubLabelArchiver{}
	mailer := &stubMailer{}
	recorder := &eventRecorder{}

	service, err := NewFulfillmentService(FulfillmentServiceDeps{
		Orders:      orders,
		Inventory:   inventory,
		Labels:      labels,
		Archiver:    archiver,
		Receipts:    mailer,
		PickTickets: mailer,
		Logger:      recorder.logf,
	})
	if err != nil {
		t.Fatalf("NewFulfillmentService: %v", err)
	}

	return &fulfillmentFixture{
		service:   service,
		orders:    orders,
		inventory: inventory,
		labels:    labels,
		archiver:  archiver,
		mailer:    mailer,
		recorder:  recorder,
	}
}

func shippedOrder() domain.Order {
	return domain.Order{
		OrderID:       "2001",
		UserID:        "user-1",
		Email:         "buyer@example.com",
		Total:         1605,
		RateObjectIDs: []string{"rate-1"},
		InventoryAdjustments: []domain.InventoryAdjustment{
			{Collection: "cards", DocumentID: "abc", FieldPath: "qty", Decrement: 1},
		},
	}
}

func TestHandleOrderCreatedRunsAllTasks(t *testing.T) {
	f := newFulfillmentFixture(t, shippedOrder())

	if err := f.service.HandleOrderCreated(context.Background(), "2001"); err != nil {
		t.Fatalf("HandleOrderCreated: %v", err)
	}

	if got := f.inventory.orderCalls; len(got) != 1 || got[0] != "2001" {
		t.Errorf("expected inventory applied once, got %v", got)
	}
	if len(f.labels.rateIDs) != 1 || len(f.labels.rateIDs[0]) != 1 || f.labels.rateIDs[0][0] != "rate-1" {
		t.Errorf("unexpected label purchases: %v", f.labels.rateIDs)
	}
	if len(f.archiver.archived) != 1 || f.archiver.archived[0] != "2001/txn-1" {
		t.Errorf("unexpected archives: %v", f.archiver.archived)
	}
	if f.orders.mirroredUser != "user-1" || len(f.orders.mirroredLabels) != 1 {
		t.Errorf("expected mirror with labels, got user %q labels %v", f.orders.mirroredUser, f.orders.mirroredLabels)
	}
	if len(f.mailer.receipts) != 1 {
		t.Errorf("expected a receipt, got %v", f.mailer.receipts)
	}
	if len(f.mailer.pickTickets) != 0 {
		t.Errorf("shipped orders get no pick ticket, got %v", f.mailer.pickTickets)
	}
}

func TestHandleOrderCreatedTaskFailuresAreIsolated(t *testing.T) {
	f := newFulfillmentFixture(t, shippedOrder())
	f.inventory.orderErr = errors.New("stock unavailable")
	f.labels.err = errors.New("carrier down")
	f.mailer.receiptErr = errors.New("smtp down")

	if err := f.service.HandleOrderCreated(context.Background(), "2001"); err != nil {
		t.Fatalf("task failures must not fail the handler: %v", err)
	}

	// The mirror still runs so the customer sees the order, just without labels.
	if f.orders.mirroredUser != "user-1" || f.orders.mirroredLabels != nil {
		t.Errorf("expected mirror without labels, got user %q labels %v", f.orders.mirroredUser, f.orders.mirroredLabels)
	}
	for _, event := range []string{"fulfillment.inventory_failed", "fulfillment.labels_failed", "fulfillment.receipt_failed"} {
		if !f.recorder.has(event) {
			t.Errorf("expected %s to be logged", event)
		}
	}
}

func TestHandleOrderCreatedRedeliveryIsAcknowledged(t *testing.T) {
	f := newFulfillmentFixture(t, shippedOrder())
	f.orders.claimResult = false

	if err := f.service.HandleOrderCreated(context.Background(), "2001"); err != nil {
		t.Fatalf("HandleOrderCreated: %v", err)
	}

	if len(f.inventory.orderCalls) != 0 || len(f.labels.rateIDs) != 0 || len(f.mailer.receipts) != 0 {
		t.Error("claimed orders must not repeat side effects")
	}
	if !f.recorder.has("fulfillment.already_claimed") {
		t.Error("expected already_claimed to be logged")
	}
}

func TestHandleOrderCreatedMissingOrderIsAcknowledged(t *testing.T) {
	f := newFulfillmentFixture(t, domain.Order{})

	if err := f.service.HandleOrderCreated(context.Background(), "9999"); err != nil {
		t.Fatalf("missing orders must be acknowledged, got %v", err)
	}
	if f.orders.claimCalls != 0 {
		t.Error("missing orders must not be claimed")
	}
}

func TestHandleOrderCreatedTransientLoadFailureRetries(t *testing.T) {
	f := newFulfillmentFixture(t, shippedOrder())
	f.orders.getErr = errors.New("deadline exceeded")

	if err := f.service.HandleOrderCreated(context.Background(), "2001"); err == nil {
		t.Fatal("transient load failures must surface for redelivery")
	}
}

func TestHandleOrderCreatedAnonymousSkipsMirror(t *testing.T) {
	order := shippedOrder()
	order.UserID = ""
	f := newFulfillmentFixture(t, order)

	if err := f.service.HandleOrderCreated(context.Background(), "2001"); err != nil {
		t.Fatalf("HandleOrderCreated: %v", err)
	}
	if f.orders.mirroredOrder != nil {
		t.Error("anonymous orders must not be mirrored")
	}
	if len(f.mailer.receipts) != 1 {
		t.Errorf("anonymous orders still get a receipt, got %v", f.mailer.receipts)
	}
}

func TestHandleOrderCreatedServiceOnlyOrderBuysNoLabels(t *testing.T) {
	order := shippedOrder()
	order.RateObjectIDs = nil
	f := newFulfillmentFixture(t, order)

	if err := f.service.HandleOrderCreated(context.Background(), "2001"); err != nil {
		t.Fatalf("HandleOrderCreated: %v", err)
	}
	if len(f.labels.rateIDs) != 1 || len(f.labels.rateIDs[0]) != 0 {
		t.Errorf("unexpected label purchases: %v", f.labels.rateIDs)
	}
	if len(f.archiver.archived) != 0 {
		t.Errorf("nothing to archive, got %v", f.archiver.archived)
	}
	if f.orders.mirroredOrder == nil || f.orders.mirroredLabels != nil {
		t.Error("expected mirror without labels")
	}
}

func TestHandleOrderCreatedPickupSendsPickTicket(t *testing.T) {
	order := domain.Order{
		OrderID: "3001",
		UserID:  "user-1",
		Email:   "buyer@example.com",
		Pickup:  true,
		PickupInventoryAdjustments: []domain.InventoryAdjustment{
			{Collection: "cards", DocumentID: "abc", FieldPath: "qty", Decrement: 1},
		},
	}
	f := newFulfillmentFixture(t, order)

	if err := f.service.HandleOrderCreated(context.Background(), "3001"); err != nil {
		t.Fatalf("HandleOrderCreated: %v", err)
	}
	if len(f.mailer.pickTickets) != 1 || f.mailer.pickTickets[0] != "3001" {
		t.Errorf("expected a pick ticket, got %v", f.mailer.pickTickets)
	}
	if len(f.mailer.receipts) != 1 {
		t.Errorf("pickup orders still get a receipt, got %v", f.mailer.receipts)
	}
}

func TestCompletePickupAppliesDeferredStock(t *testing.T) {
	order := domain.Order{
		OrderID: "3001",
		Pickup:  true,
		PickupInventoryAdjustments: []domain.InventoryAdjustment{
			{Collection: "cards", DocumentID: "abc", FieldPath: "qty", Decrement: 2},
		},
	}
	f := newFulfillmentFixture(t, order)
	f.inventory.pickupResult = repositories.InventoryApplyResult{Applied: 1}

	result, err := f.service.CompletePickup(context.Background(), "3001")
	if err != nil {
		t.Fatalf("CompletePickup: %v", err)
	}
	if result.Applied != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(f.inventory.pickupCalls) != 1 || f.inventory.pickupCalls[0] != "3001" {
		t.Errorf("unexpected pickup applications: %v", f.inventory.pickupCalls)
	}
}

func TestCompletePickupMissingOrder(t *testing.T) {
	f := newFulfillmentFixture(t, domain.Order{})

	if _, err := f.service.CompletePickup(context.Background(), "9999"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}
