package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/asg-shop/api/internal/domain"
	pfirestore "github.com/asg-shop/api/internal/platform/firestore"
	"github.com/asg-shop/api/internal/shipping"
)

const (
	ordersCollection     = "orders"
	usersCollection      = "users"
	userOrdersCollection = "orders"
)

// orderMirrorDocument is the per-user copy of an order, extended with the
// purchased label transactions once fulfillment has bought them. The embedded
// order's fields are flattened into the document.
type orderMirrorDocument struct {
	domain.Order
	ShippingTransactions []shipping.LabelTransaction `firestore:"shippingTransactions,omitempty"`
}

// OrderRepository persists orders and their per-user mirrors.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[domain.Order]
	clock    func() time.Time
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[domain.Order](provider, ordersCollection, nil),
		clock:    time.Now,
	}, nil
}

// Create persists the order under its allocated id. Re-creating an existing
// id is reported as a conflict, which callers treat as already-processed.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.OrderID) == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.orders.DocumentRef(ctx, order.OrderID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, order); err != nil {
		return pfirestore.WrapError("orders.create", err)
	}
	return nil
}

// Get fetches the order by id.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data, nil
}

// Mirror copies the order into users/{uid}/orders/{orderId}, including the
// purchased label transactions.
func (r *OrderRepository) Mirror(ctx context.Context, userID string, order domain.Order, labels []shipping.LabelTransaction) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("order repository: user id is required for mirroring")
	}
	if strings.TrimSpace(order.OrderID) == "" {
		return errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	ref := client.Collection(usersCollection).Doc(userID).Collection(userOrdersCollection).Doc(order.OrderID)
	doc := orderMirrorDocument{Order: order, ShippingTransactions: labels}
	if _, err := ref.Set(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.mirror", err)
	}
	return nil
}

// ClaimFulfillment atomically stamps fulfillmentClaimedAt on the order. The
// first delivery for an order id wins; redeliveries observe the stamp and get
// false back so fulfillment side effects run at most once.
func (r *OrderRepository) ClaimFulfillment(ctx context.Context, orderID string) (bool, error) {
	if r == nil || r.provider == nil {
		return false, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, errors.New("order repository: order id is required")
	}

	claimed := false
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimed = false

		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if _, err := snapshot.DataAt("fulfillmentClaimedAt"); err == nil {
			return nil
		}

		claimed = true
		return tx.Update(ref, []firestore.Update{
			{Path: "fulfillmentClaimedAt", Value: r.clock().UTC()},
		})
	})
	if err != nil {
		return false, pfirestore.WrapError("orders.claim_fulfillment", err)
	}
	return claimed, nil
}
