package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/asg-shop/api/internal/platform/firestore"
)

const (
	creditCollection = "credit"
	creditDocumentID = "balance"
)

type creditDocument struct {
	Amount    int64     `firestore:"amount"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CreditRepository manages per-user store credit under users/{uid}/credit/balance.
// Amounts are integer cents.
type CreditRepository struct {
	provider *pfirestore.Provider
	clock    func() time.Time
}

// NewCreditRepository constructs a Firestore-backed credit repository.
func NewCreditRepository(provider *pfirestore.Provider) (*CreditRepository, error) {
	if provider == nil {
		return nil, errors.New("credit repository requires firestore provider")
	}
	return &CreditRepository{provider: provider, clock: time.Now}, nil
}

func (r *CreditRepository) balanceRef(ctx context.Context, userID string) (*firestore.DocumentRef, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("credit repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(usersCollection).Doc(userID).Collection(creditCollection).Doc(creditDocumentID), nil
}

// Balance returns the user's current credit. A missing balance document reads as zero.
func (r *CreditRepository) Balance(ctx context.Context, userID string) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("credit repository not initialised")
	}

	ref, err := r.balanceRef(ctx, userID)
	if err != nil {
		return 0, err
	}

	snapshot, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, pfirestore.WrapError("credit.balance", err)
	}

	var doc creditDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return 0, fmt.Errorf("firestore credit decode %s: %w", userID, err)
	}
	return doc.Amount, nil
}

// Debit atomically reduces the balance by amountCents, flooring at zero, and
// returns the new balance. The fresh balance is read inside the transaction
// so concurrent orders never double-spend credit.
func (r *CreditRepository) Debit(ctx context.Context, userID string, amountCents int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("credit repository not initialised")
	}
	if amountCents < 0 {
		return 0, errors.New("credit repository: debit amount must not be negative")
	}

	now := r.clock().UTC()
	var remaining int64

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.balanceRef(ctx, userID)
		if err != nil {
			return err
		}

		var doc creditDocument
		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			// No balance document means no credit to spend.
		case codes.OK:
			if err := snapshot.DataTo(&doc); err != nil {
				return fmt.Errorf("firestore credit decode %s: %w", userID, err)
			}
		default:
			return err
		}

		doc.Amount -= amountCents
		if doc.Amount < 0 {
			doc.Amount = 0
		}
		doc.UpdatedAt = now
		remaining = doc.Amount

		return tx.Set(ref, doc)
	})
	if err != nil {
		return 0, pfirestore.WrapError("credit.debit", err)
	}
	return remaining, nil
}
