package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/asg-shop/api/internal/domain"
	pfirestore "github.com/asg-shop/api/internal/platform/firestore"
	"github.com/asg-shop/api/internal/repositories"
)

// InventoryRepository applies stock decrements inside a single Firestore
// transaction. Field paths use dot notation walked in decoded document data,
// never as literal Firestore field paths, so segments containing spaces or
// punctuation ("foil.Near Mint.qty") behave correctly.
type InventoryRepository struct {
	provider *pfirestore.Provider
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider, logger func(ctx context.Context, event string, fields map[string]any)) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &InventoryRepository{provider: provider, logger: logger}, nil
}

type inventoryTarget struct {
	collection  string
	documentID  string
	adjustments []domain.InventoryAdjustment
}

// Apply performs every adjustment in one transaction with all reads issued
// before any write. Missing documents or field paths are logged and skipped;
// the remaining adjustments still commit. Decrements are unconditional and
// may drive a count negative.
func (r *InventoryRepository) Apply(ctx context.Context, adjustments []domain.InventoryAdjustment) (repositories.InventoryApplyResult, error) {
	if r == nil || r.provider == nil {
		return repositories.InventoryApplyResult{}, errors.New("inventory repository not initialised")
	}
	if len(adjustments) == 0 {
		return repositories.InventoryApplyResult{}, nil
	}

	targets := groupAdjustments(adjustments)
	var result repositories.InventoryApplyResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.InventoryApplyResult{}

		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		type pendingWrite struct {
			ref  *firestore.DocumentRef
			data map[string]any
		}

		// All reads happen before any write, as Firestore transactions require.
		var writes []pendingWrite
		for _, target := range targets {
			ref := client.Collection(target.collection).Doc(target.documentID)

			snapshot, err := tx.Get(ref)
			if status.Code(err) == codes.NotFound {
				r.logger(ctx, "inventory.apply.document_missing", map[string]any{
					"collection": target.collection,
					"document":   target.documentID,
				})
				result.Skipped = append(result.Skipped, target.collection+"/"+target.documentID)
				continue
			}
			if err != nil {
				return err
			}

			data := snapshot.Data()
			applied := 0
			for _, adjustment := range target.adjustments {
				if decrementPath(data, adjustment.FieldPath, adjustment.Decrement) {
					applied++
					continue
				}
				r.logger(ctx, "inventory.apply.field_missing", map[string]any{
					"collection": target.collection,
					"document":   target.documentID,
					"fieldPath":  adjustment.FieldPath,
				})
				result.Skipped = append(result.Skipped, target.collection+"/"+target.documentID+"#"+adjustment.FieldPath)
			}

			if applied > 0 {
				result.Applied += applied
				writes = append(writes, pendingWrite{ref: ref, data: data})
			}
		}

		for _, write := range writes {
			if err := tx.Set(write.ref, write.data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return repositories.InventoryApplyResult{}, pfirestore.WrapError("inventory.apply", err)
	}
	return result, nil
}

// groupAdjustments collapses adjustments sharing a target document so each
// document is read and written once.
func groupAdjustments(adjustments []domain.InventoryAdjustment) []inventoryTarget {
	index := make(map[string]int)
	var targets []inventoryTarget
	for _, adjustment := range adjustments {
		collection := strings.TrimSpace(adjustment.Collection)
		documentID := strings.TrimSpace(adjustment.DocumentID)
		if collection == "" || documentID == "" {
			continue
		}
		key := collection + "/" + documentID
		i, ok := index[key]
		if !ok {
			i = len(targets)
			index[key] = i
			targets = append(targets, inventoryTarget{collection: collection, documentID: documentID})
		}
		targets[i].adjustments = append(targets[i].adjustments, adjustment)
	}
	return targets
}

// decrementPath walks the dot-separated path in decoded document data and
// subtracts the decrement from the numeric leaf. Returns false when any
// segment is missing or the leaf is not numeric.
func decrementPath(data map[string]any, path string, decrement int64) bool {
	segments := strings.Split(path, ".")
	if len(segments) == 0 {
		return false
	}

	current := data
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return false
		}
		current = next
	}

	leaf := segments[len(segments)-1]
	switch value := current[leaf].(type) {
	case int64:
		current[leaf] = value - decrement
	case float64:
		current[leaf] = value - float64(decrement)
	case int:
		current[leaf] = int64(value) - decrement
	default:
		return false
	}
	return true
}
