package firestore

import (
	"testing"

	"github.com/asg-shop/api/internal/domain"
)

func TestDecrementPathNestedField(t *testing.T) {
	data := map[string]any{
		"foil": map[string]any{
			"Near Mint": map[string]any{
				"qty": int64(7),
			},
		},
	}

	if !decrementPath(data, "foil.Near Mint.qty", 3) {
		t.Fatal("expected decrement to apply")
	}

	qty := data["foil"].(map[string]any)["Near Mint"].(map[string]any)["qty"]
	if qty != int64(4) {
		t.Errorf("expected qty 4, got %v", qty)
	}
}

func TestDecrementPathAllowsNegative(t *testing.T) {
	data := map[string]any{"qty": int64(1)}

	if !decrementPath(data, "qty", 5) {
		t.Fatal("expected decrement to apply")
	}
	if data["qty"] != int64(-4) {
		t.Errorf("expected unconditional decrement to -4, got %v", data["qty"])
	}
}

func TestDecrementPathFloatLeaf(t *testing.T) {
	data := map[string]any{"stock": map[string]any{"qty": float64(2.5)}}

	if !decrementPath(data, "stock.qty", 1) {
		t.Fatal("expected decrement to apply")
	}
	if data["stock"].(map[string]any)["qty"] != float64(1.5) {
		t.Errorf("unexpected leaf value: %v", data["stock"].(map[string]any)["qty"])
	}
}

func TestDecrementPathMissingSegment(t *testing.T) {
	data := map[string]any{"foil": map[string]any{}}

	if decrementPath(data, "foil.Near Mint.qty", 1) {
		t.Error("expected missing segment to be reported")
	}
	if decrementPath(data, "nonfoil.qty", 1) {
		t.Error("expected missing root to be reported")
	}
}

func TestDecrementPathNonNumericLeaf(t *testing.T) {
	data := map[string]any{"qty": "seven"}

	if decrementPath(data, "qty", 1) {
		t.Error("expected non-numeric leaf to be reported")
	}
}

func TestGroupAdjustmentsMergesSameDocument(t *testing.T) {
	adjustments := []domain.InventoryAdjustment{
		{Collection: "cards", DocumentID: "abc", FieldPath: "foil.Near Mint.qty", Decrement: 1},
		{Collection: "cards", DocumentID: "xyz", FieldPath: "qty", Decrement: 2},
		{Collection: "cards", DocumentID: "abc", FieldPath: "nonfoil.Played.qty", Decrement: 1},
		{Collection: "", DocumentID: "ignored", FieldPath: "qty", Decrement: 1},
	}

	targets := groupAdjustments(adjustments)
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].documentID != "abc" || len(targets[0].adjustments) != 2 {
		t.Errorf("expected both abc adjustments grouped, got %+v", targets[0])
	}
	if targets[1].documentID != "xyz" || len(targets[1].adjustments) != 1 {
		t.Errorf("unexpected second target: %+v", targets[1])
	}
}
