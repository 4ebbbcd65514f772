package reconcile

import (
	"reflect"
	"testing"

	"storefront/internal/model"
)

func authLine(itemID, productID, size string, qty int, price int64) model.AuthLine {
	return model.AuthLine{
		CartItemID: itemID,
		CartLine: model.CartLine{
			ProductID:    productID,
			ProductName:  "P" + productID,
			UnitPrice:    price,
			Quantity:     qty,
			SelectedSize: size,
			Images:       []string{productID + ".jpg"},
		},
	}
}

func key(productID, size string) model.LineKey {
	return model.LineKey{ProductID: productID, Size: size}
}

func TestPlanSync_NoEdits(t *testing.T) {
	server := []model.AuthLine{authLine("a", "1", "M", 2, 100)}

	plan := PlanSync(server, nil)

	if !plan.IsEmpty() {
		t.Errorf("Replace = %v, want empty", plan.Replace)
	}
}

func TestPlanSync_QuantityChange(t *testing.T) {
	server := []model.AuthLine{
		authLine("a", "1", "M", 3, 100),
		authLine("b", "2", "S", 1, 100),
	}
	edits := map[model.LineKey]int{key("1", "M"): 1}

	plan := PlanSync(server, edits)

	if len(plan.Replace) != 1 {
		t.Fatalf("Replace = %d, want 1", len(plan.Replace))
	}
	got := plan.Replace[0]
	want := Replacement{Key: key("1", "M"), CartItemID: "a", OldQuantity: 3, NewQuantity: 1}
	if got != want {
		t.Errorf("Replace[0] = %+v, want %+v", got, want)
	}
}

func TestPlanSync_SettledAndStale(t *testing.T) {
	server := []model.AuthLine{authLine("a", "1", "M", 2, 100)}
	edits := map[model.LineKey]int{
		key("1", "M"): 2, // equal to server
		key("9", "L"): 4, // line gone
	}

	plan := PlanSync(server, edits)

	if !plan.IsEmpty() {
		t.Errorf("Replace = %v, want empty", plan.Replace)
	}
	if !reflect.DeepEqual(plan.Settled, []model.LineKey{key("1", "M")}) {
		t.Errorf("Settled = %v", plan.Settled)
	}
	if !reflect.DeepEqual(plan.Stale, []model.LineKey{key("9", "L")}) {
		t.Errorf("Stale = %v", plan.Stale)
	}
}

func TestPlanSync_SizesAreDistinct(t *testing.T) {
	// Same product in two sizes; editing one must not touch the other.
	server := []model.AuthLine{
		authLine("a", "1", "M", 2, 100),
		authLine("b", "1", "L", 2, 100),
	}
	edits := map[model.LineKey]int{key("1", "L"): 5}

	plan := PlanSync(server, edits)

	if len(plan.Replace) != 1 || plan.Replace[0].CartItemID != "b" {
		t.Errorf("Replace = %+v, want only line b", plan.Replace)
	}
}

func TestPlanSync_DeterministicOrder(t *testing.T) {
	server := []model.AuthLine{
		authLine("c", "3", "S", 1, 100),
		authLine("a", "1", "S", 1, 100),
		authLine("b", "2", "S", 1, 100),
	}
	edits := map[model.LineKey]int{key("3", "S"): 2, key("1", "S"): 2, key("2", "S"): 2}

	plan := PlanSync(server, edits)

	want := []model.LineKey{key("1", "S"), key("2", "S"), key("3", "S")}
	if !reflect.DeepEqual(plan.Keys(), want) {
		t.Errorf("Keys() = %v, want %v", plan.Keys(), want)
	}
}

func TestResolveKey_SizelessEdit(t *testing.T) {
	tests := []struct {
		name   string
		server []model.AuthLine
		edit   model.LineKey
		want   model.LineKey
		ok     bool
	}{
		{"exact", []model.AuthLine{authLine("a", "1", "M", 1, 1)}, key("1", "M"), key("1", "M"), true},
		{"sizeless unique", []model.AuthLine{authLine("a", "1", "M", 1, 1)}, key("1", ""), key("1", "M"), true},
		{"sizeless ambiguous", []model.AuthLine{
			authLine("a", "1", "M", 1, 1),
			authLine("b", "1", "L", 1, 1),
		}, key("1", ""), model.LineKey{}, false},
		{"missing", []model.AuthLine{authLine("a", "1", "M", 1, 1)}, key("2", "M"), model.LineKey{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveKey(tt.server, tt.edit)
			if ok != tt.ok || (ok && got != tt.want) {
				t.Errorf("ResolveKey() = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestOverlay_ChangesOnlyEditedLine(t *testing.T) {
	server := []model.AuthLine{
		authLine("a", "1", "M", 3, 10000),
		authLine("b", "2", "S", 2, 5000),
	}
	edits := map[model.LineKey]int{key("1", "M"): 1}

	lines, unsynced := Overlay(server, edits)

	if !unsynced {
		t.Error("unsynced = false, want true")
	}
	if lines[0].Quantity != 1 || lines[0].OriginalQuantity != 3 || lines[0].Total != 10000 {
		t.Errorf("edited line = %+v", lines[0])
	}

	// The untouched line must match the server line exactly.
	untouched := lines[1]
	if !reflect.DeepEqual(untouched.CartLine, server[1].CartLine) {
		t.Errorf("untouched CartLine = %+v, want %+v", untouched.CartLine, server[1].CartLine)
	}
	if untouched.CartItemID != "b" || untouched.OriginalQuantity != 2 || untouched.Total != 10000 {
		t.Errorf("untouched line = %+v", untouched)
	}
}

func TestOverlay_EqualEditIsNotUnsynced(t *testing.T) {
	server := []model.AuthLine{authLine("a", "1", "M", 3, 100)}
	_, unsynced := Overlay(server, map[model.LineKey]int{key("1", "M"): 3})
	if unsynced {
		t.Error("unsynced = true for an edit equal to the server quantity")
	}
}

func TestOverlay_IgnoresStaleEdits(t *testing.T) {
	server := []model.AuthLine{authLine("a", "1", "M", 3, 100)}
	lines, unsynced := Overlay(server, map[model.LineKey]int{key("7", "M"): 9})
	if unsynced || len(lines) != 1 || lines[0].Quantity != 3 {
		t.Errorf("Overlay = %+v, %v", lines, unsynced)
	}
}

func TestSubtotal_UsesDiscountedPrice(t *testing.T) {
	lines := []model.ViewLine{
		{CartLine: model.CartLine{UnitPrice: 10000, DiscountedUnitPrice: 8000, Quantity: 2}},
		{CartLine: model.CartLine{UnitPrice: 500, Quantity: 3}},
	}
	if got := Subtotal(lines); got != 17500 {
		t.Errorf("Subtotal() = %d, want 17500", got)
	}
}
