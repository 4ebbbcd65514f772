package guestcart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"storefront/internal/kvstore"
	"storefront/internal/model"
)

func testStore() (*Store, *kvstore.Memory) {
	kv := kvstore.NewMemory()
	s := New(kv, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, kv
}

func line(productID, size string, qty int) model.CartLine {
	return model.CartLine{
		ProductID:    productID,
		ProductName:  "Tee " + productID,
		UnitPrice:    10000,
		Quantity:     qty,
		SelectedSize: size,
		Images:       []string{"tee.jpg"},
	}
}

func TestLoad_Empty(t *testing.T) {
	s, _ := testStore()
	lines := s.Load(context.Background())
	if lines == nil || len(lines) != 0 {
		t.Errorf("Load() = %v, want empty non-nil slice", lines)
	}
}

func TestAddOrIncrement(t *testing.T) {
	s, _ := testStore()
	ctx := context.Background()

	s.AddOrIncrement(ctx, line("5", "M", 2))
	s.AddOrIncrement(ctx, line("5", "L", 1))
	s.AddOrIncrement(ctx, line("5", "M", 3))

	lines := s.Load(ctx)
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if lines[0].Quantity != 5 {
		t.Errorf("5:M quantity = %d, want 5", lines[0].Quantity)
	}
	if lines[1].Quantity != 1 {
		t.Errorf("5:L quantity = %d, want 1", lines[1].Quantity)
	}
	if !lines[0].UpdatedAt.Equal(s.now()) {
		t.Errorf("UpdatedAt = %v, want %v", lines[0].UpdatedAt, s.now())
	}
}

func TestAddOrIncrement_ClampsQuantity(t *testing.T) {
	s, _ := testStore()
	ctx := context.Background()

	s.AddOrIncrement(ctx, line("1", "S", 0))
	if got := s.Load(ctx)[0].Quantity; got != 1 {
		t.Errorf("quantity = %d, want 1", got)
	}
}

func TestUpdateQuantity(t *testing.T) {
	s, _ := testStore()
	ctx := context.Background()
	s.AddOrIncrement(ctx, line("1", "S", 4))

	tests := []struct {
		name string
		key  model.LineKey
		qty  int
		want int
		ok   bool
	}{
		{"set", model.LineKey{ProductID: "1", Size: "S"}, 2, 2, true},
		{"clamped", model.LineKey{ProductID: "1", Size: "S"}, -5, 1, true},
		{"missing size", model.LineKey{ProductID: "1", Size: "M"}, 3, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ok := s.UpdateQuantity(ctx, tt.key, tt.qty); ok != tt.ok {
				t.Errorf("UpdateQuantity() = %v, want %v", ok, tt.ok)
			}
			if got := s.Load(ctx)[0].Quantity; got != tt.want {
				t.Errorf("quantity = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRemoveAndClear(t *testing.T) {
	s, kv := testStore()
	ctx := context.Background()
	s.AddOrIncrement(ctx, line("1", "S", 1))
	s.AddOrIncrement(ctx, line("2", "S", 1))

	s.Remove(ctx, model.LineKey{ProductID: "1", Size: "S"})
	lines := s.Load(ctx)
	if len(lines) != 1 || lines[0].ProductID != "2" {
		t.Errorf("after Remove lines = %+v", lines)
	}

	s.Remove(ctx, model.LineKey{ProductID: "2", Size: "S"})
	if _, ok, _ := kv.Get(ctx, kvstore.KeyGuestCart); ok {
		t.Error("removing the last line should delete the record")
	}

	s.AddOrIncrement(ctx, line("3", "S", 1))
	s.Clear(ctx)
	if len(s.Load(ctx)) != 0 {
		t.Error("Clear should empty the cart")
	}
}

func TestKeep(t *testing.T) {
	s, _ := testStore()
	ctx := context.Background()
	s.AddOrIncrement(ctx, line("1", "S", 1))
	s.AddOrIncrement(ctx, line("2", "S", 2))
	s.AddOrIncrement(ctx, line("3", "S", 3))

	s.Keep(ctx, []model.LineKey{{ProductID: "2", Size: "S"}})

	lines := s.Load(ctx)
	if len(lines) != 1 || lines[0].ProductID != "2" || lines[0].Quantity != 2 {
		t.Errorf("Keep left %+v", lines)
	}
}

func TestLoad_LegacyTransientID(t *testing.T) {
	s, kv := testStore()
	ctx := context.Background()
	legacy := `[
		{"id": 5, "tempId": "tmp-abc", "name": "Linen Shirt", "price": "499.50", "quantity": 2, "size": "M", "images": ["a.jpg"]},
		{"productId": "7", "tempId": "tmp-def", "productName": "Cap", "unitPrice": 25000, "quantity": 1, "selectedSize": "", "images": []}
	]`
	kv.Set(ctx, kvstore.KeyGuestCart, []byte(legacy))

	lines := s.Load(ctx)
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}

	got := lines[0]
	if got.ProductID != "5" || got.ProductName != "Linen Shirt" || got.SelectedSize != "M" {
		t.Errorf("identity = %+v", got.CartLine)
	}
	if got.UnitPrice != 49950 {
		t.Errorf("UnitPrice = %d, want 49950", got.UnitPrice)
	}
	if lines[1].ProductID != "7" || lines[1].UnitPrice != 25000 {
		t.Errorf("second line = %+v", lines[1].CartLine)
	}

	assertRewritten(t, kv)
}

func TestLoad_LegacySingleImage(t *testing.T) {
	s, kv := testStore()
	ctx := context.Background()
	legacy := `[{"productId": 9, "productName": "Scarf", "unitPrice": 1200, "quantity": 1, "selectedSize": "F", "image": "scarf.jpg"}]`
	kv.Set(ctx, kvstore.KeyGuestCart, []byte(legacy))

	lines := s.Load(ctx)
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
	if len(lines[0].Images) != 1 || lines[0].Images[0] != "scarf.jpg" {
		t.Errorf("Images = %v, want [scarf.jpg]", lines[0].Images)
	}

	assertRewritten(t, kv)
}

func TestLoad_FoldsDuplicatesAndDropsBadEntries(t *testing.T) {
	s, kv := testStore()
	ctx := context.Background()
	legacy := `[
		{"productId": "5", "quantity": 2, "selectedSize": "M"},
		{"id": "5", "tempId": "t1", "quantity": 1, "size": "M"},
		{"tempId": "orphan", "quantity": 4},
		"not an object",
		{"productId": "6", "quantity": 0, "selectedSize": "S"}
	]`
	kv.Set(ctx, kvstore.KeyGuestCart, []byte(legacy))

	lines := s.Load(ctx)
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2: %+v", len(lines), lines)
	}
	if lines[0].Key() != (model.LineKey{ProductID: "5", Size: "M"}) || lines[0].Quantity != 3 {
		t.Errorf("folded line = %+v", lines[0].CartLine)
	}
	if lines[1].Quantity != 1 {
		t.Errorf("clamped quantity = %d, want 1", lines[1].Quantity)
	}
}

func TestLoad_UndecodableRecordIsDiscarded(t *testing.T) {
	s, kv := testStore()
	ctx := context.Background()
	kv.Set(ctx, kvstore.KeyGuestCart, []byte(`{corrupt`))

	if lines := s.Load(ctx); len(lines) != 0 {
		t.Errorf("Load() = %v, want empty", lines)
	}
	if _, ok, _ := kv.Get(ctx, kvstore.KeyGuestCart); ok {
		t.Error("corrupt record should be removed")
	}
}

func TestLoad_CanonicalRecordNotRewritten(t *testing.T) {
	s, kv := testStore()
	ctx := context.Background()
	s.AddOrIncrement(ctx, line("1", "S", 1))
	before, _, _ := kv.Get(ctx, kvstore.KeyGuestCart)

	_, rewrite := s.decode(before)
	if rewrite {
		t.Error("canonical record should not need a rewrite")
	}
}

// failingKV fails every operation.
type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk full")
}
func (failingKV) Set(context.Context, string, []byte) error { return errors.New("disk full") }
func (failingKV) Remove(context.Context, string) error      { return errors.New("disk full") }

func TestStoreErrorsAreAbsorbed(t *testing.T) {
	s := New(failingKV{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	s.AddOrIncrement(ctx, line("1", "S", 1))
	s.Remove(ctx, model.LineKey{ProductID: "1", Size: "S"})
	s.Clear(ctx)
	if lines := s.Load(ctx); len(lines) != 0 {
		t.Errorf("Load() = %v, want empty", lines)
	}
}

func assertRewritten(t *testing.T, kv *kvstore.Memory) {
	t.Helper()
	raw, ok, _ := kv.Get(context.Background(), kvstore.KeyGuestCart)
	if !ok {
		t.Fatal("record missing after upgrade")
	}
	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("rewritten record: %v", err)
	}
	for i, e := range entries {
		for _, legacy := range []string{"id", "tempId", "name", "image", "price", "size"} {
			if _, found := e[legacy]; found {
				t.Errorf("entry %d still has legacy field %q", i, legacy)
			}
		}
		if _, found := e["images"]; !found {
			t.Errorf("entry %d missing images", i)
		}
	}
}
