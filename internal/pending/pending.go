// Package pending persists unsynced quantity edits made to an authenticated cart.
//
// The cache is a diff overlay: it holds target quantities only, never prices or
// product metadata. Storage failures are logged and absorbed.
package pending

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"storefront/internal/kvstore"
	"storefront/internal/model"
)

// Edits maps a cart line to the quantity the visitor wants.
type Edits map[model.LineKey]int

// entry is the persisted shape of one edit.
type entry struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// Cache reads and writes edits under kvstore.KeyPending.
type Cache struct {
	kv     kvstore.Store
	logger *slog.Logger
}

// New creates a pending-edit cache over a visitor-scoped key-value store.
func New(kv kvstore.Store, logger *slog.Logger) *Cache {
	return &Cache{kv: kv, logger: logger}
}

// Load returns the stored edits. Never nil.
func (c *Cache) Load(ctx context.Context) Edits {
	edits := Edits{}
	raw, ok, err := c.kv.Get(ctx, kvstore.KeyPending)
	if err != nil {
		c.logger.Warn("pending edits read failed", slog.String("error", err.Error()))
		return edits
	}
	if !ok {
		return edits
	}

	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.logger.Warn("discarding undecodable pending edits", slog.String("error", err.Error()))
		c.Clear(ctx)
		return edits
	}
	for _, e := range entries {
		if e.ProductID == "" {
			continue
		}
		edits[model.LineKey{ProductID: e.ProductID, Size: e.Size}] = model.ClampQuantity(e.Quantity)
	}
	return edits
}

// Save replaces the stored edits. Empty edits remove the record.
func (c *Cache) Save(ctx context.Context, edits Edits) {
	if len(edits) == 0 {
		c.Clear(ctx)
		return
	}

	entries := make([]entry, 0, len(edits))
	for k, qty := range edits {
		entries = append(entries, entry{ProductID: k.ProductID, Size: k.Size, Quantity: qty})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ProductID != entries[j].ProductID {
			return entries[i].ProductID < entries[j].ProductID
		}
		return entries[i].Size < entries[j].Size
	})

	data, err := json.Marshal(entries)
	if err != nil {
		c.logger.Error("pending edits encode failed", slog.String("error", err.Error()))
		return
	}
	if err := c.kv.Set(ctx, kvstore.KeyPending, data); err != nil {
		c.logger.Warn("pending edits write failed", slog.String("error", err.Error()))
	}
}

// Put records a target quantity for one line.
func (c *Cache) Put(ctx context.Context, key model.LineKey, qty int) {
	edits := c.Load(ctx)
	edits[key] = model.ClampQuantity(qty)
	c.Save(ctx, edits)
}

// Drop forgets the edits for the given lines.
func (c *Cache) Drop(ctx context.Context, keys ...model.LineKey) {
	edits := c.Load(ctx)
	changed := false
	for _, k := range keys {
		if _, ok := edits[k]; ok {
			delete(edits, k)
			changed = true
		}
	}
	if changed {
		c.Save(ctx, edits)
	}
}

// Clear removes every edit.
func (c *Cache) Clear(ctx context.Context) {
	if err := c.kv.Remove(ctx, kvstore.KeyPending); err != nil {
		c.logger.Warn("pending edits clear failed", slog.String("error", err.Error()))
	}
}
