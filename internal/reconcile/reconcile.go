// Package reconcile computes the delta between the server cart and the
// visitor's pending quantity edits. Pure functions, no I/O.
package reconcile

import (
	"sort"

	"storefront/internal/model"
)

// Replacement is one line whose server quantity must change.
// There is no partial-quantity update on the server: the line is removed
// (by CartItemID) and re-added with NewQuantity.
type Replacement struct {
	Key         model.LineKey
	CartItemID  string // server line id needed for the remove call
	OldQuantity int    // server quantity (informational)
	NewQuantity int    // pending quantity
}

// SyncPlan describes what a sync must do with the pending edits.
type SyncPlan struct {
	Replace []Replacement   // edits that differ from the server
	Settled []model.LineKey // edits equal to the server quantity
	Stale   []model.LineKey // edits for lines the server no longer has
}

// IsEmpty returns true if no remote mutation is needed.
func (p *SyncPlan) IsEmpty() bool {
	return len(p.Replace) == 0
}

// Keys returns the keys of every line to replace.
func (p *SyncPlan) Keys() []model.LineKey {
	keys := make([]model.LineKey, len(p.Replace))
	for i, r := range p.Replace {
		keys[i] = r.Key
	}
	return keys
}

// PlanSync matches edits to server lines by (productId, size).
// Replacements are ordered by key so plans are deterministic.
func PlanSync(server []model.AuthLine, edits map[model.LineKey]int) *SyncPlan {
	plan := &SyncPlan{}
	byKey := indexLines(server)

	for editKey, qty := range edits {
		key, ok := ResolveKey(server, editKey)
		if !ok {
			plan.Stale = append(plan.Stale, editKey)
			continue
		}
		line := byKey[key]
		if line.Quantity == qty {
			plan.Settled = append(plan.Settled, editKey)
			continue
		}
		plan.Replace = append(plan.Replace, Replacement{
			Key:         key,
			CartItemID:  line.CartItemID,
			OldQuantity: line.Quantity,
			NewQuantity: qty,
		})
	}

	sort.Slice(plan.Replace, func(i, j int) bool { return less(plan.Replace[i].Key, plan.Replace[j].Key) })
	sortKeys(plan.Settled)
	sortKeys(plan.Stale)
	return plan
}

// Overlay applies edits on top of the server lines. Only lines with an edit
// change; every other line is copied unchanged from the server.
// unsynced is true iff some overlaid quantity differs from the server's.
func Overlay(server []model.AuthLine, edits map[model.LineKey]int) (lines []model.ViewLine, unsynced bool) {
	resolved := make(map[model.LineKey]int, len(edits))
	for editKey, qty := range edits {
		if key, ok := ResolveKey(server, editKey); ok {
			resolved[key] = qty
		}
	}

	lines = make([]model.ViewLine, 0, len(server))
	for _, s := range server {
		view := model.ViewLine{
			CartLine:         s.CartLine,
			CartItemID:       s.CartItemID,
			OriginalQuantity: s.Quantity,
		}
		if qty, ok := resolved[s.Key()]; ok {
			view.Quantity = qty
			if qty != s.Quantity {
				unsynced = true
			}
		}
		view.Total = view.LineTotal()
		lines = append(lines, view)
	}
	return lines, unsynced
}

// ResolveKey finds the server line an edit refers to.
// Edits recorded without a size (older records keyed by product only) match
// the product's line when exactly one exists.
func ResolveKey(server []model.AuthLine, key model.LineKey) (model.LineKey, bool) {
	var match model.LineKey
	candidates := 0
	for _, s := range server {
		if s.Key() == key {
			return key, true
		}
		if key.Size == "" && s.ProductID == key.ProductID {
			match = s.Key()
			candidates++
		}
	}
	return match, candidates == 1
}

// Subtotal is Σ effective unit price × quantity.
func Subtotal(lines []model.ViewLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.LineTotal()
	}
	return total
}

func indexLines(lines []model.AuthLine) map[model.LineKey]model.AuthLine {
	m := make(map[model.LineKey]model.AuthLine, len(lines))
	for _, l := range lines {
		m[l.Key()] = l
	}
	return m
}

func less(a, b model.LineKey) bool {
	if a.ProductID != b.ProductID {
		return a.ProductID < b.ProductID
	}
	return a.Size < b.Size
}

func sortKeys(keys []model.LineKey) {
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
}
