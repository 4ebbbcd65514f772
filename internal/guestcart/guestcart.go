// Package guestcart persists an unauthenticated visitor's cart.
//
// It is pure data access: no network, no stock or price validation.
// Storage failures are logged and absorbed; callers always get a usable cart.
package guestcart

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"storefront/internal/kvstore"
	"storefront/internal/model"
)

// Store reads and writes the guest cart under kvstore.KeyGuestCart.
type Store struct {
	kv     kvstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a guest cart store over a visitor-scoped key-value store.
func New(kv kvstore.Store, logger *slog.Logger) *Store {
	return &Store{kv: kv, logger: logger, now: time.Now}
}

// Load returns the guest cart in canonical form.
// Legacy entries are upgraded and the record rewritten on first read.
func (s *Store) Load(ctx context.Context) []model.GuestLine {
	raw, ok, err := s.kv.Get(ctx, kvstore.KeyGuestCart)
	if err != nil {
		s.logger.Warn("guest cart read failed", slog.String("error", err.Error()))
		return []model.GuestLine{}
	}
	if !ok {
		return []model.GuestLine{}
	}

	lines, rewrite := s.decode(raw)
	if rewrite {
		s.logger.Info("upgrading guest cart record", slog.Int("lines", len(lines)))
		s.Save(ctx, lines)
	}
	return lines
}

// decode parses a stored record. rewrite is true when the canonical encoding
// differs from what was stored (legacy fields, folded duplicates, dropped entries).
func (s *Store) decode(raw []byte) (lines []model.GuestLine, rewrite bool) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Warn("discarding undecodable guest cart", slog.String("error", err.Error()))
		return []model.GuestLine{}, true
	}

	lines = make([]model.GuestLine, 0, len(entries))
	index := make(map[model.LineKey]int, len(entries))
	for i, entry := range entries {
		var rec record
		if err := json.Unmarshal(entry, &rec); err != nil {
			s.logger.Warn("dropping guest cart entry",
				slog.Int("index", i),
				slog.String("error", err.Error()))
			continue
		}
		line, ok := rec.canonical()
		if !ok {
			s.logger.Warn("dropping guest cart entry without product id", slog.Int("index", i))
			continue
		}
		// Legacy data may hold the same (productId, size) twice.
		if j, dup := index[line.Key()]; dup {
			lines[j].Quantity += line.Quantity
			if line.UpdatedAt.After(lines[j].UpdatedAt) {
				lines[j].UpdatedAt = line.UpdatedAt
			}
			continue
		}
		index[line.Key()] = len(lines)
		lines = append(lines, line)
	}

	canonical, err := json.Marshal(lines)
	if err != nil {
		return lines, false
	}
	return lines, !bytes.Equal(bytes.TrimSpace(raw), canonical)
}

// Save replaces the guest cart. An empty cart removes the record.
func (s *Store) Save(ctx context.Context, lines []model.GuestLine) {
	if len(lines) == 0 {
		s.Clear(ctx)
		return
	}
	data, err := json.Marshal(lines)
	if err != nil {
		s.logger.Error("guest cart encode failed", slog.String("error", err.Error()))
		return
	}
	if err := s.kv.Set(ctx, kvstore.KeyGuestCart, data); err != nil {
		s.logger.Warn("guest cart write failed", slog.String("error", err.Error()))
	}
}

// AddOrIncrement adds line, or increments the quantity of the existing line
// with the same (productId, size).
func (s *Store) AddOrIncrement(ctx context.Context, line model.CartLine) {
	lines := s.Load(ctx)
	qty := model.ClampQuantity(line.Quantity)
	now := s.now()

	for i := range lines {
		if lines[i].Key() == line.Key() {
			lines[i].Quantity += qty
			lines[i].UpdatedAt = now
			s.Save(ctx, lines)
			return
		}
	}

	line.Quantity = qty
	if line.Images == nil {
		line.Images = []string{}
	}
	lines = append(lines, model.GuestLine{CartLine: line, UpdatedAt: now})
	s.Save(ctx, lines)
}

// Remove deletes the line with the given key. Missing lines are ignored.
func (s *Store) Remove(ctx context.Context, key model.LineKey) {
	lines := s.Load(ctx)
	out := lines[:0]
	for _, l := range lines {
		if l.Key() != key {
			out = append(out, l)
		}
	}
	if len(out) == len(lines) {
		return
	}
	s.Save(ctx, out)
}

// UpdateQuantity sets the quantity of a line, clamped to at least 1.
// Returns false when no such line exists.
func (s *Store) UpdateQuantity(ctx context.Context, key model.LineKey, qty int) bool {
	lines := s.Load(ctx)
	for i := range lines {
		if lines[i].Key() == key {
			lines[i].Quantity = model.ClampQuantity(qty)
			lines[i].UpdatedAt = s.now()
			s.Save(ctx, lines)
			return true
		}
	}
	return false
}

// Keep narrows the cart to the lines whose keys are listed.
func (s *Store) Keep(ctx context.Context, keys []model.LineKey) {
	keep := make(map[model.LineKey]bool, len(keys))
	for _, k := range keys {
		keep[k] = true
	}
	lines := s.Load(ctx)
	out := lines[:0]
	for _, l := range lines {
		if keep[l.Key()] {
			out = append(out, l)
		}
	}
	s.Save(ctx, out)
}

// Clear wipes the guest cart.
func (s *Store) Clear(ctx context.Context) {
	if err := s.kv.Remove(ctx, kvstore.KeyGuestCart); err != nil {
		s.logger.Warn("guest cart clear failed", slog.String("error", err.Error()))
	}
}
