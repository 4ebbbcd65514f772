// Package batch runs a set of independent calls concurrently and classifies
// the outcome as all-ok, partial or all-failed. Every item result is kept.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Outcome classifies a finished batch.
type Outcome string

const (
	AllOK     Outcome = "all_ok"
	Partial   Outcome = "partial"
	AllFailed Outcome = "all_failed"
)

// Result is the outcome of one item.
type Result[T any] struct {
	Item T
	Err  error
}

// Report collects every item result in input order.
type Report[T any] struct {
	Results []Result[T]
}

// Outcome classifies the report. An empty batch is AllOK.
func (r Report[T]) Outcome() Outcome {
	failed := len(r.Failed())
	switch {
	case failed == 0:
		return AllOK
	case failed == len(r.Results):
		return AllFailed
	default:
		return Partial
	}
}

// OK reports whether every item succeeded.
func (r Report[T]) OK() bool {
	return r.Outcome() == AllOK
}

// Failed returns the items whose call returned an error.
func (r Report[T]) Failed() []Result[T] {
	var out []Result[T]
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Succeeded returns the items whose call returned nil.
func (r Report[T]) Succeeded() []T {
	var out []T
	for _, res := range r.Results {
		if res.Err == nil {
			out = append(out, res.Item)
		}
	}
	return out
}

// Run calls fn for every item with at most limit calls in flight (limit <= 0
// means unbounded). A failing item never cancels the others: fn errors are
// recorded, not propagated through the group.
func Run[T any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) error) Report[T] {
	results := make([]Result[T], len(items))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			results[i] = Result[T]{Item: item, Err: fn(ctx, item)}
			return nil
		})
	}
	g.Wait()

	return Report[T]{Results: results}
}
