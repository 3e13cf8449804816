package carrier

import (
	"context"
	"fmt"
	"iter"
)

// DefaultPageSize is the page size requested from carrier directories.
const DefaultPageSize = 100

// maxPages bounds a single sequence against an upstream that never runs dry.
const maxPages = 10000

// PageFunc fetches one 1-based page holding at most limit records.
type PageFunc[T any] func(ctx context.Context, page, limit int) ([]T, error)

// Paginate turns a page fetcher into a lazy record sequence.
//
// A page is requested only when the previous one has been consumed. The
// sequence ends after an empty page or a page shorter than limit, so the
// upstream is never asked for a page past the last one. Fetch errors are
// yielded once and end the sequence. Ranging over the result again starts
// from page 1.
func Paginate[T any](ctx context.Context, carrierName string, limit int, fetch PageFunc[T]) iter.Seq2[T, error] {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return func(yield func(T, error) bool) {
		var zero T
		for page := 1; ; page++ {
			if page > maxPages {
				yield(zero, NewCarrierError(carrierName, CodeUpstreamFailed,
					fmt.Sprintf("pagination exceeded %d pages", maxPages)))
				return
			}
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}

			items, err := fetch(ctx, page, limit)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if len(items) < limit {
				return
			}
		}
	}
}

// Empty returns a sequence that yields nothing.
func Empty[T any]() iter.Seq2[T, error] {
	return func(func(T, error) bool) {}
}
