package sources

import (
	"context"
	"iter"
)

// FetchFunc retrieves the page addressed by cursor.
type FetchFunc[C, P any] func(ctx context.Context, cursor C) (P, error)

// NextFunc derives the cursor of the page after page, or reports false when
// the upstream signalled there is nothing further.
type NextFunc[C, P any] func(cursor C, page P) (C, bool)

// Pages returns a lazy sequence of pages beginning at start. The sequence
// ends when next reports false, when the consumer stops, or after the first
// error, which is yielded once. Ranging over it again starts over from start.
func Pages[C, P any](ctx context.Context, start C, fetch FetchFunc[C, P], next NextFunc[C, P]) iter.Seq2[P, error] {
	return func(yield func(P, error) bool) {
		cursor := start
		for {
			if err := ctx.Err(); err != nil {
				var zero P
				yield(zero, err)
				return
			}
			page, err := fetch(ctx, cursor)
			if err != nil {
				var zero P
				yield(zero, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			nextCursor, ok := next(cursor, page)
			if !ok {
				return
			}
			cursor = nextCursor
		}
	}
}

// Collect walks every page and concatenates the items extracted from each.
func Collect[C, P, T any](ctx context.Context, start C, fetch FetchFunc[C, P], next NextFunc[C, P], items func(P) []T) ([]T, error) {
	var all []T
	for page, err := range Pages(ctx, start, fetch, next) {
		if err != nil {
			return nil, err
		}
		all = append(all, items(page)...)
	}
	return all, nil
}
