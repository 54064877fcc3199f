// Package query serves time-range reads across the record collections.
package query

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/patchnotes/internal/normalize"
	"github.com/jonathan/patchnotes/internal/types"
)

// AllSelector selects every collection.
const AllSelector = "all"

// Reader is the read side of the record store.
type Reader interface {
	FindByDateRange(ctx context.Context, kind types.Kind, from, to time.Time) ([]types.Record, error)
	FindByIDs(ctx context.Context, kind types.Kind, ids []uuid.UUID) ([]types.Record, error)
}

// Syncer brings the store up to date before a read.
type Syncer interface {
	SyncIfStale(ctx context.Context) error
}

// SyncerFunc adapts a function to Syncer.
type SyncerFunc func(ctx context.Context) error

// SyncIfStale implements Syncer.
func (f SyncerFunc) SyncIfStale(ctx context.Context) error { return f(ctx) }

// Service answers read requests. When a Syncer is set, every read first asks
// it to refresh the store; a failed refresh is logged and the read proceeds
// against what is stored.
type Service struct {
	reader Reader
	syncer Syncer
}

// NewService creates a Service. syncer may be nil.
func NewService(reader Reader, syncer Syncer) *Service {
	return &Service{reader: reader, syncer: syncer}
}

// ParseSelector turns the wire form ("all", "" or a comma-separated list of
// selector names) into kinds. Duplicates and empty elements collapse; unknown
// names fail with a ValidationError naming the value.
func ParseSelector(s string) ([]types.Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == AllSelector {
		return types.AllKinds(), nil
	}
	var kinds []types.Kind
	seen := make(map[types.Kind]bool)
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == AllSelector {
			return types.AllKinds(), nil
		}
		kind, ok := types.KindBySelector(name)
		if !ok {
			return nil, &ValidationError{
				Field:   "collection",
				Value:   name,
				Message: fmt.Sprintf("must be %q or one of %s", AllSelector, strings.Join(types.Selectors(), ", ")),
			}
		}
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return types.AllKinds(), nil
	}
	return kinds, nil
}

// QueryRange returns the records of the selected collections whose date
// field lies in [from, to], keyed by selector name. Every selected key is
// present, possibly with an empty list.
func (s *Service) QueryRange(ctx context.Context, selector string, from, to time.Time) (map[string][]types.Record, error) {
	kinds, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	return s.QueryKinds(ctx, kinds, from, to)
}

// QueryKinds is QueryRange for already parsed kinds.
func (s *Service) QueryKinds(ctx context.Context, kinds []types.Kind, from, to time.Time) (map[string][]types.Record, error) {
	if to.Before(from) {
		return nil, &ValidationError{Field: "range", Message: "end is before start"}
	}
	s.refresh(ctx)

	results := make([][]types.Record, len(kinds))
	g, gCtx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			records, err := s.reader.FindByDateRange(gCtx, kind, from.UTC(), to.UTC())
			if err != nil {
				return fmt.Errorf("failed to query %s: %w", kind, err)
			}
			results[i] = normalize.All(records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]types.Record, len(kinds))
	for i, kind := range kinds {
		if results[i] == nil {
			results[i] = []types.Record{}
		}
		out[kind.String()] = results[i]
	}
	return out, nil
}

// Latest returns records dated within the last days days, inclusive of today.
func (s *Service) Latest(ctx context.Context, selector string, days int, now time.Time) (map[string][]types.Record, error) {
	if days < 1 {
		return nil, &ValidationError{Field: "days", Value: fmt.Sprint(days), Message: "must be at least 1"}
	}
	end := EndOfDay(now)
	start := StartOfDay(now).AddDate(0, 0, -(days - 1))
	return s.QueryRange(ctx, selector, start, end)
}

// ByIDs returns the stored records of kind with the given ids.
func (s *Service) ByIDs(ctx context.Context, kind types.Kind, ids []uuid.UUID) ([]types.Record, error) {
	if len(ids) == 0 {
		return []types.Record{}, nil
	}
	records, err := s.reader.FindByIDs(ctx, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s by id: %w", kind, err)
	}
	return normalize.All(records), nil
}

// Bookmarked resolves bookmarks to stored records grouped by bookmark type.
// Every bookmark type is present in the result.
func (s *Service) Bookmarked(ctx context.Context, bookmarks types.Bookmarks) (map[string][]types.Record, error) {
	grouped := bookmarks.ByKind()
	out := make(map[string][]types.Record, len(types.AllKinds()))
	for _, kind := range types.AllKinds() {
		records, err := s.ByIDs(ctx, kind, grouped[kind])
		if err != nil {
			return nil, err
		}
		out[kind.Info().BookmarkType] = records
	}
	return out, nil
}

func (s *Service) refresh(ctx context.Context) {
	if s.syncer == nil {
		return
	}
	if err := s.syncer.SyncIfStale(ctx); err != nil {
		log.Printf("[query] warning: sync before read failed, serving stored data: %v", err)
	}
}

// StartOfDay returns midnight UTC of t's UTC date.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of t's UTC date.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
