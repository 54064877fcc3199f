// Package sources wraps the three upstream publication APIs. Each adapter
// walks every page of a time window and returns flat records ready for date
// normalization.
package sources

import (
	"context"
	"slices"
	"time"

	"github.com/jonathan/patchnotes/internal/types"
)

// Adapter fetches the records of the kinds it serves for a time window.
type Adapter interface {
	// Name identifies the upstream in logs and errors.
	Name() string
	// Kinds lists the record kinds this adapter produces.
	Kinds() []types.Kind
	// FetchWindow returns every record of kind published in [from, to].
	FetchWindow(ctx context.Context, kind types.Kind, from, to time.Time) ([]types.Record, error)
}

// supports reports whether kind is served by a, returning an
// UnsupportedKindError otherwise.
func supports(a Adapter, kind types.Kind) error {
	if !slices.Contains(a.Kinds(), kind) {
		return &types.UnsupportedKindError{Value: a.Name() + ":" + kind.String()}
	}
	return nil
}

// Pair is one adapter call the scheduler makes per cycle.
type Pair struct {
	Adapter Adapter
	Kind    types.Kind
}

// Pairs expands adapters into one Pair per served kind.
func Pairs(adapters ...Adapter) []Pair {
	var pairs []Pair
	for _, a := range adapters {
		for _, k := range a.Kinds() {
			pairs = append(pairs, Pair{Adapter: a, Kind: k})
		}
	}
	return pairs
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05Z"
)
