package upsert

import (
	"fmt"

	"github.com/jonathan/patchnotes/internal/types"
)

// StoreWriteError indicates the batched insert failed. The whole batch is
// considered not applied.
type StoreWriteError struct {
	Kind  types.Kind
	Count int
	Cause error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write failed for %d %s records: %v", e.Count, e.Kind, e.Cause)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Cause
}
