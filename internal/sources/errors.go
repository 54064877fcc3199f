package sources

import (
	"fmt"

	"github.com/jonathan/patchnotes/internal/types"
)

// FetchFailure indicates one adapter call failed on a page or detail request.
// It is isolated to that call; sibling adapter calls are unaffected.
type FetchFailure struct {
	Source string
	Kind   types.Kind
	Cause  error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch failure: %s %s: %v", e.Source, e.Kind, e.Cause)
}

func (e *FetchFailure) Unwrap() error {
	return e.Cause
}
