package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/patchnotes/internal/types"
)

// PairFailure is the error of one (adapter, kind) call within a cycle.
type PairFailure struct {
	Source string
	Kind   types.Kind
	Err    error
}

// CycleError reports a cycle in which at least one pair failed. The
// checkpoint was not advanced.
type CycleError struct {
	From     time.Time
	To       time.Time
	Failures []PairFailure
}

func (e *CycleError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("sync cycle %s..%s failed for %d of its calls:",
		e.From.Format(time.RFC3339), e.To.Format(time.RFC3339), len(e.Failures)))
	for _, f := range e.Failures {
		sb.WriteString(fmt.Sprintf(" [%s %s: %v]", f.Source, f.Kind, f.Err))
	}
	return sb.String()
}

// Unwrap exposes every pair error to errors.Is and errors.As.
func (e *CycleError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
