package migration

import (
	"fmt"

	apperrors "github.com/jwalitptl/clinic-identity/pkg/errors"
)

// AbortError ends a batch early when the store stops answering. Processed
// counts the records handled before the failure; they stay committed.
type AbortError struct {
	Entity    string
	Processed int
	Err       error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%s backfill aborted after %d records: %v", e.Entity, e.Processed, e.Err)
}

func (e *AbortError) Unwrap() []error {
	return []error{e.Err, errUnavailable}
}

var errUnavailable = apperrors.New(apperrors.ErrUnavailable, "store unavailable")
