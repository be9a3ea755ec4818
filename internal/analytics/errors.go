package analytics

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks transient store failures. Callers retry: the
// scheduler at its next tick, request clients by resending.
var ErrStoreUnavailable = errors.New("store unavailable")

// ValidationError reports a malformed request. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StoreError wraps a failed store operation. It matches both
// ErrStoreUnavailable and the underlying driver error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// PartialFailureError is returned when a cycle fails after some counter
// increments were already applied but before the batch was marked
// processed. The batch is re-aggregated in full next cycle, so the Applied
// increments will be counted a second time.
type PartialFailureError struct {
	RunID   string
	Applied int
	Total   int
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("aggregation run %s failed after %d/%d counter upserts: %v", e.RunID, e.Applied, e.Total, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
