/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All engine error kinds in one place. Nothing in the billing computation is
  fatal: every failure is recoverable at the single-field or single-record
  granularity. Dangling references and unparseable fields are skipped and
  counted; only persistence can genuinely fail.

ERROR CATEGORIES:
  1. Input errors    - malformed periods, non-numeric values
  2. Reference errors - facts pointing at deleted apartments/meters/services
  3. Persistence errors - the record store rejecting a write

USAGE:
  Store implementations wrap their transport failures so that
  errors.Is(err, billing.ErrRevisionConflict) works across backends.
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a period literal is not a
	// zero-padded YYYY-MM (or YYYY-MM-01) month.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrNonNumericInput is returned when a user-entered reading or amount
	// fails to parse. The single field is rejected; computation for other
	// services continues.
	ErrNonNumericInput = errors.New("non-numeric input")

	// ErrMissingReference is returned when a fact points at an apartment,
	// meter, or service id that no longer exists. The engine skips such
	// rows and reports a count; it never crashes on them.
	ErrMissingReference = errors.New("missing reference")

	// ErrNoApplicableTariff marks a line whose tariff resolved to nothing.
	// The line is billed at zero and tagged untariffed so the caller can
	// warn instead of presenting a silent free charge.
	ErrNoApplicableTariff = errors.New("no applicable tariff")

	// ErrPersistenceFailure is returned when the record store rejects a
	// write for any reason other than a stale revision.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrRevisionConflict is returned when the record store detects that
	// the set changed underneath the session (stale revision token).
	// Retryable after reloading the session.
	ErrRevisionConflict = errors.New("revision conflict")

	// ErrNotFound is returned when a requested apartment or service does
	// not exist in the session.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// MissingReferenceError identifies the dangling fact.
type MissingReferenceError struct {
	Set   string // record set holding the dangling row
	RowID int
	Field string // e.g. "meter_id"
	Ref   int    // the id that no longer resolves
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("%s row %d: %s=%d does not resolve", e.Set, e.RowID, e.Field, e.Ref)
}

func (e *MissingReferenceError) Unwrap() error { return ErrMissingReference }

// RevisionConflictError carries the set name and the token the store rejected.
type RevisionConflictError struct {
	Set      string
	Revision string
}

func (e *RevisionConflictError) Error() string {
	return fmt.Sprintf("record set %q: revision %q is stale", e.Set, e.Revision)
}

func (e *RevisionConflictError) Unwrap() error { return ErrRevisionConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether the operation might succeed after the caller
// reloads the session and reapplies its changes.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRevisionConflict)
}

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrNonNumericInput)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrMissingReference)
}
