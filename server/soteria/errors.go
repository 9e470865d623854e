package soteria

import (
	"errors"
	"fmt"
)

// ErrSyncAlreadyRunning is returned when a sync is triggered while another
// run is active in this process.
var ErrSyncAlreadyRunning = errors.New("a sync run is already in progress")

// TransportError wraps a remote API failure after client-side retries have
// been exhausted.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fleet api %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PartialSyncError records a tolerated per-entity fetch failure. It does not
// abort the run; it is surfaced in the run summary.
type PartialSyncError struct {
	Entity string
	Err    error
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("partial sync failure for %s: %v", e.Entity, e.Err)
}

func (e *PartialSyncError) Unwrap() error { return e.Err }

// FatalSyncError aborts a sync run. Stage names the fetch or apply phase
// that failed; prior committed entity types are left intact.
type FatalSyncError struct {
	Stage string
	Err   error
}

func (e *FatalSyncError) Error() string {
	return fmt.Sprintf("sync failed at %s: %v", e.Stage, e.Err)
}

func (e *FatalSyncError) Unwrap() error { return e.Err }

// ConfigValidationError rejects a malformed administrative config write
// before persistence; the prior value is left unchanged.
type ConfigValidationError struct {
	Key    string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Key, e.Reason)
}
