package soteria

import "time"

// SyncStatus is the lifecycle state of a sync run.
type SyncStatus string

const (
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncRun is the audit record of one synchronization cycle. CompletedAt is
// set exactly once, after which Status is never "running" again.
type SyncRun struct {
	ID              uint       `json:"id" db:"id"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time `json:"completed_at" db:"completed_at"`
	Status          SyncStatus `json:"status" db:"status"`
	HostsChanged    uint       `json:"hosts_changed" db:"hosts_changed"`
	PoliciesChanged uint       `json:"policies_changed" db:"policies_changed"`
	ResultsChanged  uint       `json:"results_changed" db:"results_changed"`
	DurationMillis  int64      `json:"duration_ms" db:"duration_ms"`
	ErrorMessage    *string    `json:"error_message" db:"error_message"`
}

// SyncSummary is the outcome of one sync cycle as returned to callers of
// RunSync and TriggerSync.
type SyncSummary struct {
	RunID           uint          `json:"run_id"`
	Status          SyncStatus    `json:"status"`
	HostsChanged    uint          `json:"hosts_changed"`
	PoliciesChanged uint          `json:"policies_changed"`
	ResultsChanged  uint          `json:"results_changed"`
	Duration        time.Duration `json:"duration"`
	// PartialFailures lists tolerated per-entity fetch failures that did not
	// abort the run.
	PartialFailures []string `json:"partial_failures,omitempty"`
}
