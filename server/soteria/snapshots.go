package soteria

import "time"

// ComplianceSnapshot is an immutable, dated per-team compliance aggregate.
// A nil TeamID is the partition of hosts assigned to no team. One row exists
// per (date, team); re-recording the same date overwrites.
type ComplianceSnapshot struct {
	SnapshotDate     time.Time `json:"snapshot_date" db:"snapshot_date"`
	TeamID           *uint     `json:"team_id" db:"team_id"`
	ComplianceScore  float64   `json:"compliance_score" db:"compliance_score"`
	CriticalFailures uint      `json:"critical_failures" db:"critical_failures"`
	PassingHosts     uint      `json:"passing_hosts" db:"passing_hosts"`
}

// TrendDirection tags a trend delta for display.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// TrendDelta is a signed score change between the two most recent snapshots
// inside a lookback window. When fewer than two snapshots exist in the
// window, InsufficientData is set and Delta/Direction carry no meaning;
// callers must treat that as a distinct case, not a zero delta.
type TrendDelta struct {
	Delta            float64        `json:"delta"`
	Direction        TrendDirection `json:"direction"`
	InsufficientData bool           `json:"insufficient_data"`
}

// SnapshotStats is the per-team aggregate computed from current policy
// results when a snapshot is recorded. A nil TeamID is the no-team partition.
type SnapshotStats struct {
	TeamID           *uint `db:"team_id"`
	TotalResults     uint  `db:"total_results"`
	PassingResults   uint  `db:"passing_results"`
	CriticalFailures uint  `db:"critical_failures"`
	PassingHosts     uint  `db:"passing_hosts"`
}
