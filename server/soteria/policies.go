package soteria

import "time"

// Policy severities as recorded upstream. Failures of critical and high
// severity policies count toward a snapshot's critical-failure total.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// CriticalSeverities is the fixed set of severities treated as critical for
// snapshot accounting.
var CriticalSeverities = map[string]bool{
	SeverityCritical: true,
	SeverityHigh:     true,
}

// Policy is a single compliance check (CIS control) evaluated per host.
// Policies are static reference data refreshed wholesale each sync cycle.
type Policy struct {
	ID          uint    `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	CISControl  *string `json:"cis_control" db:"cis_control"`
	Description string  `json:"description" db:"description"`
	Resolution  string  `json:"resolution" db:"resolution"`
	Query       string  `json:"query" db:"query"`
	Category    string  `json:"category" db:"category"`
	Severity    string  `json:"severity" db:"severity"`
	Platform    string  `json:"platform" db:"platform"`
	TeamID      *uint   `json:"team_id" db:"team_id"`
}

// Changed reports whether the remote copy of the policy differs from p in
// any synced field.
func (p *Policy) Changed(remote *Policy) bool {
	if remote == nil {
		return true
	}
	if p.Name != remote.Name ||
		p.Description != remote.Description ||
		p.Resolution != remote.Resolution ||
		p.Query != remote.Query ||
		p.Category != remote.Category ||
		p.Severity != remote.Severity ||
		p.Platform != remote.Platform {
		return true
	}
	if (p.CISControl == nil) != (remote.CISControl == nil) {
		return true
	}
	if p.CISControl != nil && *p.CISControl != *remote.CISControl {
		return true
	}
	return false
}

// ResultStatus is the outcome of evaluating a policy on a host.
type ResultStatus string

const (
	ResultPass  ResultStatus = "pass"
	ResultFail  ResultStatus = "fail"
	ResultError ResultStatus = "error"
)

// PolicyResult is the current evaluation state of one policy on one host.
// At most one row exists per (policy, host) pair.
type PolicyResult struct {
	PolicyID  uint         `json:"policy_id" db:"policy_id"`
	HostID    uint         `json:"host_id" db:"host_id"`
	Status    ResultStatus `json:"status" db:"status"`
	CheckedAt time.Time    `json:"checked_at" db:"checked_at"`
}

// ResultKey identifies a (policy, host) pair.
type ResultKey struct {
	PolicyID uint
	HostID   uint
}

// Key returns the composite identifier for the result.
func (r *PolicyResult) Key() ResultKey {
	return ResultKey{PolicyID: r.PolicyID, HostID: r.HostID}
}

// PolicyResultHistory is one row of the append-only status transition log.
// Rows are inserted only when a result's status differs from the last known
// status for the pair, never updated.
type PolicyResultHistory struct {
	ID        uint         `json:"id" db:"id"`
	PolicyID  uint         `json:"policy_id" db:"policy_id"`
	HostID    uint         `json:"host_id" db:"host_id"`
	Status    ResultStatus `json:"status" db:"status"`
	CheckedAt time.Time    `json:"checked_at" db:"checked_at"`
}
