package soteria

import (
	"context"
	"time"
)

// Datastore combines the write surface used by the sync controller and
// snapshot recorder with the read surface used by the aggregation engine.
// Only the sync side mutates state; every aggregate method is read-only.
type Datastore interface {
	// Teams

	ListTeams(ctx context.Context) ([]*Team, error)
	// ApplyTeamChanges upserts and deletes teams in one transaction. Hosts
	// referencing a deleted team have their team reference nulled out.
	ApplyTeamChanges(ctx context.Context, upserts []*Team, deleteIDs []uint) error

	// Hosts

	ListHosts(ctx context.Context) ([]*Host, error)
	// ApplyHostChanges upserts and deletes hosts in one transaction.
	// Deleting a host cascades to its results, history and label rows.
	ApplyHostChanges(ctx context.Context, upserts []*Host, deleteIDs []uint) error

	// Labels

	ListLabels(ctx context.Context) ([]*Label, error)
	ApplyLabelChanges(ctx context.Context, upserts []*Label, deleteIDs []uint) error
	// ReplaceHostLabels replaces the full label set of one host.
	ReplaceHostLabels(ctx context.Context, hostID uint, labelIDs []uint) error
	// HostLabelIDs returns the current label ids per host, so the sync
	// controller can skip hosts whose label set did not change.
	HostLabelIDs(ctx context.Context) (map[uint][]uint, error)

	// Policies

	ListPolicies(ctx context.Context) ([]*Policy, error)
	ApplyPolicyChanges(ctx context.Context, upserts []*Policy, deleteIDs []uint) error

	// Policy results

	// ApplyPolicyResults upserts current-state rows and appends a history
	// row for each (policy, host) pair whose status differs from the last
	// known status. The comparison and the writes happen in one
	// transaction. Returns the number of results whose status changed.
	ApplyPolicyResults(ctx context.Context, results []*PolicyResult) (changed uint, err error)

	// Sync runs

	NewSyncRun(ctx context.Context, startedAt time.Time) (*SyncRun, error)
	// SaveSyncRun finalizes a run: completion time, status, change counts,
	// duration and error text.
	SaveSyncRun(ctx context.Context, run *SyncRun) error
	LatestSyncRun(ctx context.Context) (*SyncRun, error)

	// Snapshots

	// SnapshotStats aggregates current policy results per team, including
	// the no-team partition.
	SnapshotStats(ctx context.Context) ([]*SnapshotStats, error)
	// SaveComplianceSnapshot upserts on (date, team).
	SaveComplianceSnapshot(ctx context.Context, snap *ComplianceSnapshot) error
	// ListComplianceSnapshots returns snapshots for a team (nil for the
	// no-team partition) taken at or after since, most recent first.
	ListComplianceSnapshots(ctx context.Context, teamID *uint, since time.Time) ([]*ComplianceSnapshot, error)

	// Read-side aggregates

	ComplianceCounts(ctx context.Context, filter ResultFilter) (*ComplianceCounts, error)
	ControlResultStats(ctx context.Context, filter ResultFilter) ([]*ControlStats, error)
	TeamScores(ctx context.Context, filter ResultFilter) ([]*TeamScore, error)
	CoverageStats(ctx context.Context, filter ResultFilter) (*CoverageStats, error)

	// Filter vocabulary

	TeamNames(ctx context.Context) ([]string, error)
	Platforms(ctx context.Context) ([]string, error)
	LabelNames(ctx context.Context) ([]string, error)
	OSVersions(ctx context.Context) (map[string][]string, error)

	// Config settings

	ConfigValues(ctx context.Context) (map[string]string, error)
	SetConfigValue(ctx context.Context, key, value string) error
}
