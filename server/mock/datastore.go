// Package mock provides a function-field test double for soteria.Datastore.
package mock

import (
	"context"
	"time"

	"github.com/soteriadm/soteria/server/soteria"
)

var _ soteria.Datastore = (*Store)(nil)

type ListTeamsFunc func(ctx context.Context) ([]*soteria.Team, error)

type ApplyTeamChangesFunc func(ctx context.Context, upserts []*soteria.Team, deleteIDs []uint) error

type ListHostsFunc func(ctx context.Context) ([]*soteria.Host, error)

type ApplyHostChangesFunc func(ctx context.Context, upserts []*soteria.Host, deleteIDs []uint) error

type ListLabelsFunc func(ctx context.Context) ([]*soteria.Label, error)

type ApplyLabelChangesFunc func(ctx context.Context, upserts []*soteria.Label, deleteIDs []uint) error

type ReplaceHostLabelsFunc func(ctx context.Context, hostID uint, labelIDs []uint) error

type HostLabelIDsFunc func(ctx context.Context) (map[uint][]uint, error)

type ListPoliciesFunc func(ctx context.Context) ([]*soteria.Policy, error)

type ApplyPolicyChangesFunc func(ctx context.Context, upserts []*soteria.Policy, deleteIDs []uint) error

type ApplyPolicyResultsFunc func(ctx context.Context, results []*soteria.PolicyResult) (uint, error)

type NewSyncRunFunc func(ctx context.Context, startedAt time.Time) (*soteria.SyncRun, error)

type SaveSyncRunFunc func(ctx context.Context, run *soteria.SyncRun) error

type LatestSyncRunFunc func(ctx context.Context) (*soteria.SyncRun, error)

type SnapshotStatsFunc func(ctx context.Context) ([]*soteria.SnapshotStats, error)

type SaveComplianceSnapshotFunc func(ctx context.Context, snap *soteria.ComplianceSnapshot) error

type ListComplianceSnapshotsFunc func(ctx context.Context, teamID *uint, since time.Time) ([]*soteria.ComplianceSnapshot, error)

type ComplianceCountsFunc func(ctx context.Context, filter soteria.ResultFilter) (*soteria.ComplianceCounts, error)

type ControlResultStatsFunc func(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.ControlStats, error)

type TeamScoresFunc func(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.TeamScore, error)

type CoverageStatsFunc func(ctx context.Context, filter soteria.ResultFilter) (*soteria.CoverageStats, error)

type TeamNamesFunc func(ctx context.Context) ([]string, error)

type PlatformsFunc func(ctx context.Context) ([]string, error)

type LabelNamesFunc func(ctx context.Context) ([]string, error)

type OSVersionsFunc func(ctx context.Context) (map[string][]string, error)

type ConfigValuesFunc func(ctx context.Context) (map[string]string, error)

type SetConfigValueFunc func(ctx context.Context, key, value string) error

// Store implements soteria.Datastore by delegating each method to a settable
// function field and recording that it was invoked.
type Store struct {
	soteria.Datastore

	ListTeamsFunc        ListTeamsFunc
	ListTeamsFuncInvoked bool

	ApplyTeamChangesFunc        ApplyTeamChangesFunc
	ApplyTeamChangesFuncInvoked bool

	ListHostsFunc        ListHostsFunc
	ListHostsFuncInvoked bool

	ApplyHostChangesFunc        ApplyHostChangesFunc
	ApplyHostChangesFuncInvoked bool

	ListLabelsFunc        ListLabelsFunc
	ListLabelsFuncInvoked bool

	ApplyLabelChangesFunc        ApplyLabelChangesFunc
	ApplyLabelChangesFuncInvoked bool

	ReplaceHostLabelsFunc        ReplaceHostLabelsFunc
	ReplaceHostLabelsFuncInvoked bool

	HostLabelIDsFunc        HostLabelIDsFunc
	HostLabelIDsFuncInvoked bool

	ListPoliciesFunc        ListPoliciesFunc
	ListPoliciesFuncInvoked bool

	ApplyPolicyChangesFunc        ApplyPolicyChangesFunc
	ApplyPolicyChangesFuncInvoked bool

	ApplyPolicyResultsFunc        ApplyPolicyResultsFunc
	ApplyPolicyResultsFuncInvoked bool

	NewSyncRunFunc        NewSyncRunFunc
	NewSyncRunFuncInvoked bool

	SaveSyncRunFunc        SaveSyncRunFunc
	SaveSyncRunFuncInvoked bool

	LatestSyncRunFunc        LatestSyncRunFunc
	LatestSyncRunFuncInvoked bool

	SnapshotStatsFunc        SnapshotStatsFunc
	SnapshotStatsFuncInvoked bool

	SaveComplianceSnapshotFunc        SaveComplianceSnapshotFunc
	SaveComplianceSnapshotFuncInvoked bool

	ListComplianceSnapshotsFunc        ListComplianceSnapshotsFunc
	ListComplianceSnapshotsFuncInvoked bool

	ComplianceCountsFunc        ComplianceCountsFunc
	ComplianceCountsFuncInvoked bool

	ControlResultStatsFunc        ControlResultStatsFunc
	ControlResultStatsFuncInvoked bool

	TeamScoresFunc        TeamScoresFunc
	TeamScoresFuncInvoked bool

	CoverageStatsFunc        CoverageStatsFunc
	CoverageStatsFuncInvoked bool

	TeamNamesFunc        TeamNamesFunc
	TeamNamesFuncInvoked bool

	PlatformsFunc        PlatformsFunc
	PlatformsFuncInvoked bool

	LabelNamesFunc        LabelNamesFunc
	LabelNamesFuncInvoked bool

	OSVersionsFunc        OSVersionsFunc
	OSVersionsFuncInvoked bool

	ConfigValuesFunc        ConfigValuesFunc
	ConfigValuesFuncInvoked bool

	SetConfigValueFunc        SetConfigValueFunc
	SetConfigValueFuncInvoked bool
}

func (s *Store) ListTeams(ctx context.Context) ([]*soteria.Team, error) {
	s.ListTeamsFuncInvoked = true
	return s.ListTeamsFunc(ctx)
}

func (s *Store) ApplyTeamChanges(ctx context.Context, upserts []*soteria.Team, deleteIDs []uint) error {
	s.ApplyTeamChangesFuncInvoked = true
	return s.ApplyTeamChangesFunc(ctx, upserts, deleteIDs)
}

func (s *Store) ListHosts(ctx context.Context) ([]*soteria.Host, error) {
	s.ListHostsFuncInvoked = true
	return s.ListHostsFunc(ctx)
}

func (s *Store) ApplyHostChanges(ctx context.Context, upserts []*soteria.Host, deleteIDs []uint) error {
	s.ApplyHostChangesFuncInvoked = true
	return s.ApplyHostChangesFunc(ctx, upserts, deleteIDs)
}

func (s *Store) ListLabels(ctx context.Context) ([]*soteria.Label, error) {
	s.ListLabelsFuncInvoked = true
	return s.ListLabelsFunc(ctx)
}

func (s *Store) ApplyLabelChanges(ctx context.Context, upserts []*soteria.Label, deleteIDs []uint) error {
	s.ApplyLabelChangesFuncInvoked = true
	return s.ApplyLabelChangesFunc(ctx, upserts, deleteIDs)
}

func (s *Store) ReplaceHostLabels(ctx context.Context, hostID uint, labelIDs []uint) error {
	s.ReplaceHostLabelsFuncInvoked = true
	return s.ReplaceHostLabelsFunc(ctx, hostID, labelIDs)
}

func (s *Store) HostLabelIDs(ctx context.Context) (map[uint][]uint, error) {
	s.HostLabelIDsFuncInvoked = true
	return s.HostLabelIDsFunc(ctx)
}

func (s *Store) ListPolicies(ctx context.Context) ([]*soteria.Policy, error) {
	s.ListPoliciesFuncInvoked = true
	return s.ListPoliciesFunc(ctx)
}

func (s *Store) ApplyPolicyChanges(ctx context.Context, upserts []*soteria.Policy, deleteIDs []uint) error {
	s.ApplyPolicyChangesFuncInvoked = true
	return s.ApplyPolicyChangesFunc(ctx, upserts, deleteIDs)
}

func (s *Store) ApplyPolicyResults(ctx context.Context, results []*soteria.PolicyResult) (uint, error) {
	s.ApplyPolicyResultsFuncInvoked = true
	return s.ApplyPolicyResultsFunc(ctx, results)
}

func (s *Store) NewSyncRun(ctx context.Context, startedAt time.Time) (*soteria.SyncRun, error) {
	s.NewSyncRunFuncInvoked = true
	return s.NewSyncRunFunc(ctx, startedAt)
}

func (s *Store) SaveSyncRun(ctx context.Context, run *soteria.SyncRun) error {
	s.SaveSyncRunFuncInvoked = true
	return s.SaveSyncRunFunc(ctx, run)
}

func (s *Store) LatestSyncRun(ctx context.Context) (*soteria.SyncRun, error) {
	s.LatestSyncRunFuncInvoked = true
	return s.LatestSyncRunFunc(ctx)
}

func (s *Store) SnapshotStats(ctx context.Context) ([]*soteria.SnapshotStats, error) {
	s.SnapshotStatsFuncInvoked = true
	return s.SnapshotStatsFunc(ctx)
}

func (s *Store) SaveComplianceSnapshot(ctx context.Context, snap *soteria.ComplianceSnapshot) error {
	s.SaveComplianceSnapshotFuncInvoked = true
	return s.SaveComplianceSnapshotFunc(ctx, snap)
}

func (s *Store) ListComplianceSnapshots(ctx context.Context, teamID *uint, since time.Time) ([]*soteria.ComplianceSnapshot, error) {
	s.ListComplianceSnapshotsFuncInvoked = true
	return s.ListComplianceSnapshotsFunc(ctx, teamID, since)
}

func (s *Store) ComplianceCounts(ctx context.Context, filter soteria.ResultFilter) (*soteria.ComplianceCounts, error) {
	s.ComplianceCountsFuncInvoked = true
	return s.ComplianceCountsFunc(ctx, filter)
}

func (s *Store) ControlResultStats(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.ControlStats, error) {
	s.ControlResultStatsFuncInvoked = true
	return s.ControlResultStatsFunc(ctx, filter)
}

func (s *Store) TeamScores(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.TeamScore, error) {
	s.TeamScoresFuncInvoked = true
	return s.TeamScoresFunc(ctx, filter)
}

func (s *Store) CoverageStats(ctx context.Context, filter soteria.ResultFilter) (*soteria.CoverageStats, error) {
	s.CoverageStatsFuncInvoked = true
	return s.CoverageStatsFunc(ctx, filter)
}

func (s *Store) TeamNames(ctx context.Context) ([]string, error) {
	s.TeamNamesFuncInvoked = true
	return s.TeamNamesFunc(ctx)
}

func (s *Store) Platforms(ctx context.Context) ([]string, error) {
	s.PlatformsFuncInvoked = true
	return s.PlatformsFunc(ctx)
}

func (s *Store) LabelNames(ctx context.Context) ([]string, error) {
	s.LabelNamesFuncInvoked = true
	return s.LabelNamesFunc(ctx)
}

func (s *Store) OSVersions(ctx context.Context) (map[string][]string, error) {
	s.OSVersionsFuncInvoked = true
	return s.OSVersionsFunc(ctx)
}

func (s *Store) ConfigValues(ctx context.Context) (map[string]string, error) {
	s.ConfigValuesFuncInvoked = true
	return s.ConfigValuesFunc(ctx)
}

func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	s.SetConfigValueFuncInvoked = true
	return s.SetConfigValueFunc(ctx, key, value)
}
