package posture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soteriadm/soteria/server/mapping"
	"github.com/soteriadm/soteria/server/mock"
	"github.com/soteriadm/soteria/server/ptr"
	"github.com/soteriadm/soteria/server/soteria"
)

type staticTrend struct {
	delta *soteria.TrendDelta
}

func (s staticTrend) TrendDelta(ctx context.Context, teamID *uint, window time.Duration) (*soteria.TrendDelta, error) {
	return s.delta, nil
}

func testTable(t *testing.T) *mapping.Table {
	t.Helper()
	tbl, err := mapping.Load()
	require.NoError(t, err)
	return tbl
}

func testEngine(t *testing.T, ds soteria.Datastore) *Engine {
	t.Helper()
	return NewEngine(ds, testTable(t), staticTrend{&soteria.TrendDelta{InsufficientData: true}}, 14*24*time.Hour, nil)
}

func TestRiskLevelFor(t *testing.T) {
	cases := []struct {
		name    string
		pct     float64
		hosts   uint
		results uint
		want    soteria.RiskLevel
	}{
		{"no hosts", 0, 0, 0, soteria.RiskUnavailable},
		{"hosts without results", 0, 5, 0, soteria.RiskHigh},
		{"below fifty", 49.9, 5, 100, soteria.RiskCritical},
		{"fifty boundary", 50, 5, 100, soteria.RiskHigh},
		{"below seventy", 69.9, 5, 100, soteria.RiskHigh},
		// each band includes its lower bound, so 70 opens the medium band
		{"seventy boundary", 70, 5, 100, soteria.RiskMedium},
		{"just above seventy", 70.01, 5, 100, soteria.RiskMedium},
		{"eighty", 80, 5, 100, soteria.RiskMedium},
		{"eighty-five boundary", 85, 5, 100, soteria.RiskMedium},
		{"above eighty-five", 85.1, 5, 100, soteria.RiskLow},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RiskLevelFor(tt.pct, tt.hosts, tt.results))
		})
	}
}

func TestSummary(t *testing.T) {
	ds := new(mock.Store)
	ds.ComplianceCountsFunc = func(ctx context.Context, filter soteria.ResultFilter) (*soteria.ComplianceCounts, error) {
		return &soteria.ComplianceCounts{
			TotalHosts:     10,
			CompliantHosts: 6,
			Passing:        80,
			Failing:        15,
			Errored:        5,
		}, nil
	}
	ds.ControlResultStatsFunc = func(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.ControlStats, error) {
		return []*soteria.ControlStats{
			{PolicyID: 1, Pass: 50, Fail: 0},
			{PolicyID: 2, Pass: 20, Fail: 10},
			{PolicyID: 3, Pass: 10, Fail: 5},
		}, nil
	}

	summary, err := testEngine(t, ds).Summary(context.Background(), soteria.ResultFilter{})
	require.NoError(t, err)

	assert.Equal(t, uint(10), summary.TotalDevices)
	assert.Equal(t, uint(6), summary.CompliantDevices)
	assert.Equal(t, uint(4), summary.NonCompliantDevices)
	assert.InDelta(t, 80.0, summary.CompliancePercentage, 0.001)
	assert.Equal(t, uint(2), summary.FailingPolicies)
	assert.Equal(t, soteria.RiskMedium, summary.RiskLevel)
}

func TestSummaryEmptyFleet(t *testing.T) {
	ds := new(mock.Store)
	ds.ComplianceCountsFunc = func(ctx context.Context, filter soteria.ResultFilter) (*soteria.ComplianceCounts, error) {
		return &soteria.ComplianceCounts{}, nil
	}
	ds.ControlResultStatsFunc = func(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.ControlStats, error) {
		return nil, nil
	}

	summary, err := testEngine(t, ds).Summary(context.Background(), soteria.ResultFilter{})
	require.NoError(t, err)
	assert.Equal(t, soteria.RiskUnavailable, summary.RiskLevel)
	assert.Zero(t, summary.CompliancePercentage)
}

func TestHeatmap(t *testing.T) {
	ds := new(mock.Store)
	ds.ControlResultStatsFunc = func(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.ControlStats, error) {
		return []*soteria.ControlStats{
			// both map to D3-FE / Harden and must merge into one technique
			{PolicyID: 1, CISControl: ptr.String("3.6"), Pass: 6, Fail: 2},
			{PolicyID: 2, CISControl: ptr.String("3.11"), Pass: 2, Fail: 2},
			// Model tactic, must sort before Harden
			{PolicyID: 3, CISControl: ptr.String("1.1"), Pass: 5, Fail: 5},
			// unmapped control and missing control are both dropped
			{PolicyID: 4, CISControl: ptr.String("99.99"), Pass: 1, Fail: 1},
			{PolicyID: 5, CISControl: nil, Pass: 1, Fail: 1},
		}, nil
	}

	heatmap, err := testEngine(t, ds).Heatmap(context.Background(), soteria.ResultFilter{})
	require.NoError(t, err)

	require.Len(t, heatmap.Tactics, 2)
	assert.Equal(t, "Model", heatmap.Tactics[0].Tactic)
	assert.Equal(t, "Harden", heatmap.Tactics[1].Tactic)

	require.Len(t, heatmap.Tactics[1].Techniques, 1)
	fe := heatmap.Tactics[1].Techniques[0]
	assert.Equal(t, "D3-FE", fe.TechniqueID)
	assert.Equal(t, uint(8), fe.Pass)
	assert.Equal(t, uint(4), fe.Fail)
	assert.InDelta(t, 66.667, fe.PassRate, 0.01)
}

func TestMitreMatrixTacticRateIsSimpleMean(t *testing.T) {
	ds := new(mock.Store)
	ds.ControlResultStatsFunc = func(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.ControlStats, error) {
		return []*soteria.ControlStats{
			// T1110 / Credential Access: 100 results at 50%
			{PolicyID: 1, CISControl: ptr.String("5.2"), Pass: 50, Fail: 50},
			// T1003 / Credential Access: 2 results at 100%
			{PolicyID: 2, CISControl: ptr.String("6.5"), Pass: 2, Fail: 0},
		}, nil
	}

	matrix, err := testEngine(t, ds).MitreMatrix(context.Background(), soteria.ResultFilter{})
	require.NoError(t, err)

	require.Len(t, matrix, 1)
	tactic := matrix[0]
	assert.Equal(t, "Credential Access", tactic.Tactic)
	require.Len(t, tactic.Techniques, 2)
	// techniques sort by attack id
	assert.Equal(t, "T1003", tactic.Techniques[0].AttackID)
	assert.Equal(t, "OS Credential Dumping", tactic.Techniques[0].Name)
	// mean of 50 and 100, not weighted by result volume
	assert.InDelta(t, 75.0, tactic.Rate, 0.001)
}

func TestPrioritizedRemediation(t *testing.T) {
	ds := new(mock.Store)
	ds.ControlResultStatsFunc = func(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.ControlStats, error) {
		return []*soteria.ControlStats{
			{PolicyID: 1, Name: "Ensure screen lock is enabled", Resolution: "Enable it", Pass: 4, Fail: 6},
			{PolicyID: 2, Name: "Manual review of firewall rules", Pass: 7, Fail: 3},
			{PolicyID: 3, Name: "Rotate signing keys", Pass: 9, Fail: 1},
			{PolicyID: 4, Name: "All passing", Pass: 10, Fail: 0},
			{PolicyID: 5, Name: "Set automatic updates", Pass: 4, Fail: 6},
		}, nil
	}

	items, err := testEngine(t, ds).PrioritizedRemediation(
		context.Background(), soteria.ResultFilter{}, soteria.DefaultScoringConfig())
	require.NoError(t, err)

	require.Len(t, items, 4)
	// fail count descending, policy id ascending on ties
	assert.Equal(t, uint(1), items[0].PolicyID)
	assert.Equal(t, uint(5), items[1].PolicyID)
	assert.Equal(t, uint(2), items[2].PolicyID)
	assert.Equal(t, uint(3), items[3].PolicyID)

	assert.Equal(t, soteria.ImpactHigh, items[0].Impact)
	assert.Equal(t, soteria.EffortLow, items[0].Effort)
	assert.Equal(t, soteria.ImpactMedium, items[2].Impact)
	assert.Equal(t, soteria.EffortHigh, items[2].Effort)
	assert.Equal(t, soteria.ImpactLow, items[3].Impact)
	assert.Equal(t, soteria.EffortMedium, items[3].Effort)
}

func TestClassifyEffortLowKeywordWins(t *testing.T) {
	cfg := soteria.DefaultScoringConfig()
	// matches "Ensure" and "Manual"; low precedence applies
	assert.Equal(t, soteria.EffortLow, classifyEffort("Ensure manual override is disabled", cfg))
	// case insensitive
	assert.Equal(t, soteria.EffortLow, classifyEffort("ENSURE FIREWALL ON", cfg))
	assert.Equal(t, soteria.EffortHigh, classifyEffort("Quarterly review of access", cfg))
	assert.Equal(t, soteria.EffortMedium, classifyEffort("Disable guest account", cfg))
}

func TestClassifyImpactThresholdsAreExclusive(t *testing.T) {
	cfg := soteria.DefaultScoringConfig() // high 5, medium 2
	assert.Equal(t, soteria.ImpactHigh, classifyImpact(6, cfg))
	assert.Equal(t, soteria.ImpactMedium, classifyImpact(5, cfg))
	assert.Equal(t, soteria.ImpactMedium, classifyImpact(3, cfg))
	assert.Equal(t, soteria.ImpactLow, classifyImpact(2, cfg))
	assert.Equal(t, soteria.ImpactLow, classifyImpact(1, cfg))
}

func TestMaturityLevel(t *testing.T) {
	assert.Equal(t, 5, maturityLevel(90.1))
	assert.Equal(t, 4, maturityLevel(90))
	assert.Equal(t, 4, maturityLevel(75.1))
	assert.Equal(t, 3, maturityLevel(75))
	assert.Equal(t, 3, maturityLevel(50.1))
	assert.Equal(t, 2, maturityLevel(50))
	assert.Equal(t, 2, maturityLevel(25.1))
	assert.Equal(t, 1, maturityLevel(25))
	assert.Equal(t, 1, maturityLevel(0))
}

func TestPostureScore(t *testing.T) {
	ds := new(mock.Store)
	ds.ComplianceCountsFunc = func(ctx context.Context, filter soteria.ResultFilter) (*soteria.ComplianceCounts, error) {
		return &soteria.ComplianceCounts{Passing: 80, Failing: 20}, nil
	}
	ds.CoverageStatsFunc = func(ctx context.Context, filter soteria.ResultFilter) (*soteria.CoverageStats, error) {
		return &soteria.CoverageStats{PoliciesWithPass: 9, PoliciesTotal: 12}, nil
	}

	report, err := testEngine(t, ds).PostureScore(
		context.Background(), soteria.ResultFilter{}, soteria.DefaultScoringConfig())
	require.NoError(t, err)

	assert.InDelta(t, 80.0, report.PostureScore, 0.001)
	assert.Equal(t, 4, report.MaturityLevel)
	assert.InDelta(t, 75.0, report.ComplianceCoverage, 0.001)

	require.Len(t, report.Frameworks, 3)
	assert.Equal(t, "CIS", report.Frameworks[0].Name)
	assert.InDelta(t, 76.0, report.Frameworks[0].Score, 0.001)
	assert.Equal(t, "NIST CSF", report.Frameworks[1].Name)
	assert.InDelta(t, 70.4, report.Frameworks[1].Score, 0.001)
	assert.Equal(t, "ISO 27001", report.Frameworks[2].Name)
	assert.InDelta(t, 65.6, report.Frameworks[2].Score, 0.001)
}

func TestSecurityDebtAndExposure(t *testing.T) {
	ds := new(mock.Store)
	ds.ComplianceCountsFunc = func(ctx context.Context, filter soteria.ResultFilter) (*soteria.ComplianceCounts, error) {
		return &soteria.ComplianceCounts{Failing: 30}, nil
	}

	eng := testEngine(t, ds)
	cfg := soteria.DefaultScoringConfig()

	debt, err := eng.SecurityDebt(context.Background(), soteria.ResultFilter{}, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, debt.Hours, 0.001)
	assert.Equal(t, "1.9d", debt.Humanized)

	exposure, err := eng.RiskExposure(context.Background(), soteria.ResultFilter{}, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, exposure, 0.001)
}

func TestHumanizeDebt(t *testing.T) {
	assert.Equal(t, "<1h", humanizeDebt(0.5))
	assert.Equal(t, "4h", humanizeDebt(4))
	assert.Equal(t, "2.0d", humanizeDebt(16))
	assert.Equal(t, "2.5w", humanizeDebt(100))
}

func TestTeamLeaderboard(t *testing.T) {
	ds := new(mock.Store)
	var gotFilter soteria.ResultFilter
	ds.TeamScoresFunc = func(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.TeamScore, error) {
		gotFilter = filter
		return []*soteria.TeamScore{
			{TeamID: ptr.Uint(2), TeamName: ptr.String("Servers"), Hosts: 5, Pass: 9, Fail: 1},
			{TeamID: ptr.Uint(1), TeamName: ptr.String("Workstations"), Hosts: 8, Pass: 18, Fail: 2},
			{TeamID: nil, TeamName: nil, Hosts: 3, Pass: 1, Fail: 3},
		}, nil
	}

	tbl := testTable(t)
	eng := NewEngine(ds, tbl, staticTrend{&soteria.TrendDelta{
		Delta: 2.5, Direction: soteria.TrendUp,
	}}, 14*24*time.Hour, nil)

	entries, err := eng.TeamLeaderboard(context.Background(), soteria.ResultFilter{Platform: "darwin"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// the host filter narrows the per-team scores, not just the other reports
	assert.Equal(t, "darwin", gotFilter.Platform)

	// equal scores rank by team id ascending
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "Workstations", entries[0].Name)
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, "Servers", entries[1].Name)
	assert.Equal(t, "No team", entries[2].Name)
	assert.InDelta(t, 25.0, entries[2].Score, 0.001)

	assert.True(t, entries[0].TrendKnown)
	assert.Equal(t, soteria.TrendUp, entries[0].Trend)
	assert.InDelta(t, 2.5, entries[0].Delta, 0.001)
}

func TestTeamLeaderboardTrendUnknown(t *testing.T) {
	ds := new(mock.Store)
	ds.TeamScoresFunc = func(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.TeamScore, error) {
		return []*soteria.TeamScore{
			{TeamID: ptr.Uint(1), TeamName: ptr.String("Workstations"), Hosts: 2, Pass: 4, Fail: 0},
		}, nil
	}

	entries, err := testEngine(t, ds).TeamLeaderboard(context.Background(), soteria.ResultFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].TrendKnown)
	assert.Empty(t, entries[0].Trend)
}
