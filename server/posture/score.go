package posture

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

// Debt expresses outstanding remediation work as estimated hours plus a
// human-readable rendering.
type Debt struct {
	Hours     float64 `json:"hours"`
	Humanized string  `json:"humanized"`
}

const (
	workdayHours  = 8
	workweekHours = 40
)

// PostureScore computes the composite posture report for the filtered
// population: base compliance percentage, maturity level, coverage and
// per-framework alignment scores. Framework scores are the base times the
// configured multiplier and intentionally not clamped.
func (e *Engine) PostureScore(ctx context.Context, filter soteria.ResultFilter, cfg soteria.ScoringConfig) (*soteria.PostureReport, error) {
	counts, err := e.ds.ComplianceCounts(ctx, filter)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "compliance counts for posture")
	}
	coverage, err := e.ds.CoverageStats(ctx, filter)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "coverage stats for posture")
	}

	totalResults := counts.Passing + counts.Failing + counts.Errored
	base := 0.0
	if totalResults > 0 {
		base = float64(counts.Passing) / float64(totalResults) * 100
	}

	coveragePct := 0.0
	if coverage.PoliciesTotal > 0 {
		coveragePct = float64(coverage.PoliciesWithPass) / float64(coverage.PoliciesTotal) * 100
	}

	return &soteria.PostureReport{
		PostureScore:       base,
		MaturityLevel:      maturityLevel(base),
		ComplianceCoverage: coveragePct,
		Frameworks: []soteria.FrameworkScore{
			{Name: "CIS", Score: base * cfg.FrameworkCISMultiplier},
			{Name: "NIST CSF", Score: base * cfg.FrameworkNISTMultiplier},
			{Name: "ISO 27001", Score: base * cfg.FrameworkISOMultiplier},
		},
	}, nil
}

func maturityLevel(score float64) int {
	switch {
	case score > 90:
		return 5
	case score > 75:
		return 4
	case score > 50:
		return 3
	case score > 25:
		return 2
	default:
		return 1
	}
}

// SecurityDebt estimates outstanding remediation work from the current
// failing result count.
func (e *Engine) SecurityDebt(ctx context.Context, filter soteria.ResultFilter, cfg soteria.ScoringConfig) (*Debt, error) {
	counts, err := e.ds.ComplianceCounts(ctx, filter)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "compliance counts for debt")
	}
	hours := float64(counts.Failing) * cfg.SecurityDebtHoursPerIssue
	return &Debt{Hours: hours, Humanized: humanizeDebt(hours)}, nil
}

func humanizeDebt(hours float64) string {
	switch {
	case hours < 1:
		return "<1h"
	case hours < workdayHours:
		return fmt.Sprintf("%.0fh", math.Round(hours))
	case hours < workweekHours:
		return fmt.Sprintf("%.1fd", hours/workdayHours)
	default:
		return fmt.Sprintf("%.1fw", hours/workweekHours)
	}
}

// RiskExposure scales the failing result count by the configured
// multiplier. The value is a linear index, not a percentage, and has no
// upper bound.
func (e *Engine) RiskExposure(ctx context.Context, filter soteria.ResultFilter, cfg soteria.ScoringConfig) (float64, error) {
	counts, err := e.ds.ComplianceCounts(ctx, filter)
	if err != nil {
		return 0, ctxerr.Wrap(ctx, err, "compliance counts for exposure")
	}
	return float64(counts.Failing) * cfg.RiskExposureMultiplier, nil
}

// TeamLeaderboard ranks every team partition, the no-team partition
// included, by current compliance percentage. Ties break on team id
// ascending with the no-team partition last. Each entry carries the team's
// snapshot trend when enough history exists.
func (e *Engine) TeamLeaderboard(ctx context.Context, filter soteria.ResultFilter) ([]soteria.LeaderboardEntry, error) {
	scores, err := e.ds.TeamScores(ctx, filter)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "team scores")
	}

	entries := make([]soteria.LeaderboardEntry, 0, len(scores))
	for _, s := range scores {
		score := 0.0
		if total := s.Pass + s.Fail; total > 0 {
			score = float64(s.Pass) / float64(total) * 100
		}
		name := "No team"
		if s.TeamName != nil && *s.TeamName != "" {
			name = *s.TeamName
		}

		entry := soteria.LeaderboardEntry{
			TeamID: s.TeamID,
			Name:   name,
			Score:  score,
			Hosts:  s.Hosts,
		}

		trend, err := e.trends.TrendDelta(ctx, s.TeamID, e.trendWindow)
		if err != nil {
			return nil, ctxerr.Wrap(ctx, err, "leaderboard trend")
		}
		if !trend.InsufficientData {
			entry.Trend = trend.Direction
			entry.Delta = trend.Delta
			entry.TrendKnown = true
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		a, b := entries[i].TeamID, entries[j].TeamID
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
