// Package posture computes the read-side compliance aggregates: summary
// KPIs, the D3FEND heatmap, the ATT&CK matrix, remediation prioritization,
// posture scoring and the team leaderboard. All computations read current
// policy results through the datastore and never mutate state.
package posture

import (
	"context"
	"time"

	kitlog "github.com/go-kit/kit/log"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/mapping"
	"github.com/soteriadm/soteria/server/soteria"
)

// TrendSource yields score deltas between recent snapshots. Implemented by
// snapshot.Recorder.
type TrendSource interface {
	TrendDelta(ctx context.Context, teamID *uint, window time.Duration) (*soteria.TrendDelta, error)
}

type Engine struct {
	ds          soteria.Datastore
	mapping     *mapping.Table
	trends      TrendSource
	trendWindow time.Duration
	logger      kitlog.Logger
}

func NewEngine(ds soteria.Datastore, tbl *mapping.Table, trends TrendSource, trendWindow time.Duration, logger kitlog.Logger) *Engine {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return &Engine{
		ds:          ds,
		mapping:     tbl,
		trends:      trends,
		trendWindow: trendWindow,
		logger:      logger,
	}
}

// RiskLevelFor classifies a compliance percentage. A population with no
// hosts is unavailable rather than risky; hosts that have reported no
// results yet read as high risk until data arrives.
func RiskLevelFor(pct float64, hosts, results uint) soteria.RiskLevel {
	switch {
	case hosts == 0:
		return soteria.RiskUnavailable
	case results == 0:
		return soteria.RiskHigh
	case pct < 50:
		return soteria.RiskCritical
	case pct < 70:
		return soteria.RiskHigh
	case pct <= 85:
		return soteria.RiskMedium
	default:
		return soteria.RiskLow
	}
}

// Summary computes the top-level compliance KPI set for the filtered host
// population.
func (e *Engine) Summary(ctx context.Context, filter soteria.ResultFilter) (*soteria.Summary, error) {
	counts, err := e.ds.ComplianceCounts(ctx, filter)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "compliance counts")
	}
	stats, err := e.ds.ControlResultStats(ctx, filter)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "control stats")
	}

	totalResults := counts.Passing + counts.Failing + counts.Errored
	pct := 0.0
	if totalResults > 0 {
		pct = float64(counts.Passing) / float64(totalResults) * 100
	}

	var failingPolicies uint
	for _, s := range stats {
		if s.Fail > 0 {
			failingPolicies++
		}
	}

	return &soteria.Summary{
		TotalDevices:         counts.TotalHosts,
		CompliantDevices:     counts.CompliantHosts,
		NonCompliantDevices:  counts.TotalHosts - counts.CompliantHosts,
		CompliancePercentage: pct,
		PoliciesPassed:       counts.Passing,
		PoliciesFailed:       counts.Failing,
		FailingPolicies:      failingPolicies,
		RiskLevel:            RiskLevelFor(pct, counts.TotalHosts, totalResults),
	}, nil
}

// orderTactics returns the seen tactics sorted canonical-first, with any
// tactic outside the canonical set appended in discovery order.
func orderTactics(seen []string, canonical []string) []string {
	seenSet := make(map[string]bool, len(seen))
	for _, t := range seen {
		seenSet[t] = true
	}
	canonicalSet := make(map[string]bool, len(canonical))
	for _, t := range canonical {
		canonicalSet[t] = true
	}

	ordered := make([]string, 0, len(seen))
	for _, t := range canonical {
		if seenSet[t] {
			ordered = append(ordered, t)
		}
	}
	for _, t := range seen {
		if !canonicalSet[t] {
			ordered = append(ordered, t)
		}
	}
	return ordered
}
