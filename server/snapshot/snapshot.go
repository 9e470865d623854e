// Package snapshot records daily per-team compliance snapshots and computes
// trend deltas from them.
package snapshot

import (
	"context"
	"math"
	"time"

	"github.com/WatchBeam/clock"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

// stableBand is the score-change magnitude below which a trend reads as
// stable.
const stableBand = 1.0

type Recorder struct {
	ds     soteria.Datastore
	clock  clock.Clock
	logger kitlog.Logger
}

func NewRecorder(ds soteria.Datastore, c clock.Clock, logger kitlog.Logger) *Recorder {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return &Recorder{ds: ds, clock: c, logger: logger}
}

// RecordSnapshot aggregates current policy results per team partition and
// upserts one snapshot row per partition dated asOf's calendar day.
// Re-recording the same day replaces that day's rows.
func (r *Recorder) RecordSnapshot(ctx context.Context, asOf time.Time) error {
	stats, err := r.ds.SnapshotStats(ctx)
	if err != nil {
		return ctxerr.Wrap(ctx, err, "aggregate snapshot stats")
	}

	date := asOf.UTC().Truncate(24 * time.Hour)
	for _, s := range stats {
		score := 0.0
		if s.TotalResults > 0 {
			score = float64(s.PassingResults) / float64(s.TotalResults) * 100
		}
		snap := &soteria.ComplianceSnapshot{
			SnapshotDate:     date,
			TeamID:           s.TeamID,
			ComplianceScore:  score,
			CriticalFailures: s.CriticalFailures,
			PassingHosts:     s.PassingHosts,
		}
		if err := r.ds.SaveComplianceSnapshot(ctx, snap); err != nil {
			return ctxerr.Wrap(ctx, err, "save compliance snapshot")
		}
	}

	level.Debug(r.logger).Log("msg", "recorded compliance snapshots",
		"date", date.Format("2006-01-02"), "partitions", len(stats))
	return nil
}

// TrendDelta compares the two most recent snapshots of one team partition
// inside the lookback window. With fewer than two snapshots in the window the
// returned delta is flagged InsufficientData rather than read as zero.
func (r *Recorder) TrendDelta(ctx context.Context, teamID *uint, window time.Duration) (*soteria.TrendDelta, error) {
	since := r.clock.Now().UTC().Add(-window)
	snaps, err := r.ds.ListComplianceSnapshots(ctx, teamID, since)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list snapshots for trend")
	}
	if len(snaps) < 2 {
		return &soteria.TrendDelta{InsufficientData: true}, nil
	}

	delta := snaps[0].ComplianceScore - snaps[1].ComplianceScore
	direction := soteria.TrendStable
	switch {
	case math.Abs(delta) < stableBand:
		direction = soteria.TrendStable
	case delta > 0:
		direction = soteria.TrendUp
	default:
		direction = soteria.TrendDown
	}
	return &soteria.TrendDelta{Delta: delta, Direction: direction}, nil
}
