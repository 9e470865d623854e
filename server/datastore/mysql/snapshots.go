package mysql

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

// SnapshotStats aggregates current policy results per team partition,
// including the NULL partition of unassigned hosts. Teams with hosts but no
// results still produce a row with zero totals.
func (d *Datastore) SnapshotStats(ctx context.Context) ([]*soteria.SnapshotStats, error) {
	var stats []*soteria.SnapshotStats
	if err := sqlx.SelectContext(ctx, d.reader, &stats, `
		SELECT
			h.team_id,
			COALESCE(COUNT(pr.host_id), 0) AS total_results,
			COALESCE(SUM(pr.status = 'pass'), 0) AS passing_results,
			COALESCE(SUM(pr.status = 'fail' AND p.severity IN ('critical', 'high')), 0) AS critical_failures,
			(
				SELECT COUNT(*)
				FROM hosts h2
				WHERE h2.team_id <=> h.team_id
					AND NOT EXISTS (
						SELECT 1 FROM policy_results pr2
						WHERE pr2.host_id = h2.id AND pr2.status = 'fail'
					)
					AND EXISTS (
						SELECT 1 FROM policy_results pr3 WHERE pr3.host_id = h2.id
					)
			) AS passing_hosts
		FROM hosts h
		LEFT JOIN policy_results pr ON pr.host_id = h.id
		LEFT JOIN policies p ON p.id = pr.policy_id
		GROUP BY h.team_id`,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "aggregate snapshot stats")
	}
	return stats, nil
}

func (d *Datastore) SaveComplianceSnapshot(ctx context.Context, snap *soteria.ComplianceSnapshot) error {
	return d.withRetryTxx(ctx, func(tx sqlx.ExtContext) error {
		// team_id is nullable so ON DUPLICATE KEY does not fire for the
		// NULL partition; replace by hand instead.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM compliance_snapshots WHERE snapshot_date = ? AND team_id <=> ?`,
			snap.SnapshotDate, snap.TeamID,
		); err != nil {
			return ctxerr.Wrap(ctx, err, "clear existing snapshot")
		}
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO compliance_snapshots (
			snapshot_date, team_id, compliance_score, critical_failures, passing_hosts
		) VALUES (?, ?, ?, ?, ?)`,
			snap.SnapshotDate, snap.TeamID, snap.ComplianceScore,
			snap.CriticalFailures, snap.PassingHosts,
		); err != nil {
			return ctxerr.Wrap(ctx, err, "insert snapshot")
		}
		return nil
	})
}

// ListComplianceSnapshots returns snapshots for one team partition taken on
// or after since, most recent first.
func (d *Datastore) ListComplianceSnapshots(ctx context.Context, teamID *uint, since time.Time) ([]*soteria.ComplianceSnapshot, error) {
	var snaps []*soteria.ComplianceSnapshot
	if err := sqlx.SelectContext(ctx, d.reader, &snaps, `
		SELECT snapshot_date, team_id, compliance_score, critical_failures, passing_hosts
		FROM compliance_snapshots
		WHERE team_id <=> ? AND snapshot_date >= ?
		ORDER BY snapshot_date DESC`,
		teamID, since,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list compliance snapshots")
	}
	return snaps, nil
}
