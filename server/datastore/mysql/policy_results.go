package mysql

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

// resultBatchSize bounds the number of value tuples per INSERT so a large
// fleet does not exceed max_allowed_packet.
const resultBatchSize = 1000

// ApplyPolicyResults records the given observations, writing only pairs
// whose status actually changed. Unchanged pairs are skipped entirely, so
// re-applying the same observations touches zero rows. Every written pair
// also gets an appended history row.
func (d *Datastore) ApplyPolicyResults(ctx context.Context, results []*soteria.PolicyResult) (uint, error) {
	if len(results) == 0 {
		return 0, nil
	}

	hostIDSet := make(map[uint]struct{})
	for _, r := range results {
		hostIDSet[r.HostID] = struct{}{}
	}
	hostIDs := make([]uint, 0, len(hostIDSet))
	for id := range hostIDSet {
		hostIDs = append(hostIDs, id)
	}
	sort.Slice(hostIDs, func(i, j int) bool { return hostIDs[i] < hostIDs[j] })

	var changed uint
	err := d.withRetryTxx(ctx, func(tx sqlx.ExtContext) error {
		changed = 0

		stmt, args, err := sqlx.In(
			`SELECT policy_id, host_id, status FROM policy_results WHERE host_id IN (?)`, hostIDs)
		if err != nil {
			return ctxerr.Wrap(ctx, err, "build current results query")
		}
		var current []*soteria.PolicyResult
		if err := sqlx.SelectContext(ctx, tx, &current, stmt, args...); err != nil {
			return ctxerr.Wrap(ctx, err, "load current results")
		}
		currentStatus := make(map[soteria.ResultKey]soteria.ResultStatus, len(current))
		for _, r := range current {
			currentStatus[r.Key()] = r.Status
		}

		var transitions []*soteria.PolicyResult
		for _, r := range results {
			if status, ok := currentStatus[r.Key()]; ok && status == r.Status {
				continue
			}
			transitions = append(transitions, r)
		}
		if len(transitions) == 0 {
			return nil
		}

		for start := 0; start < len(transitions); start += resultBatchSize {
			end := start + resultBatchSize
			if end > len(transitions) {
				end = len(transitions)
			}
			batch := transitions[start:end]

			args := make([]interface{}, 0, len(batch)*4)
			for _, r := range batch {
				args = append(args, r.PolicyID, r.HostID, r.Status, r.CheckedAt)
			}

			stmt := `
		INSERT INTO policy_results (policy_id, host_id, status, checked_at)
		VALUES ` + batchPlaceholders(len(batch), 4) + `
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			checked_at = VALUES(checked_at)`
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return ctxerr.Wrap(ctx, err, "upsert policy results")
			}

			stmt = `
		INSERT INTO policy_result_history (policy_id, host_id, status, checked_at)
		VALUES ` + batchPlaceholders(len(batch), 4)
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return ctxerr.Wrap(ctx, err, "append policy result history")
			}
		}

		changed = uint(len(transitions))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}
