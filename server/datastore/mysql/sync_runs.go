package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

func (d *Datastore) NewSyncRun(ctx context.Context, startedAt time.Time) (*soteria.SyncRun, error) {
	run := &soteria.SyncRun{
		StartedAt: startedAt.UTC(),
		Status:    soteria.SyncStatusRunning,
	}
	res, err := d.writer.ExecContext(ctx,
		`INSERT INTO sync_runs (started_at, status) VALUES (?, ?)`,
		run.StartedAt, run.Status,
	)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "insert sync run")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "sync run insert id")
	}
	run.ID = uint(id)
	return run, nil
}

func (d *Datastore) SaveSyncRun(ctx context.Context, run *soteria.SyncRun) error {
	result, err := d.writer.ExecContext(ctx, `
		UPDATE sync_runs SET
			completed_at = ?,
			status = ?,
			hosts_changed = ?,
			policies_changed = ?,
			results_changed = ?,
			duration_ms = ?,
			error_message = ?
		WHERE id = ?`,
		run.CompletedAt, run.Status, run.HostsChanged, run.PoliciesChanged,
		run.ResultsChanged, run.DurationMillis, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return ctxerr.Wrap(ctx, err, "update sync run")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ctxerr.Errorf(ctx, "sync run %d not found", run.ID)
	}
	return nil
}

func (d *Datastore) LatestSyncRun(ctx context.Context) (*soteria.SyncRun, error) {
	var run soteria.SyncRun
	err := sqlx.GetContext(ctx, d.reader, &run, `
		SELECT
			id, started_at, completed_at, status, hosts_changed,
			policies_changed, results_changed, duration_ms, error_message
		FROM sync_runs ORDER BY id DESC LIMIT 1`,
	)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, ctxerr.Wrap(ctx, err, "get latest sync run")
	}
	return &run, nil
}
