package mysql

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

func (d *Datastore) ListLabels(ctx context.Context) ([]*soteria.Label, error) {
	var labels []*soteria.Label
	if err := sqlx.SelectContext(ctx, d.reader, &labels,
		`SELECT id, name, label_type, description FROM labels ORDER BY id`,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list labels")
	}
	return labels, nil
}

func (d *Datastore) ApplyLabelChanges(ctx context.Context, upserts []*soteria.Label, deleteIDs []uint) error {
	if len(upserts) == 0 && len(deleteIDs) == 0 {
		return nil
	}
	return d.withRetryTxx(ctx, func(tx sqlx.ExtContext) error {
		if len(upserts) > 0 {
			args := make([]interface{}, 0, len(upserts)*4)
			for _, l := range upserts {
				args = append(args, l.ID, l.Name, l.LabelType, l.Description)
			}
			stmt := `
		INSERT INTO labels (id, name, label_type, description)
		VALUES ` + batchPlaceholders(len(upserts), 4) + `
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			label_type = VALUES(label_type),
			description = VALUES(description)`
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return ctxerr.Wrap(ctx, err, "upsert labels")
			}
		}

		if len(deleteIDs) > 0 {
			stmt, args, err := sqlx.In(`DELETE FROM host_labels WHERE label_id IN (?)`, deleteIDs)
			if err != nil {
				return ctxerr.Wrap(ctx, err, "build delete host labels query")
			}
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return ctxerr.Wrap(ctx, err, "delete host labels of deleted labels")
			}

			stmt, args, err = sqlx.In(`DELETE FROM labels WHERE id IN (?)`, deleteIDs)
			if err != nil {
				return ctxerr.Wrap(ctx, err, "build delete labels query")
			}
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return ctxerr.Wrap(ctx, err, "delete labels")
			}
		}
		return nil
	})
}

func (d *Datastore) ReplaceHostLabels(ctx context.Context, hostID uint, labelIDs []uint) error {
	return d.withRetryTxx(ctx, func(tx sqlx.ExtContext) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM host_labels WHERE host_id = ?`, hostID,
		); err != nil {
			return ctxerr.Wrap(ctx, err, "clear host labels")
		}
		if len(labelIDs) == 0 {
			return nil
		}
		args := make([]interface{}, 0, len(labelIDs)*2)
		for _, labelID := range labelIDs {
			args = append(args, hostID, labelID)
		}
		stmt := `INSERT INTO host_labels (host_id, label_id) VALUES ` +
			batchPlaceholders(len(labelIDs), 2)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return ctxerr.Wrap(ctx, err, "insert host labels")
		}
		return nil
	})
}

func (d *Datastore) HostLabelIDs(ctx context.Context) (map[uint][]uint, error) {
	var rows []struct {
		HostID  uint `db:"host_id"`
		LabelID uint `db:"label_id"`
	}
	if err := sqlx.SelectContext(ctx, d.reader, &rows,
		`SELECT host_id, label_id FROM host_labels ORDER BY host_id, label_id`,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list host label ids")
	}
	memberships := make(map[uint][]uint)
	for _, r := range rows {
		memberships[r.HostID] = append(memberships[r.HostID], r.LabelID)
	}
	return memberships, nil
}

func (d *Datastore) LabelNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := sqlx.SelectContext(ctx, d.reader, &names,
		`SELECT DISTINCT name FROM labels ORDER BY name`,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list label names")
	}
	return names, nil
}
