package mysql

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

func (d *Datastore) ListPolicies(ctx context.Context) ([]*soteria.Policy, error) {
	var policies []*soteria.Policy
	if err := sqlx.SelectContext(ctx, d.reader, &policies, `
		SELECT
			id, name, cis_control, description, resolution, query,
			category, severity, platform, team_id
		FROM policies ORDER BY id`,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list policies")
	}
	return policies, nil
}

func (d *Datastore) ApplyPolicyChanges(ctx context.Context, upserts []*soteria.Policy, deleteIDs []uint) error {
	if len(upserts) == 0 && len(deleteIDs) == 0 {
		return nil
	}
	return d.withRetryTxx(ctx, func(tx sqlx.ExtContext) error {
		if len(upserts) > 0 {
			args := make([]interface{}, 0, len(upserts)*10)
			for _, p := range upserts {
				args = append(args,
					p.ID, p.Name, p.CISControl, p.Description, p.Resolution,
					p.Query, p.Category, p.Severity, p.Platform, p.TeamID,
				)
			}
			stmt := `
		INSERT INTO policies (
			id, name, cis_control, description, resolution, query,
			category, severity, platform, team_id
		)
		VALUES ` + batchPlaceholders(len(upserts), 10) + `
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			cis_control = VALUES(cis_control),
			description = VALUES(description),
			resolution = VALUES(resolution),
			query = VALUES(query),
			category = VALUES(category),
			severity = VALUES(severity),
			platform = VALUES(platform),
			team_id = VALUES(team_id)`
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return ctxerr.Wrap(ctx, err, "upsert policies")
			}
		}

		if len(deleteIDs) > 0 {
			for _, q := range []string{
				`DELETE FROM policy_results WHERE policy_id IN (?)`,
				`DELETE FROM policies WHERE id IN (?)`,
			} {
				stmt, args, err := sqlx.In(q, deleteIDs)
				if err != nil {
					return ctxerr.Wrap(ctx, err, "build delete policies query")
				}
				if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
					return ctxerr.Wrap(ctx, err, "delete policies")
				}
			}
		}
		return nil
	})
}
