package mysql

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

func (d *Datastore) ListTeams(ctx context.Context) ([]*soteria.Team, error) {
	var teams []*soteria.Team
	if err := sqlx.SelectContext(ctx, d.reader, &teams,
		`SELECT id, name, description, created_at FROM teams ORDER BY id`,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list teams")
	}
	return teams, nil
}

func (d *Datastore) ApplyTeamChanges(ctx context.Context, upserts []*soteria.Team, deleteIDs []uint) error {
	if len(upserts) == 0 && len(deleteIDs) == 0 {
		return nil
	}
	return d.withRetryTxx(ctx, func(tx sqlx.ExtContext) error {
		if len(upserts) > 0 {
			args := make([]interface{}, 0, len(upserts)*4)
			for _, t := range upserts {
				args = append(args, t.ID, t.Name, t.Description, t.CreatedAt)
			}
			stmt := `
		INSERT INTO teams (id, name, description, created_at)
		VALUES ` + batchPlaceholders(len(upserts), 4) + `
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			description = VALUES(description),
			created_at = VALUES(created_at)`
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return ctxerr.Wrap(ctx, err, "upsert teams")
			}
		}

		if len(deleteIDs) > 0 {
			// hosts of a deleted team become unassigned rather than deleted
			stmt, args, err := sqlx.In(
				`UPDATE hosts SET team_id = NULL, team_name = NULL WHERE team_id IN (?)`, deleteIDs)
			if err != nil {
				return ctxerr.Wrap(ctx, err, "build unassign hosts query")
			}
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return ctxerr.Wrap(ctx, err, "unassign hosts of deleted teams")
			}

			stmt, args, err = sqlx.In(`DELETE FROM teams WHERE id IN (?)`, deleteIDs)
			if err != nil {
				return ctxerr.Wrap(ctx, err, "build delete teams query")
			}
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return ctxerr.Wrap(ctx, err, "delete teams")
			}
		}
		return nil
	})
}

func (d *Datastore) TeamNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := sqlx.SelectContext(ctx, d.reader, &names,
		`SELECT DISTINCT name FROM teams ORDER BY name`,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list team names")
	}
	return names, nil
}
