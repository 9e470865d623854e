package mysql

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

func (d *Datastore) ListHosts(ctx context.Context) ([]*soteria.Host, error) {
	var hosts []*soteria.Host
	if err := sqlx.SelectContext(ctx, d.reader, &hosts, `
		SELECT
			id, uuid, hostname, platform, platform_version, agent_version,
			team_id, team_name, status, seen_time, updated_at
		FROM hosts ORDER BY id`,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list hosts")
	}
	return hosts, nil
}

func (d *Datastore) ApplyHostChanges(ctx context.Context, upserts []*soteria.Host, deleteIDs []uint) error {
	if len(upserts) == 0 && len(deleteIDs) == 0 {
		return nil
	}
	return d.withRetryTxx(ctx, func(tx sqlx.ExtContext) error {
		if len(upserts) > 0 {
			args := make([]interface{}, 0, len(upserts)*11)
			for _, h := range upserts {
				args = append(args,
					h.ID, h.UUID, h.Hostname, h.Platform, h.PlatformVersion,
					h.AgentVersion, h.TeamID, h.TeamName, h.Status, h.SeenTime,
					d.clock.Now(),
				)
			}
			stmt := `
		INSERT INTO hosts (
			id, uuid, hostname, platform, platform_version, agent_version,
			team_id, team_name, status, seen_time, updated_at
		)
		VALUES ` + batchPlaceholders(len(upserts), 11) + `
		ON DUPLICATE KEY UPDATE
			uuid = VALUES(uuid),
			hostname = VALUES(hostname),
			platform = VALUES(platform),
			platform_version = VALUES(platform_version),
			agent_version = VALUES(agent_version),
			team_id = VALUES(team_id),
			team_name = VALUES(team_name),
			status = VALUES(status),
			seen_time = VALUES(seen_time),
			updated_at = VALUES(updated_at)`
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return ctxerr.Wrap(ctx, err, "upsert hosts")
			}
		}

		if len(deleteIDs) > 0 {
			for _, q := range []string{
				`DELETE FROM host_labels WHERE host_id IN (?)`,
				`DELETE FROM policy_results WHERE host_id IN (?)`,
				`DELETE FROM hosts WHERE id IN (?)`,
			} {
				stmt, args, err := sqlx.In(q, deleteIDs)
				if err != nil {
					return ctxerr.Wrap(ctx, err, "build delete hosts query")
				}
				if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
					return ctxerr.Wrap(ctx, err, "delete hosts")
				}
			}
		}
		return nil
	})
}

func (d *Datastore) Platforms(ctx context.Context) ([]string, error) {
	var platforms []string
	if err := sqlx.SelectContext(ctx, d.reader, &platforms,
		`SELECT DISTINCT platform FROM hosts WHERE platform != '' ORDER BY platform`,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list platforms")
	}
	return platforms, nil
}

// OSVersions returns the distinct platform versions seen per platform.
func (d *Datastore) OSVersions(ctx context.Context) (map[string][]string, error) {
	var rows []struct {
		Platform string `db:"platform"`
		Version  string `db:"platform_version"`
	}
	if err := sqlx.SelectContext(ctx, d.reader, &rows, `
		SELECT DISTINCT platform, platform_version FROM hosts
		WHERE platform_version != ''
		ORDER BY platform, platform_version`,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list os versions")
	}
	versions := make(map[string][]string)
	for _, r := range rows {
		versions[r.Platform] = append(versions[r.Platform], r.Version)
	}
	return versions, nil
}
