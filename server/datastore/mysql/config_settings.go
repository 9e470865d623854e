package mysql

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
)

func (d *Datastore) ConfigValues(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := sqlx.SelectContext(ctx, d.reader, &rows,
		"SELECT `key`, `value` FROM config_settings",
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list config settings")
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}
	return values, nil
}

func (d *Datastore) SetConfigValue(ctx context.Context, key, value string) error {
	if _, err := d.writer.ExecContext(ctx,
		"INSERT INTO config_settings (`key`, `value`, updated_at) VALUES (?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE `value` = VALUES(`value`), updated_at = VALUES(updated_at)",
		key, value, d.clock.Now().UTC(),
	); err != nil {
		return ctxerr.Wrap(ctx, err, "set config value")
	}
	return nil
}
