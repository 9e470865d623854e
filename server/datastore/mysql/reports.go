package mysql

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

// filteredHostsQuery builds the host-id subquery shared by every read-side
// aggregate. Filter values that match nothing simply produce an empty id
// set.
func filteredHostsQuery(filter soteria.ResultFilter) *goqu.SelectDataset {
	q := dialect.From(goqu.T("hosts").As("fh")).Select(goqu.I("fh.id"))
	if filter.Team != "" {
		q = q.Where(goqu.I("fh.team_name").Eq(filter.Team))
	}
	if filter.Platform != "" {
		q = q.Where(goqu.I("fh.platform").Eq(filter.Platform))
	}
	if filter.OSVersion != "" {
		q = q.Where(goqu.I("fh.platform_version").Eq(filter.OSVersion))
	}
	if filter.Label != "" {
		q = q.Join(
			goqu.T("host_labels").As("fhl"),
			goqu.On(goqu.I("fhl.host_id").Eq(goqu.I("fh.id"))),
		).Join(
			goqu.T("labels").As("fl"),
			goqu.On(goqu.I("fl.id").Eq(goqu.I("fhl.label_id"))),
		).Where(goqu.I("fl.name").Eq(filter.Label))
	}
	return q
}

func (d *Datastore) getPrepared(ctx context.Context, dest interface{}, ds *goqu.SelectDataset, msg string) error {
	stmt, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return ctxerr.Wrap(ctx, err, "build "+msg+" query")
	}
	if err := sqlx.GetContext(ctx, d.reader, dest, stmt, args...); err != nil {
		return ctxerr.Wrap(ctx, err, msg)
	}
	return nil
}

func (d *Datastore) selectPrepared(ctx context.Context, dest interface{}, ds *goqu.SelectDataset, msg string) error {
	stmt, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return ctxerr.Wrap(ctx, err, "build "+msg+" query")
	}
	if err := sqlx.SelectContext(ctx, d.reader, dest, stmt, args...); err != nil {
		return ctxerr.Wrap(ctx, err, msg)
	}
	return nil
}

func (d *Datastore) ComplianceCounts(ctx context.Context, filter soteria.ResultFilter) (*soteria.ComplianceCounts, error) {
	sub := filteredHostsQuery(filter)
	var counts soteria.ComplianceCounts

	totals := dialect.From(goqu.T("hosts").As("h")).Select(
		goqu.L(`COUNT(*)`).As("total_hosts"),
		goqu.L(`COALESCE(SUM(
			EXISTS (SELECT 1 FROM policy_results pr WHERE pr.host_id = h.id)
			AND NOT EXISTS (SELECT 1 FROM policy_results pr WHERE pr.host_id = h.id AND pr.status = 'fail')
		), 0)`).As("compliant_hosts"),
	).Where(goqu.I("h.id").In(sub))
	if err := d.getPrepared(ctx, &counts, totals, "count hosts"); err != nil {
		return nil, err
	}

	var results struct {
		Passing uint `db:"passing"`
		Failing uint `db:"failing"`
		Errored uint `db:"errored"`
	}
	resultSums := dialect.From(goqu.T("policy_results").As("pr")).Select(
		goqu.L(`COALESCE(SUM(pr.status = 'pass'), 0)`).As("passing"),
		goqu.L(`COALESCE(SUM(pr.status = 'fail'), 0)`).As("failing"),
		goqu.L(`COALESCE(SUM(pr.status = 'error'), 0)`).As("errored"),
	).Where(goqu.I("pr.host_id").In(sub))
	if err := d.getPrepared(ctx, &results, resultSums, "count policy results"); err != nil {
		return nil, err
	}

	counts.Passing = results.Passing
	counts.Failing = results.Failing
	counts.Errored = results.Errored
	return &counts, nil
}

func (d *Datastore) ControlResultStats(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.ControlStats, error) {
	sub := filteredHostsQuery(filter)
	q := dialect.From(goqu.T("policies").As("p")).
		Join(
			goqu.T("policy_results").As("pr"),
			goqu.On(goqu.I("pr.policy_id").Eq(goqu.I("p.id"))),
		).
		Select(
			goqu.I("p.id").As("policy_id"),
			goqu.I("p.name").As("name"),
			goqu.I("p.cis_control").As("cis_control"),
			goqu.I("p.severity").As("severity"),
			goqu.I("p.resolution").As("resolution"),
			goqu.L(`COALESCE(SUM(pr.status = 'pass'), 0)`).As("pass"),
			goqu.L(`COALESCE(SUM(pr.status = 'fail'), 0)`).As("fail"),
		).
		Where(goqu.I("pr.host_id").In(sub)).
		GroupBy(
			goqu.I("p.id"), goqu.I("p.name"), goqu.I("p.cis_control"),
			goqu.I("p.severity"), goqu.I("p.resolution"),
		).
		Order(goqu.I("p.id").Asc())

	var stats []*soteria.ControlStats
	if err := d.selectPrepared(ctx, &stats, q, "aggregate control stats"); err != nil {
		return nil, err
	}
	return stats, nil
}

func (d *Datastore) TeamScores(ctx context.Context, filter soteria.ResultFilter) ([]*soteria.TeamScore, error) {
	sub := filteredHostsQuery(filter)
	q := dialect.From(goqu.T("hosts").As("h")).
		LeftJoin(
			goqu.T("policy_results").As("pr"),
			goqu.On(goqu.I("pr.host_id").Eq(goqu.I("h.id"))),
		).
		Select(
			goqu.I("h.team_id").As("team_id"),
			goqu.I("h.team_name").As("team_name"),
			goqu.L(`COUNT(DISTINCT h.id)`).As("hosts"),
			goqu.L(`COALESCE(SUM(pr.status = 'pass'), 0)`).As("pass"),
			goqu.L(`COALESCE(SUM(pr.status = 'fail'), 0)`).As("fail"),
		).
		Where(goqu.I("h.id").In(sub)).
		GroupBy(goqu.I("h.team_id"), goqu.I("h.team_name"))

	var scores []*soteria.TeamScore
	if err := d.selectPrepared(ctx, &scores, q, "aggregate team scores"); err != nil {
		return nil, err
	}
	return scores, nil
}

func (d *Datastore) CoverageStats(ctx context.Context, filter soteria.ResultFilter) (*soteria.CoverageStats, error) {
	sub := filteredHostsQuery(filter)
	q := dialect.From(goqu.T("policy_results").As("pr")).Select(
		goqu.L(`COUNT(DISTINCT CASE WHEN pr.status = 'pass' THEN pr.policy_id END)`).As("policies_with_pass"),
		goqu.L(`COUNT(DISTINCT pr.policy_id)`).As("policies_total"),
	).Where(goqu.I("pr.host_id").In(sub))

	var stats soteria.CoverageStats
	if err := d.getPrepared(ctx, &stats, q, "aggregate coverage stats"); err != nil {
		return nil, err
	}
	return &stats, nil
}
