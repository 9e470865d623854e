package mysql

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/WatchBeam/clock"
	kitlog "github.com/go-kit/kit/log"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soteriadm/soteria/server/soteria"
)

func mockDatastore(t *testing.T) (*Datastore, sqlmock.Sqlmock, *clock.MockClock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dbx := sqlx.NewDb(db, "mysql")
	c := clock.NewMockClock()
	return &Datastore{
		reader: dbx,
		writer: dbx,
		logger: kitlog.NewNopLogger(),
		clock:  c,
	}, mock, c
}

func TestApplyPolicyResultsWritesOnlyTransitions(t *testing.T) {
	ds, mock, c := mockDatastore(t)
	now := c.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT policy_id, host_id, status FROM policy_results WHERE host_id IN (?, ?)",
	)).WithArgs(1, 2).WillReturnRows(
		sqlmock.NewRows([]string{"policy_id", "host_id", "status"}).
			AddRow(1, 1, "pass").
			AddRow(2, 1, "fail"),
	)
	mock.ExpectExec("INSERT INTO policy_results").
		WithArgs(2, 1, "pass", now, 3, 2, "fail", now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO policy_result_history").
		WithArgs(2, 1, "pass", now, 3, 2, "fail", now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	changed, err := ds.ApplyPolicyResults(context.Background(), []*soteria.PolicyResult{
		{PolicyID: 1, HostID: 1, Status: soteria.ResultPass, CheckedAt: now},
		{PolicyID: 2, HostID: 1, Status: soteria.ResultPass, CheckedAt: now},
		{PolicyID: 3, HostID: 2, Status: soteria.ResultFail, CheckedAt: now},
	})
	require.NoError(t, err)
	assert.Equal(t, uint(2), changed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPolicyResultsUnchangedTouchesNothing(t *testing.T) {
	ds, mock, c := mockDatastore(t)
	now := c.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT policy_id, host_id, status FROM policy_results WHERE host_id IN (?)",
	)).WithArgs(1).WillReturnRows(
		sqlmock.NewRows([]string{"policy_id", "host_id", "status"}).
			AddRow(1, 1, "pass"),
	)
	mock.ExpectCommit()

	changed, err := ds.ApplyPolicyResults(context.Background(), []*soteria.PolicyResult{
		{PolicyID: 1, HostID: 1, Status: soteria.ResultPass, CheckedAt: now},
	})
	require.NoError(t, err)
	assert.Equal(t, uint(0), changed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPolicyResultsEmpty(t *testing.T) {
	ds, mock, _ := mockDatastore(t)

	changed, err := ds.ApplyPolicyResults(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint(0), changed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRunLifecycle(t *testing.T) {
	ds, mock, c := mockDatastore(t)

	mock.ExpectExec("INSERT INTO sync_runs").
		WithArgs(c.Now().UTC(), "running").
		WillReturnResult(sqlmock.NewResult(7, 1))

	run, err := ds.NewSyncRun(context.Background(), c.Now())
	require.NoError(t, err)
	assert.Equal(t, uint(7), run.ID)
	assert.Equal(t, soteria.SyncStatusRunning, run.Status)

	completed := c.Now().UTC().Add(42 * time.Second)
	run.CompletedAt = &completed
	run.Status = soteria.SyncStatusSuccess
	run.HostsChanged = 3
	run.ResultsChanged = 12
	run.DurationMillis = 42000

	mock.ExpectExec("UPDATE sync_runs SET").
		WithArgs(completed, "success", 3, 0, 12, int64(42000), nil, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, ds.SaveSyncRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSyncRunMissing(t *testing.T) {
	ds, mock, _ := mockDatastore(t)

	mock.ExpectExec("UPDATE sync_runs SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.SaveSyncRun(context.Background(), &soteria.SyncRun{ID: 99, Status: soteria.SyncStatusFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLatestSyncRunNone(t *testing.T) {
	ds, mock, _ := mockDatastore(t)

	mock.ExpectQuery("SELECT (.+) FROM sync_runs ORDER BY id DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	run, err := ds.LatestSyncRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestConfigValues(t *testing.T) {
	ds, mock, _ := mockDatastore(t)

	mock.ExpectQuery("SELECT (.+) FROM config_settings").WillReturnRows(
		sqlmock.NewRows([]string{"key", "value"}).
			AddRow("impact_high_threshold", "5").
			AddRow("effort_low_keywords", `["Ensure","Set"]`),
	)

	values, err := ds.ConfigValues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"impact_high_threshold": "5",
		"effort_low_keywords":   `["Ensure","Set"]`,
	}, values)
}

func TestSetConfigValue(t *testing.T) {
	ds, mock, c := mockDatastore(t)

	mock.ExpectExec("INSERT INTO config_settings").
		WithArgs("impact_high_threshold", "8", c.Now().UTC()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, ds.SetConfigValue(context.Background(), "impact_high_threshold", "8"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFilteredHostsQuery(t *testing.T) {
	stmt, args, err := filteredHostsQuery(soteria.ResultFilter{}).Prepared(true).ToSQL()
	require.NoError(t, err)
	assert.NotContains(t, stmt, "WHERE")
	assert.Empty(t, args)

	stmt, args, err = filteredHostsQuery(soteria.ResultFilter{
		Team:     "Workstations",
		Platform: "darwin",
	}).Prepared(true).ToSQL()
	require.NoError(t, err)
	assert.Contains(t, stmt, "`fh`.`team_name`")
	assert.Contains(t, stmt, "`fh`.`platform`")
	assert.ElementsMatch(t, []interface{}{"Workstations", "darwin"}, args)

	stmt, args, err = filteredHostsQuery(soteria.ResultFilter{Label: "Staging"}).Prepared(true).ToSQL()
	require.NoError(t, err)
	assert.Contains(t, stmt, "`host_labels`")
	assert.Contains(t, stmt, "`labels`")
	assert.Equal(t, []interface{}{"Staging"}, args)
}

func TestComplianceCounts(t *testing.T) {
	ds, mock, _ := mockDatastore(t)

	mock.ExpectQuery("SELECT (.+) FROM `hosts`").WillReturnRows(
		sqlmock.NewRows([]string{"total_hosts", "compliant_hosts"}).AddRow(10, 4),
	)
	mock.ExpectQuery("SELECT (.+) FROM `policy_results`").WillReturnRows(
		sqlmock.NewRows([]string{"passing", "failing", "errored"}).AddRow(80, 15, 5),
	)

	counts, err := ds.ComplianceCounts(context.Background(), soteria.ResultFilter{})
	require.NoError(t, err)
	assert.Equal(t, &soteria.ComplianceCounts{
		TotalHosts:     10,
		CompliantHosts: 4,
		Passing:        80,
		Failing:        15,
		Errored:        5,
	}, counts)
}
