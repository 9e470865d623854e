package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soteriadm/soteria/server/fleetapi"
	"github.com/soteriadm/soteria/server/mock"
	"github.com/soteriadm/soteria/server/ptr"
	"github.com/soteriadm/soteria/server/soteria"
)

type fakeClient struct {
	teams    []*soteria.Team
	hosts    []*soteria.Host
	labels   []*soteria.Label
	policies []*soteria.Policy
	details  map[uint]*fleetapi.HostDetail

	teamsErr    error
	hostsErr    error
	labelsErr   error
	policiesErr error
	detailErrs  map[uint]error

	teamsBlock chan struct{}
}

func (f *fakeClient) ListTeams(ctx context.Context) ([]*soteria.Team, error) {
	if f.teamsBlock != nil {
		<-f.teamsBlock
	}
	return f.teams, f.teamsErr
}

func (f *fakeClient) ListHosts(ctx context.Context) ([]*soteria.Host, error) {
	return f.hosts, f.hostsErr
}

func (f *fakeClient) ListLabels(ctx context.Context) ([]*soteria.Label, error) {
	return f.labels, f.labelsErr
}

func (f *fakeClient) ListPolicies(ctx context.Context, teams []*soteria.Team) ([]*soteria.Policy, error) {
	return f.policies, f.policiesErr
}

func (f *fakeClient) HostDetail(ctx context.Context, hostID uint) (*fleetapi.HostDetail, error) {
	if err := f.detailErrs[hostID]; err != nil {
		return nil, err
	}
	d, ok := f.details[hostID]
	if !ok {
		d = &fleetapi.HostDetail{}
	}
	return d, nil
}

type fakeRecorder struct {
	invoked bool
	err     error
}

func (f *fakeRecorder) RecordSnapshot(ctx context.Context, asOf time.Time) error {
	f.invoked = true
	return f.err
}

// applied captures every mutation a cycle pushed into the datastore.
type applied struct {
	teamUpserts   []*soteria.Team
	teamDeletes   []uint
	hostUpserts   []*soteria.Host
	hostDeletes   []uint
	policyUpserts []*soteria.Policy
	policyDeletes []uint
	labelUpserts  []*soteria.Label
	labelDeletes  []uint
	labelReplaces map[uint][]uint
	results       []*soteria.PolicyResult
	savedRun      *soteria.SyncRun
}

func newTestStore(local *applied) (*mock.Store, *applied) {
	out := &applied{labelReplaces: map[uint][]uint{}}
	ds := new(mock.Store)

	ds.NewSyncRunFunc = func(ctx context.Context, startedAt time.Time) (*soteria.SyncRun, error) {
		return &soteria.SyncRun{ID: 11, StartedAt: startedAt, Status: soteria.SyncStatusRunning}, nil
	}
	ds.SaveSyncRunFunc = func(ctx context.Context, run *soteria.SyncRun) error {
		out.savedRun = run
		return nil
	}
	ds.ListTeamsFunc = func(ctx context.Context) ([]*soteria.Team, error) {
		return local.teamUpserts, nil
	}
	ds.ListHostsFunc = func(ctx context.Context) ([]*soteria.Host, error) {
		return local.hostUpserts, nil
	}
	ds.ListPoliciesFunc = func(ctx context.Context) ([]*soteria.Policy, error) {
		return local.policyUpserts, nil
	}
	ds.ListLabelsFunc = func(ctx context.Context) ([]*soteria.Label, error) {
		return local.labelUpserts, nil
	}
	ds.ApplyTeamChangesFunc = func(ctx context.Context, upserts []*soteria.Team, deleteIDs []uint) error {
		out.teamUpserts, out.teamDeletes = upserts, deleteIDs
		return nil
	}
	ds.ApplyHostChangesFunc = func(ctx context.Context, upserts []*soteria.Host, deleteIDs []uint) error {
		out.hostUpserts, out.hostDeletes = upserts, deleteIDs
		return nil
	}
	ds.ApplyPolicyChangesFunc = func(ctx context.Context, upserts []*soteria.Policy, deleteIDs []uint) error {
		out.policyUpserts, out.policyDeletes = upserts, deleteIDs
		return nil
	}
	ds.ApplyLabelChangesFunc = func(ctx context.Context, upserts []*soteria.Label, deleteIDs []uint) error {
		out.labelUpserts, out.labelDeletes = upserts, deleteIDs
		return nil
	}
	ds.HostLabelIDsFunc = func(ctx context.Context) (map[uint][]uint, error) {
		return map[uint][]uint{}, nil
	}
	ds.ReplaceHostLabelsFunc = func(ctx context.Context, hostID uint, labelIDs []uint) error {
		out.labelReplaces[hostID] = labelIDs
		return nil
	}
	ds.ApplyPolicyResultsFunc = func(ctx context.Context, results []*soteria.PolicyResult) (uint, error) {
		out.results = results
		var changed uint
		for range results {
			changed++
		}
		return changed, nil
	}
	return ds, out
}

func testController(ds soteria.Datastore, client FleetClient, rec SnapshotRecorder) *Controller {
	return NewController(ds, client, rec, clock.NewMockClock(), nil, 2, 0.1)
}

func TestRunSyncFirstCycle(t *testing.T) {
	now := time.Now().UTC()
	client := &fakeClient{
		teams: []*soteria.Team{{ID: 1, Name: "Workstations"}},
		hosts: []*soteria.Host{
			{ID: 1, Hostname: "mac-1", Platform: "darwin", TeamID: ptr.Uint(1)},
			{ID: 2, Hostname: "mac-2", Platform: "darwin"},
		},
		labels: []*soteria.Label{{ID: 3, Name: "Staging", LabelType: "regular"}},
		policies: []*soteria.Policy{
			{ID: 5, Name: "CIS - 5.2 Ensure password policy is enforced", Severity: soteria.SeverityHigh},
		},
		details: map[uint]*fleetapi.HostDetail{
			1: {
				LabelIDs: []uint{3},
				Results: []*soteria.PolicyResult{
					{PolicyID: 5, HostID: 1, Status: soteria.ResultPass, CheckedAt: now},
				},
			},
			2: {
				Results: []*soteria.PolicyResult{
					{PolicyID: 5, HostID: 2, Status: soteria.ResultFail, CheckedAt: now},
				},
			},
		},
	}

	ds, out := newTestStore(&applied{})
	rec := &fakeRecorder{}
	ctrl := testController(ds, client, rec)

	summary, err := ctrl.RunSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint(11), summary.RunID)
	assert.Equal(t, soteria.SyncStatusSuccess, summary.Status)
	assert.Equal(t, uint(2), summary.HostsChanged)
	assert.Equal(t, uint(1), summary.PoliciesChanged)
	assert.Equal(t, uint(2), summary.ResultsChanged)
	assert.Empty(t, summary.PartialFailures)

	require.Len(t, out.policyUpserts, 1)
	require.NotNil(t, out.policyUpserts[0].CISControl)
	assert.Equal(t, "5.2", *out.policyUpserts[0].CISControl)

	assert.Equal(t, []uint{3}, out.labelReplaces[1])
	_, replacedHost2 := out.labelReplaces[2]
	assert.False(t, replacedHost2, "host with unchanged empty label set must not be rewritten")

	assert.True(t, rec.invoked)
	require.NotNil(t, out.savedRun)
	assert.Equal(t, soteria.SyncStatusSuccess, out.savedRun.Status)
	require.NotNil(t, out.savedRun.CompletedAt)
}

func TestRunSyncUnchangedStateAppliesNothing(t *testing.T) {
	team := &soteria.Team{ID: 1, Name: "Workstations"}
	host := &soteria.Host{ID: 1, Hostname: "mac-1", Platform: "darwin"}
	policy := &soteria.Policy{
		ID: 5, Name: "CIS - 5.2 Ensure password policy is enforced",
		CISControl: ptr.String("5.2"), Severity: soteria.SeverityHigh,
	}
	label := &soteria.Label{ID: 3, Name: "Staging", LabelType: "regular"}

	client := &fakeClient{
		teams:    []*soteria.Team{{ID: 1, Name: "Workstations"}},
		hosts:    []*soteria.Host{{ID: 1, Hostname: "mac-1", Platform: "darwin"}},
		labels:   []*soteria.Label{{ID: 3, Name: "Staging", LabelType: "regular"}},
		policies: []*soteria.Policy{{ID: 5, Name: "CIS - 5.2 Ensure password policy is enforced", Severity: soteria.SeverityHigh}},
		details:  map[uint]*fleetapi.HostDetail{},
	}

	local := &applied{
		teamUpserts:   []*soteria.Team{team},
		hostUpserts:   []*soteria.Host{host},
		policyUpserts: []*soteria.Policy{policy},
		labelUpserts:  []*soteria.Label{label},
	}
	ds, out := newTestStore(local)
	ctrl := testController(ds, client, &fakeRecorder{})

	summary, err := ctrl.RunSync(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.HostsChanged)
	assert.Zero(t, summary.PoliciesChanged)
	assert.Zero(t, summary.ResultsChanged)
	assert.Empty(t, out.teamUpserts)
	assert.Empty(t, out.teamDeletes)
	assert.Empty(t, out.hostUpserts)
	assert.Empty(t, out.policyUpserts)
	assert.Empty(t, out.labelUpserts)
}

func TestRunSyncUpsertsEditedTeam(t *testing.T) {
	local := &applied{
		teamUpserts: []*soteria.Team{
			{ID: 1, Name: "Workstations"},
			{ID: 2, Name: "Servers", Description: "prod fleet"},
		},
	}
	client := &fakeClient{
		teams: []*soteria.Team{
			{ID: 1, Name: "Endpoints"},
			{ID: 2, Name: "Servers", Description: "prod fleet"},
		},
	}

	ds, out := newTestStore(local)
	_, err := testController(ds, client, &fakeRecorder{}).RunSync(context.Background())
	require.NoError(t, err)

	// only the renamed team is written back
	require.Len(t, out.teamUpserts, 1)
	assert.Equal(t, "Endpoints", out.teamUpserts[0].Name)
	assert.Empty(t, out.teamDeletes)
}

func TestRunSyncDeletesDepartedEntities(t *testing.T) {
	local := &applied{
		teamUpserts: []*soteria.Team{{ID: 1, Name: "Gone"}},
		hostUpserts: []*soteria.Host{{ID: 9, Hostname: "stale"}},
	}
	client := &fakeClient{}

	ds, out := newTestStore(local)
	_, err := testController(ds, client, &fakeRecorder{}).RunSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uint{1}, out.teamDeletes)
	assert.Equal(t, []uint{9}, out.hostDeletes)
}

func TestRunSyncSingleFlight(t *testing.T) {
	client := &fakeClient{teamsBlock: make(chan struct{})}
	ds, _ := newTestStore(&applied{})
	ctrl := testController(ds, client, &fakeRecorder{})

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.RunSync(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return ctrl.running.Load()
	}, time.Second, time.Millisecond)

	_, err := ctrl.RunSync(context.Background())
	assert.ErrorIs(t, err, soteria.ErrSyncAlreadyRunning)

	close(client.teamsBlock)
	require.NoError(t, <-done)

	// the guard releases once the first run completes
	_, err = ctrl.RunSync(context.Background())
	require.NoError(t, err)
}

func TestRunSyncFatalOnRequiredEntity(t *testing.T) {
	client := &fakeClient{hostsErr: errors.New("upstream down")}
	ds, out := newTestStore(&applied{})
	_, err := testController(ds, client, &fakeRecorder{}).RunSync(context.Background())

	var fatal *soteria.FatalSyncError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "fetch hosts", fatal.Stage)

	require.NotNil(t, out.savedRun)
	assert.Equal(t, soteria.SyncStatusFailed, out.savedRun.Status)
	require.NotNil(t, out.savedRun.ErrorMessage)
	assert.Contains(t, *out.savedRun.ErrorMessage, "upstream down")
}

func TestRunSyncToleratesLabelFetchFailure(t *testing.T) {
	client := &fakeClient{
		hosts:     []*soteria.Host{{ID: 1, Hostname: "mac-1"}},
		labelsErr: errors.New("labels endpoint 500"),
		details:   map[uint]*fleetapi.HostDetail{},
	}
	ds, out := newTestStore(&applied{})
	summary, err := testController(ds, client, &fakeRecorder{}).RunSync(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.PartialFailures, 1)
	assert.Contains(t, summary.PartialFailures[0], "labels")
	assert.False(t, ds.ApplyLabelChangesFuncInvoked)
	assert.Equal(t, soteria.SyncStatusSuccess, out.savedRun.Status)
}

func TestRunSyncHostDetailFailureTolerance(t *testing.T) {
	hosts := make([]*soteria.Host, 0, 10)
	for i := uint(1); i <= 10; i++ {
		hosts = append(hosts, &soteria.Host{ID: i})
	}

	t.Run("within tolerance", func(t *testing.T) {
		client := &fakeClient{
			hosts:      hosts,
			details:    map[uint]*fleetapi.HostDetail{},
			detailErrs: map[uint]error{3: errors.New("host timeout")},
		}
		ds, _ := newTestStore(&applied{})
		summary, err := testController(ds, client, &fakeRecorder{}).RunSync(context.Background())
		require.NoError(t, err)
		require.Len(t, summary.PartialFailures, 1)
		assert.Contains(t, summary.PartialFailures[0], "host 3")
	})

	t.Run("beyond tolerance", func(t *testing.T) {
		client := &fakeClient{
			hosts:   hosts,
			details: map[uint]*fleetapi.HostDetail{},
			detailErrs: map[uint]error{
				3: errors.New("host timeout"),
				7: errors.New("host timeout"),
			},
		}
		ds, out := newTestStore(&applied{})
		_, err := testController(ds, client, &fakeRecorder{}).RunSync(context.Background())

		var fatal *soteria.FatalSyncError
		require.ErrorAs(t, err, &fatal)
		assert.Equal(t, "fetch host details", fatal.Stage)
		assert.Equal(t, soteria.SyncStatusFailed, out.savedRun.Status)
	})
}

func TestLabelsDiffer(t *testing.T) {
	assert.False(t, labelsDiffer(nil, nil))
	assert.False(t, labelsDiffer([]uint{1, 2}, []uint{2, 1}))
	assert.True(t, labelsDiffer([]uint{1}, []uint{1, 2}))
	assert.True(t, labelsDiffer([]uint{1, 3}, []uint{1, 2}))
}
