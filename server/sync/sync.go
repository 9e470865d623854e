// Package sync implements the differential synchronization cycle: fetch the
// remote fleet state, diff it against local storage, apply the changes,
// collect per-host policy results and record the daily snapshot.
package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/WatchBeam/clock"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/hashicorp/go-multierror"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/fleetapi"
	"github.com/soteriadm/soteria/server/ptr"
	"github.com/soteriadm/soteria/server/soteria"
)

// FleetClient is the read surface of the upstream fleet API consumed by the
// controller. Implemented by fleetapi.Client.
type FleetClient interface {
	ListTeams(ctx context.Context) ([]*soteria.Team, error)
	ListHosts(ctx context.Context) ([]*soteria.Host, error)
	ListLabels(ctx context.Context) ([]*soteria.Label, error)
	ListPolicies(ctx context.Context, teams []*soteria.Team) ([]*soteria.Policy, error)
	HostDetail(ctx context.Context, hostID uint) (*fleetapi.HostDetail, error)
}

// SnapshotRecorder records the post-sync compliance snapshot. Implemented by
// snapshot.Recorder.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, asOf time.Time) error
}

type Controller struct {
	ds       soteria.Datastore
	client   FleetClient
	recorder SnapshotRecorder
	clock    clock.Clock
	logger   kitlog.Logger

	workers          int
	failureTolerance float64

	running atomic.Bool
}

func NewController(
	ds soteria.Datastore,
	client FleetClient,
	recorder SnapshotRecorder,
	c clock.Clock,
	logger kitlog.Logger,
	workers int,
	failureTolerance float64,
) *Controller {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	if workers < 1 {
		workers = 1
	}
	return &Controller{
		ds:               ds,
		client:           client,
		recorder:         recorder,
		clock:            c,
		logger:           logger,
		workers:          workers,
		failureTolerance: failureTolerance,
	}
}

// RunSync executes one full synchronization cycle. At most one cycle runs at
// a time; a second caller gets soteria.ErrSyncAlreadyRunning immediately.
func (c *Controller) RunSync(ctx context.Context) (*soteria.SyncSummary, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, soteria.ErrSyncAlreadyRunning
	}
	defer c.running.Store(false)

	start := c.clock.Now()
	run, err := c.ds.NewSyncRun(ctx, start)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "create sync run")
	}

	summary, syncErr := c.runCycle(ctx)

	completed := c.clock.Now()
	run.CompletedAt = ptr.Time(completed.UTC())
	run.DurationMillis = completed.Sub(start).Milliseconds()
	if syncErr != nil {
		run.Status = soteria.SyncStatusFailed
		run.ErrorMessage = ptr.String(syncErr.Error())
	} else {
		run.Status = soteria.SyncStatusSuccess
		run.HostsChanged = summary.HostsChanged
		run.PoliciesChanged = summary.PoliciesChanged
		run.ResultsChanged = summary.ResultsChanged
	}
	if err := c.ds.SaveSyncRun(ctx, run); err != nil {
		level.Error(c.logger).Log("msg", "finalize sync run", "run_id", run.ID, "err", err)
	}

	if syncErr != nil {
		level.Error(c.logger).Log("msg", "sync failed", "run_id", run.ID, "err", syncErr)
		return nil, syncErr
	}

	summary.RunID = run.ID
	summary.Status = run.Status
	summary.Duration = completed.Sub(start)
	level.Info(c.logger).Log(
		"msg", "sync complete",
		"run_id", run.ID,
		"hosts_changed", summary.HostsChanged,
		"policies_changed", summary.PoliciesChanged,
		"results_changed", summary.ResultsChanged,
		"duration", summary.Duration,
	)
	return summary, nil
}

// remoteState is the full upstream view fetched at the start of a cycle.
type remoteState struct {
	teams    []*soteria.Team
	hosts    []*soteria.Host
	labels   []*soteria.Label
	policies []*soteria.Policy

	// labelsErr is tolerated; label sync is skipped for the cycle.
	labelsErr error
}

func (c *Controller) runCycle(ctx context.Context) (*soteria.SyncSummary, error) {
	remote, err := c.fetchRemote(ctx)
	if err != nil {
		return nil, err
	}

	summary := &soteria.SyncSummary{}
	if remote.labelsErr != nil {
		level.Info(c.logger).Log("msg", "label fetch failed, skipping label sync", "err", remote.labelsErr)
		summary.PartialFailures = append(summary.PartialFailures,
			(&soteria.PartialSyncError{Entity: "labels", Err: remote.labelsErr}).Error())
	}

	for _, p := range remote.policies {
		if p.CISControl == nil {
			if control := extractCISControl(p.Name, p.Description); control != "" {
				p.CISControl = ptr.String(control)
			}
		}
	}

	// reference entities first so results and memberships never dangle
	teamsChanged, err := c.syncTeams(ctx, remote.teams)
	if err != nil {
		return nil, err
	}
	hostsChanged, err := c.syncHosts(ctx, remote.hosts)
	if err != nil {
		return nil, err
	}
	policiesChanged, err := c.syncPolicies(ctx, remote.policies)
	if err != nil {
		return nil, err
	}
	if remote.labelsErr == nil {
		if err := c.syncLabels(ctx, remote.labels); err != nil {
			return nil, err
		}
	}
	if teamsChanged > 0 {
		level.Debug(c.logger).Log("msg", "teams updated", "changed", teamsChanged)
	}

	resultsChanged, partial, err := c.syncHostDetails(ctx, remote.hosts, remote.labelsErr == nil)
	if err != nil {
		return nil, err
	}
	summary.PartialFailures = append(summary.PartialFailures, partial...)

	if err := c.recorder.RecordSnapshot(ctx, c.clock.Now()); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "record snapshot")
	}

	summary.HostsChanged = hostsChanged
	summary.PoliciesChanged = policiesChanged
	summary.ResultsChanged = resultsChanged
	return summary, nil
}

func (c *Controller) fetchRemote(ctx context.Context) (*remoteState, error) {
	teams, err := c.client.ListTeams(ctx)
	if err != nil {
		return nil, &soteria.FatalSyncError{Stage: "fetch teams", Err: err}
	}

	remote := &remoteState{teams: teams}
	var wg gosync.WaitGroup
	var hostsErr, policiesErr error

	wg.Add(3)
	go func() {
		defer wg.Done()
		remote.hosts, hostsErr = c.client.ListHosts(ctx)
	}()
	go func() {
		defer wg.Done()
		remote.policies, policiesErr = c.client.ListPolicies(ctx, teams)
	}()
	go func() {
		defer wg.Done()
		remote.labels, remote.labelsErr = c.client.ListLabels(ctx)
	}()
	wg.Wait()

	if hostsErr != nil {
		return nil, &soteria.FatalSyncError{Stage: "fetch hosts", Err: hostsErr}
	}
	if policiesErr != nil {
		return nil, &soteria.FatalSyncError{Stage: "fetch policies", Err: policiesErr}
	}
	return remote, nil
}

func (c *Controller) syncTeams(ctx context.Context, remote []*soteria.Team) (uint, error) {
	local, err := c.ds.ListTeams(ctx)
	if err != nil {
		return 0, ctxerr.Wrap(ctx, err, "list local teams")
	}

	byID := make(map[uint]*soteria.Team, len(local))
	for _, t := range local {
		byID[t.ID] = t
	}
	var upserts []*soteria.Team
	remoteIDs := make(map[uint]bool, len(remote))
	for _, t := range remote {
		remoteIDs[t.ID] = true
		cur, ok := byID[t.ID]
		if !ok || cur.Changed(t) {
			upserts = append(upserts, t)
		}
	}
	var deletes []uint
	for _, t := range local {
		if !remoteIDs[t.ID] {
			deletes = append(deletes, t.ID)
		}
	}

	if err := c.ds.ApplyTeamChanges(ctx, upserts, deletes); err != nil {
		return 0, ctxerr.Wrap(ctx, err, "apply team changes")
	}
	return uint(len(upserts) + len(deletes)), nil
}

func (c *Controller) syncHosts(ctx context.Context, remote []*soteria.Host) (uint, error) {
	local, err := c.ds.ListHosts(ctx)
	if err != nil {
		return 0, ctxerr.Wrap(ctx, err, "list local hosts")
	}

	byID := make(map[uint]*soteria.Host, len(local))
	for _, h := range local {
		byID[h.ID] = h
	}
	var upserts []*soteria.Host
	remoteIDs := make(map[uint]bool, len(remote))
	for _, h := range remote {
		remoteIDs[h.ID] = true
		cur, ok := byID[h.ID]
		if !ok || cur.Changed(h) {
			upserts = append(upserts, h)
		}
	}
	var deletes []uint
	for _, h := range local {
		if !remoteIDs[h.ID] {
			deletes = append(deletes, h.ID)
		}
	}

	if err := c.ds.ApplyHostChanges(ctx, upserts, deletes); err != nil {
		return 0, ctxerr.Wrap(ctx, err, "apply host changes")
	}
	return uint(len(upserts) + len(deletes)), nil
}

func (c *Controller) syncPolicies(ctx context.Context, remote []*soteria.Policy) (uint, error) {
	local, err := c.ds.ListPolicies(ctx)
	if err != nil {
		return 0, ctxerr.Wrap(ctx, err, "list local policies")
	}

	byID := make(map[uint]*soteria.Policy, len(local))
	for _, p := range local {
		byID[p.ID] = p
	}
	var upserts []*soteria.Policy
	remoteIDs := make(map[uint]bool, len(remote))
	for _, p := range remote {
		remoteIDs[p.ID] = true
		cur, ok := byID[p.ID]
		if !ok || cur.Changed(p) {
			upserts = append(upserts, p)
		}
	}
	var deletes []uint
	for _, p := range local {
		if !remoteIDs[p.ID] {
			deletes = append(deletes, p.ID)
		}
	}

	if err := c.ds.ApplyPolicyChanges(ctx, upserts, deletes); err != nil {
		return 0, ctxerr.Wrap(ctx, err, "apply policy changes")
	}
	return uint(len(upserts) + len(deletes)), nil
}

func (c *Controller) syncLabels(ctx context.Context, remote []*soteria.Label) error {
	local, err := c.ds.ListLabels(ctx)
	if err != nil {
		return ctxerr.Wrap(ctx, err, "list local labels")
	}

	byID := make(map[uint]*soteria.Label, len(local))
	for _, l := range local {
		byID[l.ID] = l
	}
	var upserts []*soteria.Label
	remoteIDs := make(map[uint]bool, len(remote))
	for _, l := range remote {
		remoteIDs[l.ID] = true
		cur, ok := byID[l.ID]
		if !ok || cur.Changed(l) {
			upserts = append(upserts, l)
		}
	}
	var deletes []uint
	for _, l := range local {
		if !remoteIDs[l.ID] {
			deletes = append(deletes, l.ID)
		}
	}

	if err := c.ds.ApplyLabelChanges(ctx, upserts, deletes); err != nil {
		return ctxerr.Wrap(ctx, err, "apply label changes")
	}
	return nil
}

// syncHostDetails fans host detail fetches out over the worker pool and
// applies the collected policy results in one batch. Individual fetch
// failures are tolerated up to the configured ratio of the host population.
func (c *Controller) syncHostDetails(ctx context.Context, hosts []*soteria.Host, syncLabels bool) (uint, []string, error) {
	if len(hosts) == 0 {
		return 0, nil, nil
	}

	currentLabels, err := c.ds.HostLabelIDs(ctx)
	if err != nil {
		return 0, nil, ctxerr.Wrap(ctx, err, "list host label memberships")
	}

	var (
		mu      gosync.Mutex
		results []*soteria.PolicyResult
		errs    *multierror.Error
		partial []string
	)

	hostCh := make(chan *soteria.Host)
	var wg gosync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for h := range hostCh {
				detail, err := c.client.HostDetail(ctx, h.ID)
				if err != nil {
					mu.Lock()
					errs = multierror.Append(errs, fmt.Errorf("host %d: %w", h.ID, err))
					partial = append(partial, fmt.Sprintf("host %d: %v", h.ID, err))
					mu.Unlock()
					continue
				}

				if syncLabels && labelsDiffer(currentLabels[h.ID], detail.LabelIDs) {
					if err := c.ds.ReplaceHostLabels(ctx, h.ID, detail.LabelIDs); err != nil {
						mu.Lock()
						errs = multierror.Append(errs, fmt.Errorf("host %d labels: %w", h.ID, err))
						partial = append(partial, fmt.Sprintf("host %d labels: %v", h.ID, err))
						mu.Unlock()
						continue
					}
				}

				mu.Lock()
				results = append(results, detail.Results...)
				mu.Unlock()
			}
		}()
	}

	for _, h := range hosts {
		hostCh <- h
	}
	close(hostCh)
	wg.Wait()

	failed := 0
	if errs != nil {
		failed = len(errs.Errors)
	}
	if failed > 0 {
		if float64(failed) > c.failureTolerance*float64(len(hosts)) {
			return 0, nil, &soteria.FatalSyncError{Stage: "fetch host details", Err: errs.ErrorOrNil()}
		}
		level.Info(c.logger).Log("msg", "tolerated host detail failures", "failed", failed, "hosts", len(hosts))
	}

	changed, err := c.ds.ApplyPolicyResults(ctx, results)
	if err != nil {
		return 0, nil, ctxerr.Wrap(ctx, err, "apply policy results")
	}
	return changed, partial, nil
}

// labelsDiffer compares two label-id sets order-insensitively.
func labelsDiffer(current, remote []uint) bool {
	if len(current) != len(remote) {
		return true
	}
	a := append([]uint(nil), current...)
	b := append([]uint(nil), remote...)
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}
