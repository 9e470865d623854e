// Package fleetapi is a thin client for the Fleet server REST API. It drains
// paginated listings, retries transport failures with exponential backoff,
// and keeps outbound request volume inside a configured budget so that a
// sync cycle cannot overload the remote server.
package fleetapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/cenkalti/backoff/v4"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"

	"github.com/soteriadm/soteria/server/config"
	"github.com/soteriadm/soteria/server/soteria"
)

const rateLimitKey = "fleet-api"

// Client issues authenticated read requests against a Fleet server.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  kitlog.Logger
	clock   clock.Clock
	perPage int
	limiter *throttled.GCRARateLimiter

	// retryInterval and retryMaxElapsed bound the backoff loop; tests lower
	// them to keep failure cases fast.
	retryInterval   time.Duration
	retryMaxElapsed time.Duration
}

// ClientOption modifies a Client at construction.
type ClientOption func(*Client)

// WithClock sets the clock used to stamp policy results.
func WithClock(c clock.Clock) ClientOption {
	return func(cl *Client) { cl.clock = c }
}

// WithRetryPolicy overrides the backoff retry bounds.
func WithRetryPolicy(interval, maxElapsed time.Duration) ClientOption {
	return func(cl *Client) {
		cl.retryInterval = interval
		cl.retryMaxElapsed = maxElapsed
	}
}

// NewClient creates a Fleet API client from the fleet section of the
// configuration.
func NewClient(conf config.FleetConfig, logger kitlog.Logger, opts ...ClientOption) (*Client, error) {
	if !strings.HasPrefix(conf.URL, "https://") && !strings.HasPrefix(conf.URL, "http://") {
		return nil, errors.New("fleet url must start with https:// or http://")
	}
	baseURL, err := url.Parse(conf.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing fleet url")
	}

	token := conf.Token
	if token == "" && conf.TokenPath != "" {
		contents, err := os.ReadFile(conf.TokenPath)
		if err != nil {
			return nil, errors.Wrap(err, "reading fleet token file")
		}
		token = strings.TrimSpace(string(contents))
	}
	if token == "" {
		return nil, errors.New("fleet api token is empty")
	}

	store, err := memstore.New(1024)
	if err != nil {
		return nil, errors.Wrap(err, "creating rate limit store")
	}
	perSec := conf.RequestsPerSecond
	if perSec <= 0 {
		perSec = 10
	}
	burst := conf.RequestBurst
	if burst <= 0 {
		burst = perSec
	}
	limiter, err := throttled.NewGCRARateLimiter(store, throttled.RateQuota{
		MaxRate:  throttled.PerSec(perSec),
		MaxBurst: burst,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating rate limiter")
	}

	perPage := conf.PerPage
	if perPage <= 0 {
		perPage = 100
	}

	c := &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: conf.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: conf.InsecureSkipVerify, //nolint:gosec
				},
			},
		},
		logger:          logger,
		clock:           clock.C,
		perPage:         perPage,
		limiter:         limiter,
		retryInterval:   250 * time.Millisecond,
		retryMaxElapsed: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) url(path string, query url.Values) *url.URL {
	u := *c.baseURL
	u.Path = path
	u.RawQuery = query.Encode()
	return &u
}

// waitForBudget blocks until the GCRA limiter admits one more request.
func (c *Client) waitForBudget(ctx context.Context) error {
	for {
		limited, res, err := c.limiter.RateLimit(rateLimitKey, 1)
		if err != nil {
			return errors.Wrap(err, "rate limit check")
		}
		if !limited {
			return nil
		}
		level.Debug(c.logger).Log("msg", "request budget exhausted", "retry_after", res.RetryAfter)
		select {
		case <-time.After(res.RetryAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// authedGet performs one authenticated GET with retries and decodes the JSON
// response body into v. Server-side throttling (429) and 5xx responses are
// retried; other non-200 statuses are terminal.
func (c *Client) authedGet(ctx context.Context, path string, query url.Values, v interface{}) error {
	operation := func() error {
		if err := c.waitForBudget(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path, query).String(), nil)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "creating request"))
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return errors.Wrap(err, "http request")
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return errors.Errorf("fleet server returned %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(errors.Errorf("fleet server returned %d", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return backoff.Permanent(errors.Wrap(err, "decoding response"))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxElapsedTime = c.retryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return &soteria.TransportError{Op: path, Err: err}
	}
	return nil
}

// ListTeams fetches all teams.
func (c *Client) ListTeams(ctx context.Context) ([]*soteria.Team, error) {
	var resp teamsResponse
	if err := c.authedGet(ctx, "/api/v1/fleet/teams", nil, &resp); err != nil {
		return nil, err
	}
	teams := make([]*soteria.Team, 0, len(resp.Teams))
	for _, t := range resp.Teams {
		teams = append(teams, t.toTeam())
	}
	return teams, nil
}

// ListHosts drains the paginated host listing.
func (c *Client) ListHosts(ctx context.Context) ([]*soteria.Host, error) {
	var all []*soteria.Host
	for page := 0; ; page++ {
		query := url.Values{
			"page":     []string{fmt.Sprint(page)},
			"per_page": []string{fmt.Sprint(c.perPage)},
		}
		var resp hostsResponse
		if err := c.authedGet(ctx, "/api/v1/fleet/hosts", query, &resp); err != nil {
			return nil, err
		}
		if len(resp.Hosts) == 0 {
			break
		}
		for _, h := range resp.Hosts {
			all = append(all, h.toHost())
		}
		if len(resp.Hosts) < c.perPage {
			break
		}
	}
	return all, nil
}

// ListLabels fetches all labels.
func (c *Client) ListLabels(ctx context.Context) ([]*soteria.Label, error) {
	var resp labelsResponse
	if err := c.authedGet(ctx, "/api/v1/fleet/labels", nil, &resp); err != nil {
		return nil, err
	}
	labels := make([]*soteria.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, l.toLabel())
	}
	return labels, nil
}

// ListPolicies fetches global policies plus each team's policies, merged and
// de-duplicated by policy id.
func (c *Client) ListPolicies(ctx context.Context, teams []*soteria.Team) ([]*soteria.Policy, error) {
	var resp policiesResponse
	if err := c.authedGet(ctx, "/api/v1/fleet/policies", nil, &resp); err != nil {
		return nil, err
	}

	byID := make(map[uint]*soteria.Policy, len(resp.Policies))
	var order []uint
	for _, p := range resp.Policies {
		pol := p.toPolicy(nil)
		if _, ok := byID[pol.ID]; !ok {
			order = append(order, pol.ID)
		}
		byID[pol.ID] = pol
	}

	for _, team := range teams {
		var teamResp policiesResponse
		path := fmt.Sprintf("/api/v1/fleet/teams/%d/policies", team.ID)
		if err := c.authedGet(ctx, path, nil, &teamResp); err != nil {
			return nil, err
		}
		teamID := team.ID
		for _, p := range teamResp.Policies {
			pol := p.toPolicy(&teamID)
			if _, ok := byID[pol.ID]; !ok {
				order = append(order, pol.ID)
			}
			byID[pol.ID] = pol
		}
	}

	policies := make([]*soteria.Policy, 0, len(byID))
	for _, id := range order {
		policies = append(policies, byID[id])
	}
	return policies, nil
}

// HostDetail fetches one host's full record, including its labels and
// per-policy evaluation results.
func (c *Client) HostDetail(ctx context.Context, hostID uint) (*HostDetail, error) {
	var resp hostDetailResponse
	path := fmt.Sprintf("/api/v1/fleet/hosts/%d", hostID)
	if err := c.authedGet(ctx, path, nil, &resp); err != nil {
		return nil, err
	}

	detail := &HostDetail{Host: resp.Host.apiHost.toHost()}
	for _, l := range resp.Host.Labels {
		detail.LabelIDs = append(detail.LabelIDs, l.ID)
	}
	now := c.clock.Now()
	for _, p := range resp.Host.Policies {
		detail.Results = append(detail.Results, &soteria.PolicyResult{
			PolicyID:  p.ID,
			HostID:    hostID,
			Status:    resultStatus(p.Response),
			CheckedAt: now,
		})
	}
	return detail, nil
}

// ListPolicyResults fetches the current policy results for one host.
func (c *Client) ListPolicyResults(ctx context.Context, hostID uint) ([]*soteria.PolicyResult, error) {
	detail, err := c.HostDetail(ctx, hostID)
	if err != nil {
		return nil, err
	}
	return detail.Results, nil
}

// Version fetches the Fleet server version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp versionResponse
	if err := c.authedGet(ctx, "/api/v1/fleet/version", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

func resultStatus(response string) soteria.ResultStatus {
	switch response {
	case "pass":
		return soteria.ResultPass
	case "fail":
		return soteria.ResultFail
	default:
		// osquery did not report a result for this policy on this host
		return soteria.ResultError
	}
}
