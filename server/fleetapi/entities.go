package fleetapi

import (
	"time"

	"github.com/soteriadm/soteria/server/soteria"
)

// HostDetail is the full per-host record consumed by the sync controller:
// the host itself, its label associations, and its policy results.
type HostDetail struct {
	Host     *soteria.Host
	LabelIDs []uint
	Results  []*soteria.PolicyResult
}

type teamsResponse struct {
	Teams []apiTeam `json:"teams"`
}

type apiTeam struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t apiTeam) toTeam() *soteria.Team {
	return &soteria.Team{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
}

type hostsResponse struct {
	Hosts []apiHost `json:"hosts"`
}

type apiHost struct {
	ID             uint      `json:"id"`
	UUID           string    `json:"uuid"`
	Hostname       string    `json:"hostname"`
	Platform       string    `json:"platform"`
	OSVersion      string    `json:"os_version"`
	OsqueryVersion string    `json:"osquery_version"`
	TeamID         *uint     `json:"team_id"`
	TeamName       *string   `json:"team_name"`
	Status         string    `json:"status"`
	SeenTime       time.Time `json:"seen_time"`
}

func (h apiHost) toHost() *soteria.Host {
	return &soteria.Host{
		ID:              h.ID,
		UUID:            h.UUID,
		Hostname:        h.Hostname,
		Platform:        h.Platform,
		PlatformVersion: h.OSVersion,
		AgentVersion:    h.OsqueryVersion,
		TeamID:          h.TeamID,
		TeamName:        h.TeamName,
		Status:          h.Status,
		SeenTime:        h.SeenTime,
	}
}

type hostDetailResponse struct {
	Host struct {
		apiHost
		Labels []struct {
			ID   uint   `json:"id"`
			Name string `json:"name"`
		} `json:"labels"`
		Policies []struct {
			ID       uint   `json:"id"`
			Name     string `json:"name"`
			Response string `json:"response"`
		} `json:"policies"`
	} `json:"host"`
}

type labelsResponse struct {
	Labels []apiLabel `json:"labels"`
}

type apiLabel struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	LabelType   string `json:"label_type"`
	Description string `json:"description"`
}

func (l apiLabel) toLabel() *soteria.Label {
	labelType := l.LabelType
	if labelType == "" {
		labelType = "regular"
	}
	return &soteria.Label{
		ID:          l.ID,
		Name:        l.Name,
		LabelType:   labelType,
		Description: l.Description,
	}
}

type policiesResponse struct {
	Policies []apiPolicy `json:"policies"`
}

type apiPolicy struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Resolution  string `json:"resolution"`
	Query       string `json:"query"`
	Platform    string `json:"platform"`
	Critical    bool   `json:"critical"`
}

func (p apiPolicy) toPolicy(teamID *uint) *soteria.Policy {
	severity := soteria.SeverityMedium
	if p.Critical {
		severity = soteria.SeverityCritical
	}
	platform := p.Platform
	if platform == "" {
		platform = "all"
	}
	return &soteria.Policy{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Resolution:  p.Resolution,
		Query:       p.Query,
		Category:    "General",
		Severity:    severity,
		Platform:    platform,
		TeamID:      teamID,
	}
}

type versionResponse struct {
	Version string `json:"version"`
}
