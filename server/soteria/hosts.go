package soteria

import "time"

const (
	// StatusOnline host is active.
	StatusOnline = "online"

	// StatusOffline no recent communication with host.
	StatusOffline = "offline"
)

// Host is an enrolled endpoint device mirrored from the upstream Fleet
// server. Hosts are upserted on every sync cycle where remote state changed
// and deleted when they disappear from the remote listing.
type Host struct {
	ID              uint      `json:"id" db:"id"`
	UUID            string    `json:"uuid" db:"uuid"`
	Hostname        string    `json:"hostname" db:"hostname"`
	Platform        string    `json:"platform" db:"platform"`
	PlatformVersion string    `json:"platform_version" db:"platform_version"`
	AgentVersion    string    `json:"agent_version" db:"agent_version"`
	TeamID          *uint     `json:"team_id" db:"team_id"`
	TeamName        *string   `json:"team_name" db:"team_name"`
	Status          string    `json:"status" db:"status"`
	SeenTime        time.Time `json:"seen_time" db:"seen_time"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Changed reports whether the remote copy of the host differs from h in any
// synced field. UpdatedAt is local bookkeeping and never compared.
func (h *Host) Changed(remote *Host) bool {
	if remote == nil {
		return true
	}
	if h.Hostname != remote.Hostname ||
		h.UUID != remote.UUID ||
		h.Platform != remote.Platform ||
		h.PlatformVersion != remote.PlatformVersion ||
		h.AgentVersion != remote.AgentVersion ||
		h.Status != remote.Status ||
		!h.SeenTime.Equal(remote.SeenTime) {
		return true
	}
	if (h.TeamID == nil) != (remote.TeamID == nil) {
		return true
	}
	if h.TeamID != nil && *h.TeamID != *remote.TeamID {
		return true
	}
	return false
}
