package soteria

import "time"

// Team is a group of hosts as assigned by the upstream Fleet server. Team
// identifiers are source-assigned and stable across sync cycles.
type Team struct {
	ID          uint      `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Changed reports whether the remote copy of the team differs from t in any
// synced field.
func (t *Team) Changed(remote *Team) bool {
	if remote == nil {
		return true
	}
	return t.Name != remote.Name || t.Description != remote.Description
}
