package soteria

// Label is a tag applied to hosts by the upstream Fleet server.
type Label struct {
	ID          uint   `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	LabelType   string `json:"label_type" db:"label_type"`
	Description string `json:"description" db:"description"`
}

// Changed reports whether the remote copy of the label differs from l.
func (l *Label) Changed(remote *Label) bool {
	if remote == nil {
		return true
	}
	return l.Name != remote.Name ||
		l.LabelType != remote.LabelType ||
		l.Description != remote.Description
}

// HostLabel is a host-to-label association, replaced wholesale for a host
// whenever that host changes during a sync cycle.
type HostLabel struct {
	HostID  uint `json:"host_id" db:"host_id"`
	LabelID uint `json:"label_id" db:"label_id"`
}
