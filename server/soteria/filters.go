package soteria

// ResultFilter narrows read-side aggregations to a subset of hosts. All
// fields are optional; empty means no restriction. Filters are advisory:
// values matching no hosts produce empty results, never errors.
type ResultFilter struct {
	Team      string `json:"team"`
	Platform  string `json:"platform"`
	Label     string `json:"label"`
	OSVersion string `json:"os_version"`
}

// IsZero reports whether no filter dimension is set.
func (f ResultFilter) IsZero() bool {
	return f.Team == "" && f.Platform == "" && f.Label == "" && f.OSVersion == ""
}
