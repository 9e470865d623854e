package soteria

// ComplianceCounts is the raw aggregate backing the summary computation:
// device totals and current policy result counts under a filter.
type ComplianceCounts struct {
	TotalHosts     uint `db:"total_hosts"`
	CompliantHosts uint `db:"compliant_hosts"`
	Passing        uint `db:"passing"`
	Failing        uint `db:"failing"`
	Errored        uint `db:"errored"`
}

// Summary is the top-level compliance KPI set for a filtered host
// population.
type Summary struct {
	TotalDevices         uint      `json:"total_devices"`
	CompliantDevices     uint      `json:"compliant_devices"`
	NonCompliantDevices  uint      `json:"non_compliant_devices"`
	CompliancePercentage float64   `json:"compliance_percentage"`
	PoliciesPassed       uint      `json:"policies_passed"`
	PoliciesFailed       uint      `json:"policies_failed"`
	FailingPolicies      uint      `json:"failing_policies"`
	RiskLevel            RiskLevel `json:"risk_level"`
}

// ControlStats is the per-policy pass/fail aggregate under a filter, the
// input row for heatmap, matrix and remediation computations.
type ControlStats struct {
	PolicyID   uint    `db:"policy_id"`
	Name       string  `db:"name"`
	CISControl *string `db:"cis_control"`
	Severity   string  `db:"severity"`
	Resolution string  `db:"resolution"`
	Pass       uint    `db:"pass"`
	Fail       uint    `db:"fail"`
}

// HeatmapEntry is one defensive technique's aggregate in the D3FEND
// heatmap.
type HeatmapEntry struct {
	TechniqueID string  `json:"technique_id"`
	Technique   string  `json:"technique"`
	Tactic      string  `json:"tactic"`
	Pass        uint    `json:"pass"`
	Fail        uint    `json:"fail"`
	PassRate    float64 `json:"pass_rate"`
}

// Heatmap groups technique entries under their D3FEND tactic, canonical
// tactics first.
type Heatmap struct {
	Tactics []HeatmapTactic `json:"tactics"`
}

// HeatmapTactic is one D3FEND tactic column of the heatmap.
type HeatmapTactic struct {
	Tactic     string         `json:"tactic"`
	Techniques []HeatmapEntry `json:"techniques"`
}

// MatrixTechnique is one adversary technique cell of the ATT&CK matrix.
type MatrixTechnique struct {
	AttackID string  `json:"attack_id"`
	Name     string  `json:"name"`
	Pass     uint    `json:"pass"`
	Total    uint    `json:"total"`
	PassRate float64 `json:"pass_rate"`
}

// MatrixTactic is one adversary tactic column of the ATT&CK matrix. Rate is
// the simple mean of the technique pass rates, not weighted by host count.
type MatrixTactic struct {
	Tactic     string            `json:"tactic"`
	Rate       float64           `json:"rate"`
	Techniques []MatrixTechnique `json:"techniques"`
}

// RemediationItem is one failing policy ranked for remediation.
type RemediationItem struct {
	PolicyID      uint    `json:"policy_id"`
	Policy        string  `json:"policy"`
	Control       *string `json:"control"`
	Resolution    string  `json:"resolution"`
	AffectedHosts uint    `json:"affected_hosts"`
	Impact        string  `json:"impact"`
	Effort        string  `json:"effort"`
}

// FrameworkScore is a derived per-framework alignment score. Scores are the
// base compliance percentage times a configured multiplier and are not
// clamped to [0,100] at this layer.
type FrameworkScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// PostureReport is the composite posture result.
type PostureReport struct {
	PostureScore       float64          `json:"posture_score"`
	MaturityLevel      int              `json:"maturity_level"`
	ComplianceCoverage float64          `json:"compliance_coverage"`
	Frameworks         []FrameworkScore `json:"frameworks"`
}

// TeamScore is the per-team raw aggregate for the leaderboard. A nil TeamID
// is the population of hosts assigned to no team.
type TeamScore struct {
	TeamID   *uint   `db:"team_id"`
	TeamName *string `db:"team_name"`
	Hosts    uint    `db:"hosts"`
	Pass     uint    `db:"pass"`
	Fail     uint    `db:"fail"`
}

// LeaderboardEntry ranks one team by current compliance percentage.
type LeaderboardEntry struct {
	Rank   int            `json:"rank"`
	TeamID *uint          `json:"team_id"`
	Name   string         `json:"name"`
	Score  float64        `json:"score"`
	Hosts  uint           `json:"hosts"`
	Trend  TrendDirection `json:"trend"`
	Delta  float64        `json:"delta"`
	// TrendKnown is false when too few snapshots exist to compute a trend.
	TrendKnown bool `json:"trend_known"`
}

// CoverageStats backs the compliance-coverage computation: the number of
// distinct policies with at least one passing result versus all policies
// with results.
type CoverageStats struct {
	PoliciesWithPass uint `db:"policies_with_pass"`
	PoliciesTotal    uint `db:"policies_total"`
}
