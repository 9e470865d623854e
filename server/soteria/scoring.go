package soteria

// Configuration keys for the scoring parameters stored in config_settings.
// Values are stored as strings; list values are JSON arrays.
const (
	ConfigKeyImpactHighThreshold       = "impact_high_threshold"
	ConfigKeyImpactMediumThreshold     = "impact_medium_threshold"
	ConfigKeyEffortLowKeywords         = "effort_low_keywords"
	ConfigKeyEffortHighKeywords        = "effort_high_keywords"
	ConfigKeySecurityDebtHoursPerIssue = "security_debt_hours_per_issue"
	ConfigKeyRiskExposureMultiplier    = "risk_exposure_multiplier"
	ConfigKeyFrameworkCISMultiplier    = "framework_cis_multiplier"
	ConfigKeyFrameworkNISTMultiplier   = "framework_nist_multiplier"
	ConfigKeyFrameworkISOMultiplier    = "framework_iso_multiplier"
)

// ScoringConfig is an immutable snapshot of the named scoring parameters.
// Every scoring computation receives one explicitly so that settings take
// effect without a restart and results are reproducible in tests.
type ScoringConfig struct {
	ImpactHighThreshold       int      `json:"impact_high_threshold"`
	ImpactMediumThreshold     int      `json:"impact_medium_threshold"`
	EffortLowKeywords         []string `json:"effort_low_keywords"`
	EffortHighKeywords        []string `json:"effort_high_keywords"`
	SecurityDebtHoursPerIssue float64  `json:"security_debt_hours_per_issue"`
	RiskExposureMultiplier    float64  `json:"risk_exposure_multiplier"`
	FrameworkCISMultiplier    float64  `json:"framework_cis_multiplier"`
	FrameworkNISTMultiplier   float64  `json:"framework_nist_multiplier"`
	FrameworkISOMultiplier    float64  `json:"framework_iso_multiplier"`
}

// DefaultScoringConfig returns the documented defaults, used for any key
// absent from the config_settings table.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ImpactHighThreshold:       5,
		ImpactMediumThreshold:     2,
		EffortLowKeywords:         []string{"Ensure", "Set"},
		EffortHighKeywords:        []string{"Manual", "Review"},
		SecurityDebtHoursPerIssue: 0.5,
		RiskExposureMultiplier:    2,
		FrameworkCISMultiplier:    0.95,
		FrameworkNISTMultiplier:   0.88,
		FrameworkISOMultiplier:    0.82,
	}
}

// RiskLevel is the classification of a compliance percentage.
type RiskLevel string

const (
	RiskUnavailable RiskLevel = "UNAVAILABLE"
	RiskCritical    RiskLevel = "CRITICAL"
	RiskHigh        RiskLevel = "HIGH"
	RiskMedium      RiskLevel = "MEDIUM"
	RiskLow         RiskLevel = "LOW"
)

// Impact and effort classifications for remediation prioritization.
const (
	ImpactHigh   = "High"
	ImpactMedium = "Medium"
	ImpactLow    = "Low"

	EffortHigh   = "High"
	EffortMedium = "Medium"
	EffortLow    = "Low"
)
