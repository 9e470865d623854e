package posture

import (
	"context"
	"sort"
	"strings"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

// PrioritizedRemediation ranks every failing policy by blast radius:
// affected hosts descending, policy id ascending on ties. Impact follows the
// configured host-count thresholds, effort the configured name keywords.
func (e *Engine) PrioritizedRemediation(ctx context.Context, filter soteria.ResultFilter, cfg soteria.ScoringConfig) ([]soteria.RemediationItem, error) {
	stats, err := e.ds.ControlResultStats(ctx, filter)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "control stats for remediation")
	}

	var items []soteria.RemediationItem
	for _, s := range stats {
		if s.Fail == 0 {
			continue
		}
		items = append(items, soteria.RemediationItem{
			PolicyID:      s.PolicyID,
			Policy:        s.Name,
			Control:       s.CISControl,
			Resolution:    s.Resolution,
			AffectedHosts: s.Fail,
			Impact:        classifyImpact(s.Fail, cfg),
			Effort:        classifyEffort(s.Name, cfg),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].AffectedHosts != items[j].AffectedHosts {
			return items[i].AffectedHosts > items[j].AffectedHosts
		}
		return items[i].PolicyID < items[j].PolicyID
	})
	return items, nil
}

func classifyImpact(affected uint, cfg soteria.ScoringConfig) string {
	switch {
	case affected > uint(cfg.ImpactHighThreshold):
		return soteria.ImpactHigh
	case affected > uint(cfg.ImpactMediumThreshold):
		return soteria.ImpactMedium
	default:
		return soteria.ImpactLow
	}
}

// classifyEffort matches keywords against the policy name, case
// insensitively. Low-effort keywords win over high-effort ones when both
// match.
func classifyEffort(policyName string, cfg soteria.ScoringConfig) string {
	name := strings.ToLower(policyName)
	for _, kw := range cfg.EffortLowKeywords {
		if strings.Contains(name, strings.ToLower(kw)) {
			return soteria.EffortLow
		}
	}
	for _, kw := range cfg.EffortHighKeywords {
		if strings.Contains(name, strings.ToLower(kw)) {
			return soteria.EffortHigh
		}
	}
	return soteria.EffortMedium
}
