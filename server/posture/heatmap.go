package posture

import (
	"context"
	"sort"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/mapping"
	"github.com/soteriadm/soteria/server/soteria"
)

// Heatmap aggregates per-policy results into the D3FEND defensive heatmap.
// Policies without a CIS control or without a mapping record are left out;
// tactics end up in canonical order with unmapped tactics trailing.
func (e *Engine) Heatmap(ctx context.Context, filter soteria.ResultFilter) (*soteria.Heatmap, error) {
	stats, err := e.ds.ControlResultStats(ctx, filter)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "control stats for heatmap")
	}

	techniques := make(map[string]*soteria.HeatmapEntry)
	var tacticsSeen []string
	tacticSeen := make(map[string]bool)

	for _, s := range stats {
		if s.CISControl == nil {
			continue
		}
		rec, ok := e.mapping.Lookup(*s.CISControl)
		if !ok {
			continue
		}

		entry := techniques[rec.D3FENDID]
		if entry == nil {
			entry = &soteria.HeatmapEntry{
				TechniqueID: rec.D3FENDID,
				Technique:   rec.D3FENDTechnique,
				Tactic:      rec.D3FENDTactic,
			}
			techniques[rec.D3FENDID] = entry
			if !tacticSeen[rec.D3FENDTactic] {
				tacticSeen[rec.D3FENDTactic] = true
				tacticsSeen = append(tacticsSeen, rec.D3FENDTactic)
			}
		}
		entry.Pass += s.Pass
		entry.Fail += s.Fail
	}

	byTactic := make(map[string][]soteria.HeatmapEntry)
	for _, entry := range techniques {
		if total := entry.Pass + entry.Fail; total > 0 {
			entry.PassRate = float64(entry.Pass) / float64(total) * 100
		}
		byTactic[entry.Tactic] = append(byTactic[entry.Tactic], *entry)
	}

	heatmap := &soteria.Heatmap{}
	for _, tactic := range orderTactics(tacticsSeen, mapping.D3FENDTacticOrder) {
		entries := byTactic[tactic]
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].TechniqueID < entries[j].TechniqueID
		})
		heatmap.Tactics = append(heatmap.Tactics, soteria.HeatmapTactic{
			Tactic:     tactic,
			Techniques: entries,
		})
	}
	return heatmap, nil
}

// MitreMatrix aggregates per-policy results into the ATT&CK adversary
// matrix. A tactic's rate is the simple mean of its technique pass rates, so
// a technique covered by one policy weighs the same as one covered by many.
func (e *Engine) MitreMatrix(ctx context.Context, filter soteria.ResultFilter) ([]soteria.MatrixTactic, error) {
	stats, err := e.ds.ControlResultStats(ctx, filter)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "control stats for matrix")
	}

	techniques := make(map[string]*soteria.MatrixTechnique)
	techniqueTactic := make(map[string]string)
	var tacticsSeen []string
	tacticSeen := make(map[string]bool)

	for _, s := range stats {
		if s.CISControl == nil {
			continue
		}
		rec, ok := e.mapping.Lookup(*s.CISControl)
		if !ok {
			continue
		}

		tech := techniques[rec.ATTACKID]
		if tech == nil {
			tech = &soteria.MatrixTechnique{
				AttackID: rec.ATTACKID,
				Name:     rec.ATTACKTechnique,
			}
			techniques[rec.ATTACKID] = tech
			techniqueTactic[rec.ATTACKID] = rec.ATTACKTactic
			if !tacticSeen[rec.ATTACKTactic] {
				tacticSeen[rec.ATTACKTactic] = true
				tacticsSeen = append(tacticsSeen, rec.ATTACKTactic)
			}
		}
		tech.Pass += s.Pass
		tech.Total += s.Pass + s.Fail
	}

	byTactic := make(map[string][]soteria.MatrixTechnique)
	for id, tech := range techniques {
		if tech.Total > 0 {
			tech.PassRate = float64(tech.Pass) / float64(tech.Total) * 100
		}
		tactic := techniqueTactic[id]
		byTactic[tactic] = append(byTactic[tactic], *tech)
	}

	var matrix []soteria.MatrixTactic
	for _, tactic := range orderTactics(tacticsSeen, mapping.ATTACKTacticOrder) {
		techs := byTactic[tactic]
		sort.Slice(techs, func(i, j int) bool {
			return techs[i].AttackID < techs[j].AttackID
		})
		var rateSum float64
		for _, t := range techs {
			rateSum += t.PassRate
		}
		rate := 0.0
		if len(techs) > 0 {
			rate = rateSum / float64(len(techs))
		}
		matrix = append(matrix, soteria.MatrixTactic{
			Tactic:     tactic,
			Rate:       rate,
			Techniques: techs,
		})
	}
	return matrix, nil
}
