package service

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/go-kit/kit/log/level"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/soteria"
)

// ScoringConfig assembles the effective scoring parameters: stored values
// layered over the documented defaults. A stored value that fails to parse
// is logged and ignored so one bad row cannot take the scoring surface down.
func (s *Service) ScoringConfig(ctx context.Context) (soteria.ScoringConfig, error) {
	cfg := soteria.DefaultScoringConfig()
	stored, err := s.ds.ConfigValues(ctx)
	if err != nil {
		return cfg, ctxerr.Wrap(ctx, err, "load config settings")
	}

	for key, value := range stored {
		if err := applySetting(&cfg, key, value); err != nil {
			level.Info(s.logger).Log("msg", "ignoring invalid config setting", "key", key, "err", err)
		}
	}
	return cfg, nil
}

// SetConfigValue validates and persists one scoring parameter.
func (s *Service) SetConfigValue(ctx context.Context, key, value string) error {
	probe := soteria.DefaultScoringConfig()
	if err := applySetting(&probe, key, value); err != nil {
		return err
	}
	if err := s.ds.SetConfigValue(ctx, key, value); err != nil {
		return ctxerr.Wrap(ctx, err, "persist config setting")
	}
	return nil
}

func applySetting(cfg *soteria.ScoringConfig, key, value string) error {
	switch key {
	case soteria.ConfigKeyImpactHighThreshold:
		return parsePositiveInt(key, value, &cfg.ImpactHighThreshold)
	case soteria.ConfigKeyImpactMediumThreshold:
		return parsePositiveInt(key, value, &cfg.ImpactMediumThreshold)
	case soteria.ConfigKeyEffortLowKeywords:
		return parseKeywordList(key, value, &cfg.EffortLowKeywords)
	case soteria.ConfigKeyEffortHighKeywords:
		return parseKeywordList(key, value, &cfg.EffortHighKeywords)
	case soteria.ConfigKeySecurityDebtHoursPerIssue:
		return parsePositiveFloat(key, value, &cfg.SecurityDebtHoursPerIssue)
	case soteria.ConfigKeyRiskExposureMultiplier:
		return parsePositiveFloat(key, value, &cfg.RiskExposureMultiplier)
	case soteria.ConfigKeyFrameworkCISMultiplier:
		return parsePositiveFloat(key, value, &cfg.FrameworkCISMultiplier)
	case soteria.ConfigKeyFrameworkNISTMultiplier:
		return parsePositiveFloat(key, value, &cfg.FrameworkNISTMultiplier)
	case soteria.ConfigKeyFrameworkISOMultiplier:
		return parsePositiveFloat(key, value, &cfg.FrameworkISOMultiplier)
	default:
		return &soteria.ConfigValidationError{Key: key, Reason: "unknown setting"}
	}
}

func parsePositiveInt(key, value string, dst *int) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return &soteria.ConfigValidationError{Key: key, Reason: "not an integer"}
	}
	if n < 1 {
		return &soteria.ConfigValidationError{Key: key, Reason: "must be at least 1"}
	}
	*dst = n
	return nil
}

func parsePositiveFloat(key, value string, dst *float64) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return &soteria.ConfigValidationError{Key: key, Reason: "not a number"}
	}
	if f <= 0 {
		return &soteria.ConfigValidationError{Key: key, Reason: "must be positive"}
	}
	*dst = f
	return nil
}

func parseKeywordList(key, value string, dst *[]string) error {
	var keywords []string
	if err := json.Unmarshal([]byte(value), &keywords); err != nil {
		return &soteria.ConfigValidationError{Key: key, Reason: "not a JSON string array"}
	}
	for _, kw := range keywords {
		if kw == "" {
			return &soteria.ConfigValidationError{Key: key, Reason: "keywords must be non-empty"}
		}
	}
	*dst = keywords
	return nil
}
