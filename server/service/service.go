// Package service is the application layer tying the sync controller, the
// posture engine and the datastore together behind one API for transports
// and the daemon to consume.
package service

import (
	"context"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/patrickmn/go-cache"

	"github.com/soteriadm/soteria/server/contexts/ctxerr"
	"github.com/soteriadm/soteria/server/posture"
	"github.com/soteriadm/soteria/server/soteria"
)

// Syncer triggers a synchronization cycle. Implemented by sync.Controller.
type Syncer interface {
	RunSync(ctx context.Context) (*soteria.SyncSummary, error)
}

// vocabTTL bounds how stale the filter vocabulary may get between syncs.
const (
	vocabTTL     = 30 * time.Second
	vocabCleanup = 5 * time.Minute
)

type Service struct {
	ds     soteria.Datastore
	syncer Syncer
	engine *posture.Engine
	logger kitlog.Logger
	vocab  *cache.Cache
}

func NewService(ds soteria.Datastore, syncer Syncer, engine *posture.Engine, logger kitlog.Logger) *Service {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return &Service{
		ds:     ds,
		syncer: syncer,
		engine: engine,
		logger: logger,
		vocab:  cache.New(vocabTTL, vocabCleanup),
	}
}

// TriggerSync starts a sync cycle. Returns soteria.ErrSyncAlreadyRunning
// when one is in flight.
func (s *Service) TriggerSync(ctx context.Context) (*soteria.SyncSummary, error) {
	return s.syncer.RunSync(ctx)
}

// SyncStatus returns the most recent sync run, or nil before the first one.
func (s *Service) SyncStatus(ctx context.Context) (*soteria.SyncRun, error) {
	return s.ds.LatestSyncRun(ctx)
}

func (s *Service) ComplianceSummary(ctx context.Context, filter soteria.ResultFilter) (*soteria.Summary, error) {
	return s.engine.Summary(ctx, filter)
}

func (s *Service) Heatmap(ctx context.Context, filter soteria.ResultFilter) (*soteria.Heatmap, error) {
	return s.engine.Heatmap(ctx, filter)
}

func (s *Service) MitreMatrix(ctx context.Context, filter soteria.ResultFilter) ([]soteria.MatrixTactic, error) {
	return s.engine.MitreMatrix(ctx, filter)
}

func (s *Service) PrioritizedRemediation(ctx context.Context, filter soteria.ResultFilter) ([]soteria.RemediationItem, error) {
	cfg, err := s.ScoringConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.PrioritizedRemediation(ctx, filter, cfg)
}

// StrategyReport is the composite planning view: posture, debt, exposure
// and the team leaderboard in one payload.
type StrategyReport struct {
	Posture     *soteria.PostureReport     `json:"posture"`
	Debt        *posture.Debt              `json:"security_debt"`
	Exposure    float64                    `json:"risk_exposure"`
	Leaderboard []soteria.LeaderboardEntry `json:"leaderboard"`
}

func (s *Service) Strategy(ctx context.Context, filter soteria.ResultFilter) (*StrategyReport, error) {
	cfg, err := s.ScoringConfig(ctx)
	if err != nil {
		return nil, err
	}

	report, err := s.engine.PostureScore(ctx, filter, cfg)
	if err != nil {
		return nil, err
	}
	debt, err := s.engine.SecurityDebt(ctx, filter, cfg)
	if err != nil {
		return nil, err
	}
	exposure, err := s.engine.RiskExposure(ctx, filter, cfg)
	if err != nil {
		return nil, err
	}
	leaderboard, err := s.engine.TeamLeaderboard(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &StrategyReport{
		Posture:     report,
		Debt:        debt,
		Exposure:    exposure,
		Leaderboard: leaderboard,
	}, nil
}

// FilterOptions is the vocabulary available for result filters.
type FilterOptions struct {
	Teams      []string            `json:"teams"`
	Platforms  []string            `json:"platforms"`
	Labels     []string            `json:"labels"`
	OSVersions map[string][]string `json:"os_versions"`
}

// FilterVocabulary returns the current filter vocabulary, cached briefly so
// dashboard polling does not hammer the datastore.
func (s *Service) FilterVocabulary(ctx context.Context) (*FilterOptions, error) {
	const key = "filter_vocabulary"
	if cached, ok := s.vocab.Get(key); ok {
		return cached.(*FilterOptions), nil
	}

	teams, err := s.ds.TeamNames(ctx)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "filter vocabulary teams")
	}
	platforms, err := s.ds.Platforms(ctx)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "filter vocabulary platforms")
	}
	labels, err := s.ds.LabelNames(ctx)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "filter vocabulary labels")
	}
	osVersions, err := s.ds.OSVersions(ctx)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "filter vocabulary os versions")
	}

	opts := &FilterOptions{
		Teams:      teams,
		Platforms:  platforms,
		Labels:     labels,
		OSVersions: osVersions,
	}
	s.vocab.SetDefault(key, opts)
	return opts, nil
}
