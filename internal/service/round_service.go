package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/placement-rounds-api/internal/models"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
)

// RoundService serves read-only catalog lookups.
type RoundService struct {
	rounds roundCatalog
	cache  *CacheService
	logger *zap.Logger
}

// NewRoundService constructs a RoundService. cache may be nil.
func NewRoundService(rounds roundCatalog, cache *CacheService, logger *zap.Logger) *RoundService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoundService{rounds: rounds, cache: cache, logger: logger}
}

// ListByJob returns the rounds of a job ordered by sequence.
func (s *RoundService) ListByJob(ctx context.Context, jobID string) ([]models.JobRound, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "jobId is required")
	}
	key := jobRoundsKey(jobID)
	var cached []models.JobRound
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	rounds, err := s.rounds.ListByJob(ctx, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rounds")
	}
	if len(rounds) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job has no rounds")
	}
	_ = s.cache.Set(ctx, key, rounds, 0)
	return rounds, nil
}

// Get returns a single round.
func (s *RoundService) Get(ctx context.Context, roundID string) (*models.JobRound, error) {
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, mapRoundError(err)
	}
	return round, nil
}
