package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/placement-rounds-api/internal/models"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
)

// cacheNamespace keeps projection keys apart from the limiter buckets sharing the same Redis.
const cacheNamespace = "placement:"

// CacheRepository stores serialised projections.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService is the read-through layer in front of application and round projections.
// Every method is a no-op on a nil or disabled service so callers never branch on it.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get decodes the projection stored under key into dest and reports whether it was present.
// Backend failures count as misses; the error is returned for callers that care.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, cacheNamespace+key, dest)
	s.observeRead(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("projection cache read failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores value under key. A non-positive ttl uses the configured projection TTL.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, cacheNamespace+key, value, ttl)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil {
		s.logger.Warn("projection cache write failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Forget drops exact keys.
func (s *CacheService) Forget(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}
	namespaced := make([]string, len(keys))
	for i, key := range keys {
		namespaced[i] = cacheNamespace + key
	}
	if err := s.repo.Delete(ctx, namespaced...); err != nil {
		s.logger.Warn("projection cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return err
	}
	return nil
}

// ForgetApplication drops the application projection and every cached listing of its job.
func (s *CacheService) ForgetApplication(ctx context.Context, app *models.Application) {
	if !s.Enabled() || app == nil {
		return
	}
	_ = s.Forget(ctx, applicationCacheKey(app.ID))
	pattern := cacheNamespace + jobApplicationsPattern(app.JobID)
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("projection cache sweep failed", zap.String("job_id", app.JobID), zap.Error(err))
	}
}

func (s *CacheService) observeRead(hit bool, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit, d)
	}
}

func applicationCacheKey(id string) string {
	return "application:" + id
}

func jobApplicationsPattern(jobID string) string {
	return "job:" + jobID + ":applications:*"
}

func applicationListKey(filter models.ApplicationFilter) string {
	status := ""
	if filter.FinalStatus != nil {
		status = string(*filter.FinalStatus)
	}
	return fmt.Sprintf("job:%s:applications:round=%s:status=%s:page=%d:size=%d",
		filter.JobID, filter.RoundID, status, filter.Page, filter.PageSize)
}

func jobRoundsKey(jobID string) string {
	return "job:" + jobID + ":rounds"
}
