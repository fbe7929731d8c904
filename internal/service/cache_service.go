package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/schoolhub-dev/timetable-api/internal/models"
	appErrors "github.com/schoolhub-dev/timetable-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts the timetable read path with a Redis cache. Entries are
// invalidated on every save so readers never see a stale grid.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

func timetableCacheKey(classID string) string {
	return fmt.Sprintf("timetable:class:%s", classID)
}

// GetTimetable attempts to serve the class timetable from cache. It returns
// true on a hit.
func (s *CacheService) GetTimetable(ctx context.Context, classID string) (*models.Timetable, bool) {
	if !s.Enabled() {
		return nil, false
	}
	start := time.Now()
	var timetable models.Timetable
	err := s.repo.Get(ctx, timetableCacheKey(classID), &timetable)
	duration := time.Since(start)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false, duration)
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) && s.logger != nil {
			s.logger.Warn("timetable cache get failed", zap.String("class_id", classID), zap.Error(err))
		}
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(true, duration)
	}
	return &timetable, true
}

// SetTimetable stores the class timetable with the default TTL.
func (s *CacheService) SetTimetable(ctx context.Context, classID string, timetable *models.Timetable) {
	if !s.Enabled() || timetable == nil {
		return
	}
	start := time.Now()
	err := s.repo.Set(ctx, timetableCacheKey(classID), timetable, s.defaultTTL)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("timetable cache set failed", zap.String("class_id", classID), zap.Error(err))
	}
}

// InvalidateTimetable drops any cached grid for the class. Failures are
// logged, not surfaced; a save must never fail on cache trouble.
func (s *CacheService) InvalidateTimetable(ctx context.Context, classID string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, timetableCacheKey(classID)); err != nil {
		if s.logger != nil {
			s.logger.Warn("timetable cache invalidate failed", zap.String("class_id", classID), zap.Error(err))
		}
	}
}
