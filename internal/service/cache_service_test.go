package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub-dev/timetable-api/internal/models"
	appErrors "github.com/schoolhub-dev/timetable-api/pkg/errors"
)

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	_, hit := svc.GetTimetable(context.Background(), "class-a")
	assert.False(t, hit)

	svc.SetTimetable(context.Background(), "class-a", &models.Timetable{ID: "tt-1", ClassID: "class-a"})

	cached, hit := svc.GetTimetable(context.Background(), "class-a")
	require.True(t, hit)
	assert.Equal(t, "tt-1", cached.ID)
	assert.Equal(t, time.Minute, repo.ttls["timetable:class:class-a"])
}

func TestCacheServiceInvalidate(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	svc.SetTimetable(context.Background(), "class-a", &models.Timetable{ID: "tt-1", ClassID: "class-a"})
	svc.InvalidateTimetable(context.Background(), "class-a")

	_, hit := svc.GetTimetable(context.Background(), "class-a")
	assert.False(t, hit)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)

	svc.SetTimetable(context.Background(), "class-a", &models.Timetable{ID: "tt-1"})
	assert.Empty(t, repo.values, "disabled cache must never touch the repository")

	_, hit := svc.GetTimetable(context.Background(), "class-a")
	assert.False(t, hit)
}

func TestCacheServiceNilReceiver(t *testing.T) {
	var svc *CacheService
	assert.False(t, svc.Enabled())
}

type cacheRepoStub struct {
	values map[string][]byte
	ttls   map[string]time.Duration
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := s.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.values[key] = raw
	s.ttls[key] = ttl
	return nil
}

func (s *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	delete(s.values, pattern)
	return nil
}
