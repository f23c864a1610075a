package services

import (
	"time"

	"rillnet/internal/core/ports"
	"rillnet/pkg/cache"
)

// CachedStreamService wraps a ports.StreamService with a short-TTL
// cache in front of ListActiveStreams, which a busy admin dashboard
// may poll far more often than the stream set actually changes.
// StreamExists/CloseStream pass straight through: existence checks
// gate publish/subscribe admission and must never read stale data.
type CachedStreamService struct {
	base  ports.StreamService
	cache *cache.Cache
}

func NewCachedStreamService(base ports.StreamService, ttl time.Duration) ports.StreamService {
	return &CachedStreamService{
		base:  base,
		cache: cache.NewCache(ttl),
	}
}

func (s *CachedStreamService) StreamExists(streamID string) bool {
	return s.base.StreamExists(streamID)
}

func (s *CachedStreamService) CloseStream(streamID string) error {
	err := s.base.CloseStream(streamID)
	s.cache.Delete("streams:active")
	return err
}

func (s *CachedStreamService) ListActiveStreams() []string {
	if v, ok := s.cache.Get("streams:active"); ok {
		return v.([]string)
	}
	streams := s.base.ListActiveStreams()
	s.cache.Set("streams:active", streams)
	return streams
}

// Stop stops the cache's background cleanup goroutine.
func (s *CachedStreamService) Stop() {
	s.cache.Stop()
}
