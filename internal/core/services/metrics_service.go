package services

import (
	"sync"
	"time"

	"rillnet/internal/core/domain"
)

// MetricsService is the default in-process forward.EventSink: it
// consumes ForwardEvents emitted by every stream forwarder and keeps a
// per-stream occupancy rollup for an out-of-band admin/metrics
// subscriber. Production wiring layers
// internal/infrastructure/distributed.EventBus in front of this so the
// same events also reach a Redis channel.
type MetricsService struct {
	mu      sync.RWMutex
	streams map[domain.StreamID]*domain.StreamMetrics
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		streams: make(map[domain.StreamID]*domain.StreamMetrics),
	}
}

// Publish implements forward.EventSink.
func (m *MetricsService) Publish(ev domain.ForwardEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	publishers := 0
	if ev.Info.PublishSession != nil {
		publishers = 1
	}

	m.streams[ev.StreamID] = &domain.StreamMetrics{
		StreamID:          ev.StreamID,
		ActivePublishers:  publishers,
		ActiveSubscribers: len(ev.Info.SubscribeSessions),
		Timestamp:         time.Now(),
	}
}

// GetStreamMetrics returns the last-known occupancy for streamID, or a
// zeroed snapshot if no event has been observed for it yet.
func (m *MetricsService) GetStreamMetrics(streamID domain.StreamID) *domain.StreamMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, ok := m.streams[streamID]; ok {
		return metrics
	}
	return &domain.StreamMetrics{StreamID: streamID, Timestamp: time.Now()}
}

// Snapshot returns every stream's last-known metrics, used by the
// Prometheus collector's periodic scrape.
func (m *MetricsService) Snapshot() []*domain.StreamMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.StreamMetrics, 0, len(m.streams))
	for _, v := range m.streams {
		out = append(out, v)
	}
	return out
}

// Forget drops a stream's metrics once its forwarder has been reaped.
func (m *MetricsService) Forget(streamID domain.StreamID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, streamID)
}
