package forward

import (
	"sync"
	"time"

	"context"

	"rillnet/internal/core/domain"
	"rillnet/pkg/tracing"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Registry is the process-wide stream map: a single mutex-guarded
// mapping from stream id to Forwarder, whose critical sections
// strictly never perform I/O (they only touch the map).
type Registry struct {
	mu          sync.Mutex
	forwarders  map[domain.StreamID]*Forwarder
	iceServers  []webrtc.ICEServer
	subMax      int
	pubSem      chan struct{} // nil means unbounded; shared by every forwarder
	leaveTimeout time.Duration
	events      EventSink
	logger      *zap.SugaredLogger
}

// RegistryConfig bundles construction-time parameters shared by every
// forwarder the registry creates.
type RegistryConfig struct {
	ICEServers         []webrtc.ICEServer
	PubMax             int
	SubMax             int
	PublishLeaveTimeout time.Duration
	Events             EventSink
	Logger             *zap.SugaredLogger
}

// NewRegistry constructs an empty registry. PubMax, when > 0, bounds
// the number of concurrently active publish sessions across every
// stream the registry manages (stream_info.pub_max): a single
// buffered-channel semaphore shared by every Forwarder it creates,
// acquired in SetPublish and released in RemovePublish/Close.
func NewRegistry(cfg RegistryConfig) *Registry {
	timeout := cfg.PublishLeaveTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var pubSem chan struct{}
	if cfg.PubMax > 0 {
		pubSem = make(chan struct{}, cfg.PubMax)
	}
	return &Registry{
		forwarders:   make(map[domain.StreamID]*Forwarder),
		iceServers:   cfg.ICEServers,
		subMax:       cfg.SubMax,
		pubSem:       pubSem,
		leaveTimeout: timeout,
		events:       cfg.Events,
		logger:       cfg.Logger,
	}
}

// GetOrCreate returns the forwarder for streamID, creating one on
// first publisher or first subscriber arrival if it doesn't already
// exist.
func (r *Registry) GetOrCreate(streamID domain.StreamID) *Forwarder {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.forwarders[streamID]; ok {
		return f
	}
	f := NewForwarder(Config{
		StreamID:   streamID,
		SubMax:     r.subMax,
		PubSem:     r.pubSem,
		ICEServers: r.iceServers,
		Events:     r.events,
		Logger:     r.logger,
	})
	r.forwarders[streamID] = f
	return f
}

// Get returns the forwarder for streamID without creating one.
func (r *Registry) Get(streamID domain.StreamID) (*Forwarder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forwarders[streamID]
	return f, ok
}

// remove deletes streamID from the map without closing the forwarder;
// the caller closes it outside the lock, since the registry's critical
// section must stay strictly non-blocking.
func (r *Registry) remove(streamID domain.StreamID) (*Forwarder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forwarders[streamID]
	if ok {
		delete(r.forwarders, streamID)
	}
	return f, ok
}

// Reap runs one sweep of the external reaper: any forwarder with no
// publisher and no subscribers, whose publish_left_at is non-zero and
// older than the configured publish_leave_timeout, is removed from the
// map and closed. Returns the stream ids that were reaped.
func (r *Registry) Reap(now time.Time) []domain.StreamID {
	r.mu.Lock()
	var candidates []domain.StreamID
	for id, f := range r.forwarders {
		if !f.IsIdle() {
			continue
		}
		leftAt := f.PublishLeftAt()
		if leftAt == 0 {
			continue
		}
		if now.Sub(time.UnixMilli(leftAt)) < r.leaveTimeout {
			continue
		}
		candidates = append(candidates, id)
	}
	r.mu.Unlock()

	reaped := make([]domain.StreamID, 0, len(candidates))
	for _, id := range candidates {
		f, ok := r.remove(id)
		if !ok {
			continue
		}
		_, span := tracing.TraceForwardOperation(context.Background(), "reap", string(id))
		f.Close()
		span.End()
		reaped = append(reaped, id)
		if r.logger != nil {
			r.logger.Infow("reaped idle stream forwarder", "stream_id", id)
		}
	}
	return reaped
}

// RunReaper starts a goroutine that calls Reap on the given interval
// until the caller-supplied stop channel is closed.
func (r *Registry) RunReaper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				r.Reap(now)
			}
		}
	}()
}

// Len reports how many forwarders currently exist.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forwarders)
}

// Close force-closes and removes streamID's forwarder immediately,
// bypassing the leave-timeout reaper. Used by the admin "close stream"
// HTTP endpoint. Reports whether a forwarder existed.
func (r *Registry) Close(streamID domain.StreamID) bool {
	f, ok := r.remove(streamID)
	if !ok {
		return false
	}
	f.Close()
	return true
}

// ListStreamIDs returns every stream id currently tracked.
func (r *Registry) ListStreamIDs() []domain.StreamID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]domain.StreamID, 0, len(r.forwarders))
	for id := range r.forwarders {
		ids = append(ids, id)
	}
	return ids
}
