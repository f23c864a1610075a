package memory

import (
	"context"
	"sync"

	"rillnet/internal/core/ports"
)

// MemoryForwarderDirectory is the single-instance ports.ForwarderDirectory
// used when Redis isn't configured: every stream's forwarder lives in
// this same process, so "directory" is just a map back to this
// instance's own address.
type MemoryForwarderDirectory struct {
	mu      sync.RWMutex
	streams map[string]string
}

func NewMemoryForwarderDirectory() ports.ForwarderDirectory {
	return &MemoryForwarderDirectory{
		streams: make(map[string]string),
	}
}

func (r *MemoryForwarderDirectory) Set(ctx context.Context, streamID, instanceAddr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[streamID] = instanceAddr
	return nil
}

func (r *MemoryForwarderDirectory) Get(ctx context.Context, streamID string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.streams[streamID]
	return addr, ok, nil
}

func (r *MemoryForwarderDirectory) Delete(ctx context.Context, streamID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, streamID)
	return nil
}

func (r *MemoryForwarderDirectory) ListStreams(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, id)
	}
	return ids, nil
}
