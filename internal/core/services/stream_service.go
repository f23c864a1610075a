package services

import (
	"rillnet/internal/core/domain"
	"rillnet/internal/core/forward"
	"rillnet/internal/core/ports"
)

// streamService is the thin ports.StreamService façade over
// forward.Registry that HTTP handlers use for introspection/admin
// operations (stream existence checks, forced close, listing) outside
// the publish/subscribe SDP exchange itself.
type streamService struct {
	registry *forward.Registry
}

func NewStreamService(registry *forward.Registry) ports.StreamService {
	return &streamService{registry: registry}
}

func (s *streamService) StreamExists(streamID string) bool {
	_, ok := s.registry.Get(domain.StreamID(streamID))
	return ok
}

func (s *streamService) CloseStream(streamID string) error {
	if !s.registry.Close(domain.StreamID(streamID)) {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *streamService) ListActiveStreams() []string {
	ids := s.registry.ListStreamIDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
