package forward

import (
	"sort"
	"sync"

	"rillnet/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// trackEntry pairs the domain-level PublishedTrack description with
// the live remote track handle subscribers bind outbound senders to.
type trackEntry struct {
	domain.PublishedTrack
	remote *webrtc.TrackRemote
}

// TrackRegistry is the ordered set of the publisher's currently active
// remote tracks, keyed by RID. It is sorted ascending by RID on every
// insert, empty string sorting before any non-empty RID, with
// insertion order breaking ties among duplicate RIDs, using
// sort.SliceStable so equal keys never get reordered relative to each
// other.
type TrackRegistry struct {
	mu      sync.RWMutex
	entries []trackEntry
}

// NewTrackRegistry returns an empty registry.
func NewTrackRegistry() *TrackRegistry {
	return &TrackRegistry{}
}

// Add appends track, re-sorts by RID ascending (stable), and returns
// the new size.
func (r *TrackRegistry) Add(track domain.PublishedTrack, remote *webrtc.TrackRemote) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, trackEntry{PublishedTrack: track, remote: remote})
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].RID < r.entries[j].RID
	})
	return len(r.entries)
}

// Clear empties the registry atomically, used when the publisher
// departs.
func (r *TrackRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// Snapshot returns a copy of the current tracks in RID order. The
// caller holds no lock while using the result.
func (r *TrackRegistry) Snapshot() []domain.PublishedTrack {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PublishedTrack, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.PublishedTrack
	}
	return out
}

// RemoteForRID returns the live remote track bound to a given RID and
// kind, selecting the lowest-RID entry of that kind (registry order)
// when rid is empty.
func (r *TrackRegistry) RemoteForRID(kind, rid string) (*webrtc.TrackRemote, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rid != "" {
		for _, e := range r.entries {
			if e.Kind == kind && e.RID == rid {
				return e.remote, true
			}
		}
		return nil, false
	}
	for _, e := range r.entries {
		if e.Kind == kind {
			return e.remote, true
		}
	}
	return nil, false
}

// Empty reports whether no tracks are currently registered.
func (r *TrackRegistry) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries) == 0
}
