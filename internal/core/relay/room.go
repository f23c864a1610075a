package relay

import "sync"

// Room holds the stream_id -> group mapping for the WS relay. Its
// critical sections only ever touch the map, mirroring
// forward.Registry's "strictly non-blocking" rule for the same
// reason: I/O inside the lock would stall every other stream's
// join/leave.
type Room struct {
	mu     sync.Mutex
	groups map[string]*Group
}

// NewRoom constructs an empty room.
func NewRoom() *Room {
	return &Room{groups: make(map[string]*Group)}
}

// JoinOrCreate admits s into the group for streamID, creating the
// group on first arrival. Transitions s to Joined and broadcasts the
// synthetic open control frame to every existing member.
func (r *Room) JoinOrCreate(streamID string, s *Session) *Group {
	r.mu.Lock()
	g, ok := r.groups[streamID]
	if !ok {
		g = newGroup()
		r.groups[streamID] = g
	}
	r.mu.Unlock()

	g.broadcast(openFrame(s.UserID))
	sub := g.join(s)
	s.markJoined(g, sub)
	return g
}

// LeaveGroup removes s from its group and, if the group is now empty,
// removes the group from the room. Safe to call more than once; a
// session that never joined or already left is a no-op.
func (r *Room) LeaveGroup(s *Session) {
	g := s.currentGroup()
	if g == nil {
		s.markClosed()
		return
	}

	g.leave(s.UserID)
	s.markClosed()

	if g.isEmpty() {
		r.mu.Lock()
		if cur, ok := r.groups[s.StreamID]; ok && cur == g {
			delete(r.groups, s.StreamID)
		}
		r.mu.Unlock()
	}
}

// GroupCount reports how many groups (active streams) the room
// currently tracks.
func (r *Room) GroupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}
