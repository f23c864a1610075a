package relay

import "sync"

// State is a WS relay session's lifecycle state: Connecting -> Joined
// -> Closed.
type State int

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const sessionInboxCapacity = 256

// Session is one connected WS relay user. It owns a unicast inbox fed
// by Group.unicast and, once joined, a subscription to its group's
// broadcast bus; the transport layer (internal/infrastructure/signal)
// drains both into the socket write side.
type Session struct {
	UserID   int32
	StreamID string

	mu    sync.Mutex
	state State
	group *Group

	inbox        chan []byte
	broadcastSub *Subscription

	lagged     chan struct{}
	laggedOnce sync.Once
}

// NewSession constructs a session in the Connecting state, before it
// has been placed into a group.
func NewSession(userID int32, streamID string) *Session {
	return &Session{
		UserID:   userID,
		StreamID: streamID,
		state:    StateConnecting,
		inbox:    make(chan []byte, sessionInboxCapacity),
		lagged:   make(chan struct{}),
	}
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) markJoined(g *Group, sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateJoined
	s.group = g
	s.broadcastSub = sub
}

func (s *Session) markClosed() {
	s.mu.Lock()
	sub := s.broadcastSub
	s.state = StateClosed
	s.broadcastSub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (s *Session) currentGroup() *Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group
}

// Group returns the session's current group, or nil before it has
// joined one.
func (s *Session) Group() *Group {
	return s.currentGroup()
}

// Inbox is the channel of frames unicast-addressed to this session.
func (s *Session) Inbox() <-chan []byte {
	return s.inbox
}

// Broadcast is the channel of frames broadcast to this session's
// group. Nil until the session has joined a group.
func (s *Session) Broadcast() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broadcastSub == nil {
		return nil
	}
	return s.broadcastSub.C()
}

// Lagged is closed once this session's unicast inbox overflows. The
// WS relay treats this as fatal for the socket and closes it.
func (s *Session) Lagged() <-chan struct{} {
	return s.lagged
}

// deliver pushes a unicast frame into the inbox without blocking; a
// full inbox trips Lagged instead of stalling the router.
func (s *Session) deliver(frame []byte) {
	select {
	case s.inbox <- frame:
	default:
		s.laggedOnce.Do(func() { close(s.lagged) })
	}
}
