package relay

import (
	"sync"

	"rillnet/pkg/broadcast"
)

// groupBusCapacity sizes the WS relay's broadcast bus the same way
// the data-channel fan-out sizes its own (1024 entries): a slow group
// member loses broadcast frames rather than stalling every sender.
const groupBusCapacity = 1024

// Subscription is a group broadcast bus handle.
type Subscription = broadcast.Subscription[[]byte]

// Group is one stream's set of joined relay users: a unicast inbox
// per user id plus one shared broadcast bus, the direct analogue of
// internal/core/forward.Forwarder's publisher/subscribers split one
// layer up the stack.
type Group struct {
	mu    sync.RWMutex
	users map[int32]*Session
	bus   *broadcast.Bus[[]byte]
}

func newGroup() *Group {
	return &Group{
		users: make(map[int32]*Session),
		bus:   broadcast.NewBus[[]byte](groupBusCapacity),
	}
}

func (g *Group) join(s *Session) *Subscription {
	sub := g.bus.Subscribe()
	g.mu.Lock()
	g.users[s.UserID] = s
	g.mu.Unlock()
	return sub
}

func (g *Group) leave(userID int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.users, userID)
}

func (g *Group) isEmpty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.users) == 0
}

// unicast delivers frame to userID's inbox. Unknown ids are silently
// dropped.
func (g *Group) unicast(userID int32, frame []byte) {
	g.mu.RLock()
	s, ok := g.users[userID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	s.deliver(frame)
}

func (g *Group) broadcast(frame []byte) {
	g.bus.Publish(frame)
}

// Size reports the current member count.
func (g *Group) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.users)
}
