package forward

import (
	"context"
	"sync"

	"rillnet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

// Peer wraps one *webrtc.PeerConnection with a stable id and the
// cancellation primitive background loops watch.
//
// Background tasks need a way to stop when the peer connection goes
// away. Go has no public weak-pointer API, so Close is implemented
// with an explicit context.Context/cancel pair stored on the handle.
// Every long-lived loop selects on ctx.Done() alongside its blocking
// I/O, and the cancel func is guaranteed to run exactly once
// (sync.Once) whichever of "explicit Close" or "ICE/connection state
// observed Failed/Closed" happens first.
type Peer struct {
	id domain.SessionID
	pc *webrtc.PeerConnection

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu        sync.RWMutex
	connState webrtc.PeerConnectionState
}

// NewPeer wraps pc with a freshly generated session id and registers
// the state-change hook that cancels the peer's context once the
// connection is Failed or Closed.
func NewPeer(pc *webrtc.PeerConnection) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		id:        domain.SessionID(uuid.NewString()),
		pc:        pc,
		ctx:       ctx,
		cancel:    cancel,
		connState: webrtc.PeerConnectionStateNew,
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.mu.Lock()
		p.connState = s
		p.mu.Unlock()
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			p.Close()
		}
	})
	return p
}

// ID is the session id, stable for the peer's lifetime.
func (p *Peer) ID() domain.SessionID { return p.id }

// PC exposes the underlying pion peer connection.
func (p *Peer) PC() *webrtc.PeerConnection { return p.pc }

// Done returns a channel closed when the peer's context is cancelled
// (Close called, or connection observed Failed/Closed).
func (p *Peer) Done() <-chan struct{} { return p.ctx.Done() }

// Context returns the peer's cancellation context, for loops that need
// to select on it directly.
func (p *Peer) Context() context.Context { return p.ctx }

// ConnectionState reports the last observed peer connection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connState
}

// IsConnected reports whether the peer is currently in the Connected
// state (publish_is_ok / subscribe readiness checks use this).
func (p *Peer) IsConnected() bool {
	return p.ConnectionState() == webrtc.PeerConnectionStateConnected
}

// Close cancels the peer's context (ending all background loops bound
// to it) and closes the underlying peer connection. Safe to call more
// than once; only the first call has effect. Close errors are logged
// by the caller, never returned as fatal.
func (p *Peer) Close() error {
	var err error
	p.once.Do(func() {
		p.cancel()
		err = p.pc.Close()
	})
	return err
}
