package forward

import (
	"time"

	"rillnet/internal/core/domain"
	"rillnet/pkg/broadcast"

	"github.com/pion/rtcp"
	"go.uber.org/zap"
)

// Publisher is one publish session: the single producing peer of a
// stream. Its remote tracks are added to the stream's TrackRegistry by
// Forwarder.PublishTrackUp; the Publisher itself consumes RTCP feedback destined for it from the stream's RTCP bus,
// rewriting each message's SSRC to the publisher's own track before
// writing it out.
//
// Construction captures mediaInfo from the remote SDP and spawns
// forwardRTCP, which loops on a broadcast subscription and the peer's
// cancellation context; the loop exits on either ctx.Done() or rtcp
// subscription exhaustion/write error.
type Publisher struct {
	peer       *Peer
	mediaInfo  domain.MediaInfo
	createdAt  int64
	logger     *zap.SugaredLogger
	rtcpSub    *broadcast.Subscription[RTCPItem]
}

// NewPublisher constructs a publish session bound to peer, records
// mediaInfo (parsed once by the caller from the remote SDP), and
// spawns the RTCP forwarding loop against rtcpBus.
func NewPublisher(peer *Peer, mediaInfo domain.MediaInfo, rtcpBus *broadcast.Bus[RTCPItem], logger *zap.SugaredLogger) *Publisher {
	pub := &Publisher{
		peer:      peer,
		mediaInfo: mediaInfo,
		createdAt: time.Now().UnixMilli(),
		logger:    logger,
		rtcpSub:   rtcpBus.Subscribe(),
	}
	go pub.forwardRTCP()
	return pub
}

// ID is the publisher's session id (stable for the peer's lifetime).
func (p *Publisher) ID() domain.SessionID { return p.peer.ID() }

// Peer exposes the underlying peer handle.
func (p *Publisher) Peer() *Peer { return p.peer }

// Info snapshots the session's externally-visible state.
func (p *Publisher) Info() domain.SessionInfo {
	return domain.SessionInfo{
		ID:           p.ID(),
		CreateTime:   p.createdAt,
		ConnectState: p.peer.ConnectionState().String(),
	}
}

// Close tears down the RTCP subscription and the underlying peer.
func (p *Publisher) Close() error {
	p.rtcpSub.Unsubscribe()
	return p.peer.Close()
}

// forwardRTCP consumes items broadcast on the stream's RTCP bus and
// writes each one to the publisher's peer connection after rewriting
// its SSRC. Exits cleanly when the peer's context is cancelled (peer
// gone) or a write fails.
func (p *Publisher) forwardRTCP() {
	defer p.rtcpSub.Unsubscribe()
	for {
		select {
		case <-p.peer.Done():
			return
		case item, ok := <-p.rtcpSub.C():
			if !ok {
				return
			}
			rewriteMediaSSRC(item.Packet, item.SSRC)
			if err := p.peer.PC().WriteRTCP([]rtcp.Packet{item.Packet}); err != nil {
				p.logger.Debugw("publisher rtcp write failed, ending forward loop", "session_id", p.ID(), "error", err)
				return
			}
		}
	}
}
