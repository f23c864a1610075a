package forward

import (
	"context"
	"io"
	"sync"

	"rillnet/internal/core/domain"
	"rillnet/pkg/broadcast"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// kindBinding tracks which remote track a subscriber's outbound sender
// for one media kind is currently relaying, and the cancel func for
// that relay goroutine.
type kindBinding struct {
	remote *webrtc.TrackRemote
	cancel context.CancelFunc
}

// Subscriber is one subscribe session: one subscriber peer whose
// outbound senders are bound to the stream's published-track registry
// and whose RTCP is demultiplexed onto the stream's RTCP bus.
//
// Grounded on internal/infrastructure/webrtc/sfu.go's
// forwardTrackToSubscribers (raw RTP relay loop) for the media path
// and _examples/Sean-Der-sfu-to-sfu/pkg/peer/subscription/subscription.go's
// readRTCP (PLI/FIR-only demux, everything else dropped) for the
// feedback path.
type Subscriber struct {
	peer   *Peer
	tracks *TrackRegistry
	watch  *broadcast.NotifySubscription
	rtcp   *broadcast.Bus[RTCPItem]
	logger *zap.SugaredLogger

	videoLocal *webrtc.TrackLocalStaticRTP
	audioLocal *webrtc.TrackLocalStaticRTP

	mu          sync.Mutex
	videoBind   *kindBinding
	audioBind   *kindBinding
}

// NewSubscriber constructs a subscribe session on peer, requesting a
// sendonly video transceiver when wantVideo is set and likewise for
// audio. It immediately binds against the current track set and spawns
// the binding loop (reacting to tracks-change notifications) and one
// RTCP demux loop per outbound sender that was created.
func NewSubscriber(
	peer *Peer,
	tracks *TrackRegistry,
	changeNotifier *broadcast.Notifier,
	rtcpBus *broadcast.Bus[RTCPItem],
	wantVideo, wantAudio bool,
	logger *zap.SugaredLogger,
) (*Subscriber, error) {
	s := &Subscriber{
		peer:   peer,
		tracks: tracks,
		watch:  changeNotifier.Watch(),
		rtcp:   rtcpBus,
		logger: logger,
	}

	if wantVideo {
		local, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", uuid.NewString())
		if err != nil {
			return nil, err
		}
		sender, err := peer.PC().AddTrack(local)
		if err != nil {
			return nil, err
		}
		s.videoLocal = local
		go s.readRTCP(sender, "video")
	}
	if wantAudio {
		local, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", uuid.NewString())
		if err != nil {
			return nil, err
		}
		sender, err := peer.PC().AddTrack(local)
		if err != nil {
			return nil, err
		}
		s.audioLocal = local
		go s.readRTCP(sender, "audio")
	}

	go s.bindingLoop()
	s.rebind() // bind against whatever tracks already exist

	return s, nil
}

// ID is the subscriber's session id.
func (s *Subscriber) ID() domain.SessionID { return s.peer.ID() }

// Peer exposes the underlying peer handle.
func (s *Subscriber) Peer() *Peer { return s.peer }

// Info snapshots the session's externally-visible state.
func (s *Subscriber) Info() domain.SessionInfo {
	return domain.SessionInfo{
		ID:           s.ID(),
		ConnectState: s.peer.ConnectionState().String(),
	}
}

// Close stops the binding loop, stops any active relays, and closes
// the underlying peer.
func (s *Subscriber) Close() error {
	s.watch.Unsubscribe()
	s.mu.Lock()
	if s.videoBind != nil {
		s.videoBind.cancel()
		s.videoBind = nil
	}
	if s.audioBind != nil {
		s.audioBind.cancel()
		s.audioBind = nil
	}
	s.mu.Unlock()
	return s.peer.Close()
}

// bindingLoop re-evaluates the active track selection every time the
// registry's change notifier fires, and stops on the peer's own
// context cancellation. It is level-triggered: it always consults the
// latest snapshot rather than replaying individual events.
func (s *Subscriber) bindingLoop() {
	for {
		select {
		case <-s.peer.Done():
			return
		case _, ok := <-s.watch.C():
			if !ok {
				return
			}
			s.rebind()
		}
	}
}

// rebind selects, per kind, the track whose RID matches the active
// simulcast selection (lowest RID present) and starts or stops the
// relay goroutine accordingly. When the registry is empty for a kind,
// any active relay for that kind is stopped.
func (s *Subscriber) rebind() {
	if s.videoLocal != nil {
		s.rebindKind("video", s.videoLocal, &s.videoBind)
	}
	if s.audioLocal != nil {
		s.rebindKind("audio", s.audioLocal, &s.audioBind)
	}
}

func (s *Subscriber) rebindKind(kind string, local *webrtc.TrackLocalStaticRTP, bindingSlot **kindBinding) {
	remote, ok := s.tracks.RemoteForRID(kind, "")

	s.mu.Lock()
	defer s.mu.Unlock()

	current := *bindingSlot
	if !ok {
		if current != nil {
			current.cancel()
			*bindingSlot = nil
		}
		return
	}
	if current != nil && current.remote == remote {
		return // already relaying the right source
	}
	if current != nil {
		current.cancel()
	}
	ctx, cancel := context.WithCancel(s.peer.Context())
	*bindingSlot = &kindBinding{remote: remote, cancel: cancel}
	go s.relay(ctx, remote, local)
}

// relay copies RTP packets from remote to local unmodified, preserving
// per-peer arrival order. It exits on ctx cancellation (selection
// changed, or peer gone) or a read/write error.
func (s *Subscriber) relay(ctx context.Context, remote *webrtc.TrackRemote, local *webrtc.TrackLocalStaticRTP) {
	buf := make([]byte, 1500)
	pkt := &rtp.Packet{}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, _, err := remote.Read(buf)
		if err != nil {
			if err != io.EOF {
				s.logger.Debugw("subscriber relay read ended", "session_id", s.ID(), "kind", remote.Kind().String(), "error", err)
			}
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if err := local.WriteRTP(pkt); err != nil {
			s.logger.Debugw("subscriber relay write ended", "session_id", s.ID(), "error", err)
			return
		}
	}
}

// readRTCP demultiplexes RTCP from sender: keyframe-request and
// bandwidth feedback messages are forwarded to the stream's RTCP bus
// tagged with the currently-bound remote track's SSRC (the
// publisher-side SSRC); everything else is dropped.
func (s *Subscriber) readRTCP(sender *webrtc.RTPSender, kind string) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			if !isFeedbackOfInterest(pkt) {
				continue
			}
			s.mu.Lock()
			var binding *kindBinding
			if kind == "video" {
				binding = s.videoBind
			} else {
				binding = s.audioBind
			}
			s.mu.Unlock()
			if binding == nil {
				continue
			}
			ssrc := uint32(binding.remote.SSRC())
			s.rtcp.Publish(RTCPItem{Packet: pkt, SSRC: ssrc})
		}
	}
}
