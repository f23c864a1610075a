package forward

import (
	"sync"
	"sync/atomic"
	"time"

	"rillnet/internal/core/domain"
	"rillnet/pkg/broadcast"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// EventSink receives ForwardEvents emitted by a Forwarder. The
// in-process default just drops events nobody reads; production wiring
// is internal/infrastructure/distributed.EventBus, which additionally
// republishes over Redis for an out-of-band metrics/admin subscriber.
type EventSink interface {
	Publish(domain.ForwardEvent)
}

// NopEventSink discards every event. Used where no EventSink was
// injected.
type NopEventSink struct{}

// Publish implements EventSink.
func (NopEventSink) Publish(domain.ForwardEvent) {}

// Forwarder is the per-stream aggregate: it owns the singleton
// publish session, the bounded set of subscribe sessions, the
// published-track registry, and the RTCP/data-channel buses, and
// enforces the stream's concurrency invariants.
//
// Lock order is publish -> subscribers -> tracks -> timestamps (any
// prefix is fine, never acquired out of order; tracks and timestamps
// each guard themselves independently so most operations only ever
// need to hold one of these at a time).
type Forwarder struct {
	streamID  domain.StreamID
	createdAt int64

	subMax int
	pubSem chan struct{} // nil means unbounded; may be shared process-wide by Registry

	publishMu sync.RWMutex
	publish   *Publisher

	subsMu      sync.RWMutex
	subscribers map[domain.SessionID]*Subscriber

	tracks       *TrackRegistry
	tracksChange *broadcast.Notifier

	rtcpBus *broadcast.Bus[RTCPItem]
	dcBus   *broadcast.Bus[[]byte]

	tsMu            sync.RWMutex
	publishLeftAt   int64
	subscribeLeftAt int64

	nextOriginID uint32 // atomic; publisher is always origin 0

	iceServers []webrtc.ICEServer
	events     EventSink
	logger     *zap.SugaredLogger
}

// Config bundles the construction-time parameters of a Forwarder.
type Config struct {
	StreamID   domain.StreamID
	SubMax     int           // 0 means unbounded
	PubSem     chan struct{} // nil means unbounded; stream_info.pub_max, typically shared across forwarders by Registry
	ICEServers []webrtc.ICEServer
	Events     EventSink
	Logger     *zap.SugaredLogger
}

// NewForwarder constructs an empty forwarder for one stream.
func NewForwarder(cfg Config) *Forwarder {
	events := cfg.Events
	if events == nil {
		events = NopEventSink{}
	}
	return &Forwarder{
		streamID:     cfg.StreamID,
		createdAt:    time.Now().UnixMilli(),
		subMax:       cfg.SubMax,
		pubSem:       cfg.PubSem,
		subscribers:  make(map[domain.SessionID]*Subscriber),
		tracks:       NewTrackRegistry(),
		tracksChange: broadcast.NewNotifier(),
		rtcpBus:      broadcast.NewBus[RTCPItem](48),
		dcBus:        broadcast.NewBus[[]byte](1024),
		iceServers:   cfg.ICEServers,
		events:       events,
		logger:       cfg.Logger,
	}
}

// StreamID returns the forwarder's stream id.
func (f *Forwarder) StreamID() domain.StreamID { return f.streamID }

// ICEServers returns the immutable ICE server list captured at
// construction.
func (f *Forwarder) ICEServers() []webrtc.ICEServer { return f.iceServers }

// TracksChangeWatch registers a watcher on the track-change notifier.
// Exposed so infra-layer subscriber construction can watch it too.
func (f *Forwarder) TracksChangeWatch() *broadcast.NotifySubscription { return f.tracksChange.Watch() }

// RTCPBus exposes the stream's RTCP feedback bus.
func (f *Forwarder) RTCPBus() *broadcast.Bus[RTCPItem] { return f.rtcpBus }

// DCBus exposes the stream's data-channel fan-out bus.
func (f *Forwarder) DCBus() *broadcast.Bus[[]byte] { return f.dcBus }

// Tracks exposes the published-track registry.
func (f *Forwarder) Tracks() *TrackRegistry { return f.tracks }

// PublishIsSome reports whether a publisher is currently set.
func (f *Forwarder) PublishIsSome() bool {
	f.publishMu.RLock()
	defer f.publishMu.RUnlock()
	return f.publish != nil
}

// PublishIsOk reports whether a publisher is set and its peer
// connection is Connected.
func (f *Forwarder) PublishIsOk() bool {
	f.publishMu.RLock()
	defer f.publishMu.RUnlock()
	return f.publish != nil && f.publish.Peer().IsConnected()
}

// SetPublish installs pc as the stream's publisher. Fails with
// domain.ErrStreamAlreadyExists if one is already set: the publisher
// is a singleton, and publishMu serializes the race so exactly one
// concurrent caller can win it. Also fails with ErrStreamAlreadyExists
// if pubSem is non-nil and already at capacity (stream_info.pub_max
// reached process-wide); the slot is released in RemovePublish/Close.
func (f *Forwarder) SetPublish(pc *webrtc.PeerConnection, mediaInfo domain.MediaInfo) (*Publisher, error) {
	f.publishMu.Lock()
	if f.publish != nil {
		f.publishMu.Unlock()
		return nil, domain.ErrStreamAlreadyExists
	}
	if f.pubSem != nil {
		select {
		case f.pubSem <- struct{}{}:
		default:
			f.publishMu.Unlock()
			return nil, domain.ErrStreamAlreadyExists
		}
	}
	peer := NewPeer(pc)
	pub := NewPublisher(peer, mediaInfo, f.rtcpBus, f.logger)
	f.publish = pub
	f.publishMu.Unlock()

	f.tsMu.Lock()
	f.publishLeftAt = 0
	f.tsMu.Unlock()

	f.events.Publish(domain.ForwardEvent{
		Type:      domain.ForwardEventPublishUp,
		StreamID:  f.streamID,
		SessionID: pub.ID(),
		Info:      f.Info(),
	})
	return pub, nil
}

// RemovePublish clears the publisher identified by peerID. Fails with
// domain.ErrNotOwner if peerID does not match the current publisher,
// or domain.ErrNoPublisher if none is set. On success it atomically
// empties the track registry and wakes every subscriber's binding loop
// before stamping publish_left_at and emitting PublishDown. Tracks are
// cleared and watchers notified while still holding publishMu, so
// every subscriber observes the track removal before any subsequent
// SetPublish can add new tracks.
func (f *Forwarder) RemovePublish(peerID domain.SessionID) error {
	f.publishMu.Lock()
	defer f.publishMu.Unlock()

	if f.publish == nil {
		return domain.ErrNoPublisher
	}
	if f.publish.ID() != peerID {
		return domain.ErrNotOwner
	}

	pub := f.publish
	f.publish = nil
	f.releasePubSlot()

	f.tracks.Clear()
	f.tracksChange.Signal()

	_ = pub.Close()

	f.tsMu.Lock()
	f.publishLeftAt = time.Now().UnixMilli()
	f.tsMu.Unlock()

	f.events.Publish(domain.ForwardEvent{
		Type:      domain.ForwardEventPublishDown,
		StreamID:  f.streamID,
		SessionID: peerID,
		Info:      f.Info(),
	})
	return nil
}

// PublishTrackUp appends track to the registry (re-sorted by RID,
// insertion order breaking ties) and wakes every subscriber's binding
// loop.
func (f *Forwarder) PublishTrackUp(track domain.PublishedTrack, remote *webrtc.TrackRemote) {
	f.tracks.Add(track, remote)
	f.tracksChange.Signal()
}

// NewSubscriber validates the requested media shape, constructs a
// subscribe session bound to the stream's track registry/RTCP bus, and
// registers it. Fails with domain.ErrNoPublisher if no publisher is
// present, or domain.ErrInvalidMedia if videoCount/audioCount is
// outside {0,1} (at most one sendonly transceiver per media kind).
func (f *Forwarder) NewSubscriber(pc *webrtc.PeerConnection, videoCount, audioCount int) (*Subscriber, error) {
	if !f.PublishIsSome() {
		return nil, domain.ErrNoPublisher
	}
	if videoCount < 0 || videoCount > 1 || audioCount < 0 || audioCount > 1 {
		return nil, domain.ErrInvalidMedia
	}

	f.subsMu.Lock()
	if f.subMax > 0 && len(f.subscribers) >= f.subMax {
		f.subsMu.Unlock()
		return nil, domain.ErrInvalidMedia
	}
	f.subsMu.Unlock()

	peer := NewPeer(pc)
	sub, err := NewSubscriber(peer, f.tracks, f.tracksChange, f.rtcpBus, videoCount == 1, audioCount == 1, f.logger)
	if err != nil {
		_ = peer.Close()
		return nil, err
	}

	f.subsMu.Lock()
	f.subscribers[sub.ID()] = sub
	f.subsMu.Unlock()

	f.tsMu.Lock()
	f.subscribeLeftAt = 0
	f.tsMu.Unlock()

	f.events.Publish(domain.ForwardEvent{
		Type:      domain.ForwardEventSubscribeUp,
		StreamID:  f.streamID,
		SessionID: sub.ID(),
		Info:      f.Info(),
	})
	return sub, nil
}

// RemoveSubscribe removes the subscribe session identified by
// sessionID. Fails with domain.ErrSessionNotFound if absent: removal
// is idempotent, the first call succeeds and a second call on the
// same id returns ErrSessionNotFound. When the subscriber set becomes
// empty, subscribe_left_at is stamped.
func (f *Forwarder) RemoveSubscribe(sessionID domain.SessionID) error {
	f.subsMu.Lock()
	sub, ok := f.subscribers[sessionID]
	if !ok {
		f.subsMu.Unlock()
		return domain.ErrSessionNotFound
	}
	delete(f.subscribers, sessionID)
	empty := len(f.subscribers) == 0
	f.subsMu.Unlock()

	_ = sub.Close()

	if empty {
		f.tsMu.Lock()
		f.subscribeLeftAt = time.Now().UnixMilli()
		f.tsMu.Unlock()
	}

	f.events.Publish(domain.ForwardEvent{
		Type:      domain.ForwardEventSubscribeDown,
		StreamID:  f.streamID,
		SessionID: sessionID,
		Info:      f.Info(),
	})
	return nil
}

// releasePubSlot gives back this forwarder's pubSem slot, if any.
// Called with publishMu held, after f.publish has already been
// cleared. The default case makes it safe to call even if the slot was
// never actually acquired (pubSem was nil at the time of SetPublish).
func (f *Forwarder) releasePubSlot() {
	if f.pubSem == nil {
		return
	}
	select {
	case <-f.pubSem:
	default:
	}
}

// nextOrigin returns a fresh, per-forwarder-unique 32-bit origin id for
// a newly attached subscriber data channel. The publisher always uses
// origin id 0; this counter starts at 1 and is never reused within the
// forwarder's lifetime, which is all the echo-suppression property in
// the data-channel loops needs: any scheme yielding per-forwarder
// uniqueness works.
func (f *Forwarder) nextOrigin() uint32 {
	return atomic.AddUint32(&f.nextOriginID, 1)
}

// AttachPublisherDataChannel attaches the publisher's data channel to
// the fan-out bus under origin id 0.
func (f *Forwarder) AttachPublisherDataChannel(dc *webrtc.DataChannel) {
	f.attachDataChannel(dc, 0)
}

// AttachSubscriberDataChannel attaches a subscriber's data channel to
// the fan-out bus under a freshly assigned origin id.
func (f *Forwarder) AttachSubscriberDataChannel(dc *webrtc.DataChannel) {
	f.attachDataChannel(dc, f.nextOrigin())
}

// Close closes the publisher (if any) and every subscriber peer. It
// does not touch timestamps; the external reaper handles forwarder
// destruction. Per-peer close errors are logged and otherwise
// ignored; every peer is attempted regardless of earlier failures.
func (f *Forwarder) Close() {
	f.publishMu.Lock()
	if f.publish != nil {
		if err := f.publish.Close(); err != nil {
			f.logger.Debugw("publisher close error", "stream_id", f.streamID, "error", err)
		}
		f.publish = nil
		f.releasePubSlot()
	}
	f.publishMu.Unlock()

	f.subsMu.Lock()
	subs := make([]*Subscriber, 0, len(f.subscribers))
	for _, s := range f.subscribers {
		subs = append(subs, s)
	}
	f.subscribers = make(map[domain.SessionID]*Subscriber)
	f.subsMu.Unlock()

	for _, s := range subs {
		if err := s.Close(); err != nil {
			f.logger.Debugw("subscriber close error", "stream_id", f.streamID, "error", err)
		}
	}
}

// Info snapshots the forwarder's externally-visible state.
func (f *Forwarder) Info() domain.ForwardInfo {
	f.publishMu.RLock()
	var pubInfo *domain.SessionInfo
	if f.publish != nil {
		info := f.publish.Info()
		pubInfo = &info
	}
	f.publishMu.RUnlock()

	f.subsMu.RLock()
	subInfos := make([]domain.SessionInfo, 0, len(f.subscribers))
	for _, s := range f.subscribers {
		subInfos = append(subInfos, s.Info())
	}
	f.subsMu.RUnlock()

	f.tsMu.RLock()
	publishLeftAt := f.publishLeftAt
	subscribeLeftAt := f.subscribeLeftAt
	f.tsMu.RUnlock()

	return domain.ForwardInfo{
		StreamID:          f.streamID,
		CreatedAt:         f.createdAt,
		PublishLeftAt:     publishLeftAt,
		SubscribeLeftAt:   subscribeLeftAt,
		PublishSession:    pubInfo,
		SubscribeSessions: subInfos,
	}
}

// IsIdle reports whether both the publisher and every subscriber have
// departed. The reaper's other check, the publish_leave_timeout
// comparison, lives in registry.go since it needs wall-clock time, not
// just state.
func (f *Forwarder) IsIdle() bool {
	f.publishMu.RLock()
	noPub := f.publish == nil
	f.publishMu.RUnlock()

	f.subsMu.RLock()
	noSubs := len(f.subscribers) == 0
	f.subsMu.RUnlock()

	return noPub && noSubs
}

// PublishLeftAt returns the millisecond timestamp the publisher left,
// or 0 if one is currently present.
func (f *Forwarder) PublishLeftAt() int64 {
	f.tsMu.RLock()
	defer f.tsMu.RUnlock()
	return f.publishLeftAt
}
