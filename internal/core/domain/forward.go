package domain

import "errors"

// ForwardEventType enumerates the lifecycle events a stream forwarder emits.
type ForwardEventType string

const (
	ForwardEventPublishUp     ForwardEventType = "publish_up"
	ForwardEventPublishDown   ForwardEventType = "publish_down"
	ForwardEventSubscribeUp   ForwardEventType = "subscribe_up"
	ForwardEventSubscribeDown ForwardEventType = "subscribe_down"
	ForwardEventReforwardUp   ForwardEventType = "reforward_up"
	ForwardEventReforwardDown ForwardEventType = "reforward_down"
)

// ForwardEvent is published by a stream forwarder to an out-of-band
// subscriber (metrics/admin) whenever publish/subscribe membership
// changes. Info is a snapshot, not a live reference.
type ForwardEvent struct {
	Type      ForwardEventType
	StreamID  StreamID
	SessionID SessionID
	Info      ForwardInfo
}

// SessionInfo mirrors a single publish or subscribe session's
// externally-visible state.
type SessionInfo struct {
	ID           SessionID
	CreateTime   int64 // unix millis
	ConnectState string
}

// ForwardInfo is a point-in-time snapshot of a stream forwarder.
type ForwardInfo struct {
	StreamID          StreamID
	CreatedAt         int64
	PublishLeftAt     int64
	SubscribeLeftAt   int64
	PublishSession    *SessionInfo
	SubscribeSessions []SessionInfo
}

// PublishedTrack is one remote track ingested from the publisher.
type PublishedTrack struct {
	RID    string
	Kind   string // "audio" or "video"
	SSRC   uint32
}

// MediaInfo records the transceiver shape declared in an SDP, parsed
// once at session construction.
type MediaInfo struct {
	VideoCount int
	AudioCount int
}

// Forwarder-scoped sentinel errors, matched against with errors.Is at
// the HTTP/WS edges and mapped onto pkg/errors.AppError there.
var (
	ErrStreamAlreadyExists = errors.New("forward: stream already has a publisher")
	ErrNoPublisher         = errors.New("forward: no publisher present")
	ErrNotOwner            = errors.New("forward: peer is not the current publisher")
	ErrInvalidMedia        = errors.New("forward: requested media shape is invalid")
	ErrSessionNotFound     = errors.New("forward: session not found")
)
