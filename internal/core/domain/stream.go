package domain

// StreamID identifies a stream process-wide; unique, non-empty.
type StreamID string

// PeerID identifies a WebRTC peer connection for its lifetime.
type PeerID string

// SessionID identifies a publish or subscribe session; derived from
// its peer, stable for the peer's lifetime.
type SessionID string
