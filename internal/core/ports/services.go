package ports

// AuthService authenticates inbound HTTP/WS requests against the
// configured accounts/tokens (`auth.accounts[]`/`auth.tokens[]`).
// Authorize receives the raw `Authorization` header value
// ("Basic base64(u:p)" or "Bearer token") and reports whether it is
// valid.
type AuthService interface {
	Authorize(authorization string) bool
}

// StreamService is the thin application-layer façade HTTP/WS handlers
// use instead of reaching into forward.Registry directly; it exists so
// handlers can be tested against a fake without constructing real
// WebRTC peers.
type StreamService interface {
	StreamExists(streamID string) bool
	CloseStream(streamID string) error
	ListActiveStreams() []string
}
