package domain

import "time"

// StreamMetrics is a point-in-time rollup of one forwarder's
// occupancy, derived from ForwardInfo. ActivePublishers is always 0 or
// 1 (singleton-publisher invariant).
type StreamMetrics struct {
	StreamID          StreamID
	ActivePublishers  int
	ActiveSubscribers int
	Timestamp         time.Time
}
