package relay

import "encoding/binary"

// Frame type tags for the group relay wire format.
const (
	FrameTypeData byte = 0
	FrameTypeOpen byte = 1

	// HeaderSize is the [type(1)][from(4)] prefix the relay prepends
	// to every frame it forwards.
	HeaderSize = 5
)

func header(frameType byte, from int32) []byte {
	h := make([]byte, HeaderSize)
	h[0] = frameType
	binary.BigEndian.PutUint32(h[1:], uint32(from))
	return h
}

// openFrame is the synthetic control frame a joining user's arrival
// broadcasts to the rest of the group: type=1, from the new user,
// payload equal to from again.
func openFrame(from int32) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(from))
	return append(header(FrameTypeOpen, from), payload...)
}

// Route applies the group relay's routing rule to one inbound binary
// payload from sender: if the payload's first 4 bytes (big-endian)
// equal the sender's own id, the framed message is broadcast to the
// whole group; otherwise those 4 bytes name a target user id and the
// framed message is unicast there (silently dropped if unknown).
// Payloads shorter than 4 bytes are dropped.
func Route(g *Group, from int32, payload []byte) {
	if len(payload) < 4 {
		return
	}
	target := int32(binary.BigEndian.Uint32(payload[:4]))

	frame := make([]byte, 0, HeaderSize+len(payload))
	frame = append(frame, header(FrameTypeData, from)...)
	frame = append(frame, payload...)

	if target == from {
		g.broadcast(frame)
		return
	}
	g.unicast(target, frame)
}

// FrameFrom reads the big-endian sender id out of a 5-byte relay
// header. Used by the transport write loop to suppress echoing a
// broadcast frame back to its own sender, the same echo-suppression
// idiom the data-channel fan-out uses for its 4-byte origin prefix.
func FrameFrom(frame []byte) (from int32, ok bool) {
	if len(frame) < HeaderSize {
		return 0, false
	}
	return int32(binary.BigEndian.Uint32(frame[1:HeaderSize])), true
}
