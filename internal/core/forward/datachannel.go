package forward

import (
	"encoding/binary"

	"rillnet/pkg/broadcast"
	"rillnet/pkg/optimize"

	"github.com/pion/webrtc/v3"
)

// dcFrameMax is the read buffer size for data-channel frames; larger
// messages are truncated at the source.
const dcFrameMax = 16 * 1024

// dcReadBufPool recycles the 16 KiB read buffers across the lifetime
// of many short-lived data channels (publishers/subscribers churn
// continuously as peers connect and disconnect).
var dcReadBufPool = optimize.NewBytePool(dcFrameMax)

// attachDataChannel wires dc into the stream's data-channel fan-out
// bus under originID (publisher uses 0; subscribers get a freshly
// assigned id from nextOrigin). It waits for the channel to open,
// detaches it to get a raw byte-stream handle (the peer connection
// must have been built with SettingEngine.DetachDataChannels(), which
// internal/infrastructure/webrtc.NewPeerFactory arranges), and spawns
// the read and write loops.
func (f *Forwarder) attachDataChannel(dc *webrtc.DataChannel, originID uint32) {
	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			f.logger.Debugw("data channel detach failed", "stream_id", f.streamID, "origin_id", originID, "error", err)
			return
		}
		go dcReadLoop(f.dcBus, raw, originID, f.logger)
		go dcWriteLoop(f.dcBus, raw, originID, f.logger)
	})
}

// dcReadLoop reads up to 16 KiB frames from raw, prefixes each with
// the 4-byte big-endian origin id, and publishes the framed payload to
// bus. Exits on read error.
func dcReadLoop(bus *broadcast.Bus[[]byte], raw dcReadWriter, originID uint32, logger loggerLike) {
	buf := dcReadBufPool.Get()
	defer dcReadBufPool.Put(buf)
	for {
		n, err := raw.Read(buf)
		if err != nil {
			return
		}
		framed := make([]byte, 4+n)
		binary.BigEndian.PutUint32(framed[0:4], originID)
		copy(framed[4:], buf[:n])
		bus.Publish(framed)
	}
}

// dcWriteLoop subscribes to bus and writes every frame not originated
// by originID (echo suppression) to raw, with the 4-byte origin prefix
// stripped. Exits on write error or bus subscription closing.
func dcWriteLoop(bus *broadcast.Bus[[]byte], raw dcReadWriter, originID uint32, logger loggerLike) {
	sub := bus.Subscribe()
	defer sub.Unsubscribe()
	for frame := range sub.C() {
		if len(frame) < 4 {
			continue
		}
		if binary.BigEndian.Uint32(frame[0:4]) == originID {
			continue // echo suppression: don't write our own frames back to us
		}
		if _, err := raw.Write(frame[4:]); err != nil {
			return
		}
	}
}

// dcReadWriter is the minimal surface attachDataChannel's loops need
// from a detached data channel (datachannel.ReadWriteCloser satisfies
// it); narrowed to ease testing with an in-memory pipe.
type dcReadWriter interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
}

// loggerLike is the minimal logging surface the DC loops use, so
// tests can pass a no-op logger without pulling in zap's test harness.
type loggerLike interface {
	Debugw(msg string, keysAndValues ...interface{})
}
