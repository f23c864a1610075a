package forward

import (
	"github.com/pion/rtcp"
)

// RTCPItem is one message flowing on a stream's RTCP feedback bus: a
// decoded RTCP packet tagged with the SSRC it should be rewritten to
// before being written to the publisher's peer connection.
type RTCPItem struct {
	Packet rtcp.Packet
	SSRC   uint32
}

// rewriteMediaSSRC mutates pkt in place so its media SSRC field(s)
// point at ssrc, the publisher-side track the feedback applies to.
// Subscriber RTCP arrives tagged with the subscriber's own local SSRC
// and must be rewritten to the publisher-side SSRC (mapped through the
// sender's track) before the publisher ever sees it. Packet kinds this
// demux doesn't recognize are left untouched by the caller and
// dropped.
func rewriteMediaSSRC(pkt rtcp.Packet, ssrc uint32) {
	switch p := pkt.(type) {
	case *rtcp.PictureLossIndication:
		p.MediaSSRC = ssrc
	case *rtcp.FullIntraRequest:
		for i := range p.FIR {
			p.FIR[i].SSRC = ssrc
		}
	case *rtcp.TransportLayerNack:
		p.MediaSSRC = ssrc
	case *rtcp.ReceiverEstimatedMaxBitrate:
		p.SSRCs = []uint32{ssrc}
	}
}

// isFeedbackOfInterest reports whether pkt is one of the keyframe
// request / bandwidth feedback kinds that must be forwarded to the
// publisher (PLI, FIR, NACK, REMB). Every other RTCP packet type the
// subscriber's peer connection emits is dropped at the demux.
func isFeedbackOfInterest(pkt rtcp.Packet) bool {
	switch pkt.(type) {
	case *rtcp.PictureLossIndication,
		*rtcp.FullIntraRequest,
		*rtcp.TransportLayerNack,
		*rtcp.ReceiverEstimatedMaxBitrate:
		return true
	default:
		return false
	}
}
