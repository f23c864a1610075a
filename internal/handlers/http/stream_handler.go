package http

import (
	"net/http"
	"strconv"

	"rillnet/internal/core/domain"
	"rillnet/internal/core/forward"
	"rillnet/internal/core/ports"
	"rillnet/internal/infrastructure/webrtc"
	"rillnet/pkg/tracing"
	"rillnet/pkg/validation"

	pionwebrtc "github.com/pion/webrtc/v3"

	"github.com/gin-gonic/gin"
)

// StreamHandler is the WHIP/WHEP-shaped ingest surface: publish and
// subscribe exchange one SDP offer/answer pair each, with
// no further signaling once the peer connection is established.
// Room/group membership lives on the separate WS relay, not here; this
// handler does no renegotiation or reforwarding.
type StreamHandler struct {
	registry      *forward.Registry
	streamService ports.StreamService
	peerFactory   *webrtc.PeerFactory
}

func NewStreamHandler(registry *forward.Registry, streamService ports.StreamService, peerFactory *webrtc.PeerFactory) *StreamHandler {
	return &StreamHandler{
		registry:      registry,
		streamService: streamService,
		peerFactory:   peerFactory,
	}
}

func (h *StreamHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.GET("/streams", h.ListStreams)
		api.GET("/streams/:id", h.StreamInfo)
		api.DELETE("/streams/:id", h.CloseStream)
		api.POST("/streams/:id/publish", h.Publish)
		api.POST("/streams/:id/subscribe", h.Subscribe)
	}
}

type sdpRequest struct {
	SDP string `json:"sdp" binding:"required"`
}

type sdpResponse struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Publish implements ports.HTTPHandler. It admits a new publisher onto
// streamID's forwarder (creating the forwarder on first arrival) and
// returns the SDP answer. Fails with 409 if the stream already has a
// publisher (domain.ErrStreamAlreadyExists, mapped by
// ErrorHandlerMiddleware).
func (h *StreamHandler) Publish(c *gin.Context) {
	streamID := domain.StreamID(c.Param("id"))
	if err := validation.ValidateStreamID(string(streamID)); err != nil {
		c.Error(domain.ErrInvalidMedia)
		return
	}

	_, span := tracing.TraceWebRTC(c.Request.Context(), "publish", "", string(streamID))
	defer span.End()

	var req sdpRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(domain.ErrInvalidMedia)
		return
	}

	pc, err := h.peerFactory.New()
	if err != nil {
		tracing.RecordError(c.Request.Context(), err)
		c.Error(err)
		return
	}

	offer := pionwebrtc.SessionDescription{Type: pionwebrtc.SDPTypeOffer, SDP: req.SDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		c.Error(domain.ErrInvalidMedia)
		return
	}

	mediaInfo := mediaInfoFromOffer(offer)

	f := h.registry.GetOrCreate(streamID)
	pub, err := f.SetPublish(pc, mediaInfo)
	if err != nil {
		pc.Close()
		c.Error(err)
		return
	}

	pc.OnTrack(func(track *pionwebrtc.TrackRemote, receiver *pionwebrtc.RTPReceiver) {
		f.PublishTrackUp(domain.PublishedTrack{
			RID:  track.RID(),
			Kind: track.Kind().String(),
			SSRC: uint32(track.SSRC()),
		}, track)
	})
	pc.OnDataChannel(func(dc *pionwebrtc.DataChannel) {
		f.AttachPublisherDataChannel(dc)
	})
	pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		if state == pionwebrtc.PeerConnectionStateFailed || state == pionwebrtc.PeerConnectionStateClosed {
			_ = f.RemovePublish(pub.ID())
		}
	})

	answer, err := answerSDP(pc)
	if err != nil {
		_ = f.RemovePublish(pub.ID())
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, sdpResponse{Type: "answer", SDP: answer.SDP})
}

// Subscribe implements ports.HTTPHandler. video_count/audio_count
// query parameters (default 1/1) select the sendonly media shape; 0 or
// 1 of each is valid.
func (h *StreamHandler) Subscribe(c *gin.Context) {
	streamID := domain.StreamID(c.Param("id"))
	if err := validation.ValidateStreamID(string(streamID)); err != nil {
		c.Error(domain.ErrInvalidMedia)
		return
	}

	_, span := tracing.TraceWebRTC(c.Request.Context(), "subscribe", "", string(streamID))
	defer span.End()

	var req sdpRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(domain.ErrInvalidMedia)
		return
	}

	videoCount := queryIntDefault(c, "video_count", 1)
	audioCount := queryIntDefault(c, "audio_count", 1)

	f, ok := h.registry.Get(streamID)
	if !ok {
		c.Error(domain.ErrNoPublisher)
		return
	}

	pc, err := h.peerFactory.New()
	if err != nil {
		c.Error(err)
		return
	}

	offer := pionwebrtc.SessionDescription{Type: pionwebrtc.SDPTypeOffer, SDP: req.SDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		c.Error(domain.ErrInvalidMedia)
		return
	}

	sub, err := f.NewSubscriber(pc, videoCount, audioCount)
	if err != nil {
		pc.Close()
		c.Error(err)
		return
	}

	pc.OnDataChannel(func(dc *pionwebrtc.DataChannel) {
		f.AttachSubscriberDataChannel(dc)
	})
	pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		if state == pionwebrtc.PeerConnectionStateFailed || state == pionwebrtc.PeerConnectionStateClosed {
			_ = f.RemoveSubscribe(sub.ID())
		}
	})

	answer, err := answerSDP(pc)
	if err != nil {
		_ = f.RemoveSubscribe(sub.ID())
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, sdpResponse{Type: "answer", SDP: answer.SDP})
}

// StreamInfo implements ports.HTTPHandler.
func (h *StreamHandler) StreamInfo(c *gin.Context) {
	streamID := domain.StreamID(c.Param("id"))
	if err := validation.ValidateStreamID(string(streamID)); err != nil {
		c.Error(domain.ErrSessionNotFound)
		return
	}
	f, ok := h.registry.Get(streamID)
	if !ok {
		c.Error(domain.ErrSessionNotFound)
		return
	}
	c.JSON(http.StatusOK, f.Info())
}

// ListStreams implements ports.HTTPHandler.
func (h *StreamHandler) ListStreams(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"streams": h.streamService.ListActiveStreams()})
}

// CloseStream implements ports.HTTPHandler.
func (h *StreamHandler) CloseStream(c *gin.Context) {
	streamID := c.Param("id")
	if err := validation.ValidateStreamID(streamID); err != nil {
		c.Error(domain.ErrSessionNotFound)
		return
	}
	if err := h.streamService.CloseStream(streamID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func answerSDP(pc *pionwebrtc.PeerConnection) (pionwebrtc.SessionDescription, error) {
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return pionwebrtc.SessionDescription{}, err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return pionwebrtc.SessionDescription{}, err
	}
	return answer, nil
}

// mediaInfoFromOffer counts video/audio media sections in the offer.
func mediaInfoFromOffer(offer pionwebrtc.SessionDescription) domain.MediaInfo {
	parsed := pionwebrtc.SessionDescription{Type: offer.Type, SDP: offer.SDP}
	sd, err := parsed.Unmarshal()
	if err != nil {
		return domain.MediaInfo{}
	}
	info := domain.MediaInfo{}
	for _, md := range sd.MediaDescriptions {
		switch md.MediaName.Media {
		case "video":
			info.VideoCount++
		case "audio":
			info.AudioCount++
		}
	}
	return info
}

func queryIntDefault(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
