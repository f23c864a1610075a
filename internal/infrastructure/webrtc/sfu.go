package webrtc

import (
	"github.com/pion/webrtc/v3"
)

// PortRange bounds the ephemeral UDP port range the ICE agent binds
// to, letting operators open a fixed firewall window instead of the
// OS's full ephemeral range.
type PortRange struct {
	Min uint16
	Max uint16
}

// PeerConfig is the construction-time WebRTC configuration shared by
// every peer connection the process creates; the HTTP stream handler
// consumes a PeerFactory built from this instead of touching
// pion/webrtc's SettingEngine/API types directly, keeping the ICE/NAT
// plumbing out of the forwarding engine.
type PeerConfig struct {
	ICEServers []webrtc.ICEServer
	PortRange  PortRange
}

// PeerFactory constructs *webrtc.PeerConnection instances against a
// single shared pion API/SettingEngine, so every connection in the
// process shares one ICE port range and codec registration.
type PeerFactory struct {
	config webrtc.Configuration
	api    *webrtc.API
}

// NewPeerFactory builds the pion API once at process startup.
func NewPeerFactory(cfg PeerConfig) *PeerFactory {
	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max)
	}
	settingEngine.DetachDataChannels()

	return &PeerFactory{
		config: webrtc.Configuration{
			ICEServers:   cfg.ICEServers,
			SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
		},
		api: webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
	}
}

// New creates one peer connection against the factory's shared API.
func (f *PeerFactory) New() (*webrtc.PeerConnection, error) {
	return f.api.NewPeerConnection(f.config)
}

// ICEServers exposes the configured ICE servers.
func (f *PeerFactory) ICEServers() []webrtc.ICEServer {
	return f.config.ICEServers
}
