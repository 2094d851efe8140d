// Package webrtc wraps pion/webrtc into the three session types the SFU
// router coordinates: the peer-connection factory, the publisher session,
// and the consumer session, plus the packet-level forwarding loop between
// them.
package webrtc

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// Config configures every peer connection the factory produces.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRangeMin uint16
	PortRangeMax uint16
}

// Factory produces configured peer connections: the Opus-capable media
// engine, the default RTP/RTCP interceptors (NACK, sender/receiver
// reports, TWCC), and the configured ICE server list. It is pure and
// holds no state of its own beyond its configuration.
type Factory struct {
	cfg Config
	api *webrtc.API
}

// NewFactory builds a Factory. Construction registers the media engine
// and interceptors once; NewConnection is then cheap and side-effect free
// beyond allocating the peer connection.
func NewFactory(cfg Config) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRangeMin > 0 && cfg.PortRangeMax > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortRangeMin, cfg.PortRangeMax); err != nil {
			return nil, err
		}
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(settingEngine),
	)

	return &Factory{cfg: cfg, api: api}, nil
}

// NewConnection allocates a new peer connection configured with the
// factory's ICE servers.
func (f *Factory) NewConnection() (*webrtc.PeerConnection, error) {
	iceServers := f.cfg.ICEServers
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	return f.api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
}
