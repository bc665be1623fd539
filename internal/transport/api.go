package transport

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peertalk/internal/session"
	"github.com/1ureka/peertalk/internal/util"
)

// Factory builds pion-backed engines that share one API (codecs,
// interceptors and settings).
type Factory struct {
	api *webrtc.API
}

var _ session.EngineFactory = (*Factory)(nil)

// NewFactory creates a Factory with pion's default codecs and interceptors.
// Pion's own logging is routed through the application logger.
func NewFactory() (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: util.PionLoggerFactory{}}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)
	return &Factory{api: api}, nil
}

// NewEngine creates a PeerConnection using iceServers and reports its
// progress to events. With no ICE servers only host candidates are gathered.
func (f *Factory) NewEngine(iceServers []string, events session.EngineEvents) (session.Engine, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	pc, err := f.api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	// Receive-only transceivers so an offer carries audio and video sections
	// even before a local stream is published.
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}

	return newEngine(pc, events), nil
}
