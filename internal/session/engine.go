package session

import (
	"context"

	"github.com/1ureka/peertalk/internal/signaling"
)

// Stream describes a published media stream. Only the label matters to the
// session; the track counts are informational.
type Stream struct {
	Label       string
	AudioTracks int
	VideoTracks int
}

// Engine is the negotiation engine for a single peer. Description creation is
// asynchronous: CreateOffer and CreateAnswer return immediately and the result
// arrives through EngineEvents.
type Engine interface {
	CreateOffer()
	CreateAnswer()
	SetLocalDescription(desc signaling.SessionDescription) error
	SetRemoteDescription(desc signaling.SessionDescription) error
	AddICECandidate(candidate signaling.ICECandidate) error
	AddStream(label string) error
	Close() error
}

// EngineEvents receives the engine's asynchronous notifications. Calls may
// arrive from any goroutine.
type EngineEvents interface {
	OnLocalDescription(desc signaling.SessionDescription)
	OnLocalCandidate(candidate signaling.ICECandidate)
	OnCreateFailure(err error)
	OnConnected()
	OnRemoteStreamAdded(stream Stream)
	OnRemoteStreamRemoved(stream Stream)
	OnError(err error)
}

// EngineFactory constructs engines.
type EngineFactory interface {
	NewEngine(iceServers []string, events EngineEvents) (Engine, error)
}

// Relay is the relay client as seen by the session. Only the delivery queue
// sends signaling messages; the session drives the lifecycle calls.
type Relay interface {
	signaling.Sender

	Connect(ctx context.Context, server string, port int, name string) error
	SignOut() error
	IsConnected() bool
	SendHangUp(peer signaling.PeerID) error
	Peers() map[signaling.PeerID]string
}
