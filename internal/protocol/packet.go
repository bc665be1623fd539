// Package protocol defines the frames exchanged between endpoints and the relay.
package protocol

import "github.com/1ureka/peertalk/internal/signaling"

// Kind identifies a relay frame.
type Kind string

// Frame kinds.
const (
	KindSignIn           Kind = "sign_in"           // client → relay: register under Name
	KindWelcome          Kind = "welcome"           // relay → client: assigned ID + current peers
	KindPeerConnected    Kind = "peer_connected"    // relay → client: ID/Name signed in
	KindPeerDisconnected Kind = "peer_disconnected" // relay → client: ID signed out
	KindMessage          Kind = "message"           // both: signaling text for To / from From
	KindBye              Kind = "bye"               // both: hang-up for To / from From
	KindSignOut          Kind = "sign_out"          // client → relay
)

// PeerInfo is one entry of the relay's peer registry.
type PeerInfo struct {
	ID   signaling.PeerID `json:"id"`
	Name string           `json:"name"`
}

// Frame is a single relay frame carried in one WebSocket text message.
// Peer IDs are assigned from 1, so a zero ID means "absent".
type Frame struct {
	Kind  Kind             `json:"kind"`
	ID    signaling.PeerID `json:"id,omitempty"`
	Name  string           `json:"name,omitempty"`
	From  signaling.PeerID `json:"from,omitempty"`
	To    signaling.PeerID `json:"to,omitempty"`
	Data  string           `json:"data,omitempty"`
	Peers []PeerInfo       `json:"peers,omitempty"`
}
