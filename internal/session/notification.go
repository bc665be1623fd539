package session

import "github.com/1ureka/peertalk/internal/signaling"

// NotificationKind tells the presenter what happened.
type NotificationKind int

const (
	// PeerList carries a fresh snapshot of the peers signed in to the relay.
	PeerList NotificationKind = iota
	// CallStarted reports that a peer was bound, by us calling it or by its
	// first message. ConnectionClosed follows once the call ends.
	CallStarted
	// CallConnected reports that media negotiation with the bound peer succeeded.
	CallConnected
	// ConnectionClosed reports that the current session was torn down.
	ConnectionClosed
	// NewStream reports a remote stream.
	NewStream
	// StreamRemoved reports that the remote peer stopped sending a stream.
	StreamRemoved
	// EngineError reports a runtime failure of the negotiation engine.
	EngineError
	// Error is a user-visible failure (message box in a GUI).
	Error
	// SignedOut reports that the relay connection is gone.
	SignedOut
)

var kindNames = [...]string{
	PeerList:         "peer-list",
	CallStarted:      "call-started",
	CallConnected:    "call-connected",
	ConnectionClosed: "connection-closed",
	NewStream:        "new-stream",
	StreamRemoved:    "stream-removed",
	EngineError:      "engine-error",
	Error:            "error",
	SignedOut:        "signed-out",
}

func (k NotificationKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Notification is posted to the presenter. Fields are populated depending on
// Kind.
type Notification struct {
	Kind    NotificationKind
	Peer    signaling.PeerID
	Peers   map[signaling.PeerID]string
	Stream  Stream
	Message string
}

// Presenter renders notifications. Notify must not block the caller.
type Presenter interface {
	Notify(n Notification)
}
