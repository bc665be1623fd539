package session

import (
	"context"

	"github.com/1ureka/peertalk/internal/signaling"
	"github.com/1ureka/peertalk/internal/util"
)

// engineEvents marshals engine callbacks onto the session loop, tagged with the
// generation the engine was created under.
type engineEvents struct {
	s   *Session
	gen uint64
}

func (e *engineEvents) OnLocalDescription(desc signaling.SessionDescription) {
	e.s.loop.Post(func() { e.s.onLocalDescription(e.gen, desc) })
}

func (e *engineEvents) OnLocalCandidate(candidate signaling.ICECandidate) {
	e.s.loop.Post(func() { e.s.onLocalCandidate(e.gen, candidate) })
}

func (e *engineEvents) OnCreateFailure(err error) {
	e.s.loop.Post(func() { e.s.onCreateFailure(e.gen, err) })
}

func (e *engineEvents) OnConnected() {
	e.s.loop.Post(func() { e.s.onConnected(e.gen) })
}

func (e *engineEvents) OnRemoteStreamAdded(stream Stream) {
	e.s.loop.Post(func() { e.s.onRemoteStreamAdded(e.gen, stream) })
}

func (e *engineEvents) OnRemoteStreamRemoved(stream Stream) {
	e.s.loop.Post(func() { e.s.onRemoteStreamRemoved(e.gen, stream) })
}

func (e *engineEvents) OnError(err error) {
	e.s.loop.Post(func() { e.s.onEngineError(e.gen, err) })
}

// Conductor is the thread-safe entry point to a Session. Relay callbacks and
// presenter actions arrive on arbitrary goroutines; Conductor posts each one
// onto the session loop.
type Conductor struct {
	loop    *Loop
	session *Session
}

// NewConductor wraps s, which must have been created with loop.
func NewConductor(loop *Loop, s *Session) *Conductor {
	return &Conductor{loop: loop, session: s}
}

// Run drives the session loop until ctx is cancelled, then releases the
// session.
func (c *Conductor) Run(ctx context.Context) {
	c.loop.Run(ctx)
	c.session.Close()
}

// ---------------------------------------------------------------------------
// Presenter-facing API
// ---------------------------------------------------------------------------

func (c *Conductor) StartLogin(ctx context.Context, server string, port int) {
	c.loop.Post(func() {
		if err := c.session.StartLogin(ctx, server, port); err != nil {
			util.LogError("failed to start login: %v", err)
		}
	})
}

func (c *Conductor) DisconnectFromServer() {
	c.loop.Post(c.session.DisconnectFromServer)
}

func (c *Conductor) ConnectToPeer(peer signaling.PeerID) {
	c.loop.Post(func() { _ = c.session.ConnectToPeer(peer) })
}

func (c *Conductor) DisconnectFromCurrentPeer() {
	c.loop.Post(c.session.DisconnectFromCurrentPeer)
}

// Snapshot is a consistent view of the session taken on the loop.
type Snapshot struct {
	State           State
	Peer            signaling.PeerID
	Generation      uint64
	PendingMessages int
	Streams         []string
}

// Snapshot reads the session state on the loop.
func (c *Conductor) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.loop.Do(ctx, func() {
		snap = Snapshot{
			State:           c.session.State(),
			Peer:            c.session.Peer(),
			Generation:      c.session.Generation(),
			PendingMessages: c.session.PendingMessages(),
			Streams:         c.session.ActiveStreams(),
		}
	})
	return snap, err
}

// ---------------------------------------------------------------------------
// Relay observer
// ---------------------------------------------------------------------------

func (c *Conductor) OnSignedIn() {
	c.loop.Post(c.session.OnSignedIn)
}

func (c *Conductor) OnDisconnected() {
	c.loop.Post(c.session.OnDisconnected)
}

func (c *Conductor) OnPeerConnected(peer signaling.PeerID, name string) {
	c.loop.Post(func() { c.session.OnPeerConnected(peer, name) })
}

func (c *Conductor) OnPeerDisconnected(peer signaling.PeerID) {
	c.loop.Post(func() { c.session.OnPeerDisconnected(peer) })
}

func (c *Conductor) OnMessageFromPeer(peer signaling.PeerID, raw string) {
	c.loop.Post(func() { _ = c.session.OnMessageFromPeer(peer, raw) })
}

func (c *Conductor) OnMessageSent(err error) {
	c.loop.Post(func() { c.session.OnMessageSent(err) })
}

func (c *Conductor) OnServerConnectionFailure(err error) {
	c.loop.Post(func() { c.session.OnServerConnectionFailure(err) })
}
