// Package session implements the signaling state machine that negotiates one
// peer-to-peer media session through a relay.
//
// A Session owns the peer binding, the negotiation state and the outgoing
// delivery queue. It performs no locking: every method must run on the Loop it
// was created with. Conductor is the thread-safe facade that posts onto that
// loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/1ureka/peertalk/internal/signaling"
	"github.com/1ureka/peertalk/internal/util"
)

// State is the negotiation lifecycle state.
type State int

const (
	Idle State = iota
	AwaitingEngineInit
	Negotiating
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingEngineInit:
		return "awaiting-engine-init"
	case Negotiating:
		return "negotiating"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LocalStreamLabel labels the stream this endpoint publishes.
const LocalStreamLabel = "stream_label"

var (
	ErrBusy         = errors.New("only one peer connection at a time is supported")
	ErrPeerMismatch = errors.New("message from a peer other than the bound one")
	ErrNotReady     = errors.New("negotiation engine is not ready")
	ErrInvalidPeer  = errors.New("invalid peer id")
)

// Options configures a Session.
type Options struct {
	// ICEServers are the STUN/TURN URIs handed to every engine.
	ICEServers []string
	// Name is the display name used when signing in to the relay.
	Name string
	// SendMedia publishes a local stream once per session.
	SendMedia bool
}

// streamKey separates local and remote streams that share a label.
type streamKey struct {
	remote bool
	label  string
}

// Session is the negotiation state machine. See the package doc for the
// threading contract.
type Session struct {
	loop      *Loop
	relay     Relay
	factory   EngineFactory
	presenter Presenter
	opts      Options

	state      State
	peer       signaling.PeerID
	engine     Engine
	generation uint64
	streams    map[streamKey]Stream
	queue      *signaling.Queue
	server     string
}

// New creates an idle session bound to loop.
func New(loop *Loop, relay Relay, factory EngineFactory, presenter Presenter, opts Options) *Session {
	s := &Session{
		loop:      loop,
		relay:     relay,
		factory:   factory,
		presenter: presenter,
		opts:      opts,
		state:     Idle,
		peer:      signaling.NoPeer,
		streams:   make(map[streamKey]Stream),
	}
	s.queue = signaling.NewQueue(relay, s.onSendFailure)
	return s
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

func (s *Session) State() State           { return s.state }
func (s *Session) Peer() signaling.PeerID { return s.peer }
func (s *Session) Generation() uint64     { return s.generation }
func (s *Session) PendingMessages() int   { return s.queue.Len() }
func (s *Session) HasEngine() bool        { return s.engine != nil }
func (s *Session) ActiveStreamCount() int { return len(s.streams) }
func (s *Session) ServerAddress() string  { return s.server }

// ActiveStreams returns the labels of all active streams, local ones first.
func (s *Session) ActiveStreams() []string {
	labels := make([]string, 0, len(s.streams))
	for key := range s.streams {
		prefix := "local:"
		if key.remote {
			prefix = "remote:"
		}
		labels = append(labels, prefix+key.label)
	}
	sort.Strings(labels)
	return labels
}

// ---------------------------------------------------------------------------
// Presenter-facing operations
// ---------------------------------------------------------------------------

// StartLogin signs in to the relay unless already connected.
func (s *Session) StartLogin(ctx context.Context, server string, port int) error {
	if s.relay.IsConnected() {
		return nil
	}
	s.server = fmt.Sprintf("%s:%d", server, port)
	return s.relay.Connect(ctx, server, port, s.opts.Name)
}

// DisconnectFromServer signs out of the relay if connected.
func (s *Session) DisconnectFromServer() {
	if !s.relay.IsConnected() {
		return
	}
	if err := s.relay.SignOut(); err != nil {
		util.LogWarning("sign out failed: %v", err)
	}
}

// ConnectToPeer starts the caller-initiated path: bind peer, construct the
// engine in the background and create an offer once it is ready.
func (s *Session) ConnectToPeer(peer signaling.PeerID) error {
	if peer == signaling.NoPeer {
		return ErrInvalidPeer
	}

	if s.bound() || s.engine != nil || s.state != Idle {
		util.LogError("cannot connect to peer %d: already bound to peer %d (%s)", peer, s.peer, s.state)
		s.notifyError("We only support connecting to one peer at a time")
		return ErrBusy
	}

	s.peer = peer
	s.state = AwaitingEngineInit
	s.generation++
	gen := s.generation
	events := s.eventsFor(gen)

	util.LogInfo("connecting to peer %d", peer)
	s.notify(Notification{Kind: CallStarted, Peer: peer})

	go func() {
		eng, err := s.factory.NewEngine(s.opts.ICEServers, events)
		s.loop.Post(func() { s.onEngineCreated(gen, eng, err) })
	}()

	return nil
}

// DisconnectFromCurrentPeer hangs up on the bound peer and tears the session
// down. Calling it with nothing bound is a no-op apart from refreshing the
// peer list.
func (s *Session) DisconnectFromCurrentPeer() {
	peer := s.peer
	if peer != signaling.NoPeer {
		util.LogInfo("hanging up on peer %d", peer)
		if s.relay.IsConnected() {
			if err := s.relay.SendHangUp(peer); err != nil {
				util.LogWarning("failed to send hang-up to peer %d: %v", peer, err)
			}
		}
	}

	s.teardown()

	if peer != signaling.NoPeer {
		s.notifyClosed(peer)
	}
	if s.relay.IsConnected() {
		s.notifyPeers()
	}
}

// Close hangs up on the bound peer, signs out and releases every session
// resource. It sends no notifications.
func (s *Session) Close() {
	if s.bound() && s.relay.IsConnected() {
		if err := s.relay.SendHangUp(s.peer); err != nil {
			util.LogWarning("failed to send hang-up to peer %d: %v", s.peer, err)
		}
	}
	s.teardown()
	s.DisconnectFromServer()
}

// ---------------------------------------------------------------------------
// Relay callbacks
// ---------------------------------------------------------------------------

// OnSignedIn is called once the relay accepted our sign-in.
func (s *Session) OnSignedIn() {
	util.LogSuccess("signed in to %s", s.server)
	s.notifyPeers()
}

// OnDisconnected is called when the relay connection is gone.
func (s *Session) OnDisconnected() {
	util.LogWarning("disconnected from relay")

	peer := s.peer
	s.teardown()
	s.queue.Reset()
	if peer != signaling.NoPeer {
		s.notifyClosed(peer)
	}
	s.notify(Notification{Kind: SignedOut})
}

// OnPeerConnected is called when another peer signs in.
func (s *Session) OnPeerConnected(peer signaling.PeerID, name string) {
	util.LogDebug("peer %d (%s) signed in", peer, name)
	s.notifyPeers()
}

// OnPeerDisconnected is called when a peer signs out or hangs up on us.
func (s *Session) OnPeerDisconnected(peer signaling.PeerID) {
	if peer == signaling.NoPeer || peer != s.peer {
		util.LogDebug("peer %d signed out", peer)
		s.notifyPeers()
		return
	}

	util.LogInfo("our peer %d disconnected", peer)
	s.teardown()
	s.notifyClosed(peer)
	if s.relay.IsConnected() {
		s.notifyPeers()
	}
}

// OnServerConnectionFailure is called when signing in to the relay failed.
func (s *Session) OnServerConnectionFailure(err error) {
	util.LogError("failed to connect to %s: %v", s.server, err)
	s.notifyError("Failed to connect to " + s.server)
}

// OnMessageSent is the relay's completion for the outstanding send.
func (s *Session) OnMessageSent(err error) {
	s.queue.OnSendCompleted(err)
}

// OnMessageFromPeer decodes raw and applies it to the engine. A message that
// arrives while idle binds the sender and constructs the engine first.
func (s *Session) OnMessageFromPeer(peer signaling.PeerID, raw string) error {
	if peer == signaling.NoPeer {
		return ErrInvalidPeer
	}

	if s.bound() && peer != s.peer {
		util.LogWarning("received a message from peer %d while in a conversation with peer %d", peer, s.peer)
		return ErrPeerMismatch
	}

	msg, err := signaling.Decode(raw)
	if err != nil {
		util.LogWarning("dropping message from peer %d: %v", peer, err)
		return err
	}

	switch {
	case s.state == Idle:
		if err := s.acceptCall(peer); err != nil {
			return err
		}
	case s.state == AwaitingEngineInit || s.engine == nil:
		util.LogWarning("dropping message from peer %d: %v", peer, ErrNotReady)
		return ErrNotReady
	}

	switch m := msg.(type) {
	case signaling.SessionDescription:
		util.Stats.AddDescriptionRecv()
		util.LogDebug("received %s from peer %d", m.Kind, peer)

		if err := s.engine.SetRemoteDescription(m); err != nil {
			util.LogWarning("failed to apply remote %s: %v", m.Kind, err)
			return fmt.Errorf("set remote description: %w", err)
		}
		if m.Kind == signaling.KindOffer {
			s.engine.CreateAnswer()
		}

	case signaling.ICECandidate:
		util.Stats.AddCandidateRecv()

		if err := s.engine.AddICECandidate(m); err != nil {
			util.LogWarning("failed to apply the received candidate: %v", err)
			return fmt.Errorf("add ice candidate: %w", err)
		}
		util.LogDebug("received candidate for mid %q from peer %d", m.Mid, peer)
	}

	return nil
}

// acceptCall binds peer and constructs the engine synchronously (the
// callee-initiated path).
func (s *Session) acceptCall(peer signaling.PeerID) error {
	s.peer = peer
	s.state = AwaitingEngineInit
	s.generation++

	eng, err := s.factory.NewEngine(s.opts.ICEServers, s.eventsFor(s.generation))
	if err != nil {
		util.LogError("failed to initialize the negotiation engine: %v", err)
		s.notifyError("Failed to initialize PeerConnection")
		s.teardown()
		s.DisconnectFromServer()
		return fmt.Errorf("create engine: %w", err)
	}

	util.LogInfo("incoming call from peer %d", peer)
	s.notify(Notification{Kind: CallStarted, Peer: peer})

	s.engine = eng
	s.state = Negotiating
	s.addStreams()
	return nil
}

// ---------------------------------------------------------------------------
// Engine completions
// ---------------------------------------------------------------------------

func (s *Session) onEngineCreated(gen uint64, eng Engine, err error) {
	if gen != s.generation || s.state != AwaitingEngineInit {
		util.LogDebug("discarding stale engine (generation %d, current %d)", gen, s.generation)
		if eng != nil {
			_ = eng.Close()
		}
		return
	}

	if err != nil {
		util.LogError("failed to initialize the negotiation engine: %v", err)
		s.notifyError("Failed to initialize PeerConnection")
		peer := s.peer
		s.teardown()
		s.notifyClosed(peer)
		return
	}

	s.engine = eng
	s.state = Negotiating
	s.addStreams()
	s.engine.CreateOffer()
}

func (s *Session) onLocalDescription(gen uint64, desc signaling.SessionDescription) {
	if !s.current(gen) {
		util.LogDebug("discarding stale local %s (generation %d)", desc.Kind, gen)
		return
	}

	if err := s.engine.SetLocalDescription(desc); err != nil {
		util.LogError("failed to apply local %s: %v", desc.Kind, err)
		return
	}

	util.Stats.AddDescriptionSent()
	s.send(desc)
}

func (s *Session) onLocalCandidate(gen uint64, candidate signaling.ICECandidate) {
	if gen != s.generation || !s.bound() {
		util.LogDebug("discarding stale local candidate (generation %d)", gen)
		return
	}

	util.Stats.AddCandidateSent()
	s.send(candidate)
}

func (s *Session) onCreateFailure(gen uint64, err error) {
	if !s.current(gen) {
		return
	}
	util.LogError("failed to create session description: %v", err)
}

func (s *Session) onConnected(gen uint64) {
	if !s.current(gen) || s.state != Negotiating {
		return
	}

	s.state = Connected
	util.LogSuccess("connected to peer %d", s.peer)
	s.notify(Notification{Kind: CallConnected, Peer: s.peer})
}

func (s *Session) onRemoteStreamAdded(gen uint64, stream Stream) {
	if !s.current(gen) {
		return
	}

	util.LogInfo("remote stream %q added (%d audio, %d video)", stream.Label, stream.AudioTracks, stream.VideoTracks)
	s.streams[streamKey{remote: true, label: stream.Label}] = stream
	s.notify(Notification{Kind: NewStream, Peer: s.peer, Stream: stream})

	// Answer a remote stream with our own. If the local stream already exists
	// (with or without audio) this is a no-op.
	s.addStreams()
}

func (s *Session) onRemoteStreamRemoved(gen uint64, stream Stream) {
	if !s.current(gen) {
		return
	}

	util.LogInfo("remote stream %q removed", stream.Label)
	delete(s.streams, streamKey{remote: true, label: stream.Label})
	s.notify(Notification{Kind: StreamRemoved, Peer: s.peer, Stream: stream})
}

func (s *Session) onEngineError(gen uint64, err error) {
	if !s.current(gen) {
		return
	}

	util.LogError("negotiation engine error: %v", err)
	s.notify(Notification{Kind: EngineError, Peer: s.peer, Message: err.Error()})
	s.DisconnectFromCurrentPeer()
}

// onSendFailure is the delivery queue's failure hook.
func (s *Session) onSendFailure(peer signaling.PeerID, err error) {
	if !s.bound() || (peer != signaling.NoPeer && peer != s.peer) {
		util.LogDebug("ignoring send failure with no bound peer: %v", err)
		return
	}

	util.LogError("failed to send message to peer %d: %v", s.peer, err)
	bound := s.peer
	s.teardown()
	s.notifyClosed(bound)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Session) bound() bool { return s.peer != signaling.NoPeer }

// current reports whether a completion tagged gen belongs to the live engine.
func (s *Session) current(gen uint64) bool {
	return gen == s.generation && s.engine != nil
}

func (s *Session) notify(n Notification) { s.presenter.Notify(n) }

func (s *Session) notifyError(msg string) {
	s.notify(Notification{Kind: Error, Message: msg})
}

func (s *Session) notifyPeers() {
	s.notify(Notification{Kind: PeerList, Peers: s.relay.Peers()})
}

func (s *Session) notifyClosed(peer signaling.PeerID) {
	s.notify(Notification{Kind: ConnectionClosed, Peer: peer})
}

func (s *Session) send(msg signaling.Message) {
	raw, err := signaling.Encode(msg)
	if err != nil {
		util.LogError("dropping outgoing message to peer %d: %v", s.peer, err)
		return
	}
	s.queue.Enqueue(s.peer, raw)
}

// addStreams publishes the local stream once per session.
func (s *Session) addStreams() {
	if !s.opts.SendMedia || s.engine == nil {
		return
	}

	key := streamKey{label: LocalStreamLabel}
	if _, ok := s.streams[key]; ok {
		util.LogDebug("local stream %q already published", LocalStreamLabel)
		return
	}

	if err := s.engine.AddStream(LocalStreamLabel); err != nil {
		util.LogError("adding stream to the engine failed: %v", err)
		return
	}
	s.streams[key] = Stream{Label: LocalStreamLabel, AudioTracks: 1, VideoTracks: 1}
}

// teardown releases the engine and resets the binding. The generation bump
// makes every outstanding completion stale.
func (s *Session) teardown() {
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			util.LogWarning("closing the negotiation engine: %v", err)
		}
		s.engine = nil
	}

	if s.bound() {
		s.queue.Discard(s.peer)
	}

	s.peer = signaling.NoPeer
	clear(s.streams)
	s.generation++
	s.state = Closed

	util.LogDebug("session closed (generation %d)", s.generation)
	s.state = Idle
}

// eventsFor returns the engine event sink tagged with gen.
func (s *Session) eventsFor(gen uint64) EngineEvents {
	return &engineEvents{s: s, gen: gen}
}
