// Package transport implements the negotiation engine on top of a pion
// PeerConnection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peertalk/internal/session"
	"github.com/1ureka/peertalk/internal/signaling"
	"github.com/1ureka/peertalk/internal/util"
)

var errConnectionFailed = errors.New("peer connection failed")

// remoteStream counts the live tracks of one remote stream.
type remoteStream struct {
	audio int
	video int
}

// Engine wraps a single PeerConnection. Description creation runs on its own
// goroutine; every result and state change is reported through the events
// sink the engine was created with.
type Engine struct {
	pc     *webrtc.PeerConnection
	events session.EngineEvents

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	remote map[string]*remoteStream
	local  map[string]bool
}

var _ session.Engine = (*Engine)(nil)

func newEngine(pc *webrtc.PeerConnection, events session.EngineEvents) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		pc:     pc,
		events: events,
		ctx:    ctx,
		cancel: cancel,
		remote: make(map[string]*remoteStream),
		local:  make(map[string]bool),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering complete
		}
		events.OnLocalCandidate(candidateFromInit(c.ToJSON()))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			events.OnConnected()
		case webrtc.PeerConnectionStateFailed:
			if e.ctx.Err() == nil {
				events.OnError(errConnectionFailed)
			}
		}
	})

	pc.OnTrack(e.handleTrack)

	return e
}

// ---------------------------------------------------------------------------
// Negotiation
// ---------------------------------------------------------------------------

// CreateOffer generates an offer in the background.
func (e *Engine) CreateOffer() {
	go e.create(signaling.KindOffer, func() (webrtc.SessionDescription, error) {
		return e.pc.CreateOffer(nil)
	})
}

// CreateAnswer generates an answer in the background.
func (e *Engine) CreateAnswer() {
	go e.create(signaling.KindAnswer, func() (webrtc.SessionDescription, error) {
		return e.pc.CreateAnswer(nil)
	})
}

func (e *Engine) create(kind signaling.DescriptionKind, fn func() (webrtc.SessionDescription, error)) {
	desc, err := fn()
	if err != nil {
		e.events.OnCreateFailure(fmt.Errorf("create %s: %w", kind, err))
		return
	}

	out, err := descriptionFromPion(desc)
	if err != nil {
		e.events.OnCreateFailure(err)
		return
	}
	e.events.OnLocalDescription(out)
}

// SetLocalDescription applies the local description.
func (e *Engine) SetLocalDescription(desc signaling.SessionDescription) error {
	return e.pc.SetLocalDescription(descriptionToPion(desc))
}

// SetRemoteDescription applies the remote description.
func (e *Engine) SetRemoteDescription(desc signaling.SessionDescription) error {
	return e.pc.SetRemoteDescription(descriptionToPion(desc))
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (e *Engine) AddICECandidate(candidate signaling.ICECandidate) error {
	init, err := candidateToInit(candidate)
	if err != nil {
		return err
	}
	return e.pc.AddICECandidate(init)
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddStream publishes a local stream with one Opus audio and one VP8 video
// track, both labelled with label. Adding the same label twice is a no-op.
func (e *Engine) AddStream(label string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.local[label] {
		return nil
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio_label", label)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video_label", label)
	if err != nil {
		return fmt.Errorf("create video track: %w", err)
	}

	for _, track := range []webrtc.TrackLocal{audio, video} {
		sender, err := e.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		go drainRTCP(e.ctx, sender)
	}

	e.local[label] = true
	return nil
}

// handleTrack groups remote tracks by stream. The stream is announced with
// its first track and removed after its last track ends.
func (e *Engine) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	label := track.StreamID()

	e.mu.Lock()
	rs, exists := e.remote[label]
	if !exists {
		rs = &remoteStream{}
		e.remote[label] = rs
	}
	switch track.Kind() {
	case webrtc.RTPCodecTypeAudio:
		rs.audio++
	case webrtc.RTPCodecTypeVideo:
		rs.video++
	}
	stream := session.Stream{Label: label, AudioTracks: rs.audio, VideoTracks: rs.video}
	e.mu.Unlock()

	util.LogDebug("remote %s track %q on stream %q", track.Kind(), track.ID(), label)
	if !exists {
		e.events.OnRemoteStreamAdded(stream)
	}

	go func() {
		readTrack(e.ctx, track)
		e.trackEnded(label, track.Kind())
	}()
}

func (e *Engine) trackEnded(label string, kind webrtc.RTPCodecType) {
	e.mu.Lock()
	rs, ok := e.remote[label]
	if !ok {
		e.mu.Unlock()
		return
	}
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		rs.audio--
	case webrtc.RTPCodecTypeVideo:
		rs.video--
	}
	last := rs.audio <= 0 && rs.video <= 0
	if last {
		delete(e.remote, label)
	}
	e.mu.Unlock()

	if last && e.ctx.Err() == nil {
		e.events.OnRemoteStreamRemoved(session.Stream{Label: label})
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Close shuts down the PeerConnection. Events that race with Close are
// suppressed where the engine can tell.
func (e *Engine) Close() error {
	e.cancel()
	return e.pc.Close()
}
