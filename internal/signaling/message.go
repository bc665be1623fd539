// Package signaling holds the peer-to-peer signaling vocabulary: the two wire
// message shapes exchanged through the relay (session descriptions and ICE
// candidates), their codec, and the ordered outgoing delivery queue.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// PeerID identifies an endpoint registered with the relay.
type PeerID int

// NoPeer is the unbound sentinel.
const NoPeer PeerID = -1

// Field names used on the wire (case-sensitive).
const (
	fieldType          = "type"
	fieldSDP           = "sdp"
	fieldSDPMid        = "sdpMid"
	fieldSDPMLineIndex = "sdpMLineIndex"
	fieldCandidate     = "candidate"
)

// DescriptionKind is the role of a session description in the handshake.
type DescriptionKind string

const (
	KindOffer  DescriptionKind = "offer"
	KindAnswer DescriptionKind = "answer"
)

// MaxMLineIndex is the largest media-section index a candidate may carry.
const MaxMLineIndex = math.MaxUint16

var (
	// ErrMalformed reports a payload that is not a structurally valid message.
	ErrMalformed = errors.New("malformed signaling message")
	// ErrMissingField reports a message that lacks a mandatory field.
	ErrMissingField = errors.New("missing field")
)

// Message is either a SessionDescription or an ICECandidate.
type Message interface {
	isMessage()
}

// SessionDescription carries an offer or an answer.
type SessionDescription struct {
	Kind DescriptionKind
	SDP  string
}

// ICECandidate carries one connectivity candidate for a media section.
type ICECandidate struct {
	Mid        string
	MLineIndex int
	SDP        string
}

func (SessionDescription) isMessage() {}
func (ICECandidate) isMessage()       {}

// envelope mirrors the union of both wire shapes. Pointers distinguish an
// absent field from a zero value.
type envelope struct {
	Type          *string `json:"type,omitempty"`
	SDP           *string `json:"sdp,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *int    `json:"sdpMLineIndex,omitempty"`
	Candidate     *string `json:"candidate,omitempty"`
}

// Decode parses raw into a Message. A non-empty "type" field makes the
// message a session description; anything else is treated as a candidate.
func Decode(raw string) (Message, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if env.Type != nil && *env.Type != "" {
		kind := DescriptionKind(*env.Type)
		if kind != KindOffer && kind != KindAnswer {
			return nil, fmt.Errorf("%w: unknown description type %q", ErrMalformed, kind)
		}
		if env.SDP == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, fieldSDP)
		}
		return SessionDescription{Kind: kind, SDP: *env.SDP}, nil
	}

	switch {
	case env.SDPMid == nil:
		return nil, fmt.Errorf("%w: %s", ErrMissingField, fieldSDPMid)
	case env.SDPMLineIndex == nil:
		return nil, fmt.Errorf("%w: %s", ErrMissingField, fieldSDPMLineIndex)
	case env.Candidate == nil:
		return nil, fmt.Errorf("%w: %s", ErrMissingField, fieldCandidate)
	case *env.SDPMLineIndex < 0 || *env.SDPMLineIndex > MaxMLineIndex:
		return nil, fmt.Errorf("%w: %s %d out of range", ErrMalformed, fieldSDPMLineIndex, *env.SDPMLineIndex)
	}

	return ICECandidate{
		Mid:        *env.SDPMid,
		MLineIndex: *env.SDPMLineIndex,
		SDP:        *env.Candidate,
	}, nil
}

// Encode serializes msg into its wire form. It is the exact inverse of Decode
// for every message Decode accepts; anything else (a nil or foreign Message,
// an out-of-range m-line index) is reported as ErrMalformed.
func Encode(msg Message) (string, error) {
	var env envelope

	switch m := msg.(type) {
	case SessionDescription:
		kind := string(m.Kind)
		env.Type = &kind
		env.SDP = &m.SDP
	case *SessionDescription:
		if m == nil {
			return "", fmt.Errorf("%w: nil session description", ErrMalformed)
		}
		return Encode(*m)
	case ICECandidate:
		if m.MLineIndex < 0 || m.MLineIndex > MaxMLineIndex {
			return "", fmt.Errorf("%w: %s %d out of range", ErrMalformed, fieldSDPMLineIndex, m.MLineIndex)
		}
		env.SDPMid = &m.Mid
		env.SDPMLineIndex = &m.MLineIndex
		env.Candidate = &m.SDP
	case *ICECandidate:
		if m == nil {
			return "", fmt.Errorf("%w: nil candidate", ErrMalformed)
		}
		return Encode(*m)
	default:
		return "", fmt.Errorf("%w: unsupported message type %T", ErrMalformed, msg)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(data), nil
}
