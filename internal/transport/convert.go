package transport

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peertalk/internal/signaling"
)

func descriptionToPion(desc signaling.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(string(desc.Kind)),
		SDP:  desc.SDP,
	}
}

func descriptionFromPion(desc webrtc.SessionDescription) (signaling.SessionDescription, error) {
	var kind signaling.DescriptionKind
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		kind = signaling.KindOffer
	case webrtc.SDPTypeAnswer:
		kind = signaling.KindAnswer
	default:
		return signaling.SessionDescription{}, fmt.Errorf("unsupported description type %s", desc.Type)
	}
	return signaling.SessionDescription{Kind: kind, SDP: desc.SDP}, nil
}

var errMLineIndexRange = errors.New("m-line index out of range")

func candidateToInit(c signaling.ICECandidate) (webrtc.ICECandidateInit, error) {
	if c.MLineIndex < 0 || c.MLineIndex > signaling.MaxMLineIndex {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: %d", errMLineIndexRange, c.MLineIndex)
	}
	mid := c.Mid
	index := uint16(c.MLineIndex)
	return webrtc.ICECandidateInit{
		Candidate:     c.SDP,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}, nil
}

// candidateFromInit fills absent mid/index with their zero values; the wire
// format requires both.
func candidateFromInit(init webrtc.ICECandidateInit) signaling.ICECandidate {
	c := signaling.ICECandidate{SDP: init.Candidate}
	if init.SDPMid != nil {
		c.Mid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		c.MLineIndex = int(*init.SDPMLineIndex)
	}
	return c
}
