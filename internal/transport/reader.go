package transport

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peertalk/internal/util"
)

const readBufferSize = 1500 // one RTP packet on a typical MTU

// readTrack consumes a remote track until it ends or ctx is cancelled.
// Playback is out of scope; the bytes are only counted.
func readTrack(ctx context.Context, track *webrtc.TrackRemote) {
	buf := make([]byte, readBufferSize)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if ctx.Err() == nil {
				util.LogDebug("remote track %q ended: %v", track.ID(), err)
			}
			return
		}
		util.Stats.AddMediaRecv(n)

		if ctx.Err() != nil {
			return
		}
	}
}

// drainRTCP reads RTCP for a local track so interceptors (NACK, reports)
// keep running. It exits when the sender is stopped.
func drainRTCP(ctx context.Context, sender *webrtc.RTPSender) {
	buf := make([]byte, readBufferSize)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}
