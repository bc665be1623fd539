package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling/media counter.
var Stats = &stats{}

type stats struct {
	DescriptionsSent atomic.Int64 // offers/answers handed to the relay
	DescriptionsRecv atomic.Int64 // offers/answers received from the peer
	CandidatesSent   atomic.Int64 // local ICE candidates handed to the relay
	CandidatesRecv   atomic.Int64 // remote ICE candidates received from the peer
	MediaBytesRecv   atomic.Int64 // cumulative bytes read from remote tracks
	FramesRelayed    atomic.Int64 // frames forwarded by the relay server
}

func (s *stats) AddDescriptionSent() { s.DescriptionsSent.Add(1) }
func (s *stats) AddDescriptionRecv() { s.DescriptionsRecv.Add(1) }
func (s *stats) AddCandidateSent()   { s.CandidatesSent.Add(1) }
func (s *stats) AddCandidateRecv()   { s.CandidatesRecv.Add(1) }
func (s *stats) AddMediaRecv(n int)  { s.MediaBytesRecv.Add(int64(n)) }
func (s *stats) AddFrameRelayed()    { s.FramesRelayed.Add(1) }

func (s *stats) signalingTotal() int64 {
	return s.DescriptionsSent.Load() + s.DescriptionsRecv.Load() +
		s.CandidatesSent.Load() + s.CandidatesRecv.Load()
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs signaling and media
// statistics every interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prevSignaling, prevMedia, prevRelayed int64
		for {
			select {
			case <-ticker.C:
				signaling := Stats.signalingTotal()
				media := Stats.MediaBytesRecv.Load()
				relayed := Stats.FramesRelayed.Load()

				mediaS := float64(media-prevMedia) / interval.Seconds()

				if signaling != prevSignaling || relayed != prevRelayed || mediaS > 10 {
					pterm.DefaultLogger.Info(formatStats(mediaS, relayed-prevRelayed))
				}

				prevSignaling = signaling
				prevMedia = media
				prevRelayed = relayed

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(mediaS float64, relayed int64) string {
	return fmt.Sprintf("SDP: %d↑ %d↓ | ICE: %d↑ %d↓ | Media: %s/s | Relayed: %d",
		Stats.DescriptionsSent.Load(),
		Stats.DescriptionsRecv.Load(),
		Stats.CandidatesSent.Load(),
		Stats.CandidatesRecv.Load(),
		formatBytes(mediaS),
		relayed,
	)
}
