package relay

import (
	"sync/atomic"

	"github.com/1ureka/peertalk/internal/signaling"
)

// idGen hands out peer IDs. It is shared by every connection handler, so all
// operations are atomic.
type idGen struct {
	val atomic.Int64
}

// next returns the next peer ID (monotonically increasing from 1). IDs are
// never reused within one relay process.
func (g *idGen) next() signaling.PeerID {
	return signaling.PeerID(g.val.Add(1))
}
