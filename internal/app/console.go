package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pterm/pterm"

	"github.com/1ureka/peertalk/internal/session"
	"github.com/1ureka/peertalk/internal/signaling"
	"github.com/1ureka/peertalk/internal/util"
)

const waitOption = "Wait for an incoming call"

// caller is the part of the conductor the console drives.
type caller interface {
	ConnectToPeer(peer signaling.PeerID)
}

// console renders session notifications with pterm. Notify hands each
// notification to the console's own loop, so the session never waits on the
// terminal.
type console struct {
	loop      *session.Loop
	conductor caller

	autoPeer    string // call the peer with this name once it is listed
	interactive bool   // offer a peer picker while idle

	inCall    bool
	autoDone  bool
	prompting atomic.Bool
	prompt    func(options []string) (string, error)
}

var _ session.Presenter = (*console)(nil)

func newConsole(autoPeer string, interactive bool) *console {
	return &console{
		loop:        session.NewLoop(),
		autoPeer:    autoPeer,
		interactive: interactive && autoPeer == "",
		prompt:      showPeerSelect,
	}
}

// Notify implements session.Presenter.
func (c *console) Notify(n session.Notification) {
	c.loop.Post(func() { c.handle(n) })
}

// run renders notifications until ctx is cancelled.
func (c *console) run(ctx context.Context, conductor caller) {
	c.conductor = conductor
	c.loop.Run(ctx)
}

func (c *console) handle(n session.Notification) {
	switch n.Kind {
	case session.PeerList:
		renderPeers(n.Peers)
		c.maybeCall(n.Peers)

	case session.CallStarted:
		c.inCall = true
		pterm.Info.Printfln("Negotiating with peer %d", n.Peer)

	case session.CallConnected:
		c.inCall = true
		pterm.Success.Printfln("Connected to peer %d", n.Peer)

	case session.ConnectionClosed:
		c.inCall = false
		pterm.Info.Printfln("Call with peer %d ended", n.Peer)

	case session.NewStream:
		pterm.Info.Printfln("Peer %d started stream %q (%d audio, %d video)",
			n.Peer, n.Stream.Label, n.Stream.AudioTracks, n.Stream.VideoTracks)

	case session.StreamRemoved:
		pterm.Info.Printfln("Peer %d stopped stream %q", n.Peer, n.Stream.Label)

	case session.EngineError:
		pterm.Error.Printfln("Connection to peer %d failed: %s", n.Peer, n.Message)

	case session.Error:
		pterm.Error.Println(n.Message)

	case session.SignedOut:
		c.inCall = false
		pterm.Warning.Println("Signed out of the relay")

	default:
		util.LogDebug("unhandled notification %s", n.Kind)
	}
}

// maybeCall starts a call from a fresh peer list: automatically when a peer
// name was configured, otherwise through the interactive picker.
func (c *console) maybeCall(peers map[signaling.PeerID]string) {
	if c.conductor == nil || c.inCall {
		return
	}

	if c.autoPeer != "" {
		if c.autoDone {
			return
		}
		if id, ok := findPeer(peers, c.autoPeer); ok {
			c.autoDone = true
			util.LogInfo("calling %s (peer %d)", c.autoPeer, id)
			c.conductor.ConnectToPeer(id)
		}
		return
	}

	if !c.interactive || len(peers) == 0 || !c.prompting.CompareAndSwap(false, true) {
		return
	}

	options := peerOptions(peers)
	go func() {
		defer c.prompting.Store(false)

		choice, err := c.prompt(options)
		if err != nil {
			util.LogDebug("peer selection aborted: %v", err)
			return
		}
		if id, ok := parsePeerOption(choice); ok {
			c.conductor.ConnectToPeer(id)
		}
	}()
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

func renderPeers(peers map[signaling.PeerID]string) {
	if len(peers) == 0 {
		pterm.Info.Println("No other peers are signed in")
		return
	}

	data := pterm.TableData{{"ID", "Name"}}
	for _, id := range sortedIDs(peers) {
		data = append(data, []string{strconv.Itoa(int(id)), peers[id]})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		util.LogDebug("failed to render peer table: %v", err)
	}
}

func showPeerSelect(options []string) (string, error) {
	return pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText("Select a peer to call").
		Show()
}

// findPeer returns the lowest ID signed in under name.
func findPeer(peers map[signaling.PeerID]string, name string) (signaling.PeerID, bool) {
	for _, id := range sortedIDs(peers) {
		if peers[id] == name {
			return id, true
		}
	}
	return signaling.NoPeer, false
}

// peerOptions lists peers as "name (#id)" sorted by ID, plus the wait option.
func peerOptions(peers map[signaling.PeerID]string) []string {
	options := make([]string, 0, len(peers)+1)
	for _, id := range sortedIDs(peers) {
		options = append(options, fmt.Sprintf("%s (#%d)", peers[id], id))
	}
	return append(options, waitOption)
}

func parsePeerOption(option string) (signaling.PeerID, bool) {
	i := strings.LastIndex(option, "(#")
	if i < 0 || !strings.HasSuffix(option, ")") {
		return signaling.NoPeer, false
	}
	id, err := strconv.Atoi(option[i+2 : len(option)-1])
	if err != nil || id <= 0 {
		return signaling.NoPeer, false
	}
	return signaling.PeerID(id), true
}

func sortedIDs(peers map[signaling.PeerID]string) []signaling.PeerID {
	ids := make([]signaling.PeerID, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
