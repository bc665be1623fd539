package session

import (
	"context"
	"testing"
	"time"

	"github.com/1ureka/peertalk/internal/signaling"
)

func TestConductorRoutesRelayEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := NewLoop()
	relay := newFakeRelay()
	factory := &fakeFactory{}
	presenter := &recordingPresenter{}
	c := NewConductor(loop, New(loop, relay, factory, presenter, Options{}))

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.OnSignedIn()
	c.OnMessageFromPeer(7, `{"type":"offer","sdp":"X"}`)

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.State != Negotiating || snap.Peer != 7 {
		t.Fatalf("snapshot = %+v, want negotiating with peer 7", snap)
	}
	if presenter.count(PeerList) != 1 {
		t.Errorf("peer list notifications = %d, want 1", presenter.count(PeerList))
	}

	eng := factory.last()
	eng.events.OnLocalDescription(signaling.SessionDescription{Kind: signaling.KindAnswer, SDP: "Y"})
	if snap, _ = c.Snapshot(ctx); snap.PendingMessages != 0 {
		t.Errorf("PendingMessages = %d, want 0", snap.PendingMessages)
	}
	if sent := relay.sentMessages(); len(sent) != 1 || sent[0].peer != 7 {
		t.Errorf("sent = %#v", sent)
	}

	c.DisconnectFromCurrentPeer()
	if snap, _ = c.Snapshot(ctx); snap.State != Idle || snap.Peer != signaling.NoPeer {
		t.Errorf("after hang-up snapshot = %+v", snap)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("conductor did not stop")
	}
	if relay.signOuts != 1 {
		t.Errorf("signed out %d times on shutdown, want 1", relay.signOuts)
	}
}
