package app

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/peertalk/internal/session"
	"github.com/1ureka/peertalk/internal/signaling"
	"github.com/1ureka/peertalk/internal/util"
)

func TestMain(m *testing.M) {
	pterm.DisableOutput()
	util.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeCaller struct {
	mu    sync.Mutex
	calls []signaling.PeerID
	ch    chan signaling.PeerID
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{ch: make(chan signaling.PeerID, 8)}
}

func (f *fakeCaller) ConnectToPeer(peer signaling.PeerID) {
	f.mu.Lock()
	f.calls = append(f.calls, peer)
	f.mu.Unlock()
	f.ch <- peer
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func peerList(peers map[signaling.PeerID]string) session.Notification {
	return session.Notification{Kind: session.PeerList, Peers: peers}
}

func TestAutoCallOnce(t *testing.T) {
	c := newConsole("bob@host", true)
	f := newFakeCaller()
	c.conductor = f

	c.handle(peerList(map[signaling.PeerID]string{3: "carol@host"}))
	if f.count() != 0 {
		t.Fatalf("called before bob was listed")
	}

	c.handle(peerList(map[signaling.PeerID]string{3: "carol@host", 9: "bob@host", 5: "bob@host"}))
	if f.count() != 1 || f.calls[0] != 5 {
		t.Fatalf("calls = %v, want [5]", f.calls)
	}

	c.handle(session.Notification{Kind: session.ConnectionClosed, Peer: 5})
	c.handle(peerList(map[signaling.PeerID]string{5: "bob@host"}))
	if f.count() != 1 {
		t.Errorf("auto call repeated: %v", f.calls)
	}
}

func TestInteractivePick(t *testing.T) {
	c := newConsole("", true)
	f := newFakeCaller()
	c.conductor = f

	var offered []string
	c.prompt = func(options []string) (string, error) {
		offered = options
		return options[1], nil
	}

	c.handle(peerList(map[signaling.PeerID]string{8: "dave@host", 2: "alice@host"}))

	select {
	case peer := <-f.ch:
		if peer != 8 {
			t.Errorf("called %d, want 8", peer)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no call placed")
	}

	want := []string{"alice@host (#2)", "dave@host (#8)", waitOption}
	if len(offered) != len(want) {
		t.Fatalf("options = %v, want %v", offered, want)
	}
	for i := range want {
		if offered[i] != want[i] {
			t.Errorf("options[%d] = %q, want %q", i, offered[i], want[i])
		}
	}
}

func TestInteractiveWaitAndAbort(t *testing.T) {
	testCases := []struct {
		name   string
		choice string
		err    error
	}{
		{"wait", waitOption, nil},
		{"abort", "", errors.New("interrupted")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newConsole("", true)
			f := newFakeCaller()
			c.conductor = f

			done := make(chan struct{})
			c.prompt = func([]string) (string, error) {
				defer close(done)
				return tc.choice, tc.err
			}

			c.handle(peerList(map[signaling.PeerID]string{2: "alice@host"}))
			<-done

			deadline := time.Now().Add(2 * time.Second)
			for c.prompting.Load() && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			if f.count() != 0 {
				t.Errorf("calls = %v, want none", f.calls)
			}
		})
	}
}

func TestNoPromptWhileInCall(t *testing.T) {
	for _, kind := range []session.NotificationKind{session.CallStarted, session.CallConnected} {
		t.Run(kind.String(), func(t *testing.T) {
			c := newConsole("", true)
			c.conductor = newFakeCaller()
			c.prompt = func([]string) (string, error) {
				t.Error("prompted during a call")
				return waitOption, nil
			}

			c.handle(session.Notification{Kind: kind, Peer: 2})
			c.handle(peerList(map[signaling.PeerID]string{2: "alice@host", 3: "carol@host"}))
		})
	}
}

func TestPromptAfterCallEnds(t *testing.T) {
	c := newConsole("", true)
	c.conductor = newFakeCaller()

	prompted := make(chan struct{})
	c.prompt = func([]string) (string, error) {
		close(prompted)
		return waitOption, nil
	}

	c.handle(session.Notification{Kind: session.CallStarted, Peer: 2})
	c.handle(session.Notification{Kind: session.ConnectionClosed, Peer: 2})
	c.handle(peerList(map[signaling.PeerID]string{2: "alice@host"}))

	select {
	case <-prompted:
	case <-time.After(2 * time.Second):
		t.Fatal("no prompt after the call ended")
	}
}

func TestParsePeerOption(t *testing.T) {
	testCases := []struct {
		option string
		want   signaling.PeerID
		ok     bool
	}{
		{"alice@host (#2)", 2, true},
		{"odd (#name) (#14)", 14, true},
		{waitOption, signaling.NoPeer, false},
		{"bob (#x)", signaling.NoPeer, false},
		{"bob (#0)", signaling.NoPeer, false},
	}

	for _, tc := range testCases {
		got, ok := parsePeerOption(tc.option)
		if got != tc.want || ok != tc.ok {
			t.Errorf("parsePeerOption(%q) = %d, %v; want %d, %v", tc.option, got, ok, tc.want, tc.ok)
		}
	}
}
