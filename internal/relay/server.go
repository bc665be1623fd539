// Package relay implements the rendezvous service endpoints sign in to, and
// the client endpoints use to reach it. The relay only forwards signaling
// text; it never inspects it.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/peertalk/internal/protocol"
	"github.com/1ureka/peertalk/internal/signaling"
	"github.com/1ureka/peertalk/internal/util"
)

const (
	signInTimeout   = 10 * time.Second
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 3 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// member is one signed-in endpoint. Writes to conn are serialized by mu.
type member struct {
	id   signaling.PeerID
	name string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (m *member) write(f *protocol.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(f)
}

func (m *member) writeLocked(f *protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

// Server is the relay: a peer registry plus message forwarding.
type Server struct {
	ids idGen

	mu      sync.Mutex
	members map[signaling.PeerID]*member
}

// NewServer creates a relay with no members.
func NewServer() *Server {
	return &Server{members: make(map[signaling.PeerID]*member)}
}

// Handler returns the HTTP handler serving the relay under /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe serves the relay on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves the relay on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	util.LogInfo("relay listening on %s", listener.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server.
	s.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Peers returns the current registry sorted by ID.
func (s *Server) Peers() []protocol.PeerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peersLocked(signaling.NoPeer)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogWarning("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	m, err := s.signIn(conn)
	if err != nil {
		util.LogWarning("rejecting %s: %v", r.RemoteAddr, err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeTimeout))
		return
	}
	defer s.leave(m)

	s.serveMember(m)
}

// signIn waits for the sign_in frame, registers the member and announces it.
func (s *Server) signIn(conn *websocket.Conn) (*member, error) {
	_ = conn.SetReadDeadline(time.Now().Add(signInTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read sign-in: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	f, err := protocol.Decode(data)
	if err != nil {
		return nil, err
	}
	if f.Kind != protocol.KindSignIn {
		return nil, fmt.Errorf("expected %s, got %s", protocol.KindSignIn, f.Kind)
	}

	m := &member{id: s.ids.next(), name: f.Name, conn: conn}

	// Hold the member's write lock until the welcome is out, so nothing
	// forwarded to it can overtake the welcome.
	m.mu.Lock()
	s.mu.Lock()
	peers := s.peersLocked(m.id)
	others := s.othersLocked(m.id)
	s.members[m.id] = m
	s.mu.Unlock()

	err = m.writeLocked(&protocol.Frame{Kind: protocol.KindWelcome, ID: m.id, Peers: peers})
	m.mu.Unlock()
	if err != nil {
		s.mu.Lock()
		delete(s.members, m.id)
		s.mu.Unlock()
		return nil, fmt.Errorf("write welcome: %w", err)
	}

	util.LogInfo("peer %d (%s) signed in", m.id, m.name)
	s.broadcast(others, &protocol.Frame{Kind: protocol.KindPeerConnected, ID: m.id, Name: m.name})
	return m, nil
}

// serveMember forwards the member's frames until it signs out or its
// connection drops.
func (s *Server) serveMember(m *member) {
	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			util.LogDebug("peer %d connection ended: %v", m.id, err)
			return
		}

		f, err := protocol.Decode(data)
		if err != nil {
			util.LogWarning("dropping frame from peer %d: %v", m.id, err)
			continue
		}

		switch f.Kind {
		case protocol.KindSignOut:
			util.LogDebug("peer %d signing out", m.id)
			return

		case protocol.KindMessage, protocol.KindBye:
			s.forward(m, f)

		default:
			util.LogWarning("dropping unexpected %s frame from peer %d", f.Kind, m.id)
		}
	}
}

// forward delivers f to its addressee, rewriting the sender.
func (s *Server) forward(from *member, f *protocol.Frame) {
	s.mu.Lock()
	target, ok := s.members[f.To]
	s.mu.Unlock()

	if !ok {
		util.LogWarning("dropping %s from peer %d: no peer %d", f.Kind, from.id, f.To)
		return
	}

	out := &protocol.Frame{Kind: f.Kind, From: from.id, Data: f.Data}
	if err := target.write(out); err != nil {
		util.LogWarning("failed to forward %s to peer %d: %v", f.Kind, target.id, err)
		return
	}

	util.Stats.AddFrameRelayed()
	util.LogTrace("forwarded %s %d → %d", f.Kind, from.id, target.id)
}

// leave unregisters m and announces its departure.
func (s *Server) leave(m *member) {
	s.mu.Lock()
	if _, ok := s.members[m.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.members, m.id)
	others := s.othersLocked(m.id)
	s.mu.Unlock()

	util.LogInfo("peer %d (%s) signed out", m.id, m.name)
	s.broadcast(others, &protocol.Frame{Kind: protocol.KindPeerDisconnected, ID: m.id})
}

func (s *Server) broadcast(to []*member, f *protocol.Frame) {
	for _, m := range to {
		if err := m.write(f); err != nil {
			util.LogDebug("failed to notify peer %d: %v", m.id, err)
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		m.conn.Close()
	}
}

func (s *Server) peersLocked(except signaling.PeerID) []protocol.PeerInfo {
	peers := make([]protocol.PeerInfo, 0, len(s.members))
	for id, m := range s.members {
		if id != except {
			peers = append(peers, protocol.PeerInfo{ID: id, Name: m.name})
		}
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}

func (s *Server) othersLocked(except signaling.PeerID) []*member {
	others := make([]*member, 0, len(s.members))
	for id, m := range s.members {
		if id != except {
			others = append(others, m)
		}
	}
	return others
}
