package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/peertalk/internal/protocol"
	"github.com/1ureka/peertalk/internal/signaling"
	"github.com/1ureka/peertalk/internal/util"
)

var (
	ErrNotConnected = errors.New("not connected to the relay")
	ErrBusy         = errors.New("a message is already being sent")
)

const dialTimeout = 10 * time.Second

// Observer receives relay client events. Calls arrive on the client's
// goroutines and must not block.
type Observer interface {
	OnSignedIn()
	OnDisconnected()
	OnPeerConnected(peer signaling.PeerID, name string)
	OnPeerDisconnected(peer signaling.PeerID)
	OnMessageFromPeer(peer signaling.PeerID, raw string)
	OnMessageSent(err error)
	OnServerConnectionFailure(err error)
}

// Client is the endpoint side of the relay connection. It keeps the peer list
// current and carries at most one signaling message at a time.
type Client struct {
	observer Observer
	dialer   *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	connecting bool
	id         signaling.PeerID
	peers      map[signaling.PeerID]string
	sending    bool
	outbox     chan *protocol.Frame
	cancel     context.CancelFunc

	writeMu sync.Mutex
}

// NewClient creates a disconnected client reporting to observer.
func NewClient(observer Observer) *Client {
	return &Client{
		observer: observer,
		dialer:   &websocket.Dialer{HandshakeTimeout: dialTimeout},
		id:       signaling.NoPeer,
		peers:    make(map[signaling.PeerID]string),
	}
}

// SetObserver replaces the observer. It must be called before Connect.
func (c *Client) SetObserver(observer Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = observer
}

// Connect signs in to the relay at server:port in the background. The outcome
// is reported through OnSignedIn or OnServerConnectionFailure.
func (c *Client) Connect(ctx context.Context, server string, port int, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil || c.connecting {
		return ErrBusy
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid relay port %d", port)
	}

	c.connecting = true
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(server, strconv.Itoa(port)), Path: "/ws"}
	go c.signIn(ctx, u.String(), name)
	return nil
}

// signIn dials the relay and waits for the welcome frame.
func (c *Client) signIn(ctx context.Context, wsURL, name string) {
	conn, welcome, err := c.dial(ctx, wsURL, name)
	if err != nil {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
		c.observer.OnServerConnectionFailure(err)
		return
	}

	connCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.connecting = false
	c.conn = conn
	c.id = welcome.ID
	c.cancel = cancel
	c.outbox = make(chan *protocol.Frame, 1)
	clear(c.peers)
	for _, p := range welcome.Peers {
		c.peers[p.ID] = p.Name
	}
	outbox := c.outbox
	c.mu.Unlock()

	util.LogDebug("signed in to %s as peer %d", wsURL, welcome.ID)

	go c.writeLoop(connCtx, conn, outbox)
	c.observer.OnSignedIn()
	c.readLoop(conn)
}

func (c *Client) dial(ctx context.Context, wsURL, name string) (*websocket.Conn, *protocol.Frame, error) {
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	if err := c.write(conn, &protocol.Frame{Kind: protocol.KindSignIn, Name: name}); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("sign in: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(dialTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("read welcome: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	welcome, err := protocol.Decode(data)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if welcome.Kind != protocol.KindWelcome {
		conn.Close()
		return nil, nil, fmt.Errorf("expected %s, got %s", protocol.KindWelcome, welcome.Kind)
	}
	return conn, welcome, nil
}

// readLoop dispatches inbound frames until the connection ends.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.disconnected(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			util.LogDebug("relay connection ended: %v", err)
			return
		}

		f, err := protocol.Decode(data)
		if err != nil {
			util.LogWarning("dropping relay frame: %v", err)
			continue
		}

		switch f.Kind {
		case protocol.KindPeerConnected:
			c.mu.Lock()
			c.peers[f.ID] = f.Name
			c.mu.Unlock()
			c.observer.OnPeerConnected(f.ID, f.Name)

		case protocol.KindPeerDisconnected:
			c.mu.Lock()
			delete(c.peers, f.ID)
			c.mu.Unlock()
			c.observer.OnPeerDisconnected(f.ID)

		case protocol.KindMessage:
			c.observer.OnMessageFromPeer(f.From, f.Data)

		case protocol.KindBye:
			util.LogDebug("peer %d hung up", f.From)
			c.observer.OnPeerDisconnected(f.From)

		default:
			util.LogWarning("dropping unexpected %s frame from relay", f.Kind)
		}
	}
}

// writeLoop is the single writer for signaling messages. Every send is
// completed with OnMessageSent.
func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, outbox <-chan *protocol.Frame) {
	for {
		select {
		case f := <-outbox:
			err := c.write(conn, f)

			c.mu.Lock()
			c.sending = false
			c.mu.Unlock()

			c.observer.OnMessageSent(err)
		case <-ctx.Done():
			return
		}
	}
}

// disconnected resets the client after the read loop ended.
func (c *Client) disconnected(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.id = signaling.NoPeer
	c.sending = false
	clear(c.peers)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	conn.Close()
	c.observer.OnDisconnected()
}

func (c *Client) write(conn *websocket.Conn, f *protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SignOut tells the relay we are leaving and closes the connection.
// OnDisconnected follows once the read loop has stopped.
func (c *Client) SignOut() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	err := c.write(conn, &protocol.Frame{Kind: protocol.KindSignOut})

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	c.writeMu.Unlock()

	return errors.Join(err, conn.Close())
}

// IsConnected reports whether the client is signed in.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// IsSendingMessage reports whether a signaling message is still outstanding.
func (c *Client) IsSendingMessage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// ID returns the ID the relay assigned us, or NoPeer.
func (c *Client) ID() signaling.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// SendToPeer starts delivering text to peer. It fails synchronously when not
// signed in or while another send is outstanding.
func (c *Client) SendToPeer(peer signaling.PeerID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if c.sending {
		return ErrBusy
	}

	c.sending = true
	c.outbox <- &protocol.Frame{Kind: protocol.KindMessage, To: peer, Data: text}
	return nil
}

// SendHangUp tells peer that we ended the session.
func (c *Client) SendHangUp(peer signaling.PeerID) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, &protocol.Frame{Kind: protocol.KindBye, To: peer})
}

// Peers returns a copy of the other peers currently signed in.
func (c *Client) Peers() map[signaling.PeerID]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	peers := make(map[signaling.PeerID]string, len(c.peers))
	for id, name := range c.peers {
		peers[id] = name
	}
	return peers
}
