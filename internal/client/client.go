// Package client is a Go client for the room signaling protocol.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/presence"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/protocol"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultEventBuffer  = 64
)

// ErrClosed is returned by send operations after Close.
var ErrClosed = errors.New("client: connection closed")

type Options struct {
	Dialer *websocket.Dialer
	// Header is sent with the upgrade request, e.g. to set Origin.
	Header http.Header
	Logger *slog.Logger

	WriteTimeout time.Duration
	EventBuffer  int
}

// Client is a single signaling connection. Events are delivered in arrival
// order on the channel returned by Events, which is closed when the
// connection ends.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeTimeout time.Duration
	writeMu      sync.Mutex

	events chan protocol.ServerMessage

	closeOnce   sync.Once
	done        chan struct{}
	mu          sync.Mutex
	closedLocal bool
	err         error
}

// Dial connects to a signaling endpoint. serverURL may use ws(s):// or
// http(s)://; a URL without a path is dialed at /ws.
func Dial(ctx context.Context, serverURL string, opts Options) (*Client, error) {
	wsURL, err := WebSocketURL(serverURL)
	if err != nil {
		return nil, err
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c := &Client{
		conn:         conn,
		log:          logger.With("url", wsURL),
		writeTimeout: opts.WriteTimeout,
		events:       make(chan protocol.ServerMessage, opts.EventBuffer),
		done:         make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// WebSocketURL normalizes a server address into the WebSocket endpoint URL.
func WebSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL %q: scheme must be ws, wss, http or https", serverURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", serverURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

func (c *Client) Events() <-chan protocol.ServerMessage { return c.events }

// Err reports why the connection ended. It is nil while the connection is
// open and after a local Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Join(room, peerID string) error {
	return c.send(protocol.ClientMessage{Kind: protocol.KindJoin, Room: room, PeerID: peerID})
}

// Signal sends payload to targetPeerID in the current room. payload is
// encoded with encoding/json unless it is already a json.RawMessage.
func (c *Client) Signal(targetPeerID string, payload any) error {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode signal payload: %w", err)
		}
		raw = b
	}
	return c.send(protocol.ClientMessage{Kind: protocol.KindSignal, TargetPeerID: targetPeerID, Signal: raw})
}

func (c *Client) Leave() error {
	return c.send(protocol.ClientMessage{Kind: protocol.KindLeave})
}

func (c *Client) send(msg protocol.ClientMessage) error {
	// json.Marshal would HTML-escape the payload again.
	data, err := msg.MarshalJSON()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msg.Kind, err)
	}
	return nil
}

// Next waits for the next event.
func (c *Client) Next(ctx context.Context) (protocol.ServerMessage, error) {
	select {
	case msg, ok := <-c.events:
		if !ok {
			if err := c.Err(); err != nil {
				return protocol.ServerMessage{}, err
			}
			return protocol.ServerMessage{}, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return protocol.ServerMessage{}, ctx.Err()
	}
}

// Close sends a normal close frame and releases the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.mu.Lock()
		c.closedLocal = true
		c.mu.Unlock()
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeTimeout))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedLocal
}

func (c *Client) readPump() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}
		msg, err := protocol.DecodeServer(data)
		if err != nil {
			c.log.Debug("ignoring unexpected server frame", "err", err)
			continue
		}
		select {
		case c.events <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closedLocal || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return
	}
	c.err = err
	c.log.Debug("signaling connection ended", "err", err)
}

// FetchStats retrieves the room census from baseURL (http(s)://host[:port]).
func FetchStats(ctx context.Context, httpClient *http.Client, baseURL string) (presence.Stats, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/stats"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return presence.Stats{}, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return presence.Stats{}, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return presence.Stats{}, fmt.Errorf("get %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var stats presence.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return presence.Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	if stats.RoomDetails == nil {
		stats.RoomDetails = map[string]presence.RoomStats{}
	}
	return stats, nil
}
