// Package client provides a reusable WebSocket load test client for the room
// server. It connects using gobwas/ws (the same library the server uses),
// automatically performs the join -> auth_ok handshake, and tracks
// per-connection performance metrics.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ---------------------------------------------------------------------------
// Protocol message types (local equivalents of internal/protocol constants)
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoin          = "join"
	TypeMessage       = "message"
	TypeEditMessage   = "edit_message"
	TypeDeleteMessage = "delete_message"
	TypeReaction      = "reaction"
	TypeTyping        = "typing"
	TypeCallJoin      = "call_join"
	TypeCallLeave     = "call_leave"
	TypeWebRTCSignal  = "webrtc_signal"
	TypeWebRTCHangup  = "webrtc_hangup"
	TypePing          = "ping"
)

// Server -> Client message types.
const (
	TypeAuthOK         = "auth_ok"
	TypeAuthError      = "auth_error"
	TypeHistory        = "history"
	TypeMessageEdit    = "message_edit"
	TypeMessageDelete  = "message_delete"
	TypeReact          = "react"
	TypeTypingUpdate   = "typing_update"
	TypePresenceUpdate = "presence_update"
	TypeSystem         = "system"
	TypeCallJoined     = "call_joined"
	TypeCallStarted    = "call_started"
	TypeCallStatus     = "call_status"
	TypeCallPeerLeft   = "call_peer_left"
	TypeRateLimited    = "rate_limited"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	AuthLatency      time.Duration
	MessagesReceived int
	MessagesSent     int
	Errors           int
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Options configures the simulated participant.
type Options struct {
	Username string
	Password string
	Avatar   string
}

// Client represents a single simulated participant connection to the room
// server. It manages the WebSocket lifecycle, dispatches incoming messages to
// registered handlers, and automatically completes the join handshake.
type Client struct {
	conn      net.Conn
	opts      Options
	mu        sync.Mutex
	metrics   Metrics
	handlers  map[string]func(json.RawMessage)
	done      chan struct{}
	closeOnce sync.Once

	dialedAt time.Time
	authName string // display name confirmed by auth_ok
	authErr  string // populated on auth_error
}

// New creates a load test client connected to the given WebSocket URL. The
// connection is established immediately, a background goroutine begins reading
// messages, and a join message is sent right away. Use WaitForAuth to block
// until the server confirms the identity.
func New(ctx context.Context, url string, opts Options) (*Client, error) {
	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		opts:     opts,
		handlers: make(map[string]func(json.RawMessage)),
		done:     make(chan struct{}),
		dialedAt: start,
	}
	c.metrics.ConnectLatency = time.Since(start)

	go c.readLoop()

	if err := c.Send(map[string]string{
		"type":     TypeJoin,
		"username": opts.Username,
		"password": opts.Password,
		"avatar":   opts.Avatar,
	}); err != nil {
		c.Close()
		return nil, fmt.Errorf("join: %w", err)
	}

	return c, nil
}

// Send sends a JSON message to the server. It is goroutine-safe.
func (c *Client) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.MessagesSent++
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// SendChat sends a plain text chat message.
func (c *Client) SendChat(text string) error {
	return c.Send(map[string]string{"type": TypeMessage, "text": text})
}

// On registers a handler for a specific server message type. The handler
// receives the full raw JSON of the message for flexible decoding.
// Handlers are invoked from the read loop goroutine so they should not block
// for extended periods. Only one handler per message type is supported;
// registering a second handler for the same type replaces the first.
func (c *Client) On(msgType string, handler func(json.RawMessage)) {
	c.handlers[msgType] = handler
}

// WaitForAuth blocks until the server has confirmed the join with auth_ok, the
// join was rejected, or the context is cancelled.
func (c *Client) WaitForAuth(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("connection closed before auth completed")
		case <-ticker.C:
			c.mu.Lock()
			name, authErr := c.authName, c.authErr
			c.mu.Unlock()
			if authErr != "" {
				return fmt.Errorf("auth rejected: %s", authErr)
			}
			if name != "" {
				return nil
			}
		}
	}
}

// Close closes the connection and stops the read loop. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Username returns the display name confirmed by the server, or an empty
// string if the handshake has not completed. The server may have sanitized the
// requested name.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authName
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// readLoop continuously reads WebSocket frames from the server and dispatches
// them to registered handlers. It runs until the connection is closed or an
// unrecoverable error occurs.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				// Connection was intentionally closed; do not count as error.
				return
			default:
			}
			c.mu.Lock()
			c.metrics.Errors++
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		c.metrics.MessagesReceived++
		c.mu.Unlock()

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}

		// Handle the auth handshake internally so scenarios only deal with
		// room traffic.
		switch envelope.Type {
		case TypeAuthOK:
			var msg struct {
				Username string `json:"username"`
			}
			if err := json.Unmarshal(data, &msg); err == nil && msg.Username != "" {
				c.mu.Lock()
				if c.authName == "" {
					c.authName = msg.Username
					c.metrics.AuthLatency = time.Since(c.dialedAt)
				}
				c.mu.Unlock()
			}
		case TypeAuthError:
			var msg struct {
				Message string `json:"message"`
			}
			c.mu.Lock()
			if err := json.Unmarshal(data, &msg); err == nil && msg.Message != "" {
				c.authErr = msg.Message
			} else {
				c.authErr = "unknown"
			}
			c.mu.Unlock()
		}

		if handler, ok := c.handlers[envelope.Type]; ok {
			handler(json.RawMessage(data))
		}
	}
}
