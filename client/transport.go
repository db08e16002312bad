package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// TextMessage is the frame type the controller uses for every JSON message
const TextMessage = websocket.TextMessage

// Transport abstracts one open socket to the controller
type Transport interface {
	// ReadMessage blocks until the next frame arrives or the socket fails
	ReadMessage() (messageType int, p []byte, err error)

	// WriteMessage sends one frame
	WriteMessage(messageType int, data []byte) error

	// Close closes the socket and unblocks ReadMessage
	Close() error
}

// Dialer opens transports
type Dialer interface {
	Dial(ctx context.Context, serverURL string) (Transport, error)
}

// WebSocketDialer is the Dialer for real controllers
type WebSocketDialer struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

// NewWebSocketDialer creates a WebSocketDialer with the given handshake timeout
func NewWebSocketDialer(handshakeTimeout time.Duration) *WebSocketDialer {
	d := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		d.HandshakeTimeout = handshakeTimeout
	}
	return &WebSocketDialer{dialer: &d, writeTimeout: 10 * time.Second}
}

// Dial connects to serverURL
func (d *WebSocketDialer) Dial(ctx context.Context, serverURL string) (Transport, error) {
	if _, err := url.Parse(serverURL); err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	conn, _, err := d.dialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", serverURL, err)
	}
	return &webSocketTransport{conn: conn, writeTimeout: d.writeTimeout}, nil
}

type webSocketTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (t *webSocketTransport) ReadMessage() (int, []byte, error) {
	return t.conn.ReadMessage()
}

func (t *webSocketTransport) WriteMessage(messageType int, data []byte) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(messageType, data)
}

func (t *webSocketTransport) Close() error {
	return t.conn.Close()
}

// WebSocketURL builds the controller socket URL for a host
func WebSocketURL(host string) string {
	return (&url.URL{Scheme: "ws", Host: host, Path: "/ws"}).String()
}

// isConnectionClosedError reports whether err is an ordinary end of the socket
// rather than a protocol fault worth a warning
func isConnectionClosedError(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
