package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotConnected is returned when a frame is sent while no socket is open.
// Nothing is queued.
var ErrNotConnected = errors.New("not connected to controller")

// ConnectionState is the lifecycle state of the controller socket
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

const (
	DefaultHeartbeatTimeout  = 15 * time.Second
	DefaultHeartbeatInterval = 5 * time.Second
)

// ConnectionConfig holds the socket liveness and retry settings
type ConnectionConfig struct {
	URL               string
	HeartbeatTimeout  time.Duration
	HeartbeatInterval time.Duration
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
}

// connectionHandler receives connection events on the session loop
type connectionHandler interface {
	connectionOpened()
	connectionFrame(data []byte)
	connectionStateChanged(state ConnectionState)
}

// Connection owns the socket to the controller and its reconnect and
// heartbeat timers. All methods except the dial and read goroutines run on
// the session loop, so no locking is needed here.
type Connection struct {
	ctx     context.Context
	cfg     ConnectionConfig
	dialer  Dialer
	times   TimeProvider
	post    func(func()) bool
	handler connectionHandler
	obs     Observer

	state      ConnectionState
	transport  Transport
	generation uint64
	backoff    *backoff.ExponentialBackOff
	lastDelay  time.Duration

	reconnectTimer Timer
	heartbeat      Timer
	lastInbound    time.Time
	everConnected  bool
	lostAt         time.Time
	stopped        bool
}

func newConnection(ctx context.Context, cfg ConnectionConfig, dialer Dialer, times TimeProvider, post func(func()) bool, handler connectionHandler, obs Observer) *Connection {
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Connection{
		ctx:     ctx,
		cfg:     cfg,
		dialer:  dialer,
		times:   times,
		post:    post,
		handler: handler,
		obs:     obs,
		backoff: NewReconnectBackOff(cfg.ReconnectInitial, cfg.ReconnectMax),
	}
}

// State returns the current connection state
func (c *Connection) State() ConnectionState {
	return c.state
}

// LastDelay returns the most recently scheduled reconnect delay
func (c *Connection) LastDelay() time.Duration {
	return c.lastDelay
}

// Send writes one text frame. It returns ErrNotConnected without queueing
// when the socket is not open.
func (c *Connection) Send(data []byte) error {
	if c.state != StateConnected || c.transport == nil {
		slog.Warn("Dropping outbound frame, not connected", "state", c.state)
		return ErrNotConnected
	}
	if err := c.transport.WriteMessage(TextMessage, data); err != nil {
		slog.Warn("Error writing to controller", "err", err)
		c.closed(c.generation, err)
		return err
	}
	return nil
}

// connect closes any previous transport and dials a new one. The dial runs
// in its own goroutine and posts its result back to the loop.
func (c *Connection) connect() {
	if c.stopped {
		return
	}
	c.stopReconnectTimer()
	c.detach()
	gen := c.generation
	c.setState(StateConnecting)

	url := c.cfg.URL
	go func() {
		t, err := c.dialer.Dial(c.ctx, url)
		if !c.post(func() { c.dialed(gen, t, err) }) && t != nil {
			t.Close()
		}
	}()
}

func (c *Connection) dialed(gen uint64, t Transport, err error) {
	if gen != c.generation || c.stopped {
		if t != nil {
			t.Close()
		}
		return
	}
	if err != nil {
		slog.Warn("Failed to connect to controller", "url", c.cfg.URL, "err", err)
		c.scheduleReconnect()
		return
	}

	c.transport = t
	c.lastInbound = c.times.Now()
	c.everConnected = true
	c.backoff.Reset()
	slog.Info("Connected to controller", "url", c.cfg.URL)
	c.setState(StateConnected)
	c.startHeartbeat()
	go c.readLoop(gen, t)
	c.handler.connectionOpened()
}

func (c *Connection) readLoop(gen uint64, t Transport) {
	for {
		messageType, data, err := t.ReadMessage()
		if err != nil {
			c.post(func() { c.closed(gen, err) })
			return
		}
		if !c.post(func() { c.frame(gen, messageType, data) }) {
			return
		}
	}
}

func (c *Connection) frame(gen uint64, messageType int, data []byte) {
	if gen != c.generation {
		return
	}
	c.lastInbound = c.times.Now()
	if messageType != TextMessage {
		slog.Debug("Ignoring non-text frame", "messageType", messageType)
		c.obs.FrameDropped("non_text")
		return
	}
	c.handler.connectionFrame(data)
}

// closed handles the end of the transport of generation gen
func (c *Connection) closed(gen uint64, err error) {
	if gen != c.generation || c.stopped {
		return
	}
	if isConnectionClosedError(err) {
		slog.Info("Controller connection closed", "err", err)
	} else {
		slog.Warn("Controller connection lost", "err", err)
	}
	c.scheduleReconnect()
}

// scheduleReconnect detaches the current transport and arms the single
// reconnect timer with the next backoff delay
func (c *Connection) scheduleReconnect() {
	if c.state == StateConnected {
		c.lostAt = c.times.Now()
	}
	c.stopHeartbeat()
	c.detach()
	c.stopReconnectTimer()

	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = c.backoff.MaxInterval
	}
	c.lastDelay = delay
	c.obs.Reconnect(delay)
	slog.Info("Reconnecting to controller", "delay", delay)
	c.setState(StateReconnecting)

	var t Timer
	t = c.times.AfterFunc(delay, func() {
		c.post(func() {
			if c.reconnectTimer != t {
				return
			}
			c.reconnectTimer = nil
			c.connect()
		})
	})
	c.reconnectTimer = t
}

func (c *Connection) startHeartbeat() {
	c.stopHeartbeat()
	var t Timer
	t = c.times.Every(c.cfg.HeartbeatInterval, func() {
		c.post(func() {
			if c.heartbeat != t {
				return
			}
			c.checkHeartbeat()
		})
	})
	c.heartbeat = t
}

func (c *Connection) checkHeartbeat() {
	if c.state != StateConnected {
		return
	}
	silence := c.times.Now().Sub(c.lastInbound)
	if silence <= c.cfg.HeartbeatTimeout {
		return
	}
	slog.Warn("No frame from controller, forcing reconnect", "silence", silence)
	c.obs.HeartbeatTimeout()
	c.scheduleReconnect()
}

// detach closes the current transport and bumps the generation so that
// callbacks still in flight for it are ignored
func (c *Connection) detach() {
	c.generation++
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			slog.Debug("Error closing transport", "err", err)
		}
		c.transport = nil
	}
}

func (c *Connection) stopReconnectTimer() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Connection) stopHeartbeat() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
}

// shutdown closes the transport and leaves the connection Disconnected for
// good. Timers must already be stopped.
func (c *Connection) shutdown() {
	c.stopped = true
	c.detach()
	c.setState(StateDisconnected)
}

func (c *Connection) setState(state ConnectionState) {
	if c.state == state {
		return
	}
	c.state = state
	c.obs.ConnectionState(int(state), state.String())
	c.handler.connectionStateChanged(state)
}
