package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"gdaytreva/clock"
	"gdaytreva/program"
	"gdaytreva/protocol"
)

// ErrSessionClosed is returned by calls made on a session that is not running
var ErrSessionClosed = errors.New("session is not running")

const (
	DefaultCountdownInterval = 1 * time.Second
	DefaultDiscoveryFallback = 3 * time.Second
	DefaultConfigTimeout     = 3 * time.Second
)

// Config holds the session settings
type Config struct {
	Host              string
	ResolveMDNS       bool
	ConfigTimeout     time.Duration
	HeartbeatTimeout  time.Duration
	HeartbeatInterval time.Duration
	CountdownInterval time.Duration
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	Discovery         program.DiscoveryMode
	DiscoveryFallback time.Duration
}

// Option customizes a Session
type Option func(*Session)

// WithDialer replaces the WebSocket dialer
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithTimeProvider replaces the wall clock and timers
func WithTimeProvider(t TimeProvider) Option {
	return func(s *Session) { s.times = t }
}

// WithObserver attaches instrumentation
func WithObserver(o Observer) Option {
	return func(s *Session) { s.obs = o }
}

// WithHTTPClient sets the client used to fetch config.json
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.httpClient = c }
}

// Snapshot is a point-in-time copy of the session state
type Snapshot struct {
	State        ConnectionState
	URL          string
	Clock        clock.DeviceClock
	Network      *protocol.NetworkInfo
	Sensors      []protocol.Sensor
	Programs     map[program.ID]program.Definition
	Runtime      map[program.ID]program.Runtime
	Countdowns   map[program.ID]clock.Countdown
	Editing      program.ID
	CacheCapable bool

	everConnected bool
	lostAt        time.Time
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Network != nil {
		n := *s.Network
		out.Network = &n
	}
	if s.Sensors != nil {
		out.Sensors = make([]protocol.Sensor, len(s.Sensors))
		for i, sensor := range s.Sensors {
			sensor.Value = append([]byte(nil), sensor.Value...)
			out.Sensors[i] = sensor
		}
	}
	out.Programs = make(map[program.ID]program.Definition, len(s.Programs))
	for id, d := range s.Programs {
		out.Programs[id] = d.Clone()
	}
	out.Runtime = make(map[program.ID]program.Runtime, len(s.Runtime))
	for id, r := range s.Runtime {
		out.Runtime[id] = r.Clone()
	}
	out.Countdowns = make(map[program.ID]clock.Countdown, len(s.Countdowns))
	for id, c := range s.Countdowns {
		out.Countdowns[id] = c
	}
	return out
}

// Session owns the connection to one controller and all state mirrored from
// it. Every socket callback and timer runs as a closure on a single loop
// goroutine; other goroutines read through Snapshot.
type Session struct {
	cfg        Config
	dialer     Dialer
	times      TimeProvider
	obs        Observer
	httpClient *http.Client

	events   chan func()
	quit     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	handlers map[protocol.MessageType]func(*protocol.Message) error

	// owned by the loop
	conn              *Connection
	programs          *program.Synchronizer
	clock             clock.DeviceClock
	network           *protocol.NetworkInfo
	sensors           []protocol.Sensor
	cacheCapable      bool
	countdownTicker   Timer
	discoveryFallback Timer

	snapMu sync.RWMutex
	snap   Snapshot

	subsMu     sync.Mutex
	subs       map[int]chan Notification
	nextID     int
	subsClosed bool
}

// NewSession creates a session for the controller at cfg.Host
func NewSession(cfg Config, opts ...Option) *Session {
	if cfg.CountdownInterval <= 0 {
		cfg.CountdownInterval = DefaultCountdownInterval
	}
	if cfg.DiscoveryFallback <= 0 {
		cfg.DiscoveryFallback = DefaultDiscoveryFallback
	}
	if cfg.ConfigTimeout <= 0 {
		cfg.ConfigTimeout = DefaultConfigTimeout
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = DefaultReconnectInitial
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = DefaultReconnectMax
	}
	if cfg.Discovery == "" {
		cfg.Discovery = program.DiscoveryAuto
	}
	s := &Session{
		cfg:      cfg,
		times:    RealTimeProvider{},
		obs:      nopObserver{},
		events:   make(chan func(), 64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		programs: program.NewSynchronizer(),
		subs:     make(map[int]chan Notification),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = NewWebSocketDialer(cfg.ConfigTimeout)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: cfg.ConfigTimeout}
	}
	s.handlers = s.messageHandlers()
	s.snap = Snapshot{State: StateDisconnected}
	return s
}

// Start resolves the controller host and begins connecting. It returns once
// the first connection attempt is under way; failures are retried in the
// background.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("session already started")
	}
	host := s.cfg.Host
	if s.cfg.ResolveMDNS {
		resolveCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfigTimeout)
		host = ResolveHost(resolveCtx, s.httpClient, host)
		cancel()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.conn = newConnection(loopCtx, ConnectionConfig{
		URL:               WebSocketURL(host),
		HeartbeatTimeout:  s.cfg.HeartbeatTimeout,
		HeartbeatInterval: s.cfg.HeartbeatInterval,
		ReconnectInitial:  s.cfg.ReconnectInitial,
		ReconnectMax:      s.cfg.ReconnectMax,
	}, s.dialer, s.times, s.post, s, s.obs)

	go s.run()
	s.post(func() {
		s.startCountdown()
		s.conn.connect()
		s.publish()
	})
	return nil
}

// Stop cancels every timer, closes the socket and waits for the loop to exit
func (s *Session) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.cancel()
	})
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.quit:
			s.shutdown()
			return
		}
	}
}

func (s *Session) shutdown() {
	s.conn.stopReconnectTimer()
	s.conn.stopHeartbeat()
	s.stopCountdown()
	s.stopDiscoveryFallback()
	s.conn.shutdown()
	s.publish()
	s.closeSubscribers()
	slog.Info("Session stopped")
}

// post schedules fn on the loop. It reports false once the loop has exited.
func (s *Session) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call runs fn on the loop and waits for its result
func (s *Session) call(fn func() error) error {
	if !s.started.Load() {
		return ErrSessionClosed
	}
	res := make(chan error, 1)
	if !s.post(func() { res <- fn() }) {
		return ErrSessionClosed
	}
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// Snapshot returns a deep copy of the current state
func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.clone()
}

// State returns the current connection state
func (s *Session) State() ConnectionState {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.State
}

// Countdowns returns the predicted time to the next toggle of every cycle
// timer program, computed from the device clock
func (s *Session) Countdowns() map[program.ID]clock.Countdown {
	return s.Snapshot().Countdowns
}

// StatusText describes the connection for display
func (s *Session) StatusText() string {
	return s.Snapshot().StatusText()
}

// StatusText describes the connection for display
func (s Snapshot) StatusText() string {
	switch {
	case s.State == StateConnected && s.Clock.Known:
		return fmt.Sprintf("%s (device time) %d%% memory free",
			s.Clock.WallTime().Format("2006-01-02 15:04:05"), s.Clock.MemFreePercent())
	case s.State == StateConnected:
		return "Connected"
	case !s.lostAt.IsZero() && s.everConnected:
		return fmt.Sprintf("Lost connection at %s. Waiting to reconnect", s.lostAt.Format("2006-01-02 15:04:05"))
	default:
		return "Waiting to connect"
	}
}

// publish copies loop-owned state into the shared snapshot
func (s *Session) publish() {
	next := Snapshot{
		State:         s.conn.State(),
		URL:           s.conn.cfg.URL,
		Clock:         s.clock,
		Sensors:       s.sensors,
		Programs:      s.programs.Definitions(),
		Runtime:       s.programs.Runtime(),
		Editing:       s.programs.Editing(),
		CacheCapable:  s.cacheCapable,
		everConnected: s.conn.everConnected,
		lostAt:        s.conn.lostAt,
	}
	if s.network != nil {
		n := *s.network
		next.Network = &n
	}
	if s.clock.Known {
		next.Countdowns = s.programs.Countdowns(s.clock.Epoch)
	}
	next = next.clone()

	s.snapMu.Lock()
	s.snap = next
	s.snapMu.Unlock()
}

func (s *Session) connectionOpened() {
	s.requestPrograms()
	if err := s.send(protocol.NewSimple(protocol.CommandSubscribeOutputStatus)); err != nil {
		slog.Warn("Failed to subscribe to output status", "err", err)
	}
}

func (s *Session) connectionFrame(data []byte) {
	s.route(data)
}

func (s *Session) connectionStateChanged(state ConnectionState) {
	if state != StateConnected {
		s.stopDiscoveryFallback()
	}
	s.publish()
	s.notify(Notification{Type: NotifyConnectionState, State: state})
}

// requestPrograms asks for the full definition set according to the
// discovery mode
func (s *Session) requestPrograms() {
	mode := s.cfg.Discovery
	if mode == program.DiscoveryAuto && s.cacheCapable {
		mode = program.DiscoveryCache
	}
	for _, cmd := range program.BulkRequest(mode) {
		if err := s.send(cmd); err != nil {
			slog.Warn("Failed to request programs", "command", cmd.Name(), "err", err)
			return
		}
	}
	if mode == program.DiscoveryAuto {
		s.armDiscoveryFallback()
	}
}

func (s *Session) armDiscoveryFallback() {
	s.stopDiscoveryFallback()
	var t Timer
	t = s.times.AfterFunc(s.cfg.DiscoveryFallback, func() {
		s.post(func() {
			if s.discoveryFallback != t {
				return
			}
			s.discoveryFallback = nil
			slog.Info("No program cache from controller, polling program slots")
			for _, cmd := range program.BulkRequest(program.DiscoveryPoll) {
				if err := s.send(cmd); err != nil {
					slog.Warn("Failed to poll programs", "err", err)
					return
				}
			}
		})
	})
	s.discoveryFallback = t
}

func (s *Session) stopDiscoveryFallback() {
	if s.discoveryFallback != nil {
		s.discoveryFallback.Stop()
		s.discoveryFallback = nil
	}
}

func (s *Session) startCountdown() {
	var t Timer
	t = s.times.Every(s.cfg.CountdownInterval, func() {
		s.post(func() {
			if s.countdownTicker != t {
				return
			}
			s.tickCountdown()
		})
	})
	s.countdownTicker = t
}

func (s *Session) stopCountdown() {
	if s.countdownTicker != nil {
		s.countdownTicker.Stop()
		s.countdownTicker = nil
	}
}

func (s *Session) tickCountdown() {
	if !s.clock.Known {
		return
	}
	countdowns := s.programs.Countdowns(s.clock.Epoch)
	s.snapMu.Lock()
	s.snap.Countdowns = countdowns
	s.snapMu.Unlock()
	if len(countdowns) == 0 {
		return
	}
	copied := make(map[program.ID]clock.Countdown, len(countdowns))
	for id, c := range countdowns {
		copied[id] = c
	}
	s.notify(Notification{Type: NotifyCountdown, Countdowns: copied})
}
