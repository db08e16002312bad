package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gdaytreva/program"
)

var errFakeClosed = errors.New("use of closed network connection")

// fakeTransport feeds frames pushed by the test and records writes
type fakeTransport struct {
	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []map[string]interface{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.incoming:
		return TextMessage, data, nil
	case <-f.closed:
		return 0, nil, errFakeClosed
	}
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.closed:
		return errFakeClosed
	default:
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, frame)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) push(frame string) {
	f.incoming <- []byte(frame)
}

// commands returns the command names written so far
func (f *fakeTransport) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.written))
	for _, frame := range f.written {
		name, _ := frame["command"].(string)
		out = append(out, name)
	}
	return out
}

// frames returns the written frames carrying the given command
func (f *fakeTransport) frames(command string) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]interface{}
	for _, frame := range f.written {
		if frame["command"] == command {
			out = append(out, frame)
		}
	}
	return out
}

// fakeDialer fails the first `fail` dials and then hands out fakeTransports
type fakeDialer struct {
	mu         sync.Mutex
	fail       int
	block      chan struct{}
	urls       []string
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(ctx context.Context, serverURL string) (Transport, error) {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, serverURL)
	if d.fail > 0 {
		d.fail--
		return nil, errors.New("connection refused")
	}
	t := newFakeTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) setFail(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = n
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

// fakeObserver counts observer events
type fakeObserver struct {
	nopObserver
	mu       sync.Mutex
	dropped  map[string]int
	received map[string]int
	sent     map[string]int
	delays   []time.Duration
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{
		dropped:  make(map[string]int),
		received: make(map[string]int),
		sent:     make(map[string]int),
	}
}

func (o *fakeObserver) FrameDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped[reason]++
}

func (o *fakeObserver) FrameReceived(messageType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.received[messageType]++
}

func (o *fakeObserver) CommandSent(command string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent[command]++
}

func (o *fakeObserver) Reconnect(delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delays = append(o.delays, delay)
}

func (o *fakeObserver) droppedCount(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped[reason]
}

func (o *fakeObserver) reconnectDelays() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.delays...)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type testSession struct {
	*Session
	dialer *fakeDialer
	times  *MockTimeProvider
	obs    *fakeObserver
}

func startTestSession(t *testing.T, dialer *fakeDialer, mode program.DiscoveryMode) *testSession {
	t.Helper()
	times := NewMockTimeProvider()
	obs := newFakeObserver()
	cfg := Config{Host: "gday.local", Discovery: mode}
	s := NewSession(cfg, WithDialer(dialer), WithTimeProvider(times), WithObserver(obs))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return &testSession{Session: s, dialer: dialer, times: times, obs: obs}
}

// onLoop runs fn on the session loop and waits for it
func (ts *testSession) onLoop(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, ts.call(func() error {
		fn()
		return nil
	}))
}

func (ts *testSession) lastDelay(t *testing.T) time.Duration {
	var d time.Duration
	ts.onLoop(t, func() { d = ts.conn.LastDelay() })
	return d
}

func (ts *testSession) waitState(t *testing.T, want ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return ts.State() == want }, waitFor, tick, "waiting for %s", want)
}

// connected starts a session and waits until the first transport is open
func connected(t *testing.T, mode program.DiscoveryMode) (*testSession, *fakeTransport) {
	t.Helper()
	ts := startTestSession(t, &fakeDialer{}, mode)
	ts.waitState(t, StateConnected)
	tr := ts.dialer.transport(0)
	require.NotNil(t, tr)
	return ts, tr
}
