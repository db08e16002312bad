package client

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gdaytreva/program"
)

func TestReconnectBackOff_Sequence(t *testing.T) {
	b := NewReconnectBackOff(time.Second, 30*time.Second)
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		assert.Equal(t, w*time.Second, b.NextBackOff(), "attempt %d", i+1)
	}
	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}

func TestReconnectBackOff_Defaults(t *testing.T) {
	b := NewReconnectBackOff(0, 0)
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		assert.Equal(t, w*time.Second, b.NextBackOff(), "attempt %d", i+1)
	}

	b = NewReconnectBackOff(5*time.Second, 2*time.Second)
	assert.Equal(t, 5*time.Second, b.NextBackOff())
	assert.Equal(t, 5*time.Second, b.NextBackOff(), "max below initial is raised to initial")
}

func TestConnection_DoublesDelayOnFailures(t *testing.T) {
	dialer := &fakeDialer{fail: 3}
	ts := startTestSession(t, dialer, program.DiscoveryCache)

	ts.waitState(t, StateReconnecting)
	assert.Equal(t, time.Second, ts.lastDelay(t))

	ts.times.Advance(time.Second)
	require.Eventually(t, func() bool { return len(ts.obs.reconnectDelays()) == 2 }, waitFor, tick)
	assert.Equal(t, 2*time.Second, ts.lastDelay(t))

	ts.times.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return len(ts.obs.reconnectDelays()) == 3 }, waitFor, tick)
	assert.Equal(t, 4*time.Second, ts.lastDelay(t))

	// the fourth attempt succeeds and resets the policy
	ts.times.Advance(4 * time.Second)
	ts.waitState(t, StateConnected)
	assert.Equal(t, 4, dialer.dials())

	dialer.transport(0).Close()
	ts.waitState(t, StateReconnecting)
	assert.Equal(t, time.Second, ts.lastDelay(t))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, time.Second}, ts.obs.reconnectDelays())
}

func TestConnection_SecondCloseWaitsTwoSeconds(t *testing.T) {
	dialer := &fakeDialer{}
	ts := startTestSession(t, dialer, program.DiscoveryCache)
	ts.waitState(t, StateConnected)

	dialer.setFail(1)
	dialer.transport(0).Close()
	ts.waitState(t, StateReconnecting)
	assert.Equal(t, time.Second, ts.lastDelay(t))

	ts.times.Advance(time.Second)
	require.Eventually(t, func() bool { return len(ts.obs.reconnectDelays()) == 2 }, waitFor, tick)
	assert.Equal(t, 2*time.Second, ts.lastDelay(t))
}

func TestConnection_SingleReconnectTimer(t *testing.T) {
	dialer := &fakeDialer{fail: 1}
	ts := startTestSession(t, dialer, program.DiscoveryCache)
	ts.waitState(t, StateReconnecting)

	// one reconnect timer plus the countdown ticker
	var pending []time.Duration
	ts.onLoop(t, func() { pending = ts.times.Pending() })
	assert.Equal(t, []time.Duration{time.Second, time.Second}, pending)

	ts.times.Advance(time.Second)
	ts.waitState(t, StateConnected)
	assert.Equal(t, 2, dialer.dials())
}

func TestConnection_HeartbeatForcesReconnect(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)

	// frames keep the connection alive
	ts.times.Advance(10 * time.Second)
	tr.push(`{"type":"time","epoch":1000}`)
	require.Eventually(t, func() bool { return ts.Snapshot().Clock.Known }, waitFor, tick)
	ts.times.Advance(15 * time.Second)
	ts.onLoop(t, func() {})
	assert.Equal(t, StateConnected, ts.State(), "exactly the timeout is still alive")

	ts.times.Advance(5 * time.Second)
	ts.waitState(t, StateReconnecting)
	assert.True(t, tr.isClosed())
	assert.Equal(t, time.Second, ts.lastDelay(t))

	// the closed transport's read error must not schedule a second attempt
	time.Sleep(20 * time.Millisecond)
	ts.onLoop(t, func() {})
	assert.Len(t, ts.obs.reconnectDelays(), 1)
	assert.Equal(t, "Lost connection at 2024-06-01 12:00:30. Waiting to reconnect", ts.StatusText())
}

func TestConnection_SendWhileDisconnected(t *testing.T) {
	dialer := &fakeDialer{block: make(chan struct{})}
	ts := startTestSession(t, dialer, program.DiscoveryCache)
	ts.waitState(t, StateConnecting)

	err := ts.RequestNetworkInfo()
	assert.True(t, errors.Is(err, ErrNotConnected))

	err = ts.SaveProgram("", program.Definition{
		Name: "Lawn", Enabled: true, Output: program.OutputA, Trigger: program.TriggerManual,
	})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, program.ID(""), ts.Snapshot().Editing)
	assert.Equal(t, "Waiting to connect", ts.StatusText())
}

func TestConnection_StaleTransportIgnored(t *testing.T) {
	ts, first := connected(t, program.DiscoveryCache)

	first.Close()
	ts.waitState(t, StateReconnecting)
	ts.times.Advance(time.Second)
	require.Eventually(t, func() bool { return ts.dialer.count() == 2 }, waitFor, tick)
	ts.waitState(t, StateConnected)

	second := ts.dialer.transport(1)
	second.push(`{"type":"time","epoch":500}`)
	require.Eventually(t, func() bool { return ts.Snapshot().Clock.Epoch == 500 }, waitFor, tick)

	// a late callback for the first generation changes nothing
	ts.onLoop(t, func() { ts.conn.closed(ts.conn.generation-1, errFakeClosed) })
	assert.Equal(t, StateConnected, ts.State())
	assert.False(t, second.isClosed())
}

func TestSession_Stop(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)
	ts.Stop()

	assert.True(t, tr.isClosed())
	assert.Equal(t, StateDisconnected, ts.State())
	assert.ErrorIs(t, ts.RequestProgramCache(), ErrSessionClosed)

	// timers left behind by the loop are all stopped
	assert.Empty(t, ts.times.Pending())
	ts.Stop()
}
