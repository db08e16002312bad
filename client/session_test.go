package client

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gdaytreva/clock"
	"gdaytreva/program"
	"gdaytreva/protocol"
)

func cycleTimer() program.Definition {
	return program.Definition{
		Name:    "Lawn",
		Enabled: true,
		Output:  program.OutputA,
		Trigger: program.TriggerCycleTimer,
		CycleConfig: &program.CycleConfig{
			RunSeconds:  60,
			StopSeconds: 600,
		},
	}
}

func waitCommand(t *testing.T, tr *fakeTransport, command string, n int) []map[string]interface{} {
	t.Helper()
	require.Eventually(t, func() bool { return len(tr.frames(command)) >= n }, waitFor, tick, "waiting for %d %s", n, command)
	return tr.frames(command)
}

// waitNotification returns the next notification of the given type
func waitNotification(t *testing.T, events <-chan Notification, want NotificationType) Notification {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case n := <-events:
			if n.Type == want {
				return n
			}
		case <-deadline:
			t.Fatalf("no %s notification", want)
			return Notification{}
		}
	}
}

func quote(t *testing.T, s string) string {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return string(data)
}

func TestSession_OpenRequestsProgramsAndSubscribes(t *testing.T) {
	_, tr := connected(t, program.DiscoveryCache)
	require.Eventually(t, func() bool { return len(tr.commands()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"get_program_cache", "subscribe_output_status"}, tr.commands())
}

func TestSession_PollDiscovery(t *testing.T) {
	_, tr := connected(t, program.DiscoveryPoll)
	frames := waitCommand(t, tr, "get_program", program.MaxPrograms)
	assert.Equal(t, "01", frames[0]["programID"])
	assert.Equal(t, "10", frames[9]["programID"])
	assert.Empty(t, tr.frames("get_program_cache"))
}

func TestSession_AutoDiscoveryFallsBackToPolling(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryAuto)
	waitCommand(t, tr, "subscribe_output_status", 1)
	assert.Len(t, tr.frames("get_program_cache"), 1)
	assert.Empty(t, tr.frames("get_program"))

	ts.times.Advance(3 * time.Second)
	waitCommand(t, tr, "get_program", program.MaxPrograms)
	assert.False(t, ts.Snapshot().CacheCapable)
}

func TestSession_AutoDiscoveryUsesCache(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryAuto)
	waitCommand(t, tr, "subscribe_output_status", 1)

	tr.push(`{"type":"program_cache","programs":[{"id":"02","name":"Beds","enabled":true,"output":"B","trigger":"Manual"}]}`)
	require.Eventually(t, func() bool { return ts.Snapshot().CacheCapable }, waitFor, tick)

	ts.times.Advance(5 * time.Second)
	ts.onLoop(t, func() {})
	assert.Empty(t, tr.frames("get_program"))
	assert.Equal(t, "Beds", ts.Snapshot().Programs["02"].Name)
}

func TestSession_RouterDropsBadFrames(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)

	tr.push(`not json`)
	tr.push(`{"epoch":5}`)
	tr.push(`{"type":"firmware_banner","text":"hi"}`)
	tr.push(`{"type":"network_info","wifi_rssi":"strong"}`)
	tr.push(`{"type":"time","epoch":1000,"device_name":"gday"}`)

	require.Eventually(t, func() bool { return ts.Snapshot().Clock.Known }, waitFor, tick)
	assert.Equal(t, 1, ts.obs.droppedCount("invalid_json"))
	assert.Equal(t, 1, ts.obs.droppedCount("missing_type"))
	assert.Equal(t, 1, ts.obs.droppedCount("unknown_type"))
	assert.Equal(t, 1, ts.obs.droppedCount("invalid_payload"))

	snap := ts.Snapshot()
	assert.Nil(t, snap.Network)
	assert.Equal(t, int64(1000), snap.Clock.Epoch)
	assert.Equal(t, "gday", snap.Clock.DeviceName)
	assert.Equal(t, StateConnected, snap.State)
}

func TestSession_ClockAndNetwork(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)

	tr.push(`{"type":"time","epoch":1000,"offset_minutes":600,"mem_used":25,"mem_total":100,"device_name":"gday"}`)
	tr.push(`{"type":"time_offset","offset_minutes":570}`)
	tr.push(`{"type":"network_info","wifi_ip":"10.0.0.5","wifi_rssi":-60,"eth_ip":"10.0.0.6","mdns_hostname":"gday"}`)
	tr.push(`{"type":"discovered_sensors","sensors":[{"type":"SHT","address":"0x44","capability":"humidity","value":41.5,"active":true}]}`)

	require.Eventually(t, func() bool { return len(ts.Snapshot().Sensors) == 1 }, waitFor, tick)
	snap := ts.Snapshot()
	assert.Equal(t, 570, snap.Clock.OffsetMinutes)
	assert.Equal(t, "gday", snap.Clock.DeviceName, "time_offset without name keeps it")
	assert.Equal(t, 75, snap.Clock.MemFreePercent())
	require.NotNil(t, snap.Network)
	assert.Equal(t, "10.0.0.5", snap.Network.WiFi.IP)
	assert.Equal(t, -60, snap.Network.WiFi.RSSI)
	assert.Equal(t, "10.0.0.6", snap.Network.Eth.IP)
	assert.Equal(t, "humidity", snap.Sensors[0].Capability)
	assert.Contains(t, ts.StatusText(), "75% memory free")
}

func TestSession_SaveWithoutIDAdoptsAssignedSlot(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)
	waitCommand(t, tr, "subscribe_output_status", 1)
	events, cancel := ts.Subscribe(32)
	defer cancel()

	require.NoError(t, ts.SaveProgram("", cycleTimer()))
	saves := tr.frames("save_program")
	require.Len(t, saves, 1)
	_, hasID := saves[0]["programID"]
	assert.False(t, hasID, "a new program is saved without id")

	content, ok := saves[0]["content"].(string)
	require.True(t, ok)
	def, err := program.DecodeContent([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, "Lawn", def.Name)

	tr.push(`{"type":"save_program_response","success":true,"programID":"07"}`)
	gets := waitCommand(t, tr, "get_program", 1)
	assert.Equal(t, "07", gets[0]["programID"])
	assert.Equal(t, program.ID("07"), ts.Snapshot().Editing)

	encoded, err := program.EncodeContent(def)
	require.NoError(t, err)
	tr.push(`{"type":"get_program_response","success":true,"programID":"07","content":` + quote(t, string(encoded)) + `}`)
	require.Eventually(t, func() bool { _, ok := ts.Snapshot().Programs["07"]; return ok }, waitFor, tick)

	assert.Equal(t, program.ID("07"), waitNotification(t, events, NotifyProgramSaved).ProgramID)
	assert.Equal(t, program.ID("07"), waitNotification(t, events, NotifyProgramLoaded).ProgramID)
}

func TestSession_SaveRejectedBeforeSend(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)
	waitCommand(t, tr, "subscribe_output_status", 1)

	bad := cycleTimer()
	bad.Output = program.OutputNone
	err := ts.SaveProgram("01", bad)
	var verr *program.ValidationError
	assert.True(t, errors.As(err, &verr))

	big := program.Definition{
		Name: "Soil", Enabled: true, Output: program.OutputNone, Trigger: program.TriggerSensor,
		SensorType: "SHT", SensorAddress: "0x44", SensorCapability: string(make([]byte, program.MaxContentSize)),
	}
	assert.ErrorIs(t, ts.SaveProgram("01", big), program.ErrContentTooLarge)
	assert.Empty(t, tr.frames("save_program"))
}

func TestSession_CommandFailureNotified(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)
	events, cancel := ts.Subscribe(32)
	defer cancel()

	tr.push(`{"type":"get_program_response","success":false,"programID":"04","message":"empty slot"}`)
	n := waitNotification(t, events, NotifyCommandFailed)
	var cerr *program.CommandError
	require.True(t, errors.As(n.Err, &cerr))
	assert.Equal(t, protocol.CommandGetProgram, cerr.Op)
	assert.Equal(t, program.ID("04"), n.ProgramID)
	assert.Empty(t, ts.Snapshot().Programs)
}

func TestSession_Countdowns(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)
	events, cancel := ts.Subscribe(64)
	defer cancel()

	encoded, err := program.EncodeContent(cycleTimer())
	require.NoError(t, err)
	tr.push(`{"type":"get_program_response","success":true,"programID":"01","content":` + quote(t, string(encoded)) + `}`)
	tr.push(`{"type":"active_program_data","programs":[{"id":"01","output":"A","state":true,"next_toggle":1060},{"id":"02","output":"B","state":false,"next_toggle":0}]}`)
	tr.push(`{"type":"time","epoch":1000}`)

	require.Eventually(t, func() bool { return len(ts.Countdowns()) == 1 }, waitFor, tick)
	assert.Equal(t, map[program.ID]clock.Countdown{"01": {SecondsLeft: 60}}, ts.Countdowns())
	assert.Equal(t, "00h 01m 00s", ts.Countdowns()["01"].String())

	ts.times.Advance(time.Second)
	n := waitNotification(t, events, NotifyCountdown)
	assert.Equal(t, int64(60), n.Countdowns["01"].SecondsLeft, "countdown follows the device epoch only")

	tr.push(`{"type":"time","epoch":1061}`)
	require.Eventually(t, func() bool { return ts.Countdowns()["01"].Toggling() }, waitFor, tick)
}

func TestSession_LegacyRuntimeShapes(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)

	tr.push(`{"type":"trigger_status","epoch":2000,"progs":[{"id":3,"output":"A","trigger":"Cycle","next_toggle":2030,"state":1}]}`)
	require.Eventually(t, func() bool { return len(ts.Snapshot().Runtime) == 1 }, waitFor, tick)
	rt := ts.Snapshot().Runtime["03"]
	assert.Equal(t, protocol.StateOn, rt.State)
	assert.False(t, ts.Snapshot().Clock.Known, "trigger_status epoch is not merged into the clock")

	tr.push(`{"type":"cycle_timer_status","cycle_timers":[{"id":"05","output":"B","state":"off"}]}`)
	require.Eventually(t, func() bool { _, ok := ts.Snapshot().Runtime["05"]; return ok }, waitFor, tick)
	assert.Len(t, ts.Snapshot().Runtime, 1, "each push replaces the runtime set")
}

func TestSession_SnapshotIsDeepCopy(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)
	tr.push(`{"type":"program_cache","programs":[{"id":"01","name":"Lawn","enabled":true,"output":"A","trigger":"Manual","selectedDays":["Mon"]}]}`)
	require.Eventually(t, func() bool { return len(ts.Snapshot().Programs) == 1 }, waitFor, tick)

	snap := ts.Snapshot()
	snap.Programs["01"].SelectedDays[0] = "Sun"
	delete(snap.Programs, "01")
	assert.Equal(t, "Mon", ts.Snapshot().Programs["01"].SelectedDays[0])
}

func TestSession_TimeCommands(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)
	require.NoError(t, ts.SetTimeOffset())
	require.NoError(t, ts.SyncTime())
	require.NoError(t, ts.RefreshSensors())
	require.NoError(t, ts.RequestDiscoveredSensors())
	require.NoError(t, ts.RequestNetworkInfo())

	offsets := tr.frames("set_time_offset")
	require.Len(t, offsets, 1)
	assert.EqualValues(t, 0, offsets[0]["offset_minutes"], "mock clock runs in UTC")

	syncs := tr.frames("sync_time")
	require.Len(t, syncs, 1)
	assert.Equal(t, "2024-06-01 12:00:00", syncs[0]["time"])
	assert.Equal(t, "+0", syncs[0]["offset"])

	assert.Len(t, tr.frames("refresh-sensors"), 1)
	assert.Len(t, tr.frames("get_discovered_sensors"), 1)
	assert.Len(t, tr.frames("get_network_info"), 1)
}

func TestSession_GetProgramRejectsBadID(t *testing.T) {
	ts, tr := connected(t, program.DiscoveryCache)
	assert.ErrorIs(t, ts.GetProgram("12"), program.ErrInvalidID)
	require.NoError(t, ts.GetProgram("3"))
	frames := tr.frames("get_program")
	require.Len(t, frames, 1)
	assert.Equal(t, "03", frames[0]["programID"])
}

func TestSession_StopClosesSubscriptions(t *testing.T) {
	ts, _ := connected(t, program.DiscoveryCache)
	events, cancel := ts.Subscribe(4)
	ts.Stop()

	drained := make(chan struct{})
	go func() {
		for range events {
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(waitFor):
		t.Fatal("subscription still open after Stop")
	}
	cancel()

	late, lateCancel := ts.Subscribe(1)
	defer lateCancel()
	_, ok := <-late
	assert.False(t, ok, "subscribing to a stopped session yields a closed channel")
}
