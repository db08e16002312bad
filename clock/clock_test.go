package clock

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gdaytreva/protocol"
)

func timePayload(t *testing.T, data string) protocol.TimePayload {
	t.Helper()
	var p protocol.TimePayload
	require.NoError(t, json.Unmarshal([]byte(data), &p))
	return p
}

func TestMergeTime(t *testing.T) {
	var c DeviceClock
	assert.False(t, c.Known)

	c.MergeTime(timePayload(t, `{"epoch":1000,"offset_minutes":60,"mem_used":1024,"mem_total":4096,"uptime":5000,"device_name":"greenhouse"}`))
	assert.Equal(t, DeviceClock{
		Known:         true,
		Epoch:         1000,
		OffsetMinutes: 60,
		MemUsed:       1024,
		MemTotal:      4096,
		UptimeMillis:  5000,
		DeviceName:    "greenhouse",
	}, c)

	// a later tick without the name keeps it
	c.MergeTime(timePayload(t, `{"epoch":1001,"mem_used":2048}`))
	assert.Equal(t, int64(1001), c.Epoch)
	assert.Equal(t, int64(2048), c.MemUsed)
	assert.Equal(t, int64(4096), c.MemTotal)
	assert.Equal(t, 60, c.OffsetMinutes)
	assert.Equal(t, "greenhouse", c.DeviceName)
}

func TestMergeTimeOffset_DoesNotClobber(t *testing.T) {
	c := DeviceClock{Known: true, Epoch: 1000, OffsetMinutes: 0, MemUsed: 10, MemTotal: 20, UptimeMillis: 30, DeviceName: "greenhouse"}

	var p protocol.TimeOffsetPayload
	require.NoError(t, json.Unmarshal([]byte(`{"type":"time_offset","offset_minutes":-300}`), &p))
	c.MergeTimeOffset(p)

	assert.Equal(t, DeviceClock{Known: true, Epoch: 1000, OffsetMinutes: -300, MemUsed: 10, MemTotal: 20, UptimeMillis: 30, DeviceName: "greenhouse"}, c)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"time_offset","offset_minutes":120,"device_name":"shed"}`), &p))
	c.MergeTimeOffset(p)
	assert.Equal(t, 120, c.OffsetMinutes)
	assert.Equal(t, "shed", c.DeviceName)
}

func TestWallTime(t *testing.T) {
	c := DeviceClock{Known: true, Epoch: 0, OffsetMinutes: 90}
	wall := c.WallTime()
	assert.Equal(t, 1, wall.Hour())
	assert.Equal(t, 30, wall.Minute())
	assert.Equal(t, int64(0), wall.Unix())
}

func TestMemFreePercent(t *testing.T) {
	assert.Equal(t, 0, DeviceClock{}.MemFreePercent())
	assert.Equal(t, 75, DeviceClock{MemUsed: 1024, MemTotal: 4096}.MemFreePercent())
	assert.Equal(t, 67, DeviceClock{MemUsed: 1, MemTotal: 3}.MemFreePercent())
}

func TestDrift(t *testing.T) {
	c := DeviceClock{Known: true, Epoch: 1000}
	assert.Equal(t, 3*time.Second, c.Drift(time.Unix(1003, 0)))
	assert.Equal(t, 3*time.Second, c.Drift(time.Unix(997, 0)))
	assert.False(t, c.OutOfSync(time.Unix(1005, 0)))
	assert.True(t, c.OutOfSync(time.Unix(1006, 0)))
	assert.False(t, DeviceClock{}.OutOfSync(time.Unix(99999, 0)), "unknown clock is never flagged")
}

func TestOffsetMismatch(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, tokyo)

	assert.Equal(t, 540, LocalOffsetMinutes(now))
	assert.False(t, DeviceClock{Known: true, OffsetMinutes: 540}.OffsetMismatch(now))
	assert.True(t, DeviceClock{Known: true, OffsetMinutes: 0}.OffsetMismatch(now))
	assert.False(t, DeviceClock{OffsetMinutes: 0}.OffsetMismatch(now), "no mismatch before the first time message")
}

func TestSyncTimeFields(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", -5*3600))
	localTime, offset := SyncTimeFields(now)
	assert.Equal(t, "2024-01-02 03:04:05", localTime)
	assert.Equal(t, "-5", offset)
}

func TestCountdown_Scenario(t *testing.T) {
	// device reports epoch 1000, program 03 toggles at 1060
	assert.Equal(t, "00h 01m 00s", NewCountdown(1060, 1000).String())
	assert.Equal(t, Toggling, NewCountdown(1060, 1060).String())
}

func TestCountdown_Monotonic(t *testing.T) {
	const nextToggle = int64(5000)
	prev := NewCountdown(nextToggle, 1000)
	for epoch := int64(1001); epoch <= nextToggle+2; epoch++ {
		cur := NewCountdown(nextToggle, epoch)
		if prev.Toggling() {
			assert.True(t, cur.Toggling(), "epoch %d", epoch)
			assert.Equal(t, Toggling, cur.String())
			continue
		}
		assert.Equal(t, prev.SecondsLeft-1, cur.SecondsLeft, "epoch %d", epoch)
		prev = cur
	}
	assert.True(t, prev.Toggling())
}

func TestFormatCountdown(t *testing.T) {
	tests := map[int64]string{
		1:      "00h 00m 01s",
		59:     "00h 00m 59s",
		3599:   "00h 59m 59s",
		3600:   "01h 00m 00s",
		86399:  "23h 59m 59s",
		360000: "100h 00m 00s",
	}
	for seconds, want := range tests {
		assert.Equal(t, want, FormatCountdown(seconds), "%d", seconds)
	}
	assert.Equal(t, Toggling, Countdown{SecondsLeft: -5}.String())
}
