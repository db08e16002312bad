// Package clock models the controller's clock. The controller reports its own
// epoch and display offset, which can differ from the local machine, so all
// schedule predictions are computed against the device epoch.
package clock

import (
	"fmt"
	"math"
	"time"

	"gdaytreva/protocol"
)

// DriftThreshold is the device/local clock difference above which the
// device time is shown as out of sync
const DriftThreshold = 5 * time.Second

// DeviceClock is the last known state of the controller clock
type DeviceClock struct {
	Known         bool  // true once any time message has been merged
	Epoch         int64 // seconds since the Unix epoch, device side
	OffsetMinutes int   // display offset the device applies
	MemUsed       int64 // bytes
	MemTotal      int64 // bytes
	UptimeMillis  int64
	DeviceName    string
}

// MergeTime applies a "time" message. Only fields present in the message
// are written.
func (c *DeviceClock) MergeTime(p protocol.TimePayload) {
	if p.Epoch != nil {
		c.Epoch = *p.Epoch
		c.Known = true
	}
	if p.OffsetMinutes != nil {
		c.OffsetMinutes = *p.OffsetMinutes
	}
	if p.MemUsed != nil {
		c.MemUsed = *p.MemUsed
	}
	if p.MemTotal != nil {
		c.MemTotal = *p.MemTotal
	}
	if p.Uptime != nil {
		c.UptimeMillis = *p.Uptime
	}
	if p.DeviceName != nil {
		c.DeviceName = *p.DeviceName
	}
}

// MergeTimeOffset applies a "time_offset" message. It never touches the
// epoch or memory figures, and keeps the device name when it is omitted.
func (c *DeviceClock) MergeTimeOffset(p protocol.TimeOffsetPayload) {
	if p.OffsetMinutes != nil {
		c.OffsetMinutes = *p.OffsetMinutes
	}
	if p.DeviceName != nil {
		c.DeviceName = *p.DeviceName
	}
}

// Location returns the fixed zone described by the device offset
func (c DeviceClock) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("device%+d", c.OffsetMinutes), c.OffsetMinutes*60)
}

// WallTime converts the device epoch into the device's local wall time
func (c DeviceClock) WallTime() time.Time {
	return time.Unix(c.Epoch, 0).In(c.Location())
}

// MemFreePercent returns the free heap as a rounded percentage, or 0 when
// the total is unknown
func (c DeviceClock) MemFreePercent() int {
	if c.MemTotal <= 0 {
		return 0
	}
	return int(math.Round(float64(c.MemTotal-c.MemUsed) / float64(c.MemTotal) * 100))
}

// Drift returns the absolute difference between the device epoch and now
func (c DeviceClock) Drift(now time.Time) time.Duration {
	d := now.Sub(time.Unix(c.Epoch, 0))
	if d < 0 {
		d = -d
	}
	return d.Truncate(time.Second)
}

// OutOfSync reports whether the device clock drifts from now by more than
// DriftThreshold
func (c DeviceClock) OutOfSync(now time.Time) bool {
	return c.Known && c.Drift(now) > DriftThreshold
}

// LocalOffsetMinutes returns the UTC offset of t in minutes
func LocalOffsetMinutes(t time.Time) int {
	_, offset := t.Zone()
	return offset / 60
}

// OffsetMismatch reports whether the device display offset differs from the
// local UTC offset at now. It is informational only.
func (c DeviceClock) OffsetMismatch(now time.Time) bool {
	return c.Known && c.OffsetMinutes != LocalOffsetMinutes(now)
}

// SyncTimeFields returns the time and offset strings of the legacy sync_time
// command for the given local time
func SyncTimeFields(now time.Time) (localTime, offset string) {
	return now.Format("2006-01-02 15:04:05"), protocol.FormatOffsetHours(LocalOffsetMinutes(now))
}
