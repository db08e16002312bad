package clock

import "fmt"

// Toggling is displayed once the predicted toggle time has been reached
const Toggling = "toggling"

// Countdown is the time left until a program's next output toggle
type Countdown struct {
	SecondsLeft int64
}

// NewCountdown computes the countdown from the device epoch, never the local
// clock
func NewCountdown(nextToggle, deviceEpoch int64) Countdown {
	return Countdown{SecondsLeft: nextToggle - deviceEpoch}
}

// Toggling reports whether the toggle is due or in progress
func (c Countdown) Toggling() bool {
	return c.SecondsLeft <= 0
}

// String formats the countdown as "HHh MMm SSs", or "toggling"
func (c Countdown) String() string {
	if c.Toggling() {
		return Toggling
	}
	return FormatCountdown(c.SecondsLeft)
}

// FormatCountdown formats a positive number of seconds as "HHh MMm SSs"
func FormatCountdown(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02dh %02dm %02ds", h, m, s)
}
