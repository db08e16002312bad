package client

import (
	"gdaytreva/clock"
	"gdaytreva/program"
)

// NotificationType identifies what changed in a session
type NotificationType int

const (
	NotifyConnectionState NotificationType = iota
	NotifyClock
	NotifyNetworkInfo
	NotifySensors
	NotifyPrograms
	NotifyRuntime
	NotifyProgramLoaded
	NotifyProgramSaved
	NotifyCommandFailed
	NotifyCountdown
)

func (t NotificationType) String() string {
	switch t {
	case NotifyConnectionState:
		return "connection_state"
	case NotifyClock:
		return "clock"
	case NotifyNetworkInfo:
		return "network_info"
	case NotifySensors:
		return "sensors"
	case NotifyPrograms:
		return "programs"
	case NotifyRuntime:
		return "runtime"
	case NotifyProgramLoaded:
		return "program_loaded"
	case NotifyProgramSaved:
		return "program_saved"
	case NotifyCommandFailed:
		return "command_failed"
	case NotifyCountdown:
		return "countdown"
	default:
		return "unknown"
	}
}

// Notification is delivered to subscribers after a state change
type Notification struct {
	Type       NotificationType
	State      ConnectionState                // NotifyConnectionState
	ProgramID  program.ID                     // NotifyProgramLoaded, NotifyProgramSaved, NotifyCommandFailed
	Err        error                          // NotifyCommandFailed, usually *program.CommandError
	Countdowns map[program.ID]clock.Countdown // NotifyCountdown
}

// Subscribe registers for notifications. Delivery never blocks the session:
// when the buffer is full the notification is dropped for that subscriber.
// Call cancel to unsubscribe. The channel is closed by cancel or when the
// session stops.
func (s *Session) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)

	s.subsMu.Lock()
	if s.subsClosed {
		s.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Session) notify(n Notification) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subsClosed = true
}
