package client

import "time"

// Observer receives session events for instrumentation
type Observer interface {
	ConnectionState(state int, name string)
	Reconnect(delay time.Duration)
	HeartbeatTimeout()
	FrameReceived(messageType string)
	FrameDropped(reason string)
	CommandSent(command string)
	CommandFailed(command string)
}

type nopObserver struct{}

func (nopObserver) ConnectionState(int, string) {}
func (nopObserver) Reconnect(time.Duration) {}
func (nopObserver) HeartbeatTimeout() {}
func (nopObserver) FrameReceived(string) {}
func (nopObserver) FrameDropped(string) {}
func (nopObserver) CommandSent(string) {}
func (nopObserver) CommandFailed(string) {}
