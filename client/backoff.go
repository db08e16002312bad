package client

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultReconnectInitial = 1 * time.Second
	DefaultReconnectMax     = 30 * time.Second
)

// NewReconnectBackOff returns the reconnect delay policy: initial, doubling on
// every failed attempt, capped at max, never giving up. Zero values take the
// defaults. Reset it after a successful open.
func NewReconnectBackOff(initial, max time.Duration) *backoff.ExponentialBackOff {
	if initial <= 0 {
		initial = DefaultReconnectInitial
	}
	if max <= 0 {
		max = DefaultReconnectMax
	}
	if max < initial {
		max = initial
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
