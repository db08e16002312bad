package client

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// TimeProvider provides an abstraction for time-related operations
type TimeProvider interface {
	// Now returns the current local time
	Now() time.Time
	// AfterFunc calls f in its own goroutine once d has elapsed
	AfterFunc(d time.Duration, f func()) Timer
	// Every calls f each time d elapses until the returned Timer is stopped
	Every(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc or Every registration
type Timer interface {
	Stop()
}

// RealTimeProvider implements TimeProvider using real time
type RealTimeProvider struct{}

func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

func (RealTimeProvider) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{time.AfterFunc(d, f)}
}

func (RealTimeProvider) Every(d time.Duration, f func()) Timer {
	t := &realTicker{ticker: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.ticker.C:
				f()
			case <-t.done:
				return
			}
		}
	}()
	return t
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) Stop() {
	r.t.Stop()
}

type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (r *realTicker) Stop() {
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.done)
	})
}

// MockTimeProvider implements TimeProvider for testing.
// Callbacks only run from Advance, on the caller's goroutine.
type MockTimeProvider struct {
	mu      sync.Mutex
	timers  []*mockTimer
	nowTime time.Time
}

type mockTimer struct {
	owner    *MockTimeProvider
	deadline time.Time
	period   time.Duration // zero for one-shot timers
	f        func()
	stopped  bool
}

// NewMockTimeProvider creates a new MockTimeProvider
func NewMockTimeProvider() *MockTimeProvider {
	return &MockTimeProvider{
		nowTime: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *MockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowTime
}

func (m *MockTimeProvider) AfterFunc(d time.Duration, f func()) Timer {
	return m.add(d, 0, f)
}

func (m *MockTimeProvider) Every(d time.Duration, f func()) Timer {
	return m.add(d, d, f)
}

func (m *MockTimeProvider) add(d, period time.Duration, f func()) *mockTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{owner: m, deadline: m.nowTime.Add(d), period: period, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *mockTimer) Stop() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.stopped = true
}

// Pending returns the delays of active timers, shortest first
func (m *MockTimeProvider) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, t := range m.timers {
		if !t.stopped {
			out = append(out, t.deadline.Sub(m.nowTime))
		}
	}
	slices.Sort(out)
	return out
}

// Advance advances the mock time by the given duration, firing every timer
// whose deadline is reached in deadline order
func (m *MockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.nowTime.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.nowTime = target
			m.mu.Unlock()
			return
		}
		m.nowTime = next.deadline
		if next.period > 0 {
			next.deadline = next.deadline.Add(next.period)
		} else {
			next.stopped = true
		}
		f := next.f
		m.mu.Unlock()
		f()
	}
}

// nextDue returns the earliest active timer due at or before target
func (m *MockTimeProvider) nextDue(target time.Time) *mockTimer {
	var next *mockTimer
	live := m.timers[:0]
	for _, t := range m.timers {
		if t.stopped {
			continue
		}
		live = append(live, t)
		if t.deadline.After(target) {
			continue
		}
		if next == nil || t.deadline.Before(next.deadline) {
			next = t
		}
	}
	m.timers = live
	return next
}
