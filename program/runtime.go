package program

import (
	"gdaytreva/protocol"
)

// Runtime is the live state of one program as last pushed by the controller.
// It is never merged into a Definition; the two are joined by ID on read.
type Runtime struct {
	ID         ID
	Output     string
	State      protocol.SwitchState
	NextToggle *int64 // device epoch seconds, nil when absent
	Trigger    string // only carried by the legacy trigger_status shape
}

// IsCycleTimer reports whether the legacy runtime trigger names a cycle timer
func (r Runtime) IsCycleTimer() bool {
	return r.Trigger == "Cycle" || r.Trigger == TriggerCycleTimer
}

// Clone returns a deep copy
func (r Runtime) Clone() Runtime {
	if r.NextToggle != nil {
		v := *r.NextToggle
		r.NextToggle = &v
	}
	return r
}

// RuntimeFromEntry converts a wire entry. A next_toggle of zero is treated
// as absent.
func RuntimeFromEntry(e protocol.RuntimeEntry) (Runtime, error) {
	id, err := IDFromWire(e.ID)
	if err != nil {
		return Runtime{}, err
	}
	r := Runtime{
		ID:      id,
		Output:  e.Output,
		State:   e.State,
		Trigger: e.Trigger,
	}
	if e.NextToggle != nil && *e.NextToggle > 0 {
		v := *e.NextToggle
		r.NextToggle = &v
	}
	return r, nil
}
