package program

import (
	"encoding/json"
	"errors"
	"fmt"

	"gdaytreva/protocol"
)

// MaxContentSize is the largest encoded definition the controller accepts
const MaxContentSize = 4096

// MaxNameLength is the longest program name, in characters
const MaxNameLength = 25

const (
	OutputA    = "A"
	OutputB    = "B"
	OutputNone = "null" // monitor-only, no physical output
)

const (
	TriggerManual     = "Manual"
	TriggerCycleTimer = "Cycle Timer"
	TriggerSensor     = "Sensor"
)

// ErrContentTooLarge is returned when an encoded definition exceeds
// MaxContentSize
var ErrContentTooLarge = errors.New("program size exceeds 4096 bytes")

// CycleConfig is the duty cycle of a Cycle Timer program
type CycleConfig struct {
	RunSeconds  int  `json:"runSeconds"`
	StopSeconds int  `json:"stopSeconds"`
	StartHigh   bool `json:"startHigh"`
	Valid       bool `json:"valid"`
}

// DurationSeconds converts an hours/minutes/seconds entry into seconds
func DurationSeconds(hours, minutes, seconds int) int {
	return hours*3600 + minutes*60 + seconds
}

// Definition is the static configuration of one program slot. It is the
// payload of save_program and get_program_response "content".
type Definition struct {
	Name               string       `json:"name"`
	Enabled            bool         `json:"enabled"`
	Output             string       `json:"output"`
	StartDate          string       `json:"startDate,omitempty"` // YYYY-MM-DD
	StartDateEnabled   bool         `json:"startDateEnabled"`
	EndDate            string       `json:"endDate,omitempty"`
	EndDateEnabled     bool         `json:"endDateEnabled"`
	StartTime          string       `json:"startTime,omitempty"` // HH:MM
	StartTimeEnabled   bool         `json:"startTimeEnabled"`
	EndTime            string       `json:"endTime,omitempty"`
	EndTimeEnabled     bool         `json:"endTimeEnabled"`
	SelectedDays       []string     `json:"selectedDays,omitempty"`
	DaysPerWeekEnabled bool         `json:"daysPerWeekEnabled"`
	Trigger            string       `json:"trigger"`
	SensorType         string       `json:"sensorType,omitempty"`
	SensorAddress      string       `json:"sensorAddress,omitempty"`
	SensorCapability   string       `json:"sensorCapability,omitempty"`
	CycleConfig        *CycleConfig `json:"cycleConfig,omitempty"`
}

// MonitorOnly reports whether the program drives no physical output
func (d Definition) MonitorOnly() bool {
	return d.Output == OutputNone
}

// IsCycleTimer reports whether the program runs a duty cycle
func (d Definition) IsCycleTimer() bool {
	return d.Trigger == TriggerCycleTimer
}

// IsSensorTrigger reports whether the program is driven by a sensor
func (d Definition) IsSensorTrigger() bool {
	return d.Trigger == TriggerSensor
}

// HasScheduleWindow reports whether any part of the schedule window is on
func (d Definition) HasScheduleWindow() bool {
	return d.StartDateEnabled || d.EndDateEnabled || d.StartTimeEnabled || d.EndTimeEnabled || d.DaysPerWeekEnabled
}

// Normalize drops fields that do not apply to the selected trigger and
// recomputes the cycle validity flag
func (d Definition) Normalize() Definition {
	if !d.IsCycleTimer() {
		d.CycleConfig = nil
	} else if d.CycleConfig != nil {
		cc := *d.CycleConfig
		cc.Valid = cc.RunSeconds > 0 && cc.StopSeconds > 0
		d.CycleConfig = &cc
	}
	if !d.IsSensorTrigger() {
		d.SensorType = ""
		d.SensorAddress = ""
		d.SensorCapability = ""
	}
	if len(d.SelectedDays) == 0 {
		d.SelectedDays = nil
	}
	return d
}

// Clone returns a deep copy
func (d Definition) Clone() Definition {
	if d.SelectedDays != nil {
		d.SelectedDays = append([]string(nil), d.SelectedDays...)
	}
	if d.CycleConfig != nil {
		cc := *d.CycleConfig
		d.CycleConfig = &cc
	}
	return d
}

// EncodeContent serializes a definition and enforces MaxContentSize
func EncodeContent(d Definition) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("error encoding program: %w", err)
	}
	if len(data) > MaxContentSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrContentTooLarge, len(data))
	}
	return data, nil
}

// DecodeContent parses the content string of a get_program_response
func DecodeContent(content []byte) (Definition, error) {
	var d Definition
	if err := json.Unmarshal(content, &d); err != nil {
		return Definition{}, fmt.Errorf("error decoding program: %w", err)
	}
	return d, nil
}

// cacheEntry is one element of a program_cache push
type cacheEntry struct {
	ID protocol.FlexibleID `json:"id"`
	Definition
}
