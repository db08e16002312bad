package program

import (
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// ValidationError describes why a definition was rejected before sending
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid program %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks a definition against the rules the controller relies on,
// including the encoded size limit.
func Validate(d Definition) error {
	content, err := EncodeContent(d)
	if err != nil {
		return err
	}
	if utf8.RuneCountInString(d.Name) > MaxNameLength {
		return invalid("name", "must be at most %d characters", MaxNameLength)
	}
	switch d.Output {
	case OutputA, OutputB, OutputNone:
	default:
		return invalid("output", "must be A, B or null, got %q", d.Output)
	}

	if d.Trigger == "" {
		return invalid("trigger", "a trigger must be selected")
	}
	switch d.Trigger {
	case TriggerManual, TriggerCycleTimer, TriggerSensor:
	default:
		return invalid("trigger", "unknown trigger %q", d.Trigger)
	}

	if d.MonitorOnly() {
		if !d.IsSensorTrigger() {
			return invalid("trigger", "monitor-only programs need a sensor trigger, got %q", d.Trigger)
		}
		if d.HasScheduleWindow() {
			return invalid("schedule", "monitor-only programs cannot have a schedule window")
		}
	}
	if d.IsSensorTrigger() && (d.SensorType == "" || d.SensorAddress == "" || d.SensorCapability == "") {
		return invalid("trigger", "sensor trigger needs sensor type, address and capability")
	}

	if err := validateWindow(d); err != nil {
		return err
	}

	if d.DaysPerWeekEnabled && len(d.SelectedDays) == 0 {
		return invalid("selectedDays", "select at least one day")
	}

	if d.IsCycleTimer() && !d.MonitorOnly() {
		if d.CycleConfig == nil || d.CycleConfig.RunSeconds <= 0 || d.CycleConfig.StopSeconds <= 0 {
			return invalid("cycleConfig", "run and stop durations must both be greater than zero")
		}
	}

	if err := validateSchema(content); err != nil {
		return &ValidationError{Field: "content", Reason: err.Error(), Err: err}
	}
	return nil
}

// validateWindow parses the enabled window ends. Among the pairs with both
// ends enabled, at least one must be ordered; the other may wrap, as an
// overnight 22:00 to 06:00 window does.
func validateWindow(d Definition) error {
	var (
		checked int
		ordered int
		first   error
	)

	if d.StartDateEnabled || d.EndDateEnabled {
		start, err := parseEnabled("startDate", d.StartDate, d.StartDateEnabled, dateLayout)
		if err != nil {
			return err
		}
		end, err := parseEnabled("endDate", d.EndDate, d.EndDateEnabled, dateLayout)
		if err != nil {
			return err
		}
		if d.StartDateEnabled && d.EndDateEnabled {
			checked++
			if start.Before(end) {
				ordered++
			} else {
				first = invalid("endDate", "end date %s must be after start date %s", d.EndDate, d.StartDate)
			}
		}
	}

	if d.StartTimeEnabled || d.EndTimeEnabled {
		start, err := parseEnabled("startTime", d.StartTime, d.StartTimeEnabled, timeLayout)
		if err != nil {
			return err
		}
		end, err := parseEnabled("endTime", d.EndTime, d.EndTimeEnabled, timeLayout)
		if err != nil {
			return err
		}
		if d.StartTimeEnabled && d.EndTimeEnabled {
			checked++
			if minuteOfDay(start) < minuteOfDay(end) {
				ordered++
			} else if first == nil {
				first = invalid("endTime", "end time %s must be after start time %s", d.EndTime, d.StartTime)
			}
		}
	}

	if checked > 0 && ordered == 0 {
		return first
	}
	return nil
}

func parseEnabled(field, value string, enabled bool, layout string) (time.Time, error) {
	if !enabled {
		return time.Time{}, nil
	}
	if value == "" {
		return time.Time{}, invalid(field, "is enabled but empty")
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, &ValidationError{Field: field, Reason: fmt.Sprintf("cannot parse %q", value), Err: err}
	}
	return t, nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
