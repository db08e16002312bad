package client

import (
	"fmt"
	"log/slog"

	"gdaytreva/clock"
	"gdaytreva/program"
	"gdaytreva/protocol"
)

// send encodes and writes one command on the loop. Commands are never queued
// or retried.
func (s *Session) send(cmd protocol.Command) error {
	data, err := protocol.CreateCommand(cmd)
	if err != nil {
		return err
	}
	if err := s.conn.Send(data); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	slog.Debug("Sent command", "command", cmd.Name())
	s.obs.CommandSent(string(cmd.Name()))
	return nil
}

// sendSimple sends a command without fields from any goroutine
func (s *Session) sendSimple(name protocol.CommandName) error {
	return s.call(func() error {
		return s.send(protocol.NewSimple(name))
	})
}

// GetProgram requests one definition. The result arrives later as a
// NotifyProgramLoaded or NotifyCommandFailed notification.
func (s *Session) GetProgram(id string) error {
	programID, err := program.ParseID(id)
	if err != nil {
		return err
	}
	return s.call(func() error {
		return s.send(protocol.NewGetProgram(string(programID)))
	})
}

// SaveProgram validates and sends a definition. An empty id lets the
// controller pick a free slot. On success the controller's response triggers
// a reload of the saved slot.
func (s *Session) SaveProgram(id string, d program.Definition) error {
	return s.call(func() error {
		previous := s.programs.Editing()
		cmd, err := s.programs.PrepareSave(program.ID(id), d)
		if err != nil {
			return err
		}
		if err := s.send(cmd); err != nil {
			s.programs.SetEditing(previous)
			return err
		}
		s.publish()
		return nil
	})
}

// RequestProgramCache asks for every definition in one program_cache push
func (s *Session) RequestProgramCache() error {
	return s.sendSimple(protocol.CommandGetProgramCache)
}

// RequestNetworkInfo asks for a network_info push
func (s *Session) RequestNetworkInfo() error {
	return s.sendSimple(protocol.CommandGetNetworkInfo)
}

// RefreshSensors asks the controller to rescan its sensor buses
func (s *Session) RefreshSensors() error {
	return s.sendSimple(protocol.CommandRefreshSensors)
}

// RequestDiscoveredSensors asks for a discovered_sensors push
func (s *Session) RequestDiscoveredSensors() error {
	return s.sendSimple(protocol.CommandGetDiscoveredSensors)
}

// SubscribeOutputStatus asks the controller to push runtime status
func (s *Session) SubscribeOutputStatus() error {
	return s.sendSimple(protocol.CommandSubscribeOutputStatus)
}

// SetTimeOffset pushes the local UTC offset to the controller
func (s *Session) SetTimeOffset() error {
	return s.call(func() error {
		offset := clock.LocalOffsetMinutes(s.times.Now())
		return s.send(protocol.NewSetTimeOffset(offset))
	})
}

// SyncTime sends the legacy sync_time command with the local wall time
func (s *Session) SyncTime() error {
	return s.call(func() error {
		localTime, offset := clock.SyncTimeFields(s.times.Now())
		return s.send(protocol.NewSyncTime(localTime, offset))
	})
}
