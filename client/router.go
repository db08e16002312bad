package client

import (
	"errors"
	"log/slog"

	"gdaytreva/program"
	"gdaytreva/protocol"
)

// messageHandlers is the dispatch table for inbound message types
func (s *Session) messageHandlers() map[protocol.MessageType]func(*protocol.Message) error {
	return map[protocol.MessageType]func(*protocol.Message) error{
		protocol.MessageTypeTime:                s.handleTime,
		protocol.MessageTypeTimeOffset:          s.handleTimeOffset,
		protocol.MessageTypeNetworkInfo:         s.handleNetworkInfo,
		protocol.MessageTypeDiscoveredSensors:   s.handleDiscoveredSensors,
		protocol.MessageTypeProgramCache:        s.handleProgramCache,
		protocol.MessageTypeActiveProgramData:   s.handleRuntime,
		protocol.MessageTypeCycleTimerStatus:    s.handleRuntime,
		protocol.MessageTypeTriggerStatus:       s.handleRuntime,
		protocol.MessageTypeGetProgramResponse:  s.handleGetProgramResponse,
		protocol.MessageTypeSaveProgramResponse: s.handleSaveProgramResponse,
	}
}

// route parses one text frame and applies it. Malformed or unknown frames are
// logged and dropped.
func (s *Session) route(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		reason := "invalid_json"
		if errors.Is(err, protocol.ErrMissingType) {
			reason = "missing_type"
		}
		slog.Warn("Dropping frame from controller", "err", err)
		s.obs.FrameDropped(reason)
		return
	}

	handler, ok := s.handlers[msg.Type]
	if !ok {
		slog.Warn("Unknown message type from controller", "type", msg.Type)
		s.obs.FrameDropped("unknown_type")
		return
	}
	s.obs.FrameReceived(string(msg.Type))
	if err := handler(msg); err != nil {
		slog.Warn("Dropping malformed message", "type", msg.Type, "err", err)
		s.obs.FrameDropped("invalid_payload")
	}
}

func (s *Session) handleTime(msg *protocol.Message) error {
	var payload protocol.TimePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return err
	}
	s.clock.MergeTime(payload)
	s.publish()
	s.notify(Notification{Type: NotifyClock})
	return nil
}

func (s *Session) handleTimeOffset(msg *protocol.Message) error {
	var payload protocol.TimeOffsetPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return err
	}
	s.clock.MergeTimeOffset(payload)
	s.publish()
	s.notify(Notification{Type: NotifyClock})
	return nil
}

func (s *Session) handleNetworkInfo(msg *protocol.Message) error {
	var info protocol.NetworkInfo
	if err := protocol.ParsePayload(msg, &info); err != nil {
		return err
	}
	s.network = &info
	s.publish()
	s.notify(Notification{Type: NotifyNetworkInfo})
	return nil
}

func (s *Session) handleDiscoveredSensors(msg *protocol.Message) error {
	var payload protocol.DiscoveredSensorsPayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return err
	}
	s.sensors = payload.Sensors
	s.publish()
	s.notify(Notification{Type: NotifySensors})
	return nil
}

func (s *Session) handleProgramCache(msg *protocol.Message) error {
	var payload protocol.ProgramCachePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return err
	}
	if skipped := s.programs.ReplaceDefinitions(payload); skipped > 0 {
		s.obs.FrameDropped("invalid_program_entry")
	}
	s.cacheCapable = true
	s.stopDiscoveryFallback()
	s.publish()
	s.notify(Notification{Type: NotifyPrograms})
	return nil
}

func (s *Session) handleRuntime(msg *protocol.Message) error {
	var payload protocol.RuntimePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return err
	}
	if skipped := s.programs.ReplaceRuntime(msg.Type, payload); skipped > 0 {
		s.obs.FrameDropped("invalid_runtime_entry")
	}
	s.publish()
	s.notify(Notification{Type: NotifyRuntime})
	return nil
}

func (s *Session) handleGetProgramResponse(msg *protocol.Message) error {
	var resp protocol.GetProgramResponse
	if err := protocol.ParsePayload(msg, &resp); err != nil {
		return err
	}
	id, err := s.programs.ApplyGetResponse(resp)
	if err != nil {
		s.commandFailed(id, err)
		return nil
	}
	s.publish()
	s.notify(Notification{Type: NotifyProgramLoaded, ProgramID: id})
	return nil
}

// handleSaveProgramResponse adopts the assigned id and refreshes that slot
// with a follow-up get_program
func (s *Session) handleSaveProgramResponse(msg *protocol.Message) error {
	var resp protocol.SaveProgramResponse
	if err := protocol.ParsePayload(msg, &resp); err != nil {
		return err
	}
	id, err := s.programs.ApplySaveResponse(resp)
	if err != nil {
		s.commandFailed(s.programs.Editing(), err)
		return nil
	}
	slog.Info("Program saved", "programID", id)
	s.publish()
	s.notify(Notification{Type: NotifyProgramSaved, ProgramID: id})
	if err := s.send(protocol.NewGetProgram(string(id))); err != nil {
		slog.Warn("Failed to reload saved program", "programID", id, "err", err)
	}
	return nil
}

func (s *Session) commandFailed(id program.ID, err error) {
	var cerr *program.CommandError
	if errors.As(err, &cerr) {
		s.obs.CommandFailed(string(cerr.Op))
	}
	slog.Warn("Controller reported command failure", "programID", id, "err", err)
	s.notify(Notification{Type: NotifyCommandFailed, ProgramID: id, Err: err})
}
