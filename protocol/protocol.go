package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the discriminant of a frame sent by the controller
type MessageType string

const (
	// Controller -> client message types
	MessageTypeTime                MessageType = "time"
	MessageTypeTimeOffset          MessageType = "time_offset"
	MessageTypeNetworkInfo         MessageType = "network_info"
	MessageTypeDiscoveredSensors   MessageType = "discovered_sensors"
	MessageTypeProgramCache        MessageType = "program_cache"
	MessageTypeActiveProgramData   MessageType = "active_program_data"
	MessageTypeCycleTimerStatus    MessageType = "cycle_timer_status"
	MessageTypeTriggerStatus       MessageType = "trigger_status" // legacy
	MessageTypeGetProgramResponse  MessageType = "get_program_response"
	MessageTypeSaveProgramResponse MessageType = "save_program_response"
)

// CommandName is the discriminant of a frame sent to the controller
type CommandName string

const (
	CommandGetProgram            CommandName = "get_program"
	CommandSaveProgram           CommandName = "save_program"
	CommandGetProgramCache       CommandName = "get_program_cache"
	CommandGetNetworkInfo        CommandName = "get_network_info"
	CommandRefreshSensors        CommandName = "refresh-sensors"
	CommandGetDiscoveredSensors  CommandName = "get_discovered_sensors"
	CommandSubscribeOutputStatus CommandName = "subscribe_output_status"
	CommandSyncTime              CommandName = "sync_time" // legacy
	CommandSetTimeOffset         CommandName = "set_time_offset"
)

var (
	// ErrMissingType is returned when a frame has no string "type" field
	ErrMissingType = errors.New("message has no type")
)

// Message is an inbound frame. Payload fields live next to "type" at the top
// level of the JSON object, so Raw keeps the whole object for ParsePayload.
type Message struct {
	Type MessageType
	Raw  json.RawMessage
}

// ParseMessage parses a text frame into a Message.
// The frame must be a JSON object carrying a string "type".
func ParseMessage(data []byte) (*Message, error) {
	var envelope struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	if envelope.Type == nil || *envelope.Type == "" {
		return nil, ErrMissingType
	}
	return &Message{
		Type: MessageType(*envelope.Type),
		Raw:  json.RawMessage(data),
	}, nil
}

// ParsePayload parses the body of a message into the given struct
func ParsePayload(msg *Message, payload interface{}) error {
	return json.Unmarshal(msg.Raw, payload)
}

// Command is implemented by every outbound frame
type Command interface {
	Name() CommandName
}

// CreateCommand serializes an outbound command frame
func CreateCommand(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("error encoding %s: %w", cmd.Name(), err)
	}
	return data, nil
}
