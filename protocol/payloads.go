package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TimePayload is the body of a "time" message. Every field is optional so
// that absent fields can be told apart from zero values when merging.
type TimePayload struct {
	Epoch         *int64  `json:"epoch,omitempty"`
	OffsetMinutes *int    `json:"offset_minutes,omitempty"`
	MemUsed       *int64  `json:"mem_used,omitempty"`
	MemTotal      *int64  `json:"mem_total,omitempty"`
	Uptime        *int64  `json:"uptime,omitempty"` // milliseconds
	DeviceName    *string `json:"device_name,omitempty"`
}

// TimeOffsetPayload is the body of a "time_offset" message
type TimeOffsetPayload struct {
	OffsetMinutes *int    `json:"offset_minutes,omitempty"`
	DeviceName    *string `json:"device_name,omitempty"`
}

// Interface holds the addressing of one network interface of the controller
type Interface struct {
	IP      string `json:"ip"`
	RSSI    int    `json:"rssi"`
	MAC     string `json:"mac"`
	Gateway string `json:"gateway"`
	Subnet  string `json:"subnet"`
	DNS1    string `json:"dns1"`
	DNS2    string `json:"dns2"`
}

// NetworkInfo is the body of a "network_info" message.
// On the wire the fields are flat and prefixed with the interface name.
type NetworkInfo struct {
	WiFi         Interface `json:"wifi"`
	Eth          Interface `json:"eth"`
	MDNSHostname string    `json:"mdns_hostname"`
}

type networkInfoWire struct {
	WiFiIP       string `json:"wifi_ip,omitempty"`
	WiFiRSSI     int    `json:"wifi_rssi,omitempty"`
	WiFiMAC      string `json:"wifi_mac,omitempty"`
	WiFiGateway  string `json:"wifi_gateway,omitempty"`
	WiFiSubnet   string `json:"wifi_subnet,omitempty"`
	WiFiDNS      string `json:"wifi_dns,omitempty"`
	WiFiDNS2     string `json:"wifi_dns2,omitempty"`
	EthIP        string `json:"eth_ip,omitempty"`
	EthMAC       string `json:"eth_mac,omitempty"`
	EthGateway   string `json:"eth_gateway,omitempty"`
	EthSubnet    string `json:"eth_subnet,omitempty"`
	EthDNS       string `json:"eth_dns,omitempty"`
	EthDNS2      string `json:"eth_dns2,omitempty"`
	MDNSHostname string `json:"mdns_hostname,omitempty"`
}

// UnmarshalJSON decodes the flat wire shape
func (n *NetworkInfo) UnmarshalJSON(data []byte) error {
	var w networkInfoWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*n = NetworkInfo{
		WiFi: Interface{
			IP:      w.WiFiIP,
			RSSI:    w.WiFiRSSI,
			MAC:     w.WiFiMAC,
			Gateway: w.WiFiGateway,
			Subnet:  w.WiFiSubnet,
			DNS1:    w.WiFiDNS,
			DNS2:    w.WiFiDNS2,
		},
		Eth: Interface{
			IP:      w.EthIP,
			MAC:     w.EthMAC,
			Gateway: w.EthGateway,
			Subnet:  w.EthSubnet,
			DNS1:    w.EthDNS,
			DNS2:    w.EthDNS2,
		},
		MDNSHostname: w.MDNSHostname,
	}
	return nil
}

// MarshalJSON encodes the flat wire shape
func (n NetworkInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(networkInfoWire{
		WiFiIP:       n.WiFi.IP,
		WiFiRSSI:     n.WiFi.RSSI,
		WiFiMAC:      n.WiFi.MAC,
		WiFiGateway:  n.WiFi.Gateway,
		WiFiSubnet:   n.WiFi.Subnet,
		WiFiDNS:      n.WiFi.DNS1,
		WiFiDNS2:     n.WiFi.DNS2,
		EthIP:        n.Eth.IP,
		EthMAC:       n.Eth.MAC,
		EthGateway:   n.Eth.Gateway,
		EthSubnet:    n.Eth.Subnet,
		EthDNS:       n.Eth.DNS1,
		EthDNS2:      n.Eth.DNS2,
		MDNSHostname: n.MDNSHostname,
	})
}

// Sensor is one entry of a "discovered_sensors" message
type Sensor struct {
	Type       string          `json:"type"`
	Address    string          `json:"address"`
	Capability string          `json:"capability"`
	Value      json.RawMessage `json:"value,omitempty"`
	Active     bool            `json:"active"`
}

// DiscoveredSensorsPayload is the body of a "discovered_sensors" message
type DiscoveredSensorsPayload struct {
	Sensors []Sensor `json:"sensors"`
}

// ProgramCachePayload is the body of a "program_cache" message.
// Entries are decoded by the program package.
type ProgramCachePayload struct {
	Programs []json.RawMessage `json:"programs"`
}

// FlexibleID is a program identifier that the controller may send either as
// a JSON string ("03") or as a number (3).
type FlexibleID string

// UnmarshalJSON accepts a string or a number
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid program id %s: %w", data, err)
	}
	*f = FlexibleID(n.String())
	return nil
}

// SwitchState is the last known level of an output: on, off or unknown
type SwitchState int

const (
	StateUnknown SwitchState = iota
	StateOff
	StateOn
)

func (s SwitchState) String() string {
	switch s {
	case StateOn:
		return "on"
	case StateOff:
		return "off"
	default:
		return "unknown"
	}
}

// UnmarshalJSON accepts booleans, 0/1 and "on"/"off"; anything else is unknown
func (s *SwitchState) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(string(bytes.TrimSpace(data)), `"`)) {
	case "true", "1", "on", "high":
		*s = StateOn
	case "false", "0", "off", "low":
		*s = StateOff
	default:
		*s = StateUnknown
	}
	return nil
}

// MarshalJSON encodes on/off as booleans and unknown as null
func (s SwitchState) MarshalJSON() ([]byte, error) {
	switch s {
	case StateOn:
		return []byte("true"), nil
	case StateOff:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// RuntimeEntry is the live state of one program as pushed by the controller
type RuntimeEntry struct {
	ID         FlexibleID  `json:"id"`
	Output     string      `json:"output"`
	State      SwitchState `json:"state"`
	NextToggle *int64      `json:"next_toggle,omitempty"`
	Trigger    string      `json:"trigger,omitempty"`
}

// RuntimePayload covers the three runtime status shapes the firmware has used:
// active_program_data{programs}, cycle_timer_status{cycle_timers} and the
// legacy trigger_status{epoch, progs}.
type RuntimePayload struct {
	Programs    []RuntimeEntry `json:"programs,omitempty"`
	CycleTimers []RuntimeEntry `json:"cycle_timers,omitempty"`
	Progs       []RuntimeEntry `json:"progs,omitempty"`
	Epoch       *int64         `json:"epoch,omitempty"`
}

// Entries returns the runtime list carried by a message of the given type
func (p RuntimePayload) Entries(msgType MessageType) []RuntimeEntry {
	switch msgType {
	case MessageTypeCycleTimerStatus:
		if p.CycleTimers != nil {
			return p.CycleTimers
		}
	case MessageTypeTriggerStatus:
		if p.Progs != nil {
			return p.Progs
		}
	}
	if p.Programs != nil {
		return p.Programs
	}
	if p.CycleTimers != nil {
		return p.CycleTimers
	}
	return p.Progs
}

// GetProgramResponse is the body of a "get_program_response" message.
// Content is the program definition encoded as a JSON string.
type GetProgramResponse struct {
	Success   bool       `json:"success"`
	ProgramID FlexibleID `json:"programID"`
	Content   string     `json:"content,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// SaveProgramResponse is the body of a "save_program_response" message
type SaveProgramResponse struct {
	Success   bool       `json:"success"`
	ProgramID FlexibleID `json:"programID,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// FormatOffsetHours renders an offset in minutes as signed hours, the way the
// legacy sync_time command expects it ("+9", "-5", "+5.5").
func FormatOffsetHours(offsetMinutes int) string {
	s := strconv.FormatFloat(float64(offsetMinutes)/60, 'f', -1, 64)
	if offsetMinutes >= 0 {
		return "+" + s
	}
	return s
}
