package protocol

// CommandHeader carries the "command" discriminant of an outbound frame
type CommandHeader struct {
	Command CommandName `json:"command"`
}

// Name returns the command discriminant
func (h CommandHeader) Name() CommandName {
	return h.Command
}

// GetProgramCommand requests one program definition
type GetProgramCommand struct {
	CommandHeader
	ProgramID string `json:"programID"`
}

// SaveProgramCommand stores a program definition. Without ProgramID the
// controller assigns a free slot and reports it in save_program_response.
type SaveProgramCommand struct {
	CommandHeader
	ProgramID string `json:"programID,omitempty"`
	Content   string `json:"content"`
}

// SetTimeOffsetCommand sets the display offset the controller applies
type SetTimeOffsetCommand struct {
	CommandHeader
	OffsetMinutes int `json:"offset_minutes"`
}

// SyncTimeCommand is the legacy clock sync: local time as
// "YYYY-MM-DD HH:MM:SS" and the offset as signed hours
type SyncTimeCommand struct {
	CommandHeader
	Time   string `json:"time"`
	Offset string `json:"offset"`
}

// NewGetProgram builds a get_program command
func NewGetProgram(programID string) GetProgramCommand {
	return GetProgramCommand{
		CommandHeader: CommandHeader{Command: CommandGetProgram},
		ProgramID:     programID,
	}
}

// NewSaveProgram builds a save_program command; programID may be empty
func NewSaveProgram(programID, content string) SaveProgramCommand {
	return SaveProgramCommand{
		CommandHeader: CommandHeader{Command: CommandSaveProgram},
		ProgramID:     programID,
		Content:       content,
	}
}

// NewSetTimeOffset builds a set_time_offset command
func NewSetTimeOffset(offsetMinutes int) SetTimeOffsetCommand {
	return SetTimeOffsetCommand{
		CommandHeader: CommandHeader{Command: CommandSetTimeOffset},
		OffsetMinutes: offsetMinutes,
	}
}

// NewSyncTime builds a legacy sync_time command
func NewSyncTime(localTime, offset string) SyncTimeCommand {
	return SyncTimeCommand{
		CommandHeader: CommandHeader{Command: CommandSyncTime},
		Time:          localTime,
		Offset:        offset,
	}
}

// NewSimple builds a command that carries no fields, such as
// get_program_cache or subscribe_output_status
func NewSimple(name CommandName) CommandHeader {
	return CommandHeader{Command: name}
}
