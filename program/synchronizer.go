package program

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/exp/slices"

	"gdaytreva/clock"
	"gdaytreva/protocol"
)

// DiscoveryMode selects how the full definition set is requested
type DiscoveryMode string

const (
	DiscoveryCache DiscoveryMode = "cache" // one get_program_cache
	DiscoveryPoll  DiscoveryMode = "poll"  // get_program for every slot
	DiscoveryAuto  DiscoveryMode = "auto"  // cache, falling back to poll
)

// ParseDiscoveryMode validates a configured discovery mode
func ParseDiscoveryMode(s string) (DiscoveryMode, error) {
	switch m := DiscoveryMode(s); m {
	case DiscoveryCache, DiscoveryPoll, DiscoveryAuto:
		return m, nil
	case "":
		return DiscoveryAuto, nil
	default:
		return "", fmt.Errorf("unknown program discovery mode %q", s)
	}
}

// CommandError is a failed command reported by the controller
type CommandError struct {
	Op        protocol.CommandName
	ProgramID ID
	Message   string
}

func (e *CommandError) Error() string {
	if e.ProgramID != "" {
		return fmt.Sprintf("%s %s failed: %s", e.Op, e.ProgramID, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

// Synchronizer holds the canonical program definitions and the live runtime
// state. Responses are applied as unconditional upserts keyed by the id they
// carry; no request bookkeeping is kept. It is not safe for concurrent use.
type Synchronizer struct {
	definitions map[ID]Definition
	runtime     map[ID]Runtime
	editing     ID
}

// NewSynchronizer creates an empty Synchronizer
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{
		definitions: make(map[ID]Definition),
		runtime:     make(map[ID]Runtime),
	}
}

// BulkRequest returns the commands that request the full definition set
func BulkRequest(mode DiscoveryMode) []protocol.Command {
	if mode == DiscoveryPoll {
		cmds := make([]protocol.Command, 0, MaxPrograms)
		for _, id := range AllIDs() {
			cmds = append(cmds, protocol.NewGetProgram(string(id)))
		}
		return cmds
	}
	return []protocol.Command{protocol.NewSimple(protocol.CommandGetProgramCache)}
}

// ReplaceDefinitions replaces the whole definition set from a program_cache
// push. Entries with an invalid id or body are skipped.
func (s *Synchronizer) ReplaceDefinitions(p protocol.ProgramCachePayload) (skipped int) {
	defs := make(map[ID]Definition, len(p.Programs))
	for _, raw := range p.Programs {
		var entry cacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			slog.Warn("Skipping program cache entry", "err", err)
			skipped++
			continue
		}
		id, err := IDFromWire(entry.ID)
		if err != nil {
			slog.Warn("Skipping program cache entry", "err", err)
			skipped++
			continue
		}
		defs[id] = entry.Definition
	}
	s.definitions = defs
	return skipped
}

// ReplaceRuntime replaces the runtime set from any of the runtime status
// shapes. Entries with an invalid id are skipped.
func (s *Synchronizer) ReplaceRuntime(msgType protocol.MessageType, p protocol.RuntimePayload) (skipped int) {
	entries := p.Entries(msgType)
	rt := make(map[ID]Runtime, len(entries))
	for _, e := range entries {
		r, err := RuntimeFromEntry(e)
		if err != nil {
			slog.Warn("Skipping runtime entry", "type", msgType, "err", err)
			skipped++
			continue
		}
		rt[r.ID] = r
	}
	s.runtime = rt
	return skipped
}

// ApplyGetResponse upserts the definition carried by a get_program_response.
// On failure the set is left untouched and a *CommandError is returned.
func (s *Synchronizer) ApplyGetResponse(r protocol.GetProgramResponse) (ID, error) {
	id, idErr := IDFromWire(r.ProgramID)
	if !r.Success {
		return id, &CommandError{Op: protocol.CommandGetProgram, ProgramID: id, Message: r.Message}
	}
	if idErr != nil {
		return "", &CommandError{Op: protocol.CommandGetProgram, Message: idErr.Error()}
	}
	def, err := DecodeContent([]byte(r.Content))
	if err != nil {
		return id, &CommandError{Op: protocol.CommandGetProgram, ProgramID: id, Message: err.Error()}
	}
	s.definitions[id] = def
	return id, nil
}

// ApplySaveResponse handles a save_program_response. On success it adopts the
// id assigned by the controller as the edited program and returns it so the
// caller can refresh that slot; a response without an id keeps the edited one.
func (s *Synchronizer) ApplySaveResponse(r protocol.SaveProgramResponse) (ID, error) {
	if !r.Success {
		return "", &CommandError{Op: protocol.CommandSaveProgram, ProgramID: s.editing, Message: r.Message}
	}
	id := s.editing
	if r.ProgramID != "" {
		assigned, err := IDFromWire(r.ProgramID)
		if err != nil {
			return "", &CommandError{Op: protocol.CommandSaveProgram, Message: err.Error()}
		}
		id = assigned
	}
	if id == "" {
		return "", &CommandError{Op: protocol.CommandSaveProgram, Message: "controller did not report the saved program id"}
	}
	s.editing = id
	return id, nil
}

// PrepareSave validates a definition and builds the save_program command.
// id may be empty to let the controller pick a free slot. Nothing is sent
// when an error is returned.
func (s *Synchronizer) PrepareSave(id ID, d Definition) (protocol.SaveProgramCommand, error) {
	if id != "" {
		parsed, err := ParseID(string(id))
		if err != nil {
			return protocol.SaveProgramCommand{}, err
		}
		id = parsed
	}
	d = d.Normalize()
	if err := Validate(d); err != nil {
		return protocol.SaveProgramCommand{}, err
	}
	content, err := EncodeContent(d)
	if err != nil {
		return protocol.SaveProgramCommand{}, err
	}
	s.editing = id
	return protocol.NewSaveProgram(string(id), string(content)), nil
}

// Editing returns the program currently being edited, or "" for a new one
func (s *Synchronizer) Editing() ID {
	return s.editing
}

// SetEditing selects the program being edited
func (s *Synchronizer) SetEditing(id ID) {
	s.editing = id
}

// Definition returns a copy of one definition
func (s *Synchronizer) Definition(id ID) (Definition, bool) {
	d, ok := s.definitions[id]
	if !ok {
		return Definition{}, false
	}
	return d.Clone(), true
}

// Definitions returns a copy of the definition set
func (s *Synchronizer) Definitions() map[ID]Definition {
	out := make(map[ID]Definition, len(s.definitions))
	for id, d := range s.definitions {
		out[id] = d.Clone()
	}
	return out
}

// Runtime returns a copy of the runtime set
func (s *Synchronizer) Runtime() map[ID]Runtime {
	out := make(map[ID]Runtime, len(s.runtime))
	for id, r := range s.runtime {
		out[id] = r.Clone()
	}
	return out
}

// IDs returns the ids of known definitions in slot order
func (s *Synchronizer) IDs() []ID {
	ids := make([]ID, 0, len(s.definitions))
	for id := range s.definitions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Countdowns joins runtime and definitions by id and predicts the next toggle
// of every cycle timer program against the device epoch
func (s *Synchronizer) Countdowns(deviceEpoch int64) map[ID]clock.Countdown {
	out := make(map[ID]clock.Countdown)
	for id, r := range s.runtime {
		if r.NextToggle == nil {
			continue
		}
		def, known := s.definitions[id]
		if !r.IsCycleTimer() && !(known && def.IsCycleTimer()) {
			continue
		}
		out[id] = clock.NewCountdown(*r.NextToggle, deviceEpoch)
	}
	return out
}
