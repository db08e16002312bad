package console

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/exp/slices"

	"gdaytreva/clock"
	"gdaytreva/program"
)

// Input is the argument part of a command line
type Input struct {
	Args []string // words after the command name, quotes removed
	Raw  string   // text after the command name, untouched
}

// CommandDefinition describes one console command
type CommandDefinition struct {
	Name        string
	Aliases     []string
	Summary     string
	Syntax      string
	Description []string
	Run         func(c *Console, in Input) error
	// Candidates completes the argument at position len(args)-1
	Candidates func(c *Console, args []string) []Suggestion
}

// Suggestion is a completion candidate
type Suggestion struct {
	Text        string
	Description string
}

// CommandTable lists every console command in help order
var CommandTable []CommandDefinition

func init() {
	CommandTable = []CommandDefinition{
		{
			Name:    "help",
			Summary: "show commands",
			Syntax:  "help [command]",
			Run:     runHelp,
			Candidates: func(c *Console, args []string) []Suggestion {
				if len(args) != 1 {
					return nil
				}
				return commandSuggestions()
			},
		},
		{
			Name:    "status",
			Summary: "connection and device status",
			Syntax:  "status",
			Run:     runStatus,
		},
		{
			Name:    "programs",
			Aliases: []string{"list"},
			Summary: "list known programs with their live state",
			Syntax:  "programs",
			Run:     runPrograms,
		},
		{
			Name:    "show",
			Summary: "print a cached program definition",
			Syntax:  "show <id>",
			Description: []string{
				"id: program slot, 1 to 10",
			},
			Run:        runShow,
			Candidates: programCandidates(false),
		},
		{
			Name:    "get",
			Summary: "reload one program from the controller",
			Syntax:  "get <id>",
			Description: []string{
				"id: program slot, 1 to 10",
				"The definition is cached when the controller answers.",
			},
			Run:        runGet,
			Candidates: programCandidates(false),
		},
		{
			Name:    "save",
			Summary: "validate and save a program definition",
			Syntax:  "save <id|new> <file|json>",
			Description: []string{
				"id: program slot, 1 to 10, or new to let the controller pick a free slot",
				"file: path of a JSON definition",
				"json: an inline definition starting with '{'",
			},
			Run:        runSave,
			Candidates: programCandidates(true),
		},
		{
			Name:    "cache",
			Summary: "request every definition at once",
			Syntax:  "cache",
			Run: func(c *Console, in Input) error {
				return requested(c, "program cache", c.dev.RequestProgramCache())
			},
		},
		{
			Name:    "network",
			Summary: "show or refresh network information",
			Syntax:  "network [refresh]",
			Run:     runNetwork,
			Candidates: fixedCandidates(
				Suggestion{Text: "refresh", Description: "request network info"},
			),
		},
		{
			Name:    "sensors",
			Summary: "show, rescan or reload discovered sensors",
			Syntax:  "sensors [refresh|discover]",
			Description: []string{
				"refresh: ask the controller to rescan its sensor buses",
				"discover: request the discovered sensor list",
			},
			Run: runSensors,
			Candidates: fixedCandidates(
				Suggestion{Text: "refresh", Description: "rescan sensor buses"},
				Suggestion{Text: "discover", Description: "request discovered sensors"},
			),
		},
		{
			Name:    "clock",
			Summary: "device clock, drift and offset",
			Syntax:  "clock",
			Run:     runClock,
		},
		{
			Name:    "sync-offset",
			Summary: "send the local UTC offset to the controller",
			Syntax:  "sync-offset",
			Run: func(c *Console, in Input) error {
				return requested(c, "time offset update", c.dev.SetTimeOffset())
			},
		},
		{
			Name:    "sync-time",
			Summary: "send the local wall time to the controller",
			Syntax:  "sync-time",
			Run: func(c *Console, in Input) error {
				return requested(c, "time sync", c.dev.SyncTime())
			},
		},
		{
			Name:    "countdown",
			Summary: "time left until each program toggles",
			Syntax:  "countdown",
			Run:     runCountdown,
		},
		{
			Name:    "quit",
			Aliases: []string{"exit"},
			Summary: "exit",
			Syntax:  "quit",
			Run: func(c *Console, in Input) error {
				return errQuit
			},
		},
	}
}

func lookupCommand(name string) (CommandDefinition, bool) {
	for _, def := range CommandTable {
		if def.Name == name || slices.Contains(def.Aliases, name) {
			return def, true
		}
	}
	return CommandDefinition{}, false
}

func isQuitCommand(name string) bool {
	def, ok := lookupCommand(name)
	return ok && def.Name == "quit"
}

func requested(c *Console, what string, err error) error {
	if err != nil {
		return err
	}
	c.printf("requested %s\n", what)
	return nil
}

func runHelp(c *Console, in Input) error {
	if len(in.Args) == 0 {
		c.printf("Commands:\n")
		for _, def := range CommandTable {
			name := def.Name
			if len(def.Aliases) > 0 {
				name += ", " + strings.Join(def.Aliases, ", ")
			}
			c.printf("  %-12s: %s\n", name, def.Summary)
		}
		c.printf("\nType 'help <command>' for details, e.g. 'help save'\n")
		return nil
	}
	def, ok := lookupCommand(in.Args[0])
	if !ok {
		return fmt.Errorf("unknown command: %s", in.Args[0])
	}
	c.printf("  %s: %s\n", def.Name, def.Summary)
	c.printf("  syntax: %s\n", def.Syntax)
	for _, line := range def.Description {
		c.printf("    %s\n", line)
	}
	return nil
}

func runStatus(c *Console, in Input) error {
	snap := c.dev.Snapshot()
	c.printf("%s\n", c.dev.StatusText())
	c.printf("  state:   %s\n", snap.State)
	if snap.URL != "" {
		c.printf("  url:     %s\n", snap.URL)
	}
	if snap.Clock.DeviceName != "" {
		c.printf("  device:  %s\n", snap.Clock.DeviceName)
	}
	c.printf("  cache:   %t\n", snap.CacheCapable)
	if snap.Editing != "" {
		c.printf("  editing: %s\n", snap.Editing)
	}
	return nil
}

func runPrograms(c *Console, in Input) error {
	snap := c.dev.Snapshot()
	ids := make([]program.ID, 0, len(snap.Programs)+len(snap.Runtime))
	for id := range snap.Programs {
		ids = append(ids, id)
	}
	for id := range snap.Runtime {
		if _, ok := snap.Programs[id]; !ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		c.printf("no programs known\n")
		return nil
	}
	slices.Sort(ids)

	for _, id := range ids {
		name, enabled, output, trigger := "-", "-", "-", "-"
		if d, ok := snap.Programs[id]; ok {
			name = d.Name
			enabled = "disabled"
			if d.Enabled {
				enabled = "enabled"
			}
			output = d.Output
			if d.MonitorOnly() {
				output = "monitor"
			}
			trigger = d.Trigger
		}
		state := "-"
		if r, ok := snap.Runtime[id]; ok {
			state = r.State.String()
		}
		line := fmt.Sprintf("%s  %-25s %-8s %-7s %-11s %-7s", id, name, enabled, output, trigger, state)
		if cd, ok := snap.Countdowns[id]; ok {
			line += " " + cd.String()
		}
		c.printf("%s\n", strings.TrimRight(line, " "))
	}
	return nil
}

func argID(in Input) (program.ID, error) {
	if len(in.Args) == 0 {
		return "", fmt.Errorf("program id required")
	}
	return program.ParseID(in.Args[0])
}

func runShow(c *Console, in Input) error {
	id, err := argID(in)
	if err != nil {
		return err
	}
	d, ok := c.dev.Snapshot().Programs[id]
	if !ok {
		return fmt.Errorf("program %s is not cached; try 'get %s'", id, id)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	c.printf("%s\n", data)
	return nil
}

func runGet(c *Console, in Input) error {
	id, err := argID(in)
	if err != nil {
		return err
	}
	return requested(c, "program "+id.String(), c.dev.GetProgram(id.String()))
}

func runSave(c *Console, in Input) error {
	if len(in.Args) < 2 {
		return fmt.Errorf("usage: save <id|new> <file|json>")
	}
	var id program.ID
	if in.Args[0] != "new" {
		parsed, err := program.ParseID(in.Args[0])
		if err != nil {
			return err
		}
		id = parsed
	}

	source := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(in.Raw), in.Args[0]))
	var content []byte
	if strings.HasPrefix(source, "{") {
		content = []byte(source)
	} else {
		data, err := os.ReadFile(in.Args[1])
		if err != nil {
			return fmt.Errorf("error reading %s: %w", in.Args[1], err)
		}
		content = data
	}

	d, err := program.DecodeContent(content)
	if err != nil {
		return err
	}
	if err := c.dev.SaveProgram(id.String(), d); err != nil {
		return err
	}
	if id == "" {
		c.printf("saving new program %q\n", d.Name)
	} else {
		c.printf("saving program %s %q\n", id, d.Name)
	}
	return nil
}

func runNetwork(c *Console, in Input) error {
	if len(in.Args) > 0 {
		if in.Args[0] != "refresh" {
			return fmt.Errorf("unknown option: %s", in.Args[0])
		}
		return requested(c, "network info", c.dev.RequestNetworkInfo())
	}
	n := c.dev.Snapshot().Network
	if n == nil {
		c.printf("no network info yet; try 'network refresh'\n")
		return nil
	}
	if n.MDNSHostname != "" {
		c.printf("mdns: %s\n", n.MDNSHostname)
	}
	if n.WiFi.IP != "" {
		c.printf("wifi: ip=%s mac=%s gateway=%s subnet=%s dns=%s rssi=%d\n",
			n.WiFi.IP, n.WiFi.MAC, n.WiFi.Gateway, n.WiFi.Subnet, n.WiFi.DNS1, n.WiFi.RSSI)
	}
	if n.Eth.IP != "" {
		c.printf("eth:  ip=%s mac=%s gateway=%s subnet=%s dns=%s\n",
			n.Eth.IP, n.Eth.MAC, n.Eth.Gateway, n.Eth.Subnet, n.Eth.DNS1)
	}
	return nil
}

func runSensors(c *Console, in Input) error {
	if len(in.Args) > 0 {
		switch in.Args[0] {
		case "refresh":
			return requested(c, "sensor rescan", c.dev.RefreshSensors())
		case "discover":
			return requested(c, "discovered sensors", c.dev.RequestDiscoveredSensors())
		default:
			return fmt.Errorf("unknown option: %s", in.Args[0])
		}
	}
	sensors := c.dev.Snapshot().Sensors
	if len(sensors) == 0 {
		c.printf("no sensors known; try 'sensors discover'\n")
		return nil
	}
	for _, s := range sensors {
		active := "inactive"
		if s.Active {
			active = "active"
		}
		value := "-"
		if len(s.Value) > 0 {
			value = string(s.Value)
		}
		c.printf("%-10s %-20s %-12s %-8s %s\n", s.Type, s.Address, s.Capability, active, value)
	}
	return nil
}

func runClock(c *Console, in Input) error {
	ck := c.dev.Snapshot().Clock
	if !ck.Known {
		c.printf("device time unknown\n")
		return nil
	}
	now := c.now()
	c.printf("device time: %s (UTC%+d min)\n", ck.WallTime().Format("2006-01-02 15:04:05"), ck.OffsetMinutes)
	c.printf("drift:       %s\n", ck.Drift(now))
	if ck.OutOfSync(now) {
		c.printf("device clock is out of sync; try 'sync-time'\n")
	}
	if ck.OffsetMismatch(now) {
		c.printf("device offset differs from local offset (UTC%+d min); try 'sync-offset'\n", clock.LocalOffsetMinutes(now))
	}
	if ck.MemTotal > 0 {
		c.printf("memory free: %d%%\n", ck.MemFreePercent())
	}
	return nil
}

func runCountdown(c *Console, in Input) error {
	snap := c.dev.Snapshot()
	if len(snap.Countdowns) == 0 {
		c.printf("no scheduled toggles\n")
		return nil
	}
	ids := make([]program.ID, 0, len(snap.Countdowns))
	for id := range snap.Countdowns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		name := ""
		if d, ok := snap.Programs[id]; ok {
			name = d.Name
		}
		c.printf("%s  %-25s %s\n", id, name, snap.Countdowns[id])
	}
	return nil
}
