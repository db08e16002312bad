// Package console is an interactive shell over a controller session
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"

	"gdaytreva/client"
	"gdaytreva/program"
)

// Device is the part of a session the console drives
type Device interface {
	Snapshot() client.Snapshot
	StatusText() string
	GetProgram(id string) error
	SaveProgram(id string, d program.Definition) error
	RequestProgramCache() error
	RequestNetworkInfo() error
	RefreshSensors() error
	RequestDiscoveredSensors() error
	SetTimeOffset() error
	SyncTime() error
}

// errQuit is returned by the quit command
var errQuit = errors.New("quit")

// Console parses and runs command lines against a Device
type Console struct {
	dev Device
	out io.Writer
	now func() time.Time
}

// NewConsole creates a console writing its output to out
func NewConsole(dev Device, out io.Writer) *Console {
	return &Console{dev: dev, out: out, now: time.Now}
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// Execute runs one input line. It reports quit when the line ends the
// session.
func (c *Console) Execute(line string) (quit bool, err error) {
	name, rest := splitCommand(line)
	if name == "" {
		return false, nil
	}
	def, ok := lookupCommand(name)
	if !ok {
		return false, fmt.Errorf("unknown command: %s (type 'help' for usage)", name)
	}
	err = def.Run(c, Input{Args: splitArgs(rest), Raw: rest})
	if errors.Is(err, errQuit) {
		return true, nil
	}
	return false, err
}

// Notify prints session events that the user should see between prompts
func (c *Console) Notify(n client.Notification) {
	switch n.Type {
	case client.NotifyConnectionState:
		c.printf("connection: %s\n", n.State)
	case client.NotifyProgramSaved:
		c.printf("program %s saved\n", n.ProgramID)
	case client.NotifyProgramLoaded:
		c.printf("program %s loaded\n", n.ProgramID)
	case client.NotifyCommandFailed:
		c.printf("error: %v\n", n.Err)
	}
}

// Run starts the prompt and returns when the user quits or ctx is done.
// SIGINT and SIGTERM reaching the process while the prompt runs are handled
// by go-prompt, which restores the terminal and exits.
func Run(ctx context.Context, sess *client.Session) {
	c := NewConsole(sess, promptWriter{})

	events, unsubscribe := sess.Subscribe(16)
	defer unsubscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-events:
				if !ok {
					return
				}
				c.Notify(n)
			}
		}
	}()

	historyFile := getHistoryFilePath()
	history := loadHistory(historyFile)

	executor := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		history = appendHistory(history, line)
		saveHistory(historyFile, history)

		if _, err := c.Execute(line); err != nil {
			c.printf("error: %v\n", err)
		}
	}

	c.printf("help for usage, quit to exit\n")
	p := prompt.New(
		executor,
		c.Complete,
		prompt.OptionPrefix("> "),
		prompt.OptionTitle("gdaytreva"),
		prompt.OptionHistory(history),
		prompt.OptionParser(&contextParser{ConsoleParser: prompt.NewStandardInputParser(), ctx: ctx}),
		prompt.OptionSetExitCheckerOnInput(exitChecker(ctx)),
	)
	p.Run()
}

// exitChecker ends the prompt on quit, or on any input once ctx is done
func exitChecker(ctx context.Context) func(in string, breakline bool) bool {
	return func(in string, breakline bool) bool {
		if ctx.Err() != nil {
			return true
		}
		name, _ := splitCommand(in)
		return breakline && isQuitCommand(name)
	}
}

// contextParser feeds a Ctrl-C keystroke once ctx is done so the prompt
// consults its exit checker without waiting for the user
type contextParser struct {
	prompt.ConsoleParser
	ctx context.Context
}

func (p *contextParser) Read() ([]byte, error) {
	if p.ctx.Err() != nil {
		return []byte{0x03}, nil
	}
	return p.ConsoleParser.Read()
}

// promptWriter writes to the terminal the prompt is drawn on
type promptWriter struct{}

func (promptWriter) Write(p []byte) (int, error) {
	return fmt.Print(string(p))
}
