package log

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Logger is an append-only log file that can be reopened for rotation.
// It is an io.Writer for slog handlers.
type Logger struct {
	mu      sync.Mutex
	logFile *os.File
	path    string
}

// NewLogger opens filename for appending
func NewLogger(filename string) (*Logger, error) {
	logFile, err := openLogFile(filename)
	if err != nil {
		return nil, err
	}
	return &Logger{logFile: logFile, path: filename}, nil
}

func openLogFile(filename string) (*os.File, error) {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile == nil {
		// closed: discard
		return len(p), nil
	}
	return l.logFile.Write(p)
}

// Handler returns a text handler writing to this logger
func (l *Logger) Handler(level slog.Leveler) slog.Handler {
	return slog.NewTextHandler(l, &slog.HandlerOptions{Level: level})
}

// Rotate closes and reopens the log file so an external tool can move it away
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile == nil {
		return nil
	}

	_ = l.logFile.Close()
	logFile, err := openLogFile(l.path)
	if err != nil {
		l.logFile = nil
		return fmt.Errorf("failed to reopen log file: %w", err)
	}
	l.logFile = logFile
	return nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	l.logFile = nil
	return err
}
