package log

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// LogManager installs the file logger as the default slog logger and
// reopens the file on SIGHUP
type LogManager struct {
	logger   *Logger
	previous *slog.Logger
	signals  chan os.Signal
	done     chan struct{}
}

// NewLogManager opens logFilename and makes it the destination of slog
func NewLogManager(logFilename string, debug bool) (*LogManager, error) {
	logger, err := NewLogger(logFilename)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	lm := &LogManager{
		logger:   logger,
		previous: slog.Default(),
		signals:  make(chan os.Signal, 1),
		done:     make(chan struct{}),
	}
	slog.SetDefault(slog.New(logger.Handler(level)))

	signal.Notify(lm.signals, syscall.SIGHUP)
	go lm.handleSignals()
	return lm, nil
}

func (lm *LogManager) handleSignals() {
	for {
		select {
		case <-lm.signals:
			slog.Info("Received SIGHUP, rotating log file")
			if err := lm.logger.Rotate(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
			}
		case <-lm.done:
			return
		}
	}
}

// Logger returns the managed log file
func (lm *LogManager) Logger() *Logger {
	return lm.logger
}

// Close stops rotation, restores the previous default logger and closes the file
func (lm *LogManager) Close() error {
	signal.Stop(lm.signals)
	close(lm.done)
	slog.SetDefault(lm.previous)
	return lm.logger.Close()
}
