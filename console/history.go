package console

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const historyFileName = ".gdaytreva_history"

const maxHistorySize = 500

func getHistoryFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("Home directory unavailable, keeping history in the working directory", "err", err)
		return historyFileName
	}
	return filepath.Join(home, historyFileName)
}

func loadHistory(filePath string) []string {
	file, err := os.Open(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read history", "file", filePath, "err", err)
		}
		return []string{}
	}
	defer file.Close()

	// oldest first; a repeated line keeps only its newest position
	var history []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		history = appendHistory(history, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("Failed to scan history", "file", filePath, "err", err)
	}
	if history == nil {
		history = []string{}
	}
	return history
}

// appendHistory adds line as the newest entry, removing an older duplicate
func appendHistory(history []string, line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return history
	}
	out := history[:0:0]
	for _, h := range history {
		if h != line {
			out = append(out, h)
		}
	}
	out = append(out, line)
	if len(out) > maxHistorySize {
		out = out[len(out)-maxHistorySize:]
	}
	return out
}

func saveHistory(filePath string, history []string) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		slog.Warn("Failed to write history", "file", filePath, "err", err)
		return
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, line := range history {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := fmt.Fprintln(writer, line); err != nil {
			slog.Warn("Failed to write history", "file", filePath, "err", err)
			return
		}
	}
	if err := writer.Flush(); err != nil {
		slog.Warn("Failed to flush history", "file", filePath, "err", err)
	}
}
