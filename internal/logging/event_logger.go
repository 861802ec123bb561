package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LoggedEvent is the part of a bus event the event logger writes
type LoggedEvent struct {
	Type   string
	Source string
	Data   map[string]interface{}
}

// EventLogger writes every pipeline event it receives to a timestamped file
// in the log directory. The caller subscribes Handle to the bus; logging does
// not import the events package so events can log through this package.
type EventLogger struct {
	logger  *Logger
	logFile *os.File
}

// NewEventLogger creates the log directory and opens a new events file
func NewEventLogger(logDir string) (*EventLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logDir, fmt.Sprintf("events_%s.log", timestamp))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := NewLogger("EventLogger").SetOutputs(logFile)

	return &EventLogger{
		logger:  logger,
		logFile: logFile,
	}, nil
}

// Path returns the events file path
func (el *EventLogger) Path() string {
	return el.logFile.Name()
}

// Handle logs one event. Large text payloads are left out.
func (el *EventLogger) Handle(event LoggedEvent) {
	context := map[string]interface{}{
		"event_type": event.Type,
		"source":     event.Source,
	}

	for k, v := range event.Data {
		if k == "text" {
			continue
		}
		context[k] = v
	}

	el.logger.InfoWithContext(fmt.Sprintf("Event: %s", event.Type), context)
}

// Close closes the event logger and log file
func (el *EventLogger) Close() error {
	if el.logFile != nil {
		return el.logFile.Close()
	}
	return nil
}
