package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
	LogLevelFatal: 4,
}

// ParseLevel converts a config string to a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[level]; ok {
		return level
	}
	return LogLevelInfo
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Error     error                  `json:"error,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// LogFormatter formats log entries for output
type LogFormatter interface {
	Format(entry *LogEntry) string
}

// TextFormatter formats logs as human-readable text.
// Context keys are written in sorted order so lines are stable.
type TextFormatter struct{}

func (f *TextFormatter) Format(entry *LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s [%s] %s",
		entry.Timestamp.Format("2006-01-02 15:04:05.000"), entry.Level, entry.Component, entry.Message)

	if entry.Error != nil {
		fmt.Fprintf(&b, " | error=%v", entry.Error)
	}

	if len(entry.Context) > 0 {
		keys := make([]string, 0, len(entry.Context))
		for k := range entry.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Context[k])
		}
	}

	b.WriteByte('\n')
	return b.String()
}

// sink is shared between a logger and the loggers derived from it with Named,
// so outputs and level changes apply to the whole component tree
type sink struct {
	mu        sync.Mutex
	minLevel  LogLevel
	outputs   []io.Writer
	formatter LogFormatter
}

// Logger provides structured logging functionality for one component
type Logger struct {
	component string
	sink      *sink
}

// NewLogger creates a new logger for a specific component
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		sink: &sink{
			minLevel:  LogLevelInfo,
			outputs:   []io.Writer{os.Stdout},
			formatter: &TextFormatter{},
		},
	}
}

// Discard returns a logger that writes nowhere. Used by tests and as the
// fallback when a constructor receives a nil logger.
func Discard() *Logger {
	l := NewLogger("discard")
	l.sink.outputs = nil
	return l
}

// OrDiscard returns l, or a discarding logger when l is nil
func OrDiscard(l *Logger) *Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// Named returns a child logger for a sub-component sharing outputs and level
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		component: l.component + "." + component,
		sink:      l.sink,
	}
}

// Component returns the component name
func (l *Logger) Component() string {
	return l.component
}

// SetMinLevel sets the minimum log level to output
func (l *Logger) SetMinLevel(level LogLevel) *Logger {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.minLevel = level
	return l
}

// AddOutput adds an output writer for logs
func (l *Logger) AddOutput(w io.Writer) *Logger {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.outputs = append(l.sink.outputs, w)
	return l
}

// SetOutputs replaces all output writers
func (l *Logger) SetOutputs(w ...io.Writer) *Logger {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.outputs = w
	return l
}

// SetFormatter sets the log formatter
func (l *Logger) SetFormatter(formatter LogFormatter) *Logger {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.formatter = formatter
	return l
}

func (l *Logger) log(level LogLevel, message string, err error, context map[string]interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if levelRank[level] < levelRank[l.sink.minLevel] || len(l.sink.outputs) == 0 {
		return
	}

	entry := &LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Component: l.component,
		Message:   message,
		Error:     err,
		Context:   context,
	}

	formatted := []byte(l.sink.formatter.Format(entry))
	for _, output := range l.sink.outputs {
		output.Write(formatted)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(LogLevelDebug, message, nil, nil)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelDebug, message, nil, context)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(LogLevelInfo, message, nil, nil)
}

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelInfo, message, nil, context)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(LogLevelWarn, message, nil, nil)
}

// WarnWithContext logs a warning message with context
func (l *Logger) WarnWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelWarn, message, nil, context)
}

// Error logs an error message
func (l *Logger) Error(message string, err error) {
	l.log(LogLevelError, message, err, nil)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(message string, err error, context map[string]interface{}) {
	l.log(LogLevelError, message, err, context)
}

// Fatal logs a fatal error message
func (l *Logger) Fatal(message string, err error) {
	l.log(LogLevelFatal, message, err, nil)
}

// WithContext returns a logger that attaches the given context to every entry
func (l *Logger) WithContext(context map[string]interface{}) *ContextLogger {
	return &ContextLogger{
		logger:  l,
		context: context,
	}
}

// ContextLogger is a logger with pre-set context
type ContextLogger struct {
	logger  *Logger
	context map[string]interface{}
}

// Debug logs a debug message with pre-set context
func (cl *ContextLogger) Debug(message string) {
	cl.logger.log(LogLevelDebug, message, nil, cl.context)
}

// Info logs an info message with pre-set context
func (cl *ContextLogger) Info(message string) {
	cl.logger.log(LogLevelInfo, message, nil, cl.context)
}

// Warn logs a warning message with pre-set context
func (cl *ContextLogger) Warn(message string) {
	cl.logger.log(LogLevelWarn, message, nil, cl.context)
}

// Error logs an error message with pre-set context
func (cl *ContextLogger) Error(message string, err error) {
	cl.logger.log(LogLevelError, message, err, cl.context)
}
