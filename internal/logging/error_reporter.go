package logging

import (
	"sync"
	"time"
)

// ErrorCategory identifies the pipeline stage an error came from
type ErrorCategory string

const (
	ErrorCategoryCapture      ErrorCategory = "capture"
	ErrorCategoryWindow       ErrorCategory = "window"
	ErrorCategoryOCR          ErrorCategory = "ocr"
	ErrorCategoryClassifier   ErrorCategory = "classifier"
	ErrorCategoryStorage      ErrorCategory = "storage"
	ErrorCategoryNotification ErrorCategory = "notification"
	ErrorCategoryTask         ErrorCategory = "task"
	ErrorCategoryConfig       ErrorCategory = "config"
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity string

const (
	ErrorSeverityLow    ErrorSeverity = "low"
	ErrorSeverityMedium ErrorSeverity = "medium"
	ErrorSeverityHigh   ErrorSeverity = "high"
)

// ErrorReport represents a single reported failure
type ErrorReport struct {
	Timestamp time.Time              `json:"timestamp"`
	Category  ErrorCategory          `json:"category"`
	Severity  ErrorSeverity          `json:"severity"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Error     error                  `json:"error"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// ErrorCallback is called when an error is reported
type ErrorCallback func(report *ErrorReport)

// ErrorReporter records pipeline failures. Nothing it does is fatal: it logs,
// keeps a bounded history and per-category counters, and fans reports out to
// callbacks.
type ErrorReporter struct {
	logger *Logger

	mu         sync.RWMutex
	history    []*ErrorReport
	maxHistory int
	counts     map[ErrorCategory]int64

	callbacksMu sync.RWMutex
	callbacks   []ErrorCallback
}

// NewErrorReporter creates an error reporter keeping at most maxHistory reports
func NewErrorReporter(logger *Logger, maxHistory int) *ErrorReporter {
	if maxHistory <= 0 {
		maxHistory = 200
	}
	return &ErrorReporter{
		logger:     OrDiscard(logger),
		history:    make([]*ErrorReport, 0, maxHistory),
		maxHistory: maxHistory,
		counts:     make(map[ErrorCategory]int64),
	}
}

// Report records a failure
func (er *ErrorReporter) Report(category ErrorCategory, severity ErrorSeverity, component, message string, err error, context map[string]interface{}) {
	report := &ErrorReport{
		Timestamp: time.Now(),
		Category:  category,
		Severity:  severity,
		Component: component,
		Message:   message,
		Error:     err,
		Context:   context,
	}

	er.logReport(report)

	er.mu.Lock()
	er.history = append(er.history, report)
	if len(er.history) > er.maxHistory {
		er.history = er.history[len(er.history)-er.maxHistory:]
	}
	er.counts[category]++
	er.mu.Unlock()

	er.callbacksMu.RLock()
	callbacks := er.callbacks
	er.callbacksMu.RUnlock()
	for _, cb := range callbacks {
		cb(report)
	}
}

func (er *ErrorReporter) logReport(report *ErrorReport) {
	context := map[string]interface{}{
		"category":  string(report.Category),
		"component": report.Component,
	}
	for k, v := range report.Context {
		context[k] = v
	}

	switch report.Severity {
	case ErrorSeverityHigh:
		er.logger.ErrorWithContext(report.Message, report.Error, context)
	case ErrorSeverityMedium:
		if report.Error != nil {
			context["error"] = report.Error.Error()
		}
		er.logger.WarnWithContext(report.Message, context)
	default:
		if report.Error != nil {
			context["error"] = report.Error.Error()
		}
		er.logger.DebugWithContext(report.Message, context)
	}
}

// OnError registers a callback invoked synchronously for every report.
// Callbacks must not block.
func (er *ErrorReporter) OnError(callback ErrorCallback) {
	er.callbacksMu.Lock()
	defer er.callbacksMu.Unlock()
	er.callbacks = append(er.callbacks, callback)
}

// RecentErrors returns the n most recent reports, oldest first
func (er *ErrorReporter) RecentErrors(n int) []*ErrorReport {
	er.mu.RLock()
	defer er.mu.RUnlock()

	if n > len(er.history) {
		n = len(er.history)
	}
	result := make([]*ErrorReport, n)
	copy(result, er.history[len(er.history)-n:])
	return result
}

// Counts returns the number of reports seen per category since creation
func (er *ErrorReporter) Counts() map[ErrorCategory]int64 {
	er.mu.RLock()
	defer er.mu.RUnlock()

	out := make(map[ErrorCategory]int64, len(er.counts))
	for k, v := range er.counts {
		out[k] = v
	}
	return out
}
