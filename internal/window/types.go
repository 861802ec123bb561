package window

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoActiveWindow is returned when no window currently has focus
var ErrNoActiveWindow = errors.New("no active window")

// WindowInfo describes a top-level window
type WindowInfo struct {
	Handle      uintptr
	Title       string
	ProcessName string
	ProcessID   uint32
	X           int
	Y           int
	Width       int
	Height      int
	Visible     bool
}

// String returns a short description for logs
func (w WindowInfo) String() string {
	return fmt.Sprintf("%q (%s pid=%d)", w.Title, w.ProcessName, w.ProcessID)
}

// EventType identifies window events
type EventType int

const (
	EventFocused EventType = iota
	EventTitleChanged
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventFocused:
		return "FOCUSED"
	case EventTitleChanged:
		return "TITLE_CHANGED"
	case EventClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// WindowEvent is emitted by a Source
type WindowEvent struct {
	Type      EventType
	Window    WindowInfo
	Timestamp time.Time
}

// EventHandler receives window events. Handlers run on the source's
// goroutine and must return quickly.
type EventHandler func(WindowEvent)

// Source produces window focus events
type Source interface {
	Start(ctx context.Context) error
	Stop()
	OnEvent(handler EventHandler)
	ActiveWindow() (WindowInfo, error)
}

// Provider queries the platform for the foreground window
type Provider interface {
	ForegroundWindow() (WindowInfo, error)
	// IsWindow reports whether the handle still refers to a live window
	IsWindow(handle uintptr) bool
}
