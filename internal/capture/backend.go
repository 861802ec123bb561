package capture

import (
	"errors"
	"image"
)

// ErrBackendUnavailable is returned when no capture backend works on this host
var ErrBackendUnavailable = errors.New("capture backend unavailable")

// Region is a rectangle in screen coordinates
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Rect converts the region to an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty reports whether the region has no area
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// MonitorInfo describes one display
type MonitorInfo struct {
	ID      int
	Name    string
	X       int
	Y       int
	Width   int
	Height  int
	Primary bool
}

// Backend captures pixels from the desktop. Implementations are platform
// specific (GDI on Windows); the scheduler and orchestrator only see this.
type Backend interface {
	// Available reports whether the backend can capture on this host
	Available() bool
	CaptureDesktop() (*Frame, error)
	CaptureMonitor(id int) (*Frame, error)
	CaptureWindow(handle uintptr) (*Frame, error)
	CaptureRegion(r Region) (*Frame, error)
	Monitors() ([]MonitorInfo, error)
}

// unavailableBackend is returned on platforms without a capture implementation
type unavailableBackend struct{}

func (unavailableBackend) Available() bool                       { return false }
func (unavailableBackend) CaptureDesktop() (*Frame, error)       { return nil, ErrBackendUnavailable }
func (unavailableBackend) CaptureMonitor(int) (*Frame, error)    { return nil, ErrBackendUnavailable }
func (unavailableBackend) CaptureWindow(uintptr) (*Frame, error) { return nil, ErrBackendUnavailable }
func (unavailableBackend) CaptureRegion(Region) (*Frame, error)  { return nil, ErrBackendUnavailable }
func (unavailableBackend) Monitors() ([]MonitorInfo, error)      { return nil, ErrBackendUnavailable }
