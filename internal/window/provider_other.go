//go:build !windows
// +build !windows

package window

type noopProvider struct{}

// NewPlatformProvider returns a provider that never reports a foreground
// window. Window tracking is only implemented for Windows.
func NewPlatformProvider() Provider {
	return noopProvider{}
}

func (noopProvider) ForegroundWindow() (WindowInfo, error) { return WindowInfo{}, ErrNoActiveWindow }
func (noopProvider) IsWindow(uintptr) bool                 { return false }
