//go:build !windows
// +build !windows

package capture

// NewPlatformBackend returns a backend that reports itself unavailable.
// Screen capture is only implemented for Windows.
func NewPlatformBackend() Backend {
	return unavailableBackend{}
}
