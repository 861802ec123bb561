//go:build windows
// +build windows

package window

import (
	"fmt"
	"path/filepath"
	"syscall"
	"unsafe"
)

var (
	user32                         = syscall.NewLazyDLL("user32.dll")
	kernel32                       = syscall.NewLazyDLL("kernel32.dll")
	procGetForegroundWindow        = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW             = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW       = user32.NewProc("GetWindowTextLengthW")
	procGetWindowThreadProcessID   = user32.NewProc("GetWindowThreadProcessId")
	procGetWindowRect              = user32.NewProc("GetWindowRect")
	procIsWindowVisible            = user32.NewProc("IsWindowVisible")
	procIsWindow                   = user32.NewProc("IsWindow")
	procOpenProcess                = kernel32.NewProc("OpenProcess")
	procCloseHandle                = kernel32.NewProc("CloseHandle")
	procQueryFullProcessImageNameW = kernel32.NewProc("QueryFullProcessImageNameW")
)

const processQueryLimitedInformation = 0x1000

type rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

// Win32Provider reads the foreground window through user32
type Win32Provider struct{}

// NewPlatformProvider returns the user32 provider
func NewPlatformProvider() Provider {
	return Win32Provider{}
}

// ForegroundWindow describes the window that currently has focus
func (Win32Provider) ForegroundWindow() (WindowInfo, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return WindowInfo{}, ErrNoActiveWindow
	}

	info := WindowInfo{
		Handle: hwnd,
		Title:  windowText(hwnd),
	}

	var pid uint32
	procGetWindowThreadProcessID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	info.ProcessID = pid
	info.ProcessName = processName(pid)

	var r rect
	if ret, _, err := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r))); ret == 0 {
		return info, fmt.Errorf("failed to get window rect: %v", err)
	}
	info.X = int(r.Left)
	info.Y = int(r.Top)
	info.Width = int(r.Right - r.Left)
	info.Height = int(r.Bottom - r.Top)

	visible, _, _ := procIsWindowVisible.Call(hwnd)
	info.Visible = visible != 0

	return info, nil
}

// IsWindow reports whether the handle is still valid
func (Win32Provider) IsWindow(handle uintptr) bool {
	ret, _, _ := procIsWindow.Call(handle)
	return ret != 0
}

func windowText(hwnd uintptr) string {
	n, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return syscall.UTF16ToString(buf)
}

func processName(pid uint32) string {
	if pid == 0 {
		return ""
	}
	h, _, _ := procOpenProcess.Call(processQueryLimitedInformation, 0, uintptr(pid))
	if h == 0 {
		return ""
	}
	defer procCloseHandle.Call(h)

	buf := make([]uint16, syscall.MAX_PATH)
	size := uint32(len(buf))
	ret, _, _ := procQueryFullProcessImageNameW.Call(h, 0, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if ret == 0 {
		return ""
	}
	return filepath.Base(syscall.UTF16ToString(buf[:size]))
}
