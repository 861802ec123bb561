//go:build windows
// +build windows

package capture

import (
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"
)

var (
	user32                     = syscall.NewLazyDLL("user32.dll")
	gdi32                      = syscall.NewLazyDLL("gdi32.dll")
	procGetDC                  = user32.NewProc("GetDC")
	procReleaseDC              = user32.NewProc("ReleaseDC")
	procGetClientRect          = user32.NewProc("GetClientRect")
	procGetSystemMetrics       = user32.NewProc("GetSystemMetrics")
	procEnumDisplayMonitors    = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfo         = user32.NewProc("GetMonitorInfoW")
	procCreateCompatibleDC     = gdi32.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap = gdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject           = gdi32.NewProc("SelectObject")
	procBitBlt                 = gdi32.NewProc("BitBlt")
	procDeleteDC               = gdi32.NewProc("DeleteDC")
	procDeleteObject           = gdi32.NewProc("DeleteObject")
	procGetDIBits              = gdi32.NewProc("GetDIBits")
)

const (
	srcCopy        = 0x00CC0020
	captureBlt     = 0x40000000
	biRGB          = 0
	dibRGBColors   = 0
	smXVirtual     = 76
	smYVirtual     = 77
	smCXVirtual    = 78
	smCYVirtual    = 79
	monitorPrimary = 0x00000001
)

type rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type bitmapInfo struct {
	BmiHeader bitmapInfoHeader
	BmiColors [1]uint32
}

type monitorInfoEx struct {
	Size    uint32
	Monitor rect
	Work    rect
	Flags   uint32
	Device  [32]uint16
}

// GDIBackend captures the desktop with BitBlt/GetDIBits. Frames are BGRA,
// the native GDI layout, so no per-pixel conversion happens on capture.
type GDIBackend struct {
	mu sync.Mutex // GDI handles are not shared across concurrent captures
}

// NewPlatformBackend returns the GDI backend
func NewPlatformBackend() Backend {
	return &GDIBackend{}
}

// Available reports whether user32/gdi32 could be loaded
func (g *GDIBackend) Available() bool {
	return user32.Load() == nil && gdi32.Load() == nil
}

// CaptureDesktop captures the whole virtual screen
func (g *GDIBackend) CaptureDesktop() (*Frame, error) {
	x, _, _ := procGetSystemMetrics.Call(smXVirtual)
	y, _, _ := procGetSystemMetrics.Call(smYVirtual)
	w, _, _ := procGetSystemMetrics.Call(smCXVirtual)
	h, _, _ := procGetSystemMetrics.Call(smCYVirtual)

	return g.CaptureRegion(Region{
		X:      int(int32(x)),
		Y:      int(int32(y)),
		Width:  int(int32(w)),
		Height: int(int32(h)),
	})
}

// CaptureMonitor captures one display by its index in Monitors()
func (g *GDIBackend) CaptureMonitor(id int) (*Frame, error) {
	monitors, err := g.Monitors()
	if err != nil {
		return nil, err
	}
	for _, m := range monitors {
		if m.ID == id {
			return g.CaptureRegion(Region{X: m.X, Y: m.Y, Width: m.Width, Height: m.Height})
		}
	}
	return nil, fmt.Errorf("monitor %d not found", id)
}

// CaptureWindow captures the client area of a window
func (g *GDIBackend) CaptureWindow(handle uintptr) (*Frame, error) {
	if handle == 0 {
		return nil, fmt.Errorf("invalid window handle")
	}

	var r rect
	ret, _, err := procGetClientRect.Call(handle, uintptr(unsafe.Pointer(&r)))
	if ret == 0 {
		return nil, fmt.Errorf("failed to get client rect: %v", err)
	}

	return g.blit(handle, Region{Width: int(r.Right - r.Left), Height: int(r.Bottom - r.Top)})
}

// CaptureRegion captures a rectangle of the screen
func (g *GDIBackend) CaptureRegion(region Region) (*Frame, error) {
	return g.blit(0, region)
}

// Monitors enumerates attached displays
func (g *GDIBackend) Monitors() ([]MonitorInfo, error) {
	var monitors []MonitorInfo

	callback := syscall.NewCallback(func(hMonitor, hdc, lprc, lparam uintptr) uintptr {
		var info monitorInfoEx
		info.Size = uint32(unsafe.Sizeof(info))
		if ret, _, _ := procGetMonitorInfo.Call(hMonitor, uintptr(unsafe.Pointer(&info))); ret != 0 {
			monitors = append(monitors, MonitorInfo{
				ID:      len(monitors),
				Name:    syscall.UTF16ToString(info.Device[:]),
				X:       int(info.Monitor.Left),
				Y:       int(info.Monitor.Top),
				Width:   int(info.Monitor.Right - info.Monitor.Left),
				Height:  int(info.Monitor.Bottom - info.Monitor.Top),
				Primary: info.Flags&monitorPrimary != 0,
			})
		}
		return 1
	})

	ret, _, err := procEnumDisplayMonitors.Call(0, 0, callback, 0)
	if ret == 0 {
		return nil, fmt.Errorf("EnumDisplayMonitors failed: %v", err)
	}
	return monitors, nil
}

// blit copies a rectangle from the DC of hwnd (0 for the screen) into a BGRA frame
func (g *GDIBackend) blit(hwnd uintptr, region Region) (*Frame, error) {
	if region.Empty() {
		return nil, fmt.Errorf("invalid capture dimensions: %dx%d", region.Width, region.Height)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	hdcSrc, _, err := procGetDC.Call(hwnd)
	if hdcSrc == 0 {
		return nil, fmt.Errorf("failed to get DC: %v", err)
	}
	defer procReleaseDC.Call(hwnd, hdcSrc)

	hdcMem, _, err := procCreateCompatibleDC.Call(hdcSrc)
	if hdcMem == 0 {
		return nil, fmt.Errorf("failed to create compatible DC: %v", err)
	}
	defer procDeleteDC.Call(hdcMem)

	hBitmap, _, err := procCreateCompatibleBitmap.Call(hdcSrc, uintptr(region.Width), uintptr(region.Height))
	if hBitmap == 0 {
		return nil, fmt.Errorf("failed to create compatible bitmap: %v", err)
	}
	defer procDeleteObject.Call(hBitmap)

	_, _, _ = procSelectObject.Call(hdcMem, hBitmap)

	ret, _, err := procBitBlt.Call(
		hdcMem,
		0, 0,
		uintptr(region.Width), uintptr(region.Height),
		hdcSrc,
		uintptr(region.X), uintptr(region.Y),
		srcCopy|captureBlt,
	)
	if ret == 0 {
		return nil, fmt.Errorf("BitBlt failed: %v", err)
	}

	var bi bitmapInfo
	bi.BmiHeader.Size = uint32(unsafe.Sizeof(bi.BmiHeader))
	bi.BmiHeader.Width = int32(region.Width)
	bi.BmiHeader.Height = -int32(region.Height) // top-down
	bi.BmiHeader.Planes = 1
	bi.BmiHeader.BitCount = 32
	bi.BmiHeader.Compression = biRGB

	frame := NewFrame(region.Width, region.Height, FormatBGRA)

	ret, _, err = procGetDIBits.Call(
		hdcMem,
		hBitmap,
		0,
		uintptr(region.Height),
		uintptr(unsafe.Pointer(&frame.Pix[0])),
		uintptr(unsafe.Pointer(&bi)),
		dibRGBColors,
	)
	if ret == 0 {
		return nil, fmt.Errorf("GetDIBits failed: %v", err)
	}

	frame.CapturedAt = time.Now()
	return frame, nil
}
