package capture

import (
	"errors"
	"image"
	"image/draw"
	"time"
)

// ErrInvalidFrame is returned for frames with zero dimensions or a short buffer
var ErrInvalidFrame = errors.New("invalid frame")

// PixelFormat describes the byte layout of a frame's pixel buffer
type PixelFormat int

const (
	FormatRGBA PixelFormat = iota
	FormatRGB
	FormatBGRA // GDI/DXGI native layout
	FormatGray
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA:
		return "RGBA"
	case FormatRGB:
		return "RGB"
	case FormatBGRA:
		return "BGRA"
	case FormatGray:
		return "GRAY"
	default:
		return "UNKNOWN"
	}
}

// BytesPerPixel returns the pixel size for the format
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB:
		return 3
	case FormatGray:
		return 1
	default:
		return 4
	}
}

// Frame is one captured screen image
type Frame struct {
	Width         int
	Height        int
	Stride        int
	BytesPerPixel int
	Pix           []byte
	Format        PixelFormat
	CapturedAt    time.Time
}

// NewFrame allocates a zeroed, tightly packed frame
func NewFrame(width, height int, format PixelFormat) *Frame {
	bpp := format.BytesPerPixel()
	return &Frame{
		Width:         width,
		Height:        height,
		Stride:        width * bpp,
		BytesPerPixel: bpp,
		Pix:           make([]byte, width*height*bpp),
		Format:        format,
		CapturedAt:    time.Now(),
	}
}

// Valid reports whether the frame can be consumed
func (f *Frame) Valid() bool {
	if f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Pix) == 0 {
		return false
	}
	if f.BytesPerPixel <= 0 || f.Stride < f.Width*f.BytesPerPixel {
		return false
	}
	return len(f.Pix) >= f.Height*f.Stride
}

// SizeBytes returns the raw pixel buffer size
func (f *Frame) SizeBytes() int {
	if f == nil {
		return 0
	}
	return len(f.Pix)
}

// RGB returns the color at (x, y). The caller guarantees bounds.
func (f *Frame) RGB(x, y int) (r, g, b uint8) {
	i := y*f.Stride + x*f.BytesPerPixel
	switch f.Format {
	case FormatGray:
		v := f.Pix[i]
		return v, v, v
	case FormatBGRA:
		return f.Pix[i+2], f.Pix[i+1], f.Pix[i]
	default:
		return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
	}
}

// ToRGBA converts the frame into an *image.RGBA. RGBA frames with a packed
// stride share the pixel buffer.
func (f *Frame) ToRGBA() *image.RGBA {
	if !f.Valid() {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}

	if f.Format == FormatRGBA {
		return &image.RGBA{
			Pix:    f.Pix,
			Stride: f.Stride,
			Rect:   image.Rect(0, 0, f.Width, f.Height),
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.RGB(x, y)
			o := y*img.Stride + x*4
			img.Pix[o] = r
			img.Pix[o+1] = g
			img.Pix[o+2] = b
			img.Pix[o+3] = 0xff
		}
	}
	return img
}

// Crop returns a copy of the given region, clipped to the frame bounds
func (f *Frame) Crop(r Region) (*Frame, error) {
	if !f.Valid() {
		return nil, ErrInvalidFrame
	}

	rect := r.Rect().Intersect(image.Rect(0, 0, f.Width, f.Height))
	if rect.Empty() {
		return nil, ErrInvalidFrame
	}

	out := &Frame{
		Width:         rect.Dx(),
		Height:        rect.Dy(),
		BytesPerPixel: f.BytesPerPixel,
		Stride:        rect.Dx() * f.BytesPerPixel,
		Format:        f.Format,
		CapturedAt:    f.CapturedAt,
	}
	out.Pix = make([]byte, out.Height*out.Stride)
	for y := 0; y < out.Height; y++ {
		src := (rect.Min.Y+y)*f.Stride + rect.Min.X*f.BytesPerPixel
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], f.Pix[src:src+out.Stride])
	}
	return out, nil
}

// FrameFromRGBA wraps an RGBA image as a frame without copying
func FrameFromRGBA(img *image.RGBA, capturedAt time.Time) *Frame {
	b := img.Bounds()
	if b.Min != (image.Point{}) {
		img = img.SubImage(b).(*image.RGBA)
		shifted := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(shifted, shifted.Bounds(), img, b.Min, draw.Src)
		img = shifted
	}
	return &Frame{
		Width:         img.Rect.Dx(),
		Height:        img.Rect.Dy(),
		Stride:        img.Stride,
		BytesPerPixel: 4,
		Pix:           img.Pix,
		Format:        FormatRGBA,
		CapturedAt:    capturedAt,
	}
}

// FrameFromImage converts any image into an RGBA frame
func FrameFromImage(img image.Image) *Frame {
	if rgba, ok := img.(*image.RGBA); ok {
		return FrameFromRGBA(rgba, time.Now())
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return FrameFromRGBA(rgba, time.Now())
}
