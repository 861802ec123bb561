package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/nfnt/resize"
	"jordanella.com/activity-agent/internal/capture"
)

// Frames narrower than this are upscaled before recognition
const minRecognitionWidth = 800

// Preprocess converts a frame to a contrast-stretched grayscale image,
// upscaling small captures so glyphs are large enough to recognize.
// It returns the image and the scale factor applied to coordinates.
func Preprocess(frame *capture.Frame) (image.Image, float64) {
	gray := image.NewGray(image.Rect(0, 0, frame.Width, frame.Height))

	lo, hi := uint8(255), uint8(0)
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			r, g, b := frame.RGB(x, y)
			l := uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
			gray.Pix[y*gray.Stride+x] = l
			if l < lo {
				lo = l
			}
			if l > hi {
				hi = l
			}
		}
	}

	if hi > lo {
		span := int(hi - lo)
		for i, v := range gray.Pix {
			gray.Pix[i] = uint8(int(v-lo) * 255 / span)
		}
	}

	if frame.Width >= minRecognitionWidth {
		return gray, 1
	}
	scale := 2.0
	return resize.Resize(uint(float64(frame.Width)*scale), 0, gray, resize.Lanczos3), scale
}

// EncodePNG encodes the frame (optionally preprocessed) as PNG
func EncodePNG(frame *capture.Frame, preprocess bool) ([]byte, float64, error) {
	var (
		img   image.Image = frame.ToRGBA()
		scale             = 1.0
	)
	if preprocess {
		img, scale = Preprocess(frame)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, 0, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), scale, nil
}
