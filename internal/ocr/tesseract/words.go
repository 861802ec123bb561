package tesseract

import (
	"image"
	"strings"

	"jordanella.com/activity-agent/internal/ocr"
)

// word is one recognized word as tesseract reports it: confidence in
// percent, box in the coordinates of the (possibly upscaled) image
type word struct {
	Text       string
	Confidence float64
	Box        image.Rectangle
}

// languageList splits "eng+deu" into tesseract language codes
func languageList(lang string) []string {
	var langs []string
	for _, l := range strings.Split(lang, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		return []string{"eng"}
	}
	return langs
}

// wordBlocks converts words into text blocks in frame coordinates. scale
// is the factor the image was enlarged by before recognition.
func wordBlocks(words []word, scale float64) []ocr.TextBlock {
	if scale <= 0 {
		scale = 1
	}
	blocks := make([]ocr.TextBlock, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		blocks = append(blocks, ocr.TextBlock{
			Text:       text,
			Confidence: percentToUnit(w.Confidence),
			Box:        scaleBox(w.Box, scale),
		})
	}
	return blocks
}

func percentToUnit(pct float64) float64 {
	switch {
	case pct <= 0:
		return 0
	case pct >= 100:
		return 1
	default:
		return pct / 100
	}
}

func scaleBox(r image.Rectangle, scale float64) ocr.BoundingBox {
	return ocr.BoundingBox{
		X:      int(float64(r.Min.X) / scale),
		Y:      int(float64(r.Min.Y) / scale),
		Width:  int(float64(r.Dx()) / scale),
		Height: int(float64(r.Dy()) / scale),
	}
}
