package tesseract

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"jordanella.com/activity-agent/internal/ocr"
)

func TestLanguageList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{"eng"}},
		{"eng", []string{"eng"}},
		{"eng+deu", []string{"eng", "deu"}},
		{" eng + fra ", []string{"eng", "fra"}},
		{"+", []string{"eng"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, languageList(tt.in), "language %q", tt.in)
	}
}

func TestWordBlocksScalesBackToFrame(t *testing.T) {
	words := []word{
		{Text: "func", Confidence: 91, Box: image.Rect(20, 10, 100, 50)},
		{Text: "  ", Confidence: 99, Box: image.Rect(0, 0, 4, 4)},
		{Text: " main() ", Confidence: 140, Box: image.Rect(120, 10, 260, 50)},
		{Text: "?", Confidence: -1, Box: image.Rect(300, 10, 310, 50)},
	}

	blocks := wordBlocks(words, 2)
	if len(blocks) != 3 {
		t.Fatalf("Expected 3 blocks, got %d", len(blocks))
	}

	assert.Equal(t, ocr.TextBlock{Text: "func", Confidence: 0.91, Box: ocr.BoundingBox{X: 10, Y: 5, Width: 40, Height: 20}}, blocks[0])
	assert.Equal(t, "main()", blocks[1].Text)
	assert.Equal(t, 1.0, blocks[1].Confidence)
	assert.Equal(t, ocr.BoundingBox{X: 60, Y: 5, Width: 70, Height: 20}, blocks[1].Box)
	assert.Equal(t, 0.0, blocks[2].Confidence)
}

func TestWordBlocksWithoutScale(t *testing.T) {
	blocks := wordBlocks([]word{{Text: "ok", Confidence: 50, Box: image.Rect(3, 4, 13, 24)}}, 0)
	assert.Equal(t, ocr.BoundingBox{X: 3, Y: 4, Width: 10, Height: 20}, blocks[0].Box)
	assert.Equal(t, 0.5, blocks[0].Confidence)
}
