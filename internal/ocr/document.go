package ocr

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// LineTolerance is the vertical distance in pixels within which two blocks
// are read as part of the same line
const LineTolerance = 20

// BoundingBox locates a text block on the frame
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// TextBlock is one recognized run of text
type TextBlock struct {
	Text       string
	Confidence float64 // 0.0-1.0
	Box        BoundingBox
}

// Document is the result of one OCR pass. Blocks are only changed through
// SetBlocks/AddBlock so that Confidence and the ordered text stay consistent.
type Document struct {
	blocks     []TextBlock
	confidence float64

	Duration   time.Duration
	CapturedAt time.Time
	Engine     EngineKind

	textOnce sync.Once
	text     string
}

// NewDocument creates a document from blocks
func NewDocument(blocks []TextBlock) *Document {
	d := &Document{}
	d.SetBlocks(blocks)
	return d
}

// Blocks returns a copy of the document's blocks
func (d *Document) Blocks() []TextBlock {
	if d == nil {
		return nil
	}
	out := make([]TextBlock, len(d.blocks))
	copy(out, d.blocks)
	return out
}

// Len returns the number of blocks
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.blocks)
}

// Empty reports whether no text was found
func (d *Document) Empty() bool {
	return d.Len() == 0
}

// SetBlocks replaces all blocks
func (d *Document) SetBlocks(blocks []TextBlock) {
	d.blocks = make([]TextBlock, len(blocks))
	copy(d.blocks, blocks)
	d.invalidate()
}

// AddBlock appends one block
func (d *Document) AddBlock(b TextBlock) {
	d.blocks = append(d.blocks, b)
	d.invalidate()
}

// Confidence is the mean block confidence, 0 for an empty document
func (d *Document) Confidence() float64 {
	if d == nil {
		return 0
	}
	return d.confidence
}

// Text returns the blocks in reading order: top to bottom, then left to
// right within a line. Blocks within one line are joined by a space and
// lines by a newline.
func (d *Document) Text() string {
	if d == nil {
		return ""
	}
	d.textOnce.Do(func() {
		d.text = OrderText(d.blocks)
	})
	return d.text
}

func (d *Document) invalidate() {
	d.textOnce = sync.Once{}
	d.text = ""

	if len(d.blocks) == 0 {
		d.confidence = 0
		return
	}
	var sum float64
	for _, b := range d.blocks {
		sum += b.Confidence
	}
	d.confidence = sum / float64(len(d.blocks))
}

// OrderText computes reading-order text from blocks
func OrderText(blocks []TextBlock) string {
	if len(blocks) == 0 {
		return ""
	}

	sorted := make([]TextBlock, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Box.Y != sorted[j].Box.Y {
			return sorted[i].Box.Y < sorted[j].Box.Y
		}
		return sorted[i].Box.X < sorted[j].Box.X
	})

	var lines [][]TextBlock
	lineY := 0
	for _, b := range sorted {
		if len(lines) > 0 && math.Abs(float64(b.Box.Y-lineY)) <= LineTolerance {
			lines[len(lines)-1] = append(lines[len(lines)-1], b)
			continue
		}
		lines = append(lines, []TextBlock{b})
		lineY = b.Box.Y
	}

	var sb strings.Builder
	for i, line := range lines {
		sort.SliceStable(line, func(a, b int) bool { return line[a].Box.X < line[b].Box.X })
		if i > 0 {
			sb.WriteByte('\n')
		}
		first := true
		for _, b := range line {
			t := strings.TrimSpace(b.Text)
			if t == "" {
				continue
			}
			if !first {
				sb.WriteByte(' ')
			}
			sb.WriteString(t)
			first = false
		}
	}
	return sb.String()
}
