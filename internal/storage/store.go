package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/nfnt/resize"
	"jordanella.com/activity-agent/internal/capture"
	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/ocr"
	"jordanella.com/activity-agent/internal/window"
)

// Options controls what the store keeps
type Options struct {
	Thumbnails     bool // store a PNG thumbnail with each capture
	ThumbnailWidth uint // thumbnail width in pixels; height keeps the aspect ratio
	StoreText      bool // keep OCR text; when false only metadata is stored
}

// DefaultOptions returns the default store options
func DefaultOptions() Options {
	return Options{
		Thumbnails:     false,
		ThumbnailWidth: 320,
		StoreText:      true,
	}
}

// Store is the SQLite storage sink for the pipeline
type Store struct {
	db   *DB
	opts Options
}

// NewStore creates a store over an open, migrated database
func NewStore(db *DB, opts Options) *Store {
	if opts.ThumbnailWidth == 0 {
		opts.ThumbnailWidth = DefaultOptions().ThumbnailWidth
	}
	return &Store{db: db, opts: opts}
}

// DB returns the underlying database
func (s *Store) DB() *DB {
	return s.db
}

// StoreWindowEvent records a window focus change
func (s *Store) StoreWindowEvent(ctx context.Context, ev window.WindowEvent) error {
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	w := ev.Window
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO window_events (
				event_type, handle, title, process_name, process_id,
				x, y, width, height, occurred_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, ev.Type.String(), int64(w.Handle), w.Title, w.ProcessName, w.ProcessID,
			w.X, w.Y, w.Width, w.Height, at.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert window event: %w", err)
		}
		return nil
	})
}

// StoreScreenCapture records capture metadata and, if enabled, a thumbnail
func (s *Store) StoreScreenCapture(ctx context.Context, frame *capture.Frame, win window.WindowInfo) error {
	if !frame.Valid() {
		return capture.ErrInvalidFrame
	}

	var thumb []byte
	if s.opts.Thumbnails {
		var err error
		if thumb, err = Thumbnail(frame, s.opts.ThumbnailWidth); err != nil {
			return err
		}
	}

	at := frame.CapturedAt
	if at.IsZero() {
		at = time.Now()
	}
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO screen_captures (
				window_title, process_name, width, height, pixel_format,
				size_bytes, fingerprint, thumbnail, captured_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, win.Title, win.ProcessName, frame.Width, frame.Height, frame.Format.String(),
			frame.SizeBytes(), capture.Hash(frame).String(), thumb, at.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert screen capture: %w", err)
		}
		return nil
	})
}

// StoreOCRResult records extracted text
func (s *Store) StoreOCRResult(ctx context.Context, doc *ocr.Document, win window.WindowInfo) error {
	text := ""
	if s.opts.StoreText {
		text = doc.Text()
	}
	at := doc.CapturedAt
	if at.IsZero() {
		at = time.Now()
	}
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO ocr_results (
				window_title, process_name, engine, text, block_count,
				confidence, duration_ms, captured_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, win.Title, win.ProcessName, doc.Engine.String(), text, doc.Len(),
			doc.Confidence(), doc.Duration.Milliseconds(), at.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert OCR result: %w", err)
		}
		return nil
	})
}

// StoreAIAnalysis records a classification. Storing the same ID twice
// replaces the earlier row.
func (s *Store) StoreAIAnalysis(ctx context.Context, a classifier.ContentAnalysis) error {
	if a.ID == "" {
		return fmt.Errorf("analysis has no ID")
	}
	keywords, err := json.Marshal(a.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	text := ""
	if s.opts.StoreText {
		text = a.ExtractedText
	}
	at := a.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO ai_analyses (
				id, analyzed_at, title, application, engine, extracted_text, keywords,
				content_type, work_category, priority, is_productive, is_focused_work,
				requires_attention, distraction_level, classification_confidence,
				priority_confidence, category_confidence, duration_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, at.UTC(), a.Title, a.Application, a.Engine, text, string(keywords),
			a.ContentType.String(), a.WorkCategory.String(), int(a.Priority), a.IsProductive, a.IsFocusedWork,
			a.RequiresAttention, a.DistractionLevel, a.ClassificationConfidence,
			a.PriorityConfidence, a.CategoryConfidence, a.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to insert analysis: %w", err)
		}
		return nil
	})
}

// Thumbnail downsizes a frame to the given width and encodes it as PNG
func Thumbnail(frame *capture.Frame, width uint) ([]byte, error) {
	if !frame.Valid() {
		return nil, capture.ErrInvalidFrame
	}
	if width == 0 || int(width) > frame.Width {
		width = uint(frame.Width)
	}
	img := resize.Resize(width, 0, frame.ToRGBA(), resize.Bilinear)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
