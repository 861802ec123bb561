package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"jordanella.com/activity-agent/internal/classifier"
)

const analysisColumns = `
	id, analyzed_at, title, application, engine, extracted_text, keywords,
	content_type, work_category, priority, is_productive, is_focused_work,
	requires_attention, distraction_level, classification_confidence,
	priority_confidence, category_confidence, duration_ms`

// RecentAnalyses returns the newest limit analyses, oldest first
func (s *Store) RecentAnalyses(ctx context.Context, limit int) ([]classifier.ContentAnalysis, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT `+analysisColumns+`
		FROM ai_analyses
		ORDER BY analyzed_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent analyses: %w", err)
	}
	out, err := scanAnalyses(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// AnalysesSince returns analyses made at or after t, oldest first
func (s *Store) AnalysesSince(ctx context.Context, t time.Time) ([]classifier.ContentAnalysis, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT `+analysisColumns+`
		FROM ai_analyses
		WHERE analyzed_at >= ?
		ORDER BY analyzed_at ASC, rowid ASC
	`, t.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	return scanAnalyses(rows)
}

// DailyActivity is one row of the daily rollup
type DailyActivity struct {
	Day         string
	ContentType classifier.ContentType
	Activities  int
	Productive  int
	Focused     int
}

// DailySummary returns the per-day, per-content-type rollup for the last
// days days, newest day first
func (s *Store) DailySummary(ctx context.Context, days int) ([]DailyActivity, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT day, content_type, activities, productive, focused
		FROM daily_activity
		WHERE day >= ?
		ORDER BY day DESC, activities DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily activity: %w", err)
	}
	defer rows.Close()

	var out []DailyActivity
	for rows.Next() {
		var d DailyActivity
		var ct string
		if err := rows.Scan(&d.Day, &ct, &d.Activities, &d.Productive, &d.Focused); err != nil {
			return nil, fmt.Errorf("failed to scan daily activity: %w", err)
		}
		d.ContentType = classifier.ParseContentType(ct)
		out = append(out, d)
	}
	return out, rows.Err()
}

// PruneBefore deletes rows older than t from every table and returns the
// number of rows removed
func (s *Store) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	cutoff := t.UTC()
	var removed int64
	err := s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		for _, t := range recordTables {
			res, err := tx.ExecContext(ctx, "DELETE FROM "+t.name+" WHERE "+t.timeColumn+" < ?", cutoff)
			if err != nil {
				return fmt.Errorf("failed to prune %s: %w", t.name, err)
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		return nil
	})
	return removed, err
}

func scanAnalyses(rows *sql.Rows) ([]classifier.ContentAnalysis, error) {
	defer rows.Close()

	var out []classifier.ContentAnalysis
	for rows.Next() {
		var (
			a                                  classifier.ContentAnalysis
			title, app, engine, text, keywords sql.NullString
			contentType, category              string
			priority                           int
			classConf, prioConf, catConf       sql.NullFloat64
			durationMs                         sql.NullInt64
		)
		err := rows.Scan(&a.ID, &a.Timestamp, &title, &app, &engine, &text, &keywords,
			&contentType, &category, &priority, &a.IsProductive, &a.IsFocusedWork,
			&a.RequiresAttention, &a.DistractionLevel, &classConf, &prioConf, &catConf, &durationMs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}

		a.Title = title.String
		a.Application = app.String
		a.Engine = engine.String
		a.ExtractedText = text.String
		if keywords.Valid && keywords.String != "" {
			if err := json.Unmarshal([]byte(keywords.String), &a.Keywords); err != nil {
				return nil, fmt.Errorf("failed to unmarshal keywords of %s: %w", a.ID, err)
			}
		}
		a.ContentType = classifier.ParseContentType(contentType)
		a.WorkCategory = classifier.ParseWorkCategory(category)
		a.Priority = classifier.Priority(priority)
		a.ClassificationConfidence = classConf.Float64
		a.PriorityConfidence = prioConf.Float64
		a.CategoryConfidence = catConf.Float64
		a.Duration = time.Duration(durationMs.Int64) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}
