package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jordanella.com/activity-agent/internal/classifier"
	"jordanella.com/activity-agent/internal/storage"
)

func seed(t *testing.T, path string, n int) {
	t.Helper()
	db, err := storage.Open(path, nil)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.RunMigrations())

	store := storage.NewStore(db, storage.DefaultOptions())
	base := time.Now().Add(-30 * time.Minute)
	for i := 0; i < n; i++ {
		require.NoError(t, store.StoreAIAnalysis(context.Background(), classifier.ContentAnalysis{
			ID:                       fmt.Sprintf("a%d", i),
			Timestamp:                base.Add(time.Duration(i) * time.Minute),
			Title:                    "main.go - VS Code",
			Application:              "Code.exe",
			Engine:                   "heuristic",
			ContentType:              classifier.ContentCode,
			WorkCategory:             classifier.CategoryFocusedWork,
			Priority:                 classifier.PriorityMedium,
			IsProductive:             true,
			IsFocusedWork:            true,
			DistractionLevel:         1,
			ClassificationConfidence: 0.8,
		}))
	}
}

func TestReportPrintsAnalytics(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "activity.db")
	seed(t, dbPath, 6)

	var out bytes.Buffer
	err := run([]string{"--config", filepath.Join(dir, "missing.ini"), "--db", dbPath, "--limit", "10"}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Activities analysed: 6")
	assert.Contains(t, text, "Productivity score:  100/100")
	assert.Contains(t, text, classifier.FocusedOnPattern(classifier.ContentCode))
	assert.Contains(t, text, "Likely next:         CODE")
	assert.Contains(t, text, "DAY")
}

func TestReportSinceWindow(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "activity.db")
	seed(t, dbPath, 3)

	var out bytes.Buffer
	err := run([]string{"--config", filepath.Join(dir, "missing.ini"), "--db", dbPath, "--since", "1m", "--days", "0"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Activities analysed: 0")
	assert.NotContains(t, out.String(), "DAY")
}

func TestReportMissingDatabase(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	err := run([]string{"--config", filepath.Join(dir, "missing.ini"), "--db", filepath.Join(dir, "none.db")}, &out)
	assert.Error(t, err)
}
