package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"jordanella.com/activity-agent/internal/classifier"
)

func entry(i int) classifier.ContentAnalysis {
	return classifier.ContentAnalysis{ID: fmt.Sprintf("a%d", i)}
}

func ids(as []classifier.ContentAnalysis) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

func TestHistoryDefaultCapacity(t *testing.T) {
	h := New(0)
	if h.Capacity() != DefaultCapacity {
		t.Errorf("Expected capacity %d, got %d", DefaultCapacity, h.Capacity())
	}
	if h.Len() != 0 {
		t.Errorf("Expected empty history, got %d entries", h.Len())
	}
	assert.Empty(t, h.Snapshot())
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := New(3)
	for i := 1; i <= 5; i++ {
		h.Append(entry(i))
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []string{"a3", "a4", "a5"}, ids(h.Snapshot()))
	assert.Equal(t, []string{"a4", "a5"}, ids(h.Latest(2)))
	assert.Equal(t, []string{"a3", "a4", "a5"}, ids(h.Latest(10)))
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	h := New(2)
	h.Append(entry(1))

	snap := h.Snapshot()
	snap[0].ID = "changed"

	assert.Equal(t, "a1", h.Snapshot()[0].ID)
}

func TestHistoryClear(t *testing.T) {
	h := New(2)
	h.Append(entry(1))
	h.Append(entry(2))
	h.Append(entry(3))
	h.Clear()

	assert.Equal(t, 0, h.Len())
	h.Append(entry(4))
	assert.Equal(t, []string{"a4"}, ids(h.Snapshot()))
}

func TestHistoryConcurrentAppend(t *testing.T) {
	h := New(50)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Append(entry(w*100 + i))
				_ = h.Latest(5)
			}
		}(w)
	}
	wg.Wait()

	if h.Len() != 50 {
		t.Errorf("Expected 50 entries, got %d", h.Len())
	}
}
