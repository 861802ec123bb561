// Package history keeps the most recent content analyses in memory.
package history

import (
	"sync"

	"jordanella.com/activity-agent/internal/classifier"
)

// DefaultCapacity is used when New is given a non-positive capacity
const DefaultCapacity = 50

// History is a bounded, thread-safe ring of analyses. Entries are kept in
// append order, which is the order analyses completed in, not the order
// their frames were captured in. When full, the oldest entry is evicted.
type History struct {
	mu    sync.RWMutex
	buf   []classifier.ContentAnalysis
	start int
	count int
}

// New creates a history holding at most capacity entries
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{buf: make([]classifier.ContentAnalysis, capacity)}
}

// Append adds an analysis, evicting the oldest when full
func (h *History) Append(a classifier.ContentAnalysis) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count < len(h.buf) {
		h.buf[(h.start+h.count)%len(h.buf)] = a
		h.count++
		return
	}
	h.buf[h.start] = a
	h.start = (h.start + 1) % len(h.buf)
}

// Snapshot returns a copy of all entries, oldest first
func (h *History) Snapshot() []classifier.ContentAnalysis {
	return h.Latest(-1)
}

// Latest returns up to n of the newest entries, oldest first. A negative n
// returns everything.
func (h *History) Latest(n int) []classifier.ContentAnalysis {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n < 0 || n > h.count {
		n = h.count
	}
	out := make([]classifier.ContentAnalysis, n)
	skip := h.count - n
	for i := 0; i < n; i++ {
		out[i] = h.buf[(h.start+skip+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of entries held
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Capacity returns the maximum number of entries
func (h *History) Capacity() int {
	return len(h.buf)
}

// Clear removes every entry
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.buf {
		h.buf[i] = classifier.ContentAnalysis{}
	}
	h.start = 0
	h.count = 0
}
