// Package results holds the segment list produced by a completed workflow.
package results

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/pavelanni/lecturequiz/internal/model"
)

// Model is a read-mostly holder for processed segments.
type Model struct {
	mu       sync.RWMutex
	segments []model.Segment
}

// New creates an empty model.
func New() *Model {
	return &Model{}
}

// Set replaces the stored segments. Segments whose end precedes their start
// are logged and skipped. It returns the number of segments kept.
func (m *Model) Set(segments []model.Segment) int {
	kept := make([]model.Segment, 0, len(segments))
	for _, s := range segments {
		if s.EndTime < s.StartTime {
			slog.Warn("skipping malformed segment",
				"segment_id", s.ID, "start", s.StartTime, "end", s.EndTime)
			continue
		}
		kept = append(kept, s)
	}

	m.mu.Lock()
	m.segments = kept
	m.mu.Unlock()
	return len(kept)
}

// Get returns a copy of the stored segments in order.
func (m *Model) Get() []model.Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.segments)
}

// Find returns the segment with the given id.
func (m *Model) Find(id model.ObjectID) (model.Segment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.segments {
		if s.ID == id {
			return s, true
		}
	}
	return model.Segment{}, false
}

// Len returns the number of stored segments.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.segments)
}
