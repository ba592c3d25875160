// Package history keeps undo snapshots of a session's pathway graph.
package history

import "github.com/rendis/pathway/pkg/schema"

// Stack is a linear, undo-only history of immutable graph snapshots.
// There is no redo: popping discards the snapshot. A Stack is owned by a
// single session and is not safe for concurrent use.
type Stack struct {
	snapshots []*schema.Graph
	capacity  int
}

// New creates a Stack. capacity bounds the number of retained snapshots;
// when full, the oldest snapshot is dropped. 0 means unbounded.
func New(capacity int) *Stack {
	if capacity < 0 {
		capacity = 0
	}
	return &Stack{capacity: capacity}
}

// Push records a deep copy of g as the most recent snapshot. nil is ignored.
func (s *Stack) Push(g *schema.Graph) {
	if g == nil {
		return
	}
	if s.capacity > 0 && len(s.snapshots) == s.capacity {
		copy(s.snapshots, s.snapshots[1:])
		s.snapshots[len(s.snapshots)-1] = nil
		s.snapshots = s.snapshots[:len(s.snapshots)-1]
	}
	s.snapshots = append(s.snapshots, g.Clone())
}

// Pop removes and returns the most recent snapshot.
func (s *Stack) Pop() (*schema.Graph, bool) {
	n := len(s.snapshots)
	if n == 0 {
		return nil, false
	}
	g := s.snapshots[n-1]
	s.snapshots[n-1] = nil
	s.snapshots = s.snapshots[:n-1]
	return g, true
}

// Peek returns the most recent snapshot without removing it.
func (s *Stack) Peek() (*schema.Graph, bool) {
	if len(s.snapshots) == 0 {
		return nil, false
	}
	return s.snapshots[len(s.snapshots)-1], true
}

// Depth returns the number of snapshots.
func (s *Stack) Depth() int {
	return len(s.snapshots)
}

// Capacity returns the configured bound, 0 when unbounded.
func (s *Stack) Capacity() int {
	return s.capacity
}

// Clear drops every snapshot.
func (s *Stack) Clear() {
	for i := range s.snapshots {
		s.snapshots[i] = nil
	}
	s.snapshots = s.snapshots[:0]
}

// Snapshots returns the snapshots oldest first. The graphs are immutable and
// shared, the slice is a copy.
func (s *Stack) Snapshots() []*schema.Graph {
	return append([]*schema.Graph(nil), s.snapshots...)
}

// Restore replaces the stack contents with snaps (oldest first), honoring the
// capacity bound.
func (s *Stack) Restore(snaps []*schema.Graph) {
	s.Clear()
	for _, g := range snaps {
		s.Push(g)
	}
}
