package history

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pathway/internal/pathwaytest"
	"github.com/rendis/pathway/pkg/schema"
)

func TestStack_PushPop(t *testing.T) {
	s := New(0)
	assert.Zero(t, s.Depth())

	_, ok := s.Pop()
	assert.False(t, ok)
	_, ok = s.Peek()
	assert.False(t, ok)

	a, b := pathwaytest.Linear(3), pathwaytest.TwoBranch()
	s.Push(a)
	s.Push(b)
	s.Push(nil)
	assert.Equal(t, 2, s.Depth())

	top, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, b.ContentHash(), top.ContentHash())

	got, ok := s.Pop()
	require.True(t, ok)
	assert.Empty(t, cmp.Diff(b.Nodes(), got.Nodes()))

	got, ok = s.Pop()
	require.True(t, ok)
	assert.Empty(t, cmp.Diff(a.Nodes(), got.Nodes()))
	assert.Zero(t, s.Depth())
}

func TestStack_SnapshotsAreIndependent(t *testing.T) {
	nodes := pathwaytest.LinearNodes(3)
	g := schema.NewGraph(nodes)

	s := New(0)
	s.Push(g)
	nodes[1].Label = "mutated after snapshot"

	got, _ := s.Pop()
	assert.Equal(t, "Step 1", got.At(1).Label)
}

func TestStack_Capacity(t *testing.T) {
	s := New(2)
	assert.Equal(t, 2, s.Capacity())

	for n := 2; n <= 5; n++ {
		s.Push(pathwaytest.Linear(n))
	}
	assert.Equal(t, 2, s.Depth())

	got, _ := s.Pop()
	assert.Equal(t, 5, got.Len())
	got, _ = s.Pop()
	assert.Equal(t, 4, got.Len())

	assert.Zero(t, New(-3).Capacity())
}

func TestStack_ClearAndRestore(t *testing.T) {
	s := New(0)
	s.Push(pathwaytest.Linear(2))
	s.Push(pathwaytest.Linear(3))

	snaps := s.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, 2, snaps[0].Len())

	s.Clear()
	assert.Zero(t, s.Depth())

	s.Restore(snaps)
	assert.Equal(t, 2, s.Depth())
	top, _ := s.Peek()
	assert.Equal(t, 3, top.Len())

	bounded := New(1)
	bounded.Restore(snaps)
	assert.Equal(t, 1, bounded.Depth())
	top, _ = bounded.Peek()
	assert.Equal(t, 3, top.Len())
}
