package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/pathway/internal/pathwaytest"
	"github.com/rendis/pathway/internal/refinement"
)

func TestSessionRegistry_PutAndGet(t *testing.T) {
	r := NewSessionRegistry()
	s := refinement.NewSession(pathwaytest.TwoBranch(), refinement.WithSessionID("s1"))

	r.Put(s, "Vomiting")
	got, ok := r.Get("s1")
	assert.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, "Vomiting", r.Title("s1"))
}

func TestSessionRegistry_NotFound(t *testing.T) {
	r := NewSessionRegistry()

	_, ok := r.Get("unknown")
	assert.False(t, ok)
	assert.Empty(t, r.Title("unknown"))
}

func TestSessionRegistry_PutKeepsTitle(t *testing.T) {
	r := NewSessionRegistry()
	s := refinement.NewSession(nil, refinement.WithSessionID("s1"))

	r.Put(s, "Chest pain")
	r.Put(s, "")
	assert.Equal(t, "Chest pain", r.Title("s1"))
}

func TestSessionRegistry_IDsSorted(t *testing.T) {
	r := NewSessionRegistry()
	r.Put(refinement.NewSession(nil, refinement.WithSessionID("b")), "")
	r.Put(refinement.NewSession(nil, refinement.WithSessionID("a")), "")

	assert.Equal(t, []string{"a", "b"}, r.IDs())
}

func TestSessionRegistry_Watchers(t *testing.T) {
	r := NewSessionRegistry()

	r.Watch("s1", "client-2")
	r.Watch("s1", "client-1")
	r.Watch("s1", "client-1")
	r.Watch("s2", "client-1")

	assert.Equal(t, []string{"client-1", "client-2"}, r.Watchers("s1"))
	assert.Equal(t, []string{"client-1"}, r.Watchers("s2"))
	assert.Empty(t, r.Watchers("s3"))
}

func TestSessionRegistry_Remove(t *testing.T) {
	r := NewSessionRegistry()
	r.Watch("s1", "client-1")
	r.Watch("s1", "client-2")
	r.Watch("s2", "client-1")

	r.Remove("client-1")

	assert.Equal(t, []string{"client-2"}, r.Watchers("s1"))
	assert.Empty(t, r.Watchers("s2"))
}

func TestSessionRegistry_Drop(t *testing.T) {
	r := NewSessionRegistry()
	r.Put(refinement.NewSession(nil, refinement.WithSessionID("s1")), "t")
	r.Watch("s1", "client-1")

	r.Drop("s1")

	_, ok := r.Get("s1")
	assert.False(t, ok)
	assert.Empty(t, r.Title("s1"))
	assert.Empty(t, r.Watchers("s1"))
}
