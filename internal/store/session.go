package store

import (
	"context"
	"fmt"

	"github.com/rendis/pathway/internal/refinement"
	"github.com/rendis/pathway/pkg/schema"
)

// RecordFromSession captures the persisted shape of s.
func RecordFromSession(ctx context.Context, s *refinement.Session, title string) (*SessionRecord, error) {
	g := s.Current()
	rec := &SessionRecord{
		ID:          s.ID,
		Title:       title,
		State:       string(s.State()),
		Nodes:       g.Nodes(),
		ContentHash: g.ContentHash(),
	}
	for _, snap := range s.History() {
		rec.History = append(rec.History, snap.Nodes())
	}
	keys, err := s.Cache().Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list artifact keys: %w", err)
	}
	for _, k := range keys {
		rec.CacheKeys = append(rec.CacheKeys, k.String())
	}
	return rec, nil
}

// Session rebuilds a refinement session from the record. The artifact cache
// starts empty unless one is supplied through opts.
func (r *SessionRecord) Session(opts ...refinement.SessionOption) *refinement.Session {
	opts = append([]refinement.SessionOption{refinement.WithSessionID(r.ID)}, opts...)
	s := refinement.NewSession(nil, opts...)

	snaps := make([]*schema.Graph, 0, len(r.History))
	for _, nodes := range r.History {
		snaps = append(snaps, schema.NewGraph(nodes))
	}
	s.Restore(schema.NewGraph(r.Nodes), snaps)
	return s
}
