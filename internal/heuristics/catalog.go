// Package heuristics holds the fixed usability heuristic catalog and its
// static split into heuristics that rewrite pathway content and heuristics
// that only concern presentation.
package heuristics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/pathway/pkg/schema"
)

// Category says whether applying a heuristic changes graph content.
type Category string

const (
	// CategoryActionable heuristics are applied by regenerating the node list.
	CategoryActionable Category = "actionable"
	// CategoryPresentationOnly heuristics concern the rendering surface only.
	CategoryPresentationOnly Category = "presentation_only"
)

// Valid reports whether c is one of the two categories.
func (c Category) Valid() bool {
	return c == CategoryActionable || c == CategoryPresentationOnly
}

// Heuristic is one catalog entry.
type Heuristic struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

// Actionable reports whether h rewrites graph content.
func (h Heuristic) Actionable() bool {
	return h.Category == CategoryActionable
}

// nielsen is Nielsen's ten usability heuristics, phrased for clinical pathways.
var nielsen = []Heuristic{
	{ID: "H1", Name: "Visibility of system status", Category: CategoryPresentationOnly,
		Description: "Keep users informed about where they are in the pathway and what happens next."},
	{ID: "H2", Name: "Match between system and real world", Category: CategoryActionable,
		Description: "Use familiar clinical language and the order in which clinicians actually work."},
	{ID: "H3", Name: "User control and freedom", Category: CategoryPresentationOnly,
		Description: "Support undo, escape and navigation back to earlier steps."},
	{ID: "H4", Name: "Consistency and standards", Category: CategoryActionable,
		Description: "Follow clinical conventions: consistent terminology, units and step phrasing."},
	{ID: "H5", Name: "Error prevention", Category: CategoryActionable,
		Description: "Add safeguards against clinical errors: contraindications, thresholds, red flags."},
	{ID: "H6", Name: "Recognition rather than recall", Category: CategoryPresentationOnly,
		Description: "Reduce cognitive load by keeping needed information visible."},
	{ID: "H7", Name: "Flexibility and efficiency of use", Category: CategoryActionable,
		Description: "Accommodate different expertise levels with shortcuts for experienced clinicians."},
	{ID: "H8", Name: "Aesthetic and minimalist design", Category: CategoryPresentationOnly,
		Description: "Remove information that does not support the decision at hand."},
	{ID: "H9", Name: "Help users recognize, diagnose, and recover from errors", Category: CategoryActionable,
		Description: "Add recovery branches for deterioration, failed treatment and missed findings."},
	{ID: "H10", Name: "Help and documentation", Category: CategoryPresentationOnly,
		Description: "Provide accessible guidance and references alongside the pathway."},
}

// Catalog is an immutable, validated set of heuristics with a static
// actionable / presentation-only partition.
type Catalog struct {
	entries      []Heuristic
	index        map[string]int
	actionable   []string
	presentation []string
}

// New validates entries and builds a Catalog. Every entry must have a unique,
// non-empty id and exactly one known category.
func New(entries []Heuristic) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "heuristic catalog is empty")
	}

	c := &Catalog{
		entries: make([]Heuristic, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	copy(c.entries, entries)

	for i, h := range c.entries {
		if strings.TrimSpace(h.ID) == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "heuristic at position %d has an empty id", i)
		}
		if _, dup := c.index[h.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate heuristic id %q", h.ID)
		}
		c.index[h.ID] = i

		switch h.Category {
		case CategoryActionable:
			c.actionable = append(c.actionable, h.ID)
		case CategoryPresentationOnly:
			c.presentation = append(c.presentation, h.ID)
		default:
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"heuristic %q has unknown category %q", h.ID, h.Category)
		}
	}

	if len(c.actionable)+len(c.presentation) != len(c.entries) {
		return nil, schema.NewError(schema.ErrCodeValidation, "heuristic partition does not cover the catalog")
	}
	return c, nil
}

// Default returns the built-in Nielsen catalog.
func Default() *Catalog {
	c, err := New(nielsen)
	if err != nil {
		panic(fmt.Sprintf("heuristics: built-in catalog is invalid: %v", err))
	}
	return c
}

// All returns every entry in catalog order.
func (c *Catalog) All() []Heuristic {
	out := make([]Heuristic, len(c.entries))
	copy(out, c.entries)
	return out
}

// IDs returns every id in catalog order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.entries))
	for i, h := range c.entries {
		out[i] = h.ID
	}
	return out
}

// Actionable returns the ids of content-rewriting heuristics.
func (c *Catalog) Actionable() []string {
	return append([]string(nil), c.actionable...)
}

// PresentationOnly returns the ids of presentation-only heuristics.
func (c *Catalog) PresentationOnly() []string {
	return append([]string(nil), c.presentation...)
}

// Get looks up a heuristic by id.
func (c *Catalog) Get(id string) (Heuristic, bool) {
	i, ok := c.index[id]
	if !ok {
		return Heuristic{}, false
	}
	return c.entries[i], true
}

// IsActionable reports whether id names an actionable heuristic.
func (c *Catalog) IsActionable(id string) bool {
	h, ok := c.Get(id)
	return ok && h.Actionable()
}

// ValidateSelection checks a user selection for apply requests. It returns the
// selection deduplicated and in catalog order, or an EMPTY_OR_INVALID_SELECTION
// error naming the unknown and presentation-only ids.
func (c *Catalog) ValidateSelection(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, schema.NewError(schema.ErrCodeInvalidSelection, "no heuristics selected")
	}

	var unknown, presentation []string
	picked := make(map[string]bool, len(ids))
	for _, raw := range ids {
		id := strings.ToUpper(strings.TrimSpace(raw))
		h, ok := c.Get(id)
		switch {
		case !ok:
			unknown = append(unknown, raw)
		case !h.Actionable():
			presentation = append(presentation, id)
		default:
			picked[id] = true
		}
	}

	if len(unknown) > 0 || len(presentation) > 0 {
		sort.Strings(unknown)
		sort.Strings(presentation)
		return nil, schema.NewErrorf(schema.ErrCodeInvalidSelection,
			"selection must contain only actionable heuristics (%s)", strings.Join(c.actionable, ", ")).
			WithDetails(map[string]any{
				"unknown":           unknown,
				"presentation_only": presentation,
			})
	}

	out := make([]string, 0, len(picked))
	for _, id := range c.actionable {
		if picked[id] {
			out = append(out, id)
		}
	}
	return out, nil
}
