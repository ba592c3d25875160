// Package refinement runs the mutation pipeline that replaces a session's
// pathway with externally generated candidates, and the undo that reverts it.
package refinement

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rendis/pathway/internal/generation"
)

// DefaultAcceptanceGuard is the strict-mode CEL guard.
const DefaultAcceptanceGuard = "candidate.quality_score >= prior.quality_score"

// DefaultRemovalKeywords authorize a node-count drop when they appear as words
// in the advisory text or instruction.
var DefaultRemovalKeywords = []string{"remove", "delete", "consolidate", "merge", "simplify", "eliminate"}

// Config tunes the acceptance pipeline.
type Config struct {
	// MaxDropFraction is the share of nodes a candidate may lose without
	// explicit authorization. A drop of this fraction or more is rejected.
	MaxDropFraction float64 `yaml:"max_drop_fraction" json:"max_drop_fraction"`
	// RemovalKeywords authorize larger drops.
	RemovalKeywords []string `yaml:"removal_keywords" json:"removal_keywords"`
	// ReorganizeThreshold is the node count a graph must exceed to be reorganized.
	ReorganizeThreshold int `yaml:"reorganize_threshold" json:"reorganize_threshold"`
	// HistoryCapacity bounds undo depth; 0 is unbounded.
	HistoryCapacity int `yaml:"history_capacity" json:"history_capacity"`
	// Strict turns a quality regression from an advisory into a rejection.
	Strict bool `yaml:"strict" json:"strict"`
	// AcceptanceGuard is the CEL expression evaluated in strict mode over
	// candidate, prior and session.
	AcceptanceGuard string `yaml:"acceptance_guard" json:"acceptance_guard"`
	// Templates override the built-in request templates.
	Templates generation.Templates `yaml:"templates" json:"-"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MaxDropFraction:     0.4,
		RemovalKeywords:     append([]string(nil), DefaultRemovalKeywords...),
		ReorganizeThreshold: 20,
		HistoryCapacity:     0,
		Strict:              false,
		AcceptanceGuard:     DefaultAcceptanceGuard,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.MaxDropFraction <= 0 || c.MaxDropFraction > 1 {
		return fmt.Errorf("max_drop_fraction must be in (0, 1], got %v", c.MaxDropFraction)
	}
	if c.ReorganizeThreshold < 0 {
		return fmt.Errorf("reorganize_threshold must be >= 0, got %d", c.ReorganizeThreshold)
	}
	if c.HistoryCapacity < 0 {
		return fmt.Errorf("history_capacity must be >= 0, got %d", c.HistoryCapacity)
	}
	for _, k := range c.RemovalKeywords {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("removal_keywords must not contain blanks")
		}
	}
	return nil
}

// authorizesRemoval reports whether text contains one of the keywords as a
// word or inflection (merge, merged, merging; simplify, simplified).
func authorizesRemoval(text string, keywords []string) bool {
	if text == "" || len(keywords) == 0 {
		return false
	}
	stems := make([]string, 0, len(keywords))
	for _, k := range keywords {
		stems = append(stems, stem(strings.ToLower(strings.TrimSpace(k))))
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		for _, s := range stems {
			if s != "" && strings.HasPrefix(w, s) {
				return true
			}
		}
	}
	return false
}

// stem drops a trailing e or y so inflected forms share a prefix.
func stem(word string) string {
	if len(word) > 3 && (strings.HasSuffix(word, "e") || strings.HasSuffix(word, "y")) {
		return word[:len(word)-1]
	}
	return word
}

// dropExceeded reports whether shrinking from prior to candidate nodes loses
// at least maxDrop of the graph.
func dropExceeded(prior, candidate int, maxDrop float64) bool {
	if prior == 0 || candidate >= prior {
		return false
	}
	const eps = 1e-9
	return float64(prior-candidate)/float64(prior) >= maxDrop-eps
}
