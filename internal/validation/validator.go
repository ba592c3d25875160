package validation

import "github.com/rendis/pathway/pkg/schema"

// Validator checks pathway graphs for structural soundness.
//
// Stages:
//  1. Structure (ids, kinds, start node, branch references)
//  2. DAG (cycles from Start, then from any unvisited node; Start is the sole entry)
//  3. Terminal (End nodes have no outgoing edges)
//  4. Divergence (decision branches never reconverge before their End)
//
// Stages 2-4 always run, even when structure errors exist, so that a rejected
// candidate carries its complete violation list. Validate never fails; whether
// a violation blocks acceptance is decided by the caller.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate runs every stage against g and returns the aggregated report.
func (v *Validator) Validate(g *schema.Graph) *Report {
	r := newReport()
	if g == nil || g.Len() == 0 {
		r.StructureOK = false
		r.violate(RuleEmptyGraph, "", "", "graph has no nodes")
		return r
	}

	r.NodeCount = g.Len()
	r.DecisionCount = g.Count(schema.NodeKindDecision)

	checkStructure(g, r)
	checkDAG(g, r)
	checkTerminals(g, r)
	checkDivergence(g, r)

	return r
}

// Validate runs a zero-configuration Validator against g.
func Validate(g *schema.Graph) *Report {
	return New().Validate(g)
}
