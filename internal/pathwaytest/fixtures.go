// Package pathwaytest provides pathway fixtures shared by package tests.
package pathwaytest

import (
	"fmt"

	"github.com/rendis/pathway/pkg/schema"
)

// TwoBranch returns [Start, Decision{yes:[Process, End], no:[Process, End]}].
func TwoBranch() *schema.Graph {
	return schema.NewGraph([]schema.Node{
		{ID: "start", Kind: schema.NodeKindStart, Label: "Patient presents to ED with vomiting"},
		{ID: "d1", Kind: schema.NodeKindDecision, Label: "Is patient unstable?", Branches: []schema.Branch{
			{Label: "Yes", Nodes: []string{"p1", "e1"}},
			{Label: "No", Nodes: []string{"p2", "e2"}},
		}},
		{ID: "p1", Kind: schema.NodeKindProcess, Label: "Resuscitate"},
		{ID: "e1", Kind: schema.NodeKindEnd, Label: "Admit to ICU"},
		{ID: "p2", Kind: schema.NodeKindProcess, Label: "Antiemetic and oral rehydration"},
		{ID: "e2", Kind: schema.NodeKindEnd, Label: "Discharge home"},
	})
}

// Linear returns a valid pathway of n nodes (n >= 2): Start, n-2 Process steps, End.
func Linear(n int) *schema.Graph {
	return schema.NewGraph(LinearNodes(n))
}

// LinearNodes returns the node list behind Linear.
func LinearNodes(n int) []schema.Node {
	if n < 2 {
		n = 2
	}
	nodes := make([]schema.Node, 0, n)
	nodes = append(nodes, schema.Node{ID: "n0", Kind: schema.NodeKindStart, Label: "Patient arrives at triage"})
	for i := 1; i < n-1; i++ {
		nodes = append(nodes, schema.Node{
			ID:    fmt.Sprintf("n%d", i),
			Kind:  schema.NodeKindProcess,
			Label: fmt.Sprintf("Step %d", i),
		})
	}
	nodes = append(nodes, schema.Node{ID: fmt.Sprintf("n%d", n-1), Kind: schema.NodeKindEnd, Label: "Discharge"})
	return nodes
}

// Reversed returns the node list of g with the process steps in reverse order.
// Node count and id set are preserved.
func Reversed(g *schema.Graph) []schema.Node {
	nodes := g.Nodes()
	if len(nodes) < 4 {
		return nodes
	}
	mid := nodes[1 : len(nodes)-1]
	for i, j := 0, len(mid)-1; i < j; i, j = i+1, j-1 {
		mid[i], mid[j] = mid[j], mid[i]
	}
	return nodes
}

// ChestPain returns a fifteen-node pathway with three decisions, full
// benefit/harm annotations and partial citations.
func ChestPain() *schema.Graph {
	return schema.NewGraph([]schema.Node{
		{ID: "start", Kind: schema.NodeKindStart, Label: "Patient presents to ED with chest pain"},
		{ID: "vitals", Kind: schema.NodeKindProcess, Label: "Initial assessment: vitals, cardiac auscultation, IV access", Detail: "Alarm if SBP <90 or RR >22"},
		{ID: "ekg", Kind: schema.NodeKindProcess, Label: "Order 12-lead EKG, serial troponin, CBC, BMP", Evidence: "PMID35739876"},
		{ID: "stemi", Kind: schema.NodeKindDecision, Label: "Does EKG show acute ST-elevation or new LBBB?", Evidence: "PMID25355829",
			Detail: "Benefit: immediate reperfusion. Harm: procedural risk. Threshold: ST elevation >1mm",
			Branches: []schema.Branch{
				{Label: "Yes", Nodes: []string{"cath", "cath_end"}},
				{Label: "No", Nodes: []string{"nstemi", "trop"}},
			}},
		{ID: "cath", Kind: schema.NodeKindProcess, Label: "Treatment: activate cath lab, aspirin, heparin bolus", Evidence: "PMID26173532"},
		{ID: "cath_end", Kind: schema.NodeKindEnd, Label: "Emergent catheterization and ICU admission", Evidence: "PMID26173532"},
		{ID: "nstemi", Kind: schema.NodeKindProcess, Label: "Diagnosis: repeat troponin at 3h, CXR", Evidence: "PMID25355829"},
		{ID: "trop", Kind: schema.NodeKindDecision, Label: "Is troponin elevated or rising?", Evidence: "PMID35739876",
			Detail: "Benefit: early detection. Harm: false positives. Threshold: >99th percentile",
			Branches: []schema.Branch{
				{Label: "Yes", Nodes: []string{"acs", "ccu"}},
				{Label: "No", Nodes: []string{"obs", "stable"}},
			}},
		{ID: "acs", Kind: schema.NodeKindProcess, Label: "Serial troponin, continuous monitoring, cardiology consult", Evidence: "PMID25355829"},
		{ID: "ccu", Kind: schema.NodeKindEnd, Label: "Admit to cardiac care unit", Evidence: "PMID26173532"},
		{ID: "obs", Kind: schema.NodeKindProcess, Label: "Observation 6-12h"},
		{ID: "stable", Kind: schema.NodeKindDecision, Label: "Re-evaluate: stable and pain-free for 6h?",
			Detail: "Benefit: safe discharge. Harm: missed ACS. Threshold: negative troponins",
			Branches: []schema.Branch{
				{Label: "Yes", Nodes: []string{"discharge"}},
				{Label: "No", Nodes: []string{"recheck", "obs_unit"}},
			}},
		{ID: "discharge", Kind: schema.NodeKindEnd, Label: "Discharge with aspirin and PCP follow-up", Evidence: "PMID25355829"},
		{ID: "recheck", Kind: schema.NodeKindProcess, Label: "Repeat vitals, troponin and EKG"},
		{ID: "obs_unit", Kind: schema.NodeKindEnd, Label: "Admit to observation unit"},
	})
}
