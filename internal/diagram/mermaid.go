package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	inLane := make(map[string]bool)
	for _, lane := range model.Lanes {
		b.WriteString(fmt.Sprintf("    subgraph %s[%q]\n", mermaidSafeID("lane_"+lane.Name), lane.Name))
		for _, id := range lane.NodeIDs {
			if n := findNode(model.Nodes, id); n != nil {
				b.WriteString(fmt.Sprintf("        %s\n", mermaidNodeDef(n)))
				inLane[id] = true
			}
		}
		b.WriteString("    end\n")
	}

	for _, node := range model.Nodes {
		if !inLane[node.ID] {
			b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
		}
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef start fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef decision fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef terminal fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef violation fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef warning stroke:#b7791a,stroke-width:3px,stroke-dasharray:5 5\n")

	for _, node := range model.Nodes {
		if cls := mermaidClass(node); cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))
	if node.Evidence != "" {
		label += " [" + mermaidEscapeLabel(node.Evidence) + "]"
	}

	switch node.Kind {
	case NodeKindDecision:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindStart:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots, dashes and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel replaces characters that terminate Mermaid labels.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "'", "|", "/")
	return r.Replace(s)
}

// mermaidClass picks the class for a node; issues win over kind.
func mermaidClass(node *Node) string {
	if node.Issue != nil {
		if node.Issue.Severity == "error" {
			return "violation"
		}
		return "warning"
	}
	switch node.Kind {
	case NodeKindStart:
		return "start"
	case NodeKindDecision:
		return "decision"
	case NodeKindEnd:
		return "terminal"
	default:
		return ""
	}
}
