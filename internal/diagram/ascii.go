package diagram

import (
	"fmt"
	"strings"
)

// issueTag returns a short ASCII indicator for an issue overlay.
func issueTag(issue *IssueOverlay) string {
	if issue == nil {
		return ""
	}
	if issue.Severity == "error" {
		return "[ERR " + strings.Join(issue.Rules, ",") + "]"
	}
	return "[WARN " + strings.Join(issue.Rules, ",") + "]"
}

// kindTag returns the bracketed kind marker shown in text boxes.
func kindTag(k NodeKind) string {
	switch k {
	case NodeKindStart:
		return "(start)"
	case NodeKindDecision:
		return "<decision>"
	case NodeKindEnd:
		return "(end)"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based diagram.
// It uses a level-based layout with box-drawing characters, followed by the
// labelled branch edges.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	var branches []Edge
	for _, e := range model.Edges {
		if e.Label != "" {
			branches = append(branches, e)
		}
	}
	if len(branches) > 0 {
		b.WriteString("\n--- branches ---\n")
		for _, e := range branches {
			b.WriteString(fmt.Sprintf("  %s ─[%s]→ %s\n", e.From, e.Label, e.To))
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := []string{firstLine(node.Label)}
	if tag := kindTag(node.Kind); tag != "" {
		contentLines = append(contentLines, tag)
	}
	if node.Evidence != "" {
		contentLines = append(contentLines, node.Evidence)
	}
	if tag := issueTag(node.Issue); tag != "" {
		contentLines = append(contentLines, tag)
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := len([]rune(line)); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len([]rune(content)))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
