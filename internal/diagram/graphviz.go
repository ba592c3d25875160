package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderImage renders a DiagramModel as a PNG image using graphviz.
// Returns the PNG bytes.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return renderGraphviz(ctx, model, graphviz.PNG)
}

// RenderSVG renders a DiagramModel as an SVG document using graphviz.
func RenderSVG(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return renderGraphviz(ctx, model, graphviz.SVG)
}

// RenderDOT renders a DiagramModel as laid-out DOT source.
func RenderDOT(ctx context.Context, model *DiagramModel) (string, error) {
	out, err := renderGraphviz(ctx, model, graphviz.XDOT)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func renderGraphviz(ctx context.Context, model *DiagramModel, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	// Lanes become dashed clusters; remaining nodes live at the top level.
	parent := make(map[string]*cgraph.Graph)
	for _, lane := range model.Lanes {
		sub, subErr := graph.CreateSubGraphByName("cluster_" + mermaidSafeID(lane.Name))
		if subErr != nil {
			continue
		}
		sub.SetLabel(lane.Name)
		sub.SetStyle(cgraph.DashedGraphStyle)
		for _, id := range lane.NodeIDs {
			parent[id] = sub
		}
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		owner := graph
		if sub, ok := parent[node.ID]; ok {
			owner = sub
		}
		gvNode, nErr := owner.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		label := firstLine(node.Label)
		if node.Evidence != "" {
			label += "\n[" + node.Evidence + "]"
		}
		gvNode.SetLabel(label)
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV != nil && toGV != nil {
			e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
			if eErr == nil && edge.Label != "" {
				e.SetLabel(edge.Label)
			}
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on node kind and issues.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindDecision:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindStart:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindEnd:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.5)
		gvNode.SetHeight(0.5)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	if node.Issue != nil {
		applyIssueColor(gvNode, node.Issue.Severity)
	}
}

// applyIssueColor highlights nodes cited by validation findings.
func applyIssueColor(gvNode *cgraph.Node, severity string) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch severity {
	case "error":
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	default:
		gvNode.SetFillColor("#f5deb3")
		gvNode.SetFontColor("black")
		gvNode.SetStyle(cgraph.DashedNodeStyle)
	}
}
