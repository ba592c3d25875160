package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/pathway/internal/artifacts"
	"github.com/rendis/pathway/internal/complexity"
	"github.com/rendis/pathway/internal/diagram"
	"github.com/rendis/pathway/internal/heuristics"
	"github.com/rendis/pathway/internal/validation"
	"github.com/rendis/pathway/pkg/schema"
)

var (
	jsonOutput    bool
	evidencePath  string
	diagramFormat string
	diagramTitle  string
	diagramOut    string
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check pathway files for cycles, non-terminal End nodes and reconverging branches",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

var scoreCmd = &cobra.Command{
	Use:   "score <file>",
	Short: "Compute complexity metrics and the quality score of a pathway file",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the usability heuristics",
	Args:  cobra.NoArgs,
	RunE:  runCatalog,
}

var diagramCmd = &cobra.Command{
	Use:   "diagram <file>",
	Short: "Draw a pathway file as mermaid, dot, svg, png or ascii",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagram,
}

func init() {
	validateCmd.Flags().BoolVar(&jsonOutput, "json", false, "print reports as JSON")
	scoreCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full report as JSON")
	scoreCmd.Flags().StringVar(&evidencePath, "evidence", "", "JSON file of citations ({id, title, summary})")
	catalogCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the catalog as JSON")
	diagramCmd.Flags().StringVarP(&diagramFormat, "format", "f", "mermaid", "output format: mermaid, dot, svg, png, ascii")
	diagramCmd.Flags().StringVar(&diagramTitle, "title", "", "diagram title")
	diagramCmd.Flags().StringVarP(&diagramOut, "out", "o", "", "output file (required for png)")
}

// fileReport pairs a pathway file with its validation outcome.
type fileReport struct {
	Path   string             `json:"path"`
	Report *validation.Report `json:"report,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	reports, err := validateFiles(cmd.Context(), args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeJSON(out, reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			printReport(out, r)
		}
	}

	invalid := 0
	for _, r := range reports {
		if r.Error != "" || !r.Report.Valid() {
			invalid++
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d pathways failed validation", invalid, len(reports))
	}
	return nil
}

// validateFiles reads and validates every path concurrently. Unreadable
// files are reported per file; only context cancellation aborts the run.
func validateFiles(ctx context.Context, paths []string) ([]fileReport, error) {
	reports := make([]fileReport, len(paths))
	v := validation.New()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i].Path = path
			graph, err := readGraphFile(path)
			if err != nil {
				reports[i].Error = err.Error()
				return nil
			}
			reports[i].Report = v.Validate(graph)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func printReport(w io.Writer, r fileReport) {
	switch {
	case r.Error != "":
		fmt.Fprintf(w, "%s: error: %s\n", r.Path, r.Error)
	case r.Report.Valid():
		fmt.Fprintf(w, "%s: ok (%d nodes, %d decisions)\n", r.Path, r.Report.NodeCount, r.Report.DecisionCount)
	default:
		fmt.Fprintf(w, "%s: %d violation(s)\n", r.Path, len(r.Report.Violations))
		for _, v := range r.Report.Violations {
			fmt.Fprintf(w, "  %s\n", v)
		}
	}
	if r.Report != nil {
		for _, warn := range r.Report.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warn)
		}
	}
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, logger, _, err := setup()
	if err != nil {
		return err
	}
	scorer, err := complexity.New(cfg.Scorer, logger)
	if err != nil {
		return err
	}

	graph, err := readGraphFile(args[0])
	if err != nil {
		return err
	}
	var evidence []schema.Citation
	if evidencePath != "" {
		data, err := os.ReadFile(evidencePath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &evidence); err != nil {
			return fmt.Errorf("parse %s: %w", evidencePath, err)
		}
	}

	report := scorer.ScoreContext(cmd.Context(), graph, evidence)
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	printScore(cmd.OutOrStdout(), args[0], report)
	return nil
}

func printScore(w io.Writer, path string, r *complexity.Report) {
	fmt.Fprintf(w, "%s: %s, quality %.2f (%d nodes, %d decisions, %d ends)\n",
		path, r.Level, r.QualityScore, r.NodeCount, r.DecisionCount, r.EndCount)
	if len(r.StagesMissing) > 0 {
		fmt.Fprintf(w, "  missing stages: %s\n", strings.Join(r.StagesMissing, ", "))
	}
	for _, msg := range r.Messages() {
		fmt.Fprintf(w, "  - %s\n", msg)
	}
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	c := heuristics.Default()
	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, c.All())
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tNAME")
	for _, h := range c.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.ID, h.Category, h.Name)
	}
	return tw.Flush()
}

func runDiagram(cmd *cobra.Command, args []string) error {
	_, logger, _, err := setup()
	if err != nil {
		return err
	}
	format, err := diagram.ParseFormat(diagramFormat)
	if err != nil {
		return err
	}
	if format.Binary() && diagramOut == "" {
		return fmt.Errorf("--out is required for %s output", format)
	}

	graph, err := readGraphFile(args[0])
	if err != nil {
		return err
	}
	data, err := artifacts.NewRenderer(artifacts.NewMemoryCache(), logger).
		Diagram(cmd.Context(), graph, diagramTitle, format)
	if err != nil {
		return err
	}

	if diagramOut == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(diagramOut, data, 0o644)
}

// readGraphFile loads a pathway from a JSON node list, or from an object
// carrying the list under "nodes" (the shape pathway.status returns).
func readGraphFile(path string) (*schema.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var g schema.Graph
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Nodes json.RawMessage `json:"nodes"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(wrapper.Nodes) == 0 {
			return nil, fmt.Errorf("parse %s: no nodes", path)
		}
		data = wrapper.Nodes
	}
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &g, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
