package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/autoreg/internal/config"
	"github.com/dbsmedya/autoreg/internal/pipeline"
	"github.com/dbsmedya/autoreg/internal/source"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show how every declaration is classified",
	Long: `Plan runs one discovery pass without writing anything and displays
the decision taken for each declaration.

The plan shows:
  - Every declaration with its verdict and the capabilities it matched
  - The discovery set in registry order
  - A summary of the pass and the type hierarchy

Example:
  autoreg plan --config autoreg.yaml`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadValidConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := commandContext(cmd)

	table, report, err := source.NewLoader(cfg, log).Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}

	p, err := newPipeline(cfg, log, nil)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx, table)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	renderPlan(cfg, report, res)
	return nil
}

func renderPlan(cfg *config.Config, report *source.Report, res *pipeline.Result) {
	printHeader("Discovery Plan: %s", cfg.Namespace)

	fmt.Fprintln(outputWriter)
	printSection("Declarations")
	if len(res.Decisions) == 0 {
		fmt.Fprintln(outputWriter, "  (none)")
	} else {
		printDecisionTable(res)
	}

	var setLines []string
	if len(res.Set) == 0 {
		setLines = append(setLines, "  (empty)")
	}
	for i, name := range res.Set {
		setLines = append(setLines, fmt.Sprintf("  [%d] %s", i+1, name))
	}

	h := res.Hierarchy
	cycles := 0
	for _, c := range h.StronglyConnected() {
		if len(c.Members) > 1 {
			cycles++
		}
	}

	summaryLines := []string{
		"[ Summary ]",
		strings.Repeat("-", 11),
		fmt.Sprintf("Files:          %d (%d skipped)", len(report.Files), len(report.Skipped)),
		fmt.Sprintf("Declarations:   %d", res.Stats.Declarations),
		fmt.Sprintf("Candidates:     %d", res.Stats.Candidates),
		fmt.Sprintf("Discovered:     %d", len(res.Set)),
		fmt.Sprintf("Output:         %s", cfg.OutputPath()),
		"",
		"[ Hierarchy ]",
		strings.Repeat("-", 13),
		fmt.Sprintf("Types:          %d", h.NodeCount()),
		fmt.Sprintf("Edges:          %d", h.EdgeCount()),
		fmt.Sprintf("External:       %d", len(h.ExternalNodes())),
		fmt.Sprintf("Cycles:         %d", cycles),
	}

	fmt.Fprintln(outputWriter)
	printSection("Discovery Set")
	printSideBySide(strings.Join(setLines, "\n"), summaryLines, 4)
}

// printDecisionTable prints one aligned row per declaration.
func printDecisionTable(res *pipeline.Result) {
	header := []string{"TYPE", "KIND", "VERDICT", "DETAIL"}
	rows := make([][]string, 0, len(res.Decisions))
	for _, dec := range res.Decisions {
		rows = append(rows, decisionRow(dec, res))
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = visualWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], visualWidth(cell))
		}
	}

	printRow := func(cells []string, verdict pipeline.Classification, colored bool) {
		var sb strings.Builder
		sb.WriteString("  ")
		for i, cell := range cells {
			if i == len(cells)-1 {
				sb.WriteString(cell)
				break
			}
			padded := runewidth.FillRight(cell, widths[i])
			if colored && i == 2 {
				padded = verdictColor(verdict).Sprint(padded)
			}
			sb.WriteString(padded)
			sb.WriteString("  ")
		}
		fmt.Fprintln(outputWriter, strings.TrimRight(sb.String(), " "))
	}

	printRow(header, pipeline.Classification{}, false)
	for i, row := range rows {
		printRow(row, res.Decisions[i].Classification, true)
	}
}

func decisionRow(dec pipeline.Decision, res *pipeline.Result) []string {
	name, kind := "<nil>", "-"
	if d := dec.Declaration; d != nil {
		name = d.QualifiedName()
		kind = d.Kind.String()
		if d.HasTypeParams() {
			kind += "[" + strings.Join(d.TypeParams, ",") + "]"
		}
	}

	c := dec.Classification
	detail := ""
	switch {
	case c.IsIncluded():
		detail = strings.Join(c.Matched, ", ")
	case c.Reason == pipeline.ReasonNoCapability && dec.Declaration != nil:
		detail = "implements " + strings.Join(res.Hierarchy.Interfaces(name), ", ")
	case c.Reason == pipeline.ReasonUnexported:
		detail = "not visible from the registry package"
	}
	return []string{name, kind, c.Reason.String(), detail}
}

func verdictColor(c pipeline.Classification) color.Color {
	switch c.Reason {
	case pipeline.ReasonNone:
		return color.Green
	case pipeline.ReasonUnresolved, pipeline.ReasonUnexported:
		return color.Red
	case pipeline.ReasonNoCapability, pipeline.ReasonNoInterfaces:
		return color.Yellow
	default:
		return color.Gray
	}
}

// printHeader prints a formatted header
func printHeader(format string, args ...any) {
	title := fmt.Sprintf(format, args...)
	width := visualWidth(title) + 4
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
	fmt.Fprintf(outputWriter, "  %s\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
}

// printSection prints a section header
func printSection(title string) {
	fmt.Fprintf(outputWriter, "[%s]\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("-", visualWidth(title)+2))
}

// printSideBySide prints two blocks of text side by side
// padding is the minimum spaces between the two columns
func printSideBySide(leftContent string, rightLines []string, padding int) {
	leftLines := strings.Split(strings.TrimRight(leftContent, "\n"), "\n")

	leftWidth := 0
	for _, line := range leftLines {
		leftWidth = max(leftWidth, visualWidth(line))
	}

	maxHeight := max(len(leftLines), len(rightLines))
	for i := 0; i < maxHeight; i++ {
		leftPart := ""
		rightPart := ""
		if i < len(leftLines) {
			leftPart = leftLines[i]
		}
		if i < len(rightLines) {
			rightPart = rightLines[i]
		}

		fmt.Fprint(outputWriter, leftPart)
		if rightPart == "" {
			fmt.Fprintln(outputWriter)
			continue
		}
		spacesNeeded := leftWidth - visualWidth(leftPart) + padding
		if spacesNeeded > 0 {
			fmt.Fprint(outputWriter, strings.Repeat(" ", spacesNeeded))
		}
		fmt.Fprintln(outputWriter, rightPart)
	}
}

// visualWidth returns the terminal width of s, accounting for wide characters
func visualWidth(s string) int {
	return runewidth.StringWidth(s)
}
